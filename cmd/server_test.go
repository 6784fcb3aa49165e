package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillgate/tillgate/pkg/authx"
	"github.com/tillgate/tillgate/pkg/gateway"
)

func TestGlobalErrorHandlerShape(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: globalErrorHandler})
	app.Get("/registry-error", func(c *fiber.Ctx) error {
		return gateway.ErrInvalidPIN()
	})
	app.Get("/auth-error", func(c *fiber.Ctx) error {
		return authx.ErrUnauthorized()
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/registry-error", nil), 5000)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "PIN must be 4 to 8 digits", body["message"])
	assert.Equal(t, "GATEWAY_INVALID_PIN", body["code"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/auth-error", nil), 5000)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body = map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "AUTHX_UNAUTHORIZED", body["code"])
}

func TestGlobalErrorHandlerUnknownError(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: globalErrorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return assert.AnError
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), 5000)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["ok"])
	assert.NotEmpty(t, body["message"])
}
