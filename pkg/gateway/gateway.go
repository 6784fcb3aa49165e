package gateway

import (
	"net/http"
	"strings"

	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/kernel"
)

// CookieConfig maps roles to their session cookie names. Each PIN-based role
// gets its own cookie so a shared terminal can hold a manager and a cashier
// session side by side.
type CookieConfig struct {
	Names  map[kernel.Role]string
	Secure bool
}

// Name returns the session cookie name for a role.
func (c CookieConfig) Name(role kernel.Role) string {
	if name, ok := c.Names[role]; ok && name != "" {
		return name
	}
	return "tg_" + strings.ToLower(role.String()) + "_session"
}

// parseRole normalizes and validates a role field from a request payload.
func parseRole(raw string) (kernel.Role, error) {
	role := kernel.Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.IsValid() {
		return "", ErrInvalidPayload().WithDetail("role", raw)
	}
	return role, nil
}

// validatePIN enforces the PIN shape before any hashing work is spent on it.
func validatePIN(secret string) error {
	if len(secret) < 4 || len(secret) > 8 {
		return ErrInvalidPIN()
	}
	for _, r := range secret {
		if r < '0' || r > '9' {
			return ErrInvalidPIN()
		}
	}
	return nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("GATEWAY")

var (
	CodeInvalidPayload = ErrRegistry.Register("INVALID_PAYLOAD", errx.TypeValidation, http.StatusBadRequest, "Invalid request payload")
	CodeInvalidPIN     = ErrRegistry.Register("INVALID_PIN", errx.TypeValidation, http.StatusBadRequest, "PIN must be 4 to 8 digits")
)

func ErrInvalidPayload() *errx.Error {
	return ErrRegistry.New(CodeInvalidPayload)
}

func ErrInvalidPIN() *errx.Error {
	return ErrRegistry.New(CodeInvalidPIN)
}
