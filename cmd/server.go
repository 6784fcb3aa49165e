package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tillgate/tillgate/pkg/asyncx"
	"github.com/tillgate/tillgate/pkg/config"
	"github.com/tillgate/tillgate/pkg/errx"
	"github.com/tillgate/tillgate/pkg/kernel"
)

func main() {
	cfg := config.Load()

	initLogger(cfg)
	log.Info().Str("env", cfg.App.Env).Msg("starting tillgate API server")

	container := NewContainer(cfg)
	defer container.Cleanup()

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.App.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	app.Get("/health", healthCheckHandler(container))

	bearer := container.Auth.Bearer()
	staffAuth := container.Auth.BearerOrCookie(container.Cookies.Name(kernel.RoleManager))
	container.Accounts.RegisterRoutes(app, bearer)
	container.Admin.RegisterRoutes(app, bearer, staffAuth)

	app.Use(notFoundHandler)

	startServer(app, cfg.App.Port)
}

func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.App.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// healthCheckHandler pings the database and Redis so a degraded dependency
// shows up on the load balancer, not in production traffic.
func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": container.Config.App.Name,
		}

		probes := asyncx.AllSettled(c.Context(),
			func(ctx context.Context) (string, error) {
				return "db", container.DB.PingContext(ctx)
			},
			func(ctx context.Context) (string, error) {
				return "redis", container.Redis.Ping(ctx).Err()
			},
		)
		for _, probe := range probes {
			if probe.OK() {
				health[probe.Value] = "healthy"
			} else {
				health[probe.Value] = "unhealthy"
				health["status"] = "degraded"
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}

		return c.Status(status).JSON(health)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.GetRespHeader("X-Request-ID"),
	})
}

// globalErrorHandler converts internal errors to standard HTTP responses.
func globalErrorHandler(c *fiber.Ctx, err error) error {
	requestID := c.GetRespHeader("X-Request-ID")

	log.Error().
		Err(err).
		Str("path", c.Path()).
		Str("method", c.Method()).
		Str("ip", c.IP()).
		Str("request_id", requestID).
		Msg("request error")

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"ok":         false,
			"message":    fiberErr.Message,
			"code":       "FIBER_ERROR",
			"status":     fiberErr.Code,
			"request_id": requestID,
		})
	}

	var e *errx.Error
	if errx.As(err, &e) {
		response := fiber.Map{
			"ok":         false,
			"message":    e.Message,
			"code":       e.Code,
			"type":       string(e.Type),
			"status":     e.HTTPStatus,
			"request_id": requestID,
		}
		if len(e.Details) > 0 {
			response["details"] = e.Details
		}
		return c.Status(e.HTTPStatus).JSON(response)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"ok":         false,
		"message":    "An unexpected error occurred",
		"code":       "INTERNAL_ERROR",
		"type":       "INTERNAL",
		"request_id": requestID,
	})
}

func startServer(app *fiber.App, port string) {
	go func() {
		log.Info().Str("port", port).Msg("server listening")
		if err := app.Listen(":" + port); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
