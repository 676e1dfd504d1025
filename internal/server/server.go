package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hbarwallet/hbarwallet/internal/config"
	"github.com/hbarwallet/hbarwallet/internal/routes"
	"github.com/hbarwallet/hbarwallet/internal/wallet"
)

// Server wraps the Fiber application, shared dependencies and background workers.
type Server struct {
	app        *fiber.App
	cfg        config.Config
	components *components
	logger     *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	comps, err := build(ctx, cfg, db, cache, logger)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: errorHandler,
	})

	err = routes.Setup(app, routes.Deps{
		Cfg:          cfg,
		DB:           db,
		Cache:        cache,
		Logger:       logger,
		IdentityRepo: comps.identityRepo,
		Users:        comps.identity,
		Auth:         comps.auth,
		Wallets:      comps.wallets,
		Payments:     comps.payments,
		Inbox:        comps.inbox,
	})
	if err != nil {
		_ = comps.close()
		return nil, err
	}

	return &Server{app: app, cfg: cfg, components: comps, logger: logger}, nil
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the reconciliation worker and the HTTP server.
func (s *Server) Listen() error {
	if err := s.components.worker.Start(); err != nil {
		return err
	}
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, the worker and outbound clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.components.worker.Stop(ctx)
	return errors.Join(err, s.components.close())
}

// errorHandler renders every error as {"error": {"kind", "message"}}.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fiber.Map{
			"kind":    kindForStatus(fe.Code),
			"message": fe.Message,
		}})
	}
	return wallet.WriteError(c, err)
}

func kindForStatus(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	if code >= http.StatusInternalServerError {
		return "internal"
	}
	return "validation"
}
