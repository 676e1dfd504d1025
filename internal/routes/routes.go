package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hbarwallet/hbarwallet/internal/auth"
	"github.com/hbarwallet/hbarwallet/internal/config"
	"github.com/hbarwallet/hbarwallet/internal/identity"
	"github.com/hbarwallet/hbarwallet/internal/middleware"
	"github.com/hbarwallet/hbarwallet/internal/notification"
	"github.com/hbarwallet/hbarwallet/internal/payments"
	"github.com/hbarwallet/hbarwallet/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	IdentityRepo identity.Repository
	Users        *identity.Service
	Auth         *auth.Service
	Wallets      *wallet.Service
	Payments     *payments.Service
	Inbox        notification.Inbox
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config.Load also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Tracing())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	identityHandler := identity.NewHandler(d.Users, d.Wallets, d.Logger)
	authHandler := auth.NewHandler(d.Users, d.Auth, d.Wallets)
	walletHandler := wallet.NewHandler(d.Wallets, d.Cfg.ExplorerURL)
	paymentHandler := payments.NewHandler(d.Payments)

	// Public routes
	RegisterIdentityRoutes(api, identityHandler)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttemptsPerMin))

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(d.Auth), middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	RegisterProfileRoute(protected, d.IdentityRepo, d.Wallets)
	RegisterWalletRoutes(protected, walletHandler)
	RegisterPaymentRoutes(protected, paymentHandler, middleware.TransferRateLimit(d.Cfg.TransferRatePerMinute, 0))
	RegisterAccountRoutes(protected, authHandler)
	RegisterNotificationRoutes(protected, notification.NewHandler(d.Inbox))
	RegisterAdminRoutes(protected, walletHandler, middleware.RequireAdmin(d.IdentityRepo, d.Cfg.AdminEmails))

	return nil
}
