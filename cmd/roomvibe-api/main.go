// Package main is the entry point for the roomvibe-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/roomvibe/roomvibe-api/internal/config"
	"github.com/roomvibe/roomvibe-api/internal/database"
	"github.com/roomvibe/roomvibe-api/internal/http/handlers"
	"github.com/roomvibe/roomvibe-api/internal/http/mw"
	"github.com/roomvibe/roomvibe-api/internal/logging"
	"github.com/roomvibe/roomvibe-api/internal/repository"
	"github.com/roomvibe/roomvibe-api/internal/service"
	"github.com/roomvibe/roomvibe-api/internal/version"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting roomvibe-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	logger.Info("generation pipeline resolved", "mode", cfg.PipelineMode)

	// Retention cleanup for mirrored result images
	if services.Storage.IsEnabled() {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
				deleted, err := services.Storage.DeleteOldResults(cleanupCtx, cfg.ResultRetention)
				cancel()
				if err != nil {
					logger.Error("result retention cleanup failed", "error", err)
					continue
				}
				logger.Info("result retention cleanup finished", "deleted", deleted)
			}
		}()
	}

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB) - prevent large payload attacks
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Global rate limit by IP
	router.Use(httprate.LimitByIP(100, time.Minute))

	// Global concurrency throttle - prevent system overload
	router.Use(middleware.Throttle(100))

	// Create Huma API config with OpenAPI docs
	humaConfig := huma.DefaultConfig("RoomVibe API", "1.0.0")
	humaConfig.Info.Description = "AI-powered interior redesign API: analyze a room photo, apply redesign suggestions, and pay per application with credits."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearerAuth": {
			Type:        "http",
			Scheme:      "bearer",
			Description: "JWT authentication. Include your token in the Authorization header as `Bearer <token>`.",
		},
	}

	// Main API with OpenAPI docs
	api := humachi.New(router, humaConfig)

	// Config for protected routes (docs are served by the main API)
	protectedConfig := huma.DefaultConfig("RoomVibe API", "1.0.0")
	protectedConfig.Info.Description = humaConfig.Info.Description
	protectedConfig.Servers = humaConfig.Servers
	protectedConfig.DocsPath = ""
	protectedConfig.OpenAPIPath = ""
	protectedConfig.SchemasPath = ""

	// Health check (public, shown in docs)
	huma.Get(api, "/api/v1/health", handlers.HealthCheck)

	// Public package catalog (for pricing pages)
	paymentsHandler := handlers.NewPaymentsHandler(services.Payment)
	huma.Get(api, "/api/v1/payments/packages", paymentsHandler.ListPackages)

	// Stripe webhook (signature verified by handler, not user auth)
	if cfg.StripeWebhookSecret != "" {
		stripeWebhook := handlers.NewStripeWebhookHandler(cfg, services.Payment, logger)
		router.Post("/api/v1/webhooks/stripe", stripeWebhook.HandleWebhook)
		logger.Info("stripe webhook endpoint enabled")
	}

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(cfg.JWTSecret))

		protectedAPI := humachi.New(r, protectedConfig)

		// Credit ledger routes
		creditsHandler := handlers.NewCreditsHandler(services.Credit)
		huma.Get(protectedAPI, "/api/v1/credits/balance", creditsHandler.GetBalance)
		huma.Post(protectedAPI, "/api/v1/credits/deduct", creditsHandler.Deduct)
		huma.Get(protectedAPI, "/api/v1/credits/transactions", creditsHandler.ListTransactions)

		// Suggestion routes
		suggestionsHandler := handlers.NewSuggestionsHandler(services.Generation)
		huma.Post(protectedAPI, "/api/v1/suggestions/analyze", suggestionsHandler.Analyze)
		huma.Post(protectedAPI, "/api/v1/suggestions/apply", suggestionsHandler.Apply)
		huma.Get(protectedAPI, "/api/v1/suggestions/applied", suggestionsHandler.ListApplied)

		// Checkout
		huma.Post(protectedAPI, "/api/v1/payments/checkout", paymentsHandler.CreateCheckout)
	})

	// Create server. The write timeout must outlast the generation polling
	// budget since /suggestions/apply holds the request open.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PollBudget + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
