package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pcapi/internal/api"
	"pcapi/internal/app"
	"pcapi/internal/auth"
	"pcapi/internal/booking"
	"pcapi/internal/config"
	"pcapi/internal/database/migrations"
	"pcapi/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.NewWithOptions(logger.Options{
		Dir:      cfg.LogDir,
		Prefix:   "pcapi-api",
		MinLevel: logger.ParseLevel(cfg.LogLevel),
	})
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	if cfg.IsProduction() && !cfg.Auth.Enabled {
		log.Fatal("CONFIG", "AUTH_ENABLED must be true in production")
	}
	log.Info("APP", fmt.Sprintf("Starting pass Culture API (%s)", cfg.Env))

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("APP", err.Error())
	}
	defer a.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(a.DB, migrations.MigrateOptions{
			SourceURL:   cfg.Database.MigrationsPath,
			AutoMigrate: true,
		}, log)
		// the runner is not closed: closing it closes the shared *sql.DB
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("MIGRATION", err.Error())
		}
	}

	var verifier auth.Verifier = auth.UnverifiedVerifier{}
	if cfg.Auth.Enabled {
		v, err := auth.NewOIDCVerifier(ctx, cfg.Auth.IssuerURL, cfg.Auth.ClientID)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("Failed to set up OIDC verifier: %v", err))
		}
		verifier = v
		log.Info("AUTH", fmt.Sprintf("Verifying tokens issued by %s", cfg.Auth.IssuerURL))
	} else {
		log.LogSecurity("AUTH_DISABLED", "token signatures are not verified")
	}

	handler := api.NewHandler(a.Bookings, a.Collective, a.Subscription, a.Finance, booking.NewQRGenerator(256), log)
	handler.Checks["postgres"] = a.Ping
	handler.Checks["redis"] = a.PingRedis

	server := &http.Server{
		Addr: cfg.Server.Port,
		Handler: api.NewRouter(handler, api.RouterOptions{
			Verifier:      verifier,
			WebhookSecret: cfg.Auth.WebhookToken,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("API running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "API shutdown complete")
	}
}
