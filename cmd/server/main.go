package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fightzone/backend/internal/models"
	"fightzone/backend/pkg/config"
	"fightzone/backend/pkg/di"
	"fightzone/backend/pkg/logger"
	"fightzone/backend/pkg/router"
	"fightzone/backend/shared/observability"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg := config.New()

	appLogger := logger.New(logger.Config{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.Format == "json",
	})
	logger.SetGlobal(appLogger)

	shutdownTracing := observability.SetupTracing("fightzone-backend")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()

	db, err := config.NewDB()
	if err != nil {
		appLogger.Error("Failed to connect to database", "error", err.Error())
		os.Exit(1)
	}

	if err := db.AutoMigrate(&models.User{}, &models.ChatMessage{}); err != nil {
		appLogger.Error("Failed to run migrations", "error", err.Error())
		os.Exit(1)
	}

	container, err := di.New(db, appLogger)
	if err != nil {
		appLogger.Error("Failed to build dependencies", "error", err.Error())
		os.Exit(1)
	}

	r := router.New(container)
	r.SetupRoutes()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r.Engine,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		appLogger.Info("Server starting", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", "error", err.Error())
	}

	appLogger.Info("Server stopped")
}
