package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webpush-backend/config"
	"webpush-backend/internal/auth"
	"webpush-backend/internal/db"
	"webpush-backend/internal/registrar"
)

func main() {
	logger := log.New(os.Stdout, "registrard ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	jwtSecret := []byte(cfg.Auth.JWTSecret)
	if len(jwtSecret) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Fatalf("failed to generate JWT secret: %v", err)
		}
		jwtSecret = []byte(base64.RawURLEncoding.EncodeToString(buf))
		logger.Printf("Warning: auth.jwt_secret is not configured; using an ephemeral secret. All tokens will be invalidated on restart.")
	}

	gormDB, err := db.Open(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	if err := registrar.Migrate(gormDB); err != nil {
		logger.Fatalf("failed to run migrations: %v", err)
	}
	logger.Println("database initialized successfully")

	client := registrar.NewClient(&cfg.Registrar)

	// Warm the push service connection; failure is non-fatal, the
	// integration comes up once the push service is reachable.
	startupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if appID, err := client.ApplicationID(startupCtx); err != nil {
		logger.Printf("Warning: could not connect to push service on startup: %v", err)
	} else {
		logger.Printf("push service application ready: %s", appID)
	}
	cancel()

	tokens := auth.NewTokenManager(jwtSecret, cfg.Auth.TokenTTL)

	router := registrar.NewRouter(gormDB, client, tokens)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Registrar.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Registrar.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
