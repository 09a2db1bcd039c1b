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

	"github.com/SherClockHolmes/webpush-go"

	"webpush-backend/config"
	"webpush-backend/internal/api"
	"webpush-backend/internal/auth"
	"webpush-backend/internal/db"
	"webpush-backend/internal/notification"
	"webpush-backend/internal/store"
	"webpush-backend/internal/vapid"
)

func main() {
	logger := log.New(os.Stdout, "pushd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Resolve VAPID keys: config, then env/key-file, then a generated pair.
	publicKey, privateKey := cfg.Push.PublicKey, cfg.Push.PrivateKey
	if !vapid.ValidateKeys(publicKey, privateKey) {
		var generated bool
		publicKey, privateKey, generated, err = vapid.EnsureKeys(cfg.Push.KeyFile)
		if err != nil {
			logger.Fatalf("failed to provision VAPID keys: %v", err)
		}
		if generated {
			logger.Printf("generated a new VAPID key pair")
		}
	}

	jwtSecret := []byte(cfg.Auth.JWTSecret)
	if len(jwtSecret) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Fatalf("failed to generate JWT secret: %v", err)
		}
		jwtSecret = []byte(base64.RawURLEncoding.EncodeToString(buf))
		logger.Printf("Warning: auth.jwt_secret is not configured; using an ephemeral secret. All tokens will be invalidated on restart.")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)

	bootstrapHash, err := auth.HashPassword(cfg.Auth.BootstrapPassword)
	if err != nil {
		logger.Fatalf("failed to hash bootstrap password: %v", err)
	}
	created, err := store.EnsureBootstrapAdmin(context.Background(), appStore, cfg.Auth.BootstrapUsername, bootstrapHash)
	if err != nil {
		logger.Fatalf("failed to provision bootstrap admin: %v", err)
	}
	if created {
		logger.Printf("Warning: provisioned bootstrap admin %q with the configured default password; it must be changed on first login.", cfg.Auth.BootstrapUsername)
	}

	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	dispatcher := notification.NewDispatcher(
		gormDB,
		webpushOptions,
		cfg.WorkerPool.Size,
		time.Duration(cfg.Push.TimeoutSeconds)*time.Second,
	)

	tokens := auth.NewTokenManager(jwtSecret, cfg.Auth.TokenTTL)

	router := api.NewRouter(cfg, appStore, dispatcher, tokens, publicKey)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
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
