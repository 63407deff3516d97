// Package main is the entry point for the recuento counting server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"recuento/internal/core/clock"
	"recuento/internal/domain/auth"
	"recuento/internal/domain/catalog"
	"recuento/internal/domain/counting"
	"recuento/internal/domain/warehouse"
	v1 "recuento/internal/httpapi/v1"
	"recuento/internal/remote/backend"
	"recuento/internal/storage/sqlite"
	"recuento/pkg/logger"
)

func main() {
	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting recuento server")

	// --- Local cache (sqlite) ---
	db, err := sqlite.Open(getEnv("CACHE_DB_PATH", "data/recuento.db"))
	if err != nil {
		log.Fatalw("failed to open local cache", "error", err)
	}
	defer db.Close()
	log.Info("local cache ready")

	// --- Remote store ---
	store, err := backend.New(ctx, backend.Config{
		Backend:      getEnv("REMOTE_BACKEND", "postgres"),
		PostgresDSN:  getEnv("DATABASE_URL", ""),
		CloudBaseURL: getEnv("CLOUD_BASE_URL", ""),
		CloudAPIKey:  getEnv("CLOUD_API_KEY", ""),
	})
	if err != nil {
		log.Fatalw("failed to initialize remote store", "error", err)
	}
	log.Infow("remote store initialized", "backend", getEnv("REMOTE_BACKEND", "postgres"))

	// --- Domain services ---
	catalogService := catalog.NewService(store, sqlite.NewCatalogCache(db), log)
	warehouseService := warehouse.NewService(store, sqlite.NewSettingsStore(db), log)

	snapshots, err := sqlite.NewSnapshotStore(db, log)
	if err != nil {
		log.Fatalw("failed to initialize snapshot store", "error", err)
	}

	manager := counting.NewManager(store, catalogService, snapshots, clock.New(), log, counting.Config{
		SuppressionWindow: getEnvDuration("SCAN_SUPPRESSION_WINDOW", 0),
		FlushDelay:        getEnvDuration("SNAPSHOT_FLUSH_DELAY", 0),
	})
	defer manager.Shutdown()

	// --- JWT Service ---
	jwtSecret := getEnv("JWT_SECRET", "your-secret-key-change-in-production")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))

	// --- Auth Service ---
	users, err := parseUsers(mustEnv("AUTH_USERS"))
	if err != nil {
		log.Fatalw("failed to parse AUTH_USERS", "error", err)
	}
	authService := auth.NewService(users, jwtService, auth.DefaultServiceConfig())
	log.Infow("auth service initialized", "users", len(users))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:           log,
		JWTValidator:     jwtService,
		AuthService:      authService,
		Manager:          manager,
		CatalogService:   catalogService,
		WarehouseService: warehouseService,
		DB:               db,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// parseUsers builds the static user registry from "user:password" pairs
// separated by commas. Passwords are hashed at startup; only the hash is kept.
func parseUsers(raw string) ([]auth.User, error) {
	var users []auth.User
	for i, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("entry %d: expected user:password", i)
		}
		hash, err := auth.HashPassword(parts[1])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		users = append(users, auth.User{
			ID:           fmt.Sprintf("u-%s", parts[0]),
			Username:     parts[0],
			PasswordHash: hash,
		})
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no users configured")
	}
	return users, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
