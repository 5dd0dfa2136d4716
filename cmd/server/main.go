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

	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"backoffice/backend/internal/cache"
	"backoffice/backend/internal/config"
	"backoffice/backend/internal/httpapi"
	"backoffice/backend/internal/lock"
	"backoffice/backend/internal/logging"
	"backoffice/backend/internal/service"
	"backoffice/backend/internal/store"
	"backoffice/backend/internal/store/memory"
	mongostore "backoffice/backend/internal/store/mongo"
	pgstore "backoffice/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "backoffice",
		Short:         "Repair shop back office API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			return logging.Setup(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Load())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), config.Load())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema or indexes for the configured store and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), config.Load())
		},
	})
	return root
}

// migrator is implemented by the persistent stores.
type migrator interface {
	Migrate(ctx context.Context) error
}

// openRepository connects the store selected by cfg.StoreDriver. The returned
// closer is never nil.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memory.NewSeeded(), noop, nil
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, noop, errors.New("DATABASE_URL is required for the postgres store")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("postgres unavailable: %w", err)
		}
		return pg, pg.Close, nil
	case config.DriverMongo:
		if cfg.MongoURI == "" {
			return nil, noop, errors.New("MONGO_URI is required for the mongo store")
		}
		mg, err := mongostore.New(ctx, cfg.MongoURI, mongostore.Options{
			Database:     cfg.MongoDatabase,
			Transactions: cfg.MongoTransactions,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("mongo unavailable: %w", err)
		}
		return mg, mg.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

// storeWarnings lists configurations that serve traffic but lose atomicity
// across the documents one billing operation writes.
func storeWarnings(cfg config.Config) []string {
	var warnings []string
	if cfg.StoreDriver == config.DriverMongo && !cfg.MongoTransactions {
		warnings = append(warnings, "MONGO_TRANSACTIONS=false: billing writes are not atomic, a failure mid-operation can leave units SOLD without a bill")
	}
	return warnings
}

func runMigrate(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeRepo() }()

	m, ok := repo.(migrator)
	if !ok {
		log.Info().Str("driver", cfg.StoreDriver).Msg("store has no schema, nothing to migrate")
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("driver", cfg.StoreDriver).Msg("migration complete")
	return nil
}

func runServe(parent context.Context, cfg config.Config) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	logger := logging.WithComponent("server")

	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	closers := []func() error{closeRepo}
	if m, ok := repo.(migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			_ = closeRepo()
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info().Str("driver", cfg.StoreDriver).Msg("repository ready")
	for _, warning := range storeWarnings(cfg) {
		logger.Warn().Str("driver", cfg.StoreDriver).Msg(warning)
	}

	opts := service.Options{
		CacheTTL:    time.Duration(cfg.BillingCacheTTLSeconds) * time.Second,
		MaxAttempts: cfg.ConflictRetries,
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		billingCache := cache.NewRedisBillingCache(client)
		if err := billingCache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using noop cache and local locking")
			_ = client.Close()
		} else {
			opts.Cache = billingCache
			opts.Locker = lock.NewRedisLocker(client, time.Duration(cfg.LockTTLSeconds)*time.Second)
			closers = append(closers, client.Close)
			logger.Info().Str("addr", cfg.RedisAddr).Msg("cache and locks: redis")
		}
	} else {
		logger.Info().Msg("cache and locks: noop")
	}

	svc := service.New(repo, opts)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Address()).Msg("back office API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated, sequential and well-known PINs.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "121212": true,
		"112233": true, "123123": true, "147258": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
