package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"invoicedesk/backend/internal/config"
	"invoicedesk/backend/internal/feed"
	"invoicedesk/backend/internal/httpapi"
	"invoicedesk/backend/internal/logger"
	"invoicedesk/backend/internal/numbering"
	"invoicedesk/backend/internal/pdf"
	"invoicedesk/backend/internal/service"
	"invoicedesk/backend/internal/store"
	"invoicedesk/backend/internal/store/memory"
	pgstore "invoicedesk/backend/internal/store/postgres"
	"invoicedesk/backend/internal/store/sqlite"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

The repository is chosen from the environment: DATABASE_URL selects
Postgres, SQLITE_PATH selects a local SQLite file, and without either
an in-memory store with a demo account is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), loadConfig())
		},
	}
}

// closer releases one backend at shutdown.
type closer struct {
	name string
	fn   func() error
}

func runServe(ctx context.Context, cfg config.Config) error {
	log := logger.WithComponent("server")
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(startCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.fn(); err != nil {
				log.Warn().Err(err).Str("backend", c.name).Msg("close failed")
			}
		}
	}()

	broker, brokerCloser := openBroker(startCtx, cfg)
	if brokerCloser != nil {
		closers = append(closers, *brokerCloser)
	}

	numbers := numbering.NewAllocator(repo,
		numbering.WithMaxAttempts(cfg.CounterMaxAttempts),
		numbering.WithLogger(logger.WithComponent("numbering")),
	)
	svc := service.New(repo, numbers, pdf.NewGofpdfRenderer(cfg.CompanyName),
		service.WithBroker(broker),
		service.WithLogger(logger.WithComponent("service")),
		service.WithDefaultCurrency(cfg.DefaultCurrency),
	)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger.WithComponent("http"))

	// No WriteTimeout: the stream endpoint holds responses open.
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Address()).Str("version", version).Msg("invoicedesk listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
	return nil
}

// openRepository picks Postgres, then SQLite, then the seeded in-memory
// store. A configured backend that cannot be reached is fatal; there is no
// silent fallback.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, []closer, error) {
	log := logger.WithComponent("server")

	switch {
	case cfg.DatabaseURL != "":
		if cfg.MigrateOnStart {
			if err := pgstore.Migrate(ctx, cfg.DatabaseURL, logger.WithComponent("migrate")); err != nil {
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, logger.WithComponent("postgres"))
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		log.Info().Msg("repository: postgres")
		return pg, []closer{{name: "postgres", fn: pg.Close}}, nil

	case cfg.SQLitePath != "":
		lite, err := sqlite.Open(cfg.SQLitePath, logger.WithComponent("sqlite"))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("repository: sqlite")
		return lite, []closer{{name: "sqlite", fn: lite.Close}}, nil

	default:
		log.Info().Msg("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

// openBroker uses Redis pub/sub when REDIS_ADDR is set and reachable, and an
// in-process broker otherwise.
func openBroker(ctx context.Context, cfg config.Config) (feed.Broker, *closer) {
	log := logger.WithComponent("server")
	if cfg.RedisAddr == "" {
		log.Info().Msg("change feed: in-process")
		return feed.NewMemoryBroker(0), nil
	}

	redisBroker := feed.NewRedisBroker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger.WithComponent("feed"))
	if err := redisBroker.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process change feed")
		_ = redisBroker.Close()
		return feed.NewMemoryBroker(0), nil
	}
	log.Info().Msg("change feed: redis")
	return redisBroker, &closer{name: "redis", fn: redisBroker.Close}
}
