package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/http/api"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/http/swagger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/idempotency"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/mq/queue"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository/memory"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository/sqlstore"
	app "github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/app"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/config"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/dedupe"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/ranking"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/scoring"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

const (
	systemMetricsInterval = 10 * time.Second
	redisKeyPrefix        = "banderas:submission:"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "banderas",
		Short:        "Scoring and ranking engine for the flags game",
		SilenceUsage: true,
	}
	serve := newServeCmd()
	// Running the binary without a command serves the API.
	root.RunE = serve.RunE
	root.AddCommand(serve, newRebuildCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cfg, err := setup(ctx)
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

func newRebuildCmd() *cobra.Command {
	var (
		kind    string
		userIDs []int64
	)
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild stage bests and career summaries from the run ledger",
		Long: "rebuild replays the run ledger into stage bests and recomputes career summaries.\n" +
			"Without --user every user with at least one run is rebuilt.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cfg, err := setup(ctx)
			if err != nil {
				return err
			}
			return rebuild(ctx, cfg, kind, userIDs, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&kind, "kind", queue.KindReplay, "replay or recompute")
	cmd.Flags().Int64SliceVar(&userIDs, "user", nil, "user ids to rebuild (repeatable)")
	return cmd
}

// setup loads configuration and initializes the global logger from it.
func setup(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// components holds everything built from configuration that must be closed.
type components struct {
	store   repository.Store
	svc     *app.Service
	closers []func() error
}

func (c *components) Close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.Get().Warn(ctx, "close failed", logger.Error(err))
		}
	}
}

func build(ctx context.Context, cfg *config.Config) (*components, error) {
	c := &components{}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.store = store
	c.closers = append(c.closers, store.Close)

	deduper, closeDeduper, err := openDeduper(ctx, cfg)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	if closeDeduper != nil {
		c.closers = append(c.closers, closeDeduper)
	}

	c.svc = app.New(store,
		app.WithLogger(logger.Named("engine")),
		app.WithDeduper(deduper),
		app.WithGuardLimits(cfg.GuardLimits()),
		app.WithCatalog(scoring.DefaultCatalog().Merge(cfg.Stages)),
		app.WithRankingOptions(
			ranking.WithLimits(cfg.DefaultLeaderboardLimit, cfg.MaxLeaderboardLimit),
			ranking.WithGlobalScope(cfg.GlobalScope),
			ranking.WithCountryScope(cfg.CountryScope),
		),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueCapacity(cfg.QueueCapacity),
	)
	return c, nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	log := logger.Named("repository")
	switch cfg.DBDriver {
	case config.DriverMemory:
		log.Warn(ctx, "using the in-memory store; data is lost on exit")
		return memory.New(), nil
	case config.DriverSQLite, config.DriverPostgres:
		store, err := sqlstore.Open(ctx, cfg.DBDriver, cfg.DBDSN,
			sqlstore.WithLogger(log),
			sqlstore.WithAutoMigrate(cfg.DBAutoMigrate),
			sqlstore.WithPool(cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime),
		)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown db_driver %q", config.ErrInvalidConfig, cfg.DBDriver)
	}
}

// openDeduper uses Redis when configured so every replica shares the same
// submission ids.
func openDeduper(ctx context.Context, cfg *config.Config) (dedupe.Deduper, func() error, error) {
	if cfg.RedisAddr == "" {
		return dedupe.NewMemory(dedupe.WithMaxSize(cfg.DedupeSize), dedupe.WithTTL(cfg.DedupeTTL)), nil, nil
	}
	r, err := idempotency.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redisKeyPrefix, cfg.DedupeTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return r, r.Close, nil
}

// newMux registers the API and its documentation.
func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close(context.WithoutCancel(ctx))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(newMux(ctx, c.svc)),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

func rebuild(ctx context.Context, cfg *config.Config, kind string, userIDs []int64, out io.Writer) error {
	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close(context.WithoutCancel(ctx))

	report, err := c.svc.Rebuild(ctx, kind, userIDs)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil && err == nil {
		err = encErr
	}
	return err
}

// startSystemMetricsUpdater refreshes process gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		updateSystemMetrics()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
