/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the cost engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Resolve configuration (defaults, YAML, .env, environment, flags)
  2. Build the slog logger
  3. Open the store (SQLite with migrations, or in-memory)
  4. Load the pricing policy (alert thresholds + tax table)
  5. Wire registry, budget service, API handler and router
  6. Optionally seed a demo scenario
  7. Start server with graceful shutdown

COMMANDS:
  cost-engine [serve]   Run the HTTP server (default)
  cost-engine version   Print version information

FLAGS (serve):
  --config       YAML config file
  --env-file     dotenv file (default .env, ignored when missing)
  --port         HTTP server port (default: 8080)
  --storage      sqlite | memory
  --db           SQLite database path (":memory:" for a throwaway database)
  --log-level    debug | info | warn | error
  --log-format   text | json
  --policy-file  Pricing policy JSON
  --scenario     Demo scenario to load on startup (resets storage)

ENVIRONMENT:
  COST_ENGINE_PORT, COST_ENGINE_STORAGE, COST_ENGINE_DB,
  COST_ENGINE_LOG_LEVEL, COST_ENGINE_POLICY_FILE,
  COST_ENGINE_CORS_ORIGINS, COST_ENGINE_SCENARIO

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./cost-engine --db=./data/costs.db

  # Throwaway server with demo data
  ./cost-engine --storage=memory --scenario=metal-shed

SEE ALSO:
  - config/config.go: Configuration layering
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/cost-engine/api"
	"github.com/warp/cost-engine/budget"
	"github.com/warp/cost-engine/config"
	"github.com/warp/cost-engine/factory"
	"github.com/warp/cost-engine/labor"
	"github.com/warp/cost-engine/store/memory"
	"github.com/warp/cost-engine/store/sqlite"
)

const (
	Version = "0.1.0"
	appName = "cost-engine"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serveFlags struct {
	configPath string
	envFile    string
	logFormat  string

	port       int
	storage    string
	db         string
	logLevel   string
	policyFile string
	scenario   string
}

func rootCmd() *cobra.Command {
	var f serveFlags

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}
	bindServeFlags(serve, &f)

	root := &cobra.Command{
		Use:   appName,
		Short: "Construction cost composition and labor cost engine",
		Long: `cost-engine prices construction budgets.

It provides:
- Labor positions with hourly costs derived from a shared salary configuration
- Budgets made of cost compositions with BDI, ISS and revenue tax brackets
- ABC (Pareto) classification, income statement projection and viability alerts
- XLSX and PDF exports`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	bindServeFlags(root, &f)

	root.AddCommand(serve)
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return root
}

func bindServeFlags(cmd *cobra.Command, f *serveFlags) {
	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Config file path (YAML)")
	flags.StringVar(&f.envFile, "env-file", ".env", "dotenv file (ignored when missing)")
	flags.StringVar(&f.logFormat, "log-format", "text", "Log format (text, json)")
	flags.IntVar(&f.port, "port", 0, "HTTP server port")
	flags.StringVar(&f.storage, "storage", "", "Storage driver (sqlite, memory)")
	flags.StringVar(&f.db, "db", "", "SQLite database path")
	flags.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&f.policyFile, "policy-file", "", "Pricing policy JSON file")
	flags.StringVar(&f.scenario, "scenario", "", "Demo scenario to load on startup")
}

// resolveConfig layers explicitly set flags on top of config.Load.
func resolveConfig(cmd *cobra.Command, f serveFlags) (*config.Config, error) {
	cfg, err := config.Load(config.Options{File: f.configPath, EnvFile: f.envFile})
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flags.Changed("storage") {
		cfg.Storage.Driver = f.storage
	}
	if flags.Changed("db") {
		cfg.Storage.Path = f.db
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("policy-file") {
		cfg.Pricing.PolicyFile = f.policyFile
	}
	if flags.Changed("scenario") {
		cfg.Seed.Scenario = f.scenario
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q is not one of text, json", format)
	}
}

// storage bundles the repositories with their lifecycle hooks.
type storage struct {
	labor   labor.Repository
	budgets budget.Repository
	reset   func(ctx context.Context) error
	ping    func(ctx context.Context) error
	close   func() error
}

func openStorage(cfg config.StorageConfig) (*storage, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		mem := memory.New()
		return &storage{
			labor:   mem.Labor(),
			budgets: mem.Budgets(),
			reset: func(context.Context) error {
				mem.Reset()
				return nil
			},
			close: func() error { return nil },
		}, nil
	default:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return &storage{
			labor:   db.Labor(),
			budgets: db.Budgets(),
			reset:   db.Reset,
			ping:    db.Ping,
			close:   db.Close,
		}, nil
	}
}

func run(cmd *cobra.Command, f serveFlags) error {
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log.Level, f.logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.close()

	policy, taxes, err := factory.LoadPolicyFile(cfg.Pricing.PolicyFile)
	if err != nil {
		return err
	}

	registry := labor.NewRegistry(store.labor, logger)
	budgets := budget.NewService(store.budgets, taxes, policy, logger)

	handler := api.NewHandler(registry, budgets, logger)
	handler.Reset = store.reset
	handler.Ping = store.ping

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Seed.Scenario != "" {
		if _, err := handler.SeedScenario(ctx, cfg.Seed.Scenario); err != nil {
			return fmt.Errorf("seed scenario: %w", err)
		}
	}

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestLogging: cfg.Log.Level == "debug",
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"addr", server.Addr,
			"storage", cfg.Storage.Driver,
			"policy_file", cfg.Pricing.PolicyFile,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
