package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/scrypster/multihop/internal/config"
	"github.com/scrypster/multihop/internal/engine"
	"github.com/scrypster/multihop/internal/llm"
	"github.com/scrypster/multihop/internal/storage"
	"github.com/scrypster/multihop/internal/storage/neo4jgraph"
	"github.com/scrypster/multihop/internal/storage/postgres"
	"github.com/scrypster/multihop/internal/storage/sqlgraph"
	"github.com/scrypster/multihop/internal/storage/sqlite"
)

// options is the state shared by every subcommand.
type options struct {
	configFile  string
	envFile     string
	backend     string
	metricsAddr string
	trace       string

	cfg     *config.Config
	logger  *slog.Logger
	metrics *http.Server
	tracing *sdktrace.TracerProvider
}

func newRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:           "multihop",
		Short:         "Multi-hop reasoning over a corporate relationship graph",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&o.configFile, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&o.envFile, "env", "e", "", "environment file (default: .env when present)")
	flags.StringVar(&o.backend, "backend", "", "graph backend override: neo4j, sqlite or postgres")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	flags.StringVar(&o.trace, "trace", "", "trace exporter override: none, stdout or otlp")

	root.AddCommand(
		newQueryCmd(o),
		newBatchCmd(o),
		newStatsCmd(o),
		newIndexesCmd(o),
		newImportCmd(o),
	)

	// Spans and the metrics server are flushed after every subcommand,
	// including failed ones.
	for _, sub := range root.Commands() {
		sub.RunE = o.withShutdown(sub.RunE)
	}
	return root
}

func (o *options) withShutdown(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if serr := o.shutdown(); serr != nil {
			if err != nil {
				o.logger.Error("shutdown failed", "error", serr)
				return err
			}
			return serr
		}
		return err
	}
}

// shutdown flushes traces and stops the metrics server.
func (o *options) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(o.shutdownTracing(ctx), o.shutdownMetrics(ctx))
}

// setup loads the environment file and configuration and builds the logger.
func (o *options) setup(cmd *cobra.Command) error {
	if err := loadEnvFile(o.envFile); err != nil {
		return err
	}

	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadConfigFile(o.configFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return err
	}
	if o.backend != "" {
		cfg.Graph.Backend = o.backend
	}
	if o.trace != "" {
		cfg.Trace.Exporter = strings.ToLower(o.trace)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	o.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := o.startTracing(cmd.Context(), cmd.ErrOrStderr()); err != nil {
		return err
	}
	if o.metricsAddr != "" {
		o.startMetrics()
	}
	return nil
}

// loadEnvFile loads path, or .env when path is empty and the file exists.
// Variables already set in the environment are left untouched.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (o *options) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: o.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	o.metrics = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("metrics server failed", "addr", o.metricsAddr, "error", err)
		}
	}()
	o.logger.Info("serving metrics", "addr", o.metricsAddr)
}

func (o *options) shutdownMetrics(ctx context.Context) error {
	if o.metrics == nil {
		return nil
	}
	srv := o.metrics
	o.metrics = nil
	return srv.Shutdown(ctx)
}

// openGraph connects to the configured graph backend.
func (o *options) openGraph(ctx context.Context) (storage.Graph, error) {
	g := o.cfg.Graph
	switch g.Backend {
	case config.BackendNeo4j:
		store, err := neo4jgraph.New(ctx, neo4jgraph.Config{
			URI:      g.Neo4j.URI,
			Username: g.Neo4j.Username,
			Password: g.Neo4j.Password,
			Database: g.Neo4j.Database,
		}, o.logger)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendSQLite:
		if g.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(g.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		store, err := sqlite.NewGraphStore(ctx, g.SQLitePath, sqlgraph.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendPostgres:
		store, err := postgres.NewGraphStore(ctx, g.PostgresDSN, sqlgraph.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported graph backend %q", g.Backend)
}

// newCoordinator wires the completion client and the coordinator over store.
func (o *options) newCoordinator(store storage.GraphStore) (*engine.Coordinator, error) {
	c := o.cfg.LLM
	gen, err := llm.NewTextGenerator(llm.ProviderConfig{
		Provider: c.Provider,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
		Model:    c.Model,
		Timeout:  c.Timeout,
	})
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(gen, llm.ClientConfig{
		Temperature:       c.Temperature,
		MaxTokens:         c.MaxTokens,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
	}, o.logger)

	ecfg := engine.Config{
		GraphTimeout:      o.cfg.Graph.Timeout,
		CompletionTimeout: c.Timeout,
	}
	if o.tracing != nil {
		ecfg.TracerProvider = o.tracing
	}
	return engine.NewCoordinator(store, client, ecfg, o.logger), nil
}

// withGraph opens the graph, runs fn and closes the graph.
func (o *options) withGraph(ctx context.Context, fn func(storage.Graph) error) error {
	store, err := o.openGraph(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			o.logger.Warn("closing graph store", "error", cerr)
		}
	}()
	return fn(store)
}
