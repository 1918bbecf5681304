package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quantfold/signalrun/internal/app"
	"github.com/quantfold/signalrun/internal/cache"
	"github.com/quantfold/signalrun/internal/config"
	"github.com/quantfold/signalrun/internal/engine"
	"github.com/quantfold/signalrun/internal/gate"
	"github.com/quantfold/signalrun/internal/history"
	httpserver "github.com/quantfold/signalrun/internal/interfaces/http"
	"github.com/quantfold/signalrun/internal/metrics"
	"github.com/quantfold/signalrun/internal/pillars"
	"github.com/quantfold/signalrun/internal/snapshot"
	"github.com/quantfold/signalrun/internal/stream"
)

const (
	appName = "signalrun"
	version = "v1.0.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-pillar trading signal decision engine",
		Version: version,
		Long: `signalrun scores symbols across six analytical pillars, aggregates the
contributions into a non-binding directional decision, and gates execution
readiness behind live-data safety checks.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [symbol]",
		Short: "Run a full analysis for one symbol",
		Long:  "Builds a snapshot, scores all pillars, applies the safety gate and prints the decision as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}

	historyCmd := &cobra.Command{
		Use:   "history [symbol]",
		Short: "List stored decisions for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().Int("limit", 20, "Maximum entries to return")

	driftCmd := &cobra.Command{
		Use:   "drift [symbol]",
		Short: "Compare a fresh analysis against the stored baseline",
		Args:  cobra.ExactArgs(1),
		RunE:  runDrift,
	}

	correlationCmd := &cobra.Command{
		Use:   "correlation [symbol]",
		Short: "Report pairwise pillar correlation over the trailing window",
		Args:  cobra.ExactArgs(1),
		RunE:  runCorrelation,
	}
	correlationCmd.Flags().Int("window", 50, "Trailing window size")

	accuracyCmd := &cobra.Command{
		Use:   "accuracy [symbol]",
		Short: "Report directional consistency over the trailing window",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccuracy,
	}
	accuracyCmd.Flags().Int("window", 50, "Trailing window size")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  "Serves /analyze, /history, /drift, /correlation, /accuracy, /health and /metrics",
		RunE:  runServe,
	}

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(correlationCmd)
	rootCmd.AddCommand(accuracyCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// wiring holds the assembled pipeline and its closers.
type wiring struct {
	analyzer *app.Analyzer
	metrics  *metrics.Registry
	cfg      *config.AppConfig
	closers  []func()
}

func (w *wiring) close() {
	for _, fn := range w.closers {
		fn()
	}
}

// buildWiring assembles the pipeline from config. Without a configured
// database the decision log is in-memory; without a stream URL the safety
// gate is omitted and decisions carry only the engine's own readiness.
func buildWiring(ctx context.Context) (*wiring, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	w := &wiring{cfg: cfg, metrics: metrics.NewRegistry()}

	provider := snapshot.NewSyntheticProvider()
	builderCfg := &snapshot.Config{
		MaxRetries:      cfg.Snapshot.MaxRetries,
		RetryBackoff:    cfg.Snapshot.RetryBackoff.Std(),
		AttemptTimeout:  cfg.Snapshot.AttemptTimeout.Std(),
		FeedRPS:         cfg.Snapshot.FeedRPS,
		FeedBurst:       cfg.Snapshot.FeedBurst,
		DefaultVIXLevel: cfg.Snapshot.DefaultVIXLevel,
	}
	builder := snapshot.NewBuilder(builderCfg, provider, provider, provider, provider, provider)

	engineCfg := engine.DefaultConfig()
	if len(cfg.Engine.Weights) > 0 {
		engineCfg.Weights = cfg.Engine.Weights
	}
	engineCfg.MaxPlaceholders = cfg.Engine.MaxPlaceholders
	engineCfg.PlaceholderConvictionCap = cfg.Engine.PlaceholderConvictionCap
	engineCfg.BullishThreshold = cfg.Engine.BullishThreshold
	engineCfg.BearishThreshold = cfg.Engine.BearishThreshold

	eng, err := engine.New(engineCfg, pillars.Registry())
	if err != nil {
		return nil, err
	}

	var store history.Store
	if cfg.Database.Enabled {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		w.closers = append(w.closers, func() { db.Close() })

		pgStore := history.NewPostgresStore(db, cfg.Database.QueryTimeout.Std())
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = pgStore
		log.Info().Msg("decision log: postgres")
	} else {
		store = history.NewMemoryStore()
		log.Info().Msg("decision log: in-memory (no database configured)")
	}

	var byteCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		byteCache = cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
	} else {
		byteCache = cache.NewMemory()
	}
	sessions := cache.NewSessionCache(byteCache, cfg.Cache.SessionTTL.Std())

	var safetyGate *gate.SafetyGate
	if cfg.Gate.Enabled && cfg.Stream.WebsocketURL != "" {
		ticker := stream.NewTickerClient(cfg.Stream.WebsocketURL)
		if err := ticker.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect tick stream: %w", err)
		}
		w.closers = append(w.closers, func() { ticker.Close() })

		gateCfg := &gate.Config{
			Enabled:    cfg.Gate.Enabled,
			DryRun:     cfg.Gate.DryRun,
			MaxTickAge: cfg.Gate.MaxTickAge.Std(),
		}
		safetyGate = gate.New(gateCfg, staticHealth{}, ticker)
	} else {
		log.Warn().Msg("safety gate disabled: no tick stream configured")
	}

	w.analyzer = app.NewAnalyzer(builder, eng, safetyGate, store, sessions, w.metrics)
	return w, nil
}

// staticHealth reports healthy feeds. Stands in until a real feed-health
// monitor is attached; the kill switch still works through the gate's
// runtime override.
type staticHealth struct{}

func (staticHealth) GetFeedState(_ context.Context) gate.FeedState     { return gate.FeedUp }
func (staticHealth) IsExecutionGloballyEnabled(_ context.Context) bool { return true }

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	w, err := buildWiring(ctx)
	if err != nil {
		return err
	}
	defer w.close()

	decision, err := w.analyzer.Analyze(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(decision)
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w, err := buildWiring(ctx)
	if err != nil {
		return err
	}
	defer w.close()

	entries, err := w.analyzer.History(ctx, args[0], history.Filter{Limit: limit})
	if err != nil {
		return err
	}
	return printJSON(entries)
}

func runDrift(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	w, err := buildWiring(ctx)
	if err != nil {
		return err
	}
	defer w.close()

	report, _, err := w.analyzer.Drift(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runCorrelation(cmd *cobra.Command, args []string) error {
	window, _ := cmd.Flags().GetInt("window")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w, err := buildWiring(ctx)
	if err != nil {
		return err
	}
	defer w.close()

	report, err := w.analyzer.Correlation(ctx, args[0], window)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runAccuracy(cmd *cobra.Command, args []string) error {
	window, _ := cmd.Flags().GetInt("window")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w, err := buildWiring(ctx)
	if err != nil {
		return err
	}
	defer w.close()

	report, err := w.analyzer.Accuracy(ctx, args[0], window)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := buildWiring(ctx)
	if err != nil {
		return err
	}
	defer w.close()

	serverCfg := httpserver.DefaultServerConfig()
	serverCfg.Addr = w.cfg.Server.Addr
	server := httpserver.NewServer(serverCfg, w.analyzer, w.metrics)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	}
}
