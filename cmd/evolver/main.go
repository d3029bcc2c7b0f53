// Package main provides the entry point for the strategy evolution service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/evo-trader/internal/backtest"
	"github.com/yourusername/evo-trader/internal/config"
	"github.com/yourusername/evo-trader/internal/database"
	"github.com/yourusername/evo-trader/internal/evolution"
	"github.com/yourusername/evo-trader/internal/health"
	"github.com/yourusername/evo-trader/internal/lifecycle"
	"github.com/yourusername/evo-trader/internal/logger"
	"github.com/yourusername/evo-trader/internal/marketdata"
	"github.com/yourusername/evo-trader/internal/memory"
	"github.com/yourusername/evo-trader/internal/metrics"
	"github.com/yourusername/evo-trader/internal/notification"
	"github.com/yourusername/evo-trader/internal/repository"
	"github.com/yourusername/evo-trader/internal/scheduler"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

var rootCmd = &cobra.Command{
	Use:   "evolver",
	Short: "Run the trading strategy evolution service",
	Long:  `Runs the recurring evolution and intake cycles that backtest, validate, score, mutate, and lifecycle-gate trading strategies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("evolver %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			return fmt.Errorf("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			return fmt.Errorf("failed to load secrets: %w", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	appLog := logger.NewLogger(cfg.App.LogLevel)
	appLog.WithFields(logrus.Fields{
		"version":     Version,
		"environment": cfg.App.Environment,
	}).Info("Evo Trader evolution service starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			appLog.WithError(err).Error("Failed to close database connection")
		}
	}()

	repos, err := repository.NewRepositories(db)
	if err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	provider, stream := buildProvider(cfg, appLog)
	defer provider.Close()

	engine := backtest.NewEngine(backtest.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		SlippagePct:    cfg.Backtest.SlippagePct,
		RiskFreeRate:   cfg.Backtest.RiskFreeRate,
	}, appLog)
	validator := backtest.NewValidator(engine, backtest.WalkForwardConfig{
		InSampleDays:  cfg.Backtest.WalkForwardInDays,
		OutSampleDays: cfg.Backtest.WalkForwardOutDays,
		StepDays:      cfg.Backtest.WalkForwardStepDays,
		MinPeriods:    cfg.Backtest.WalkForwardMinPeriods,
	}, appLog)
	scorer := backtest.NewScorer(backtest.DefaultScoreWeights())

	evaluator := scheduler.NewEvaluator(provider, engine, validator, scorer, backtest.MonteCarloConfig{
		Iterations:     cfg.Backtest.MonteCarloIterations,
		Seed:           cfg.Backtest.MonteCarloSeed,
		InitialCapital: cfg.Backtest.InitialCapital,
	}, cfg.Evolution.CandleLimit, appLog)

	thresholds := lifecycle.DefaultThresholds()
	thresholds.MaxEvolutionAttempts = cfg.Evolution.MaxAttempts
	thresholds.StaleAttemptLimit = cfg.Evolution.StaleAttemptLimit
	thresholds.ProposableMinRobustness = cfg.Intake.MinRobustness
	machine := lifecycle.NewMachine(thresholds, appLog)

	mutator := evolution.NewMutator(0, appLog)
	memoryClient := memory.NewClient(cfg.Memory, appLog)
	notifier := notification.NewLogNotifier(appLog)

	evolutionCycle := scheduler.NewEvolutionCycle(repos, evaluator, machine, mutator, memoryClient, notifier, cfg.Evolution, cfg.DataProvider.MaxRequestsPerCycle, appLog)
	intakeCycle := scheduler.NewIntakeCycle(repos, provider, engine, memoryClient, notifier, cfg.Intake, appLog)

	sched := scheduler.NewScheduler(appLog)
	if err := sched.ScheduleCycle("evolution", evolutionCycle, cfg.Evolution.IntervalSeconds); err != nil {
		return err
	}
	if err := sched.ScheduleCycle("intake", intakeCycle, cfg.Intake.IntervalSeconds); err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}

	if stream != nil {
		go func() {
			if err := stream.Run(ctx, streamSymbols(ctx, repos)); err != nil && ctx.Err() == nil {
				appLog.WithError(err).Warn("Live candle stream stopped")
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics, health.NewHandler("evolver", Version, db), appLog)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLog.WithField("signal", sig.String()).Info("Shutting down")

	cancel()
	sched.Stop()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLog.WithError(err).Error("Metrics server shutdown failed")
		}
	}
	return nil
}

// buildProvider assembles the cached data provider and, when a stream URL is
// configured, a websocket client that warms the candle cache.
func buildProvider(cfg *config.Config, appLog *logrus.Logger) (marketdata.Provider, *marketdata.StreamClient) {
	httpCfg := marketdata.DefaultHTTPClientConfig()
	httpCfg.Timeout = time.Duration(cfg.DataProvider.TimeoutSeconds) * time.Second
	httpCfg.MaxRetries = cfg.DataProvider.RetryAttempts
	httpCfg.RateLimit = cfg.DataProvider.RateLimitPerSecond

	httpClient := marketdata.NewRateLimitedHTTPClient(httpCfg, appLog)
	inner := marketdata.NewHTTPProvider(httpClient, cfg.DataProvider.BaseURL, cfg.DataProvider.APIKey, appLog)
	cached := marketdata.NewCachedProvider(inner, time.Duration(cfg.DataProvider.CacheTTLSeconds)*time.Second, appLog)

	if cfg.DataProvider.StreamURL == "" {
		return cached, nil
	}

	stream := marketdata.NewStreamClient(cfg.DataProvider.StreamURL, cfg.DataProvider.APIKey,
		marketdata.DefaultReconnectConfig(), cached.WarmCandle, appLog)
	return cached, stream
}

// streamSymbols collects the distinct symbols of the active population
func streamSymbols(ctx context.Context, repos *repository.Repositories) []string {
	active, err := repos.Strategy.GetActive(ctx)
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var symbols []string
	for _, s := range active {
		for _, sym := range s.Ruleset.Symbols {
			if !seen[sym] {
				seen[sym] = true
				symbols = append(symbols, sym)
			}
		}
	}
	return symbols
}

func startMetricsServer(cfg config.MetricsConfig, healthHandler *health.Handler, appLog *logrus.Logger) *http.Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	healthHandler.Register(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	go func() {
		appLog.WithField("addr", server.Addr).Info("Metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Error("Metrics server failed")
		}
	}()
	return server
}
