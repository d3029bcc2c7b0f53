// Package main provides the entry point for the one-off backtest CLI tool.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/backtest"
	"github.com/yourusername/evo-trader/internal/config"
	"github.com/yourusername/evo-trader/internal/database"
	"github.com/yourusername/evo-trader/internal/logger"
	"github.com/yourusername/evo-trader/internal/marketdata"
	"github.com/yourusername/evo-trader/internal/models"
	"github.com/yourusername/evo-trader/internal/repository"
)

func main() {
	var (
		configPath  = flag.String("config", "config/config.yaml", "Path to config file")
		strategyID  = flag.String("strategy-id", "", "Backtest a stored strategy by id")
		rulesetPath = flag.String("ruleset", "", "Backtest a ruleset from a JSON file")
		mode        = flag.String("mode", "all", "Backtest mode: historical, monte-carlo, walk-forward, all")
		output      = flag.String("output", "", "Write results JSON to this path instead of stdout")
	)
	flag.Parse()

	appLog := logger.NewLogger("info")
	ctx := context.Background()

	cfg := loadConfig(*configPath, appLog)
	strategy := resolveStrategy(ctx, cfg, *strategyID, *rulesetPath, appLog)

	provider := buildProvider(cfg, appLog)
	defer provider.Close()

	appLog.WithFields(logrus.Fields{
		"strategy": strategy.Name,
		"symbols":  strategy.Ruleset.Symbols,
		"mode":     *mode,
	}).Info("Starting backtest")

	report := runBacktest(ctx, cfg, provider, strategy, *mode, appLog)
	writeReport(report, *output, appLog)
}

type report struct {
	Strategy    string                    `json:"strategy"`
	Result      *models.BacktestResult    `json:"result,omitempty"`
	MonteCarlo  *models.MonteCarloResult  `json:"monte_carlo,omitempty"`
	WalkForward *models.WalkForwardResult `json:"walk_forward,omitempty"`
	Skipped     string                    `json:"skipped,omitempty"`
}

func runBacktest(ctx context.Context, cfg *config.Config, provider marketdata.Provider, strategy *models.Strategy, mode string, appLog *logrus.Logger) *report {
	engine := backtest.NewEngine(backtest.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		SlippagePct:    cfg.Backtest.SlippagePct,
		RiskFreeRate:   cfg.Backtest.RiskFreeRate,
	}, appLog)

	symbol := strategy.Ruleset.Symbols[0]
	candles, err := provider.GetCandles(ctx, symbol, strategy.Ruleset.Timeframe, cfg.Evolution.CandleLimit, time.Time{}, time.Time{})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to fetch candles")
	}

	outcome := engine.RunWithSplit(ctx, strategy, symbol, candles)
	if !outcome.IsOK() {
		return &report{Strategy: strategy.Name, Skipped: outcome.Reason}
	}
	out := &report{Strategy: strategy.Name, Result: outcome.Result}

	if mode == "monte-carlo" || mode == "all" {
		mc, err := backtest.RunMonteCarlo(outcome.Result.TradeReturns(), backtest.MonteCarloConfig{
			Iterations:     cfg.Backtest.MonteCarloIterations,
			Seed:           cfg.Backtest.MonteCarloSeed,
			InitialCapital: cfg.Backtest.InitialCapital,
		})
		if err != nil {
			appLog.WithError(err).Warn("Monte Carlo skipped")
		} else {
			out.MonteCarlo = mc
		}
	}

	if mode == "walk-forward" || mode == "all" {
		validator := backtest.NewValidator(engine, backtest.WalkForwardConfig{
			InSampleDays:  cfg.Backtest.WalkForwardInDays,
			OutSampleDays: cfg.Backtest.WalkForwardOutDays,
			StepDays:      cfg.Backtest.WalkForwardStepDays,
			MinPeriods:    cfg.Backtest.WalkForwardMinPeriods,
		}, appLog)
		wf, err := validator.Run(ctx, strategy, symbol, candles)
		if err != nil {
			appLog.WithError(err).Warn("Walk-forward skipped")
		} else {
			out.WalkForward = wf
		}
	}

	return out
}

func resolveStrategy(ctx context.Context, cfg *config.Config, strategyID, rulesetPath string, appLog *logrus.Logger) *models.Strategy {
	switch {
	case strategyID != "":
		id, err := uuid.Parse(strategyID)
		if err != nil {
			appLog.Fatalf("Invalid strategy id: %v", err)
		}
		db, err := database.NewDB(ctx, &cfg.Database)
		if err != nil {
			appLog.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close(ctx)

		repos, err := repository.NewRepositories(db)
		if err != nil {
			appLog.Fatalf("Failed to initialize repositories: %v", err)
		}
		strategy, err := repos.Strategy.GetByID(ctx, id)
		if err != nil {
			appLog.Fatalf("Failed to load strategy: %v", err)
		}
		return strategy

	case rulesetPath != "":
		data, err := os.ReadFile(rulesetPath)
		if err != nil {
			appLog.Fatalf("Failed to read ruleset file: %v", err)
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			appLog.Fatalf("Failed to parse ruleset file: %v", err)
		}
		ruleset, err := models.NormalizeRuleset(raw)
		if err != nil {
			appLog.Fatalf("Invalid ruleset: %v", err)
		}
		return &models.Strategy{
			ID:      uuid.New(),
			Name:    "ad-hoc",
			Ruleset: *ruleset,
			Status:  models.StatusExperiment,
		}

	default:
		appLog.Fatal("One of -strategy-id or -ruleset is required")
		return nil
	}
}

func buildProvider(cfg *config.Config, appLog *logrus.Logger) marketdata.Provider {
	httpCfg := marketdata.DefaultHTTPClientConfig()
	httpCfg.Timeout = time.Duration(cfg.DataProvider.TimeoutSeconds) * time.Second
	httpCfg.MaxRetries = cfg.DataProvider.RetryAttempts
	httpCfg.RateLimit = cfg.DataProvider.RateLimitPerSecond

	httpClient := marketdata.NewRateLimitedHTTPClient(httpCfg, appLog)
	inner := marketdata.NewHTTPProvider(httpClient, cfg.DataProvider.BaseURL, cfg.DataProvider.APIKey, appLog)
	return marketdata.NewCachedProvider(inner, time.Duration(cfg.DataProvider.CacheTTLSeconds)*time.Second, appLog)
}

func loadConfig(path string, appLog *logrus.Logger) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		appLog.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			appLog.Fatal("AWS_REGION and AWS_SECRET_NAME must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			appLog.Fatalf("Failed to load secrets: %v", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		appLog.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func writeReport(r *report, path string, appLog *logrus.Logger) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		appLog.Fatalf("Failed to marshal report: %v", err)
	}
	if path == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		appLog.Fatalf("Failed to write report: %v", err)
	}
	appLog.WithField("path", path).Info("Report written")
}
