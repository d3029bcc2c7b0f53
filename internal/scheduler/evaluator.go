package scheduler

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/backtest"
	"github.com/yourusername/evo-trader/internal/marketdata"
	"github.com/yourusername/evo-trader/internal/metrics"
	"github.com/yourusername/evo-trader/internal/models"
)

// Budget caps data-provider requests within one cycle. When exhausted,
// remaining strategies are skipped until the next cycle rather than blocking.
type Budget struct {
	mu        sync.Mutex
	remaining int
}

// NewBudget creates a request budget for one cycle
func NewBudget(requests int) *Budget {
	return &Budget{remaining: requests}
}

// Take consumes one request slot, reporting whether one was available
func (b *Budget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Evaluation is the full evidence produced for one strategy in one cycle
type Evaluation struct {
	Outcome     backtest.Outcome
	MonteCarlo  *models.MonteCarloResult
	WalkForward *models.WalkForwardResult
	Score       float64
	SymbolPerf  map[string]float64
}

// Evaluator runs the full per-strategy pipeline: fetch candles, simulate
// with train/test split, Monte Carlo, walk-forward, composite score. The
// first ruleset symbol is the primary; additional symbols get a plain
// backtest whose return feeds the per-symbol performance map.
type Evaluator struct {
	provider    marketdata.Provider
	engine      *backtest.Engine
	validator   *backtest.Validator
	scorer      *backtest.Scorer
	mcConfig    backtest.MonteCarloConfig
	candleLimit int
	logger      *logrus.Logger
}

// NewEvaluator creates a pipeline evaluator
func NewEvaluator(provider marketdata.Provider, engine *backtest.Engine, validator *backtest.Validator, scorer *backtest.Scorer, mcConfig backtest.MonteCarloConfig, candleLimit int, logger *logrus.Logger) *Evaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Evaluator{
		provider:    provider,
		engine:      engine,
		validator:   validator,
		scorer:      scorer,
		mcConfig:    mcConfig,
		candleLimit: candleLimit,
		logger:      logger,
	}
}

// Evaluate runs the pipeline for one strategy. A nil return with an OK
// outcome never happens; callers branch on Outcome.Kind. Provider failures
// degrade to an insufficient-data outcome so one bad fetch never aborts a
// batch.
func (e *Evaluator) Evaluate(ctx context.Context, strategy *models.Strategy, budget *Budget) *Evaluation {
	if len(strategy.Ruleset.Symbols) == 0 {
		return &Evaluation{Outcome: backtest.InvalidRuleset("ruleset has no symbols")}
	}

	primary := strategy.Ruleset.Symbols[0]
	candles := e.fetchCandles(ctx, primary, strategy.Ruleset.Timeframe, budget)
	if len(candles) == 0 {
		return &Evaluation{Outcome: backtest.InsufficientData("no candles for " + primary)}
	}

	started := time.Now()
	outcome := e.engine.RunWithSplit(ctx, strategy, primary, candles)
	metrics.BacktestDuration.Observe(time.Since(started).Seconds())
	if !outcome.IsOK() {
		metrics.RecordBacktestRun("full", outcome.Kind.String())
		return &Evaluation{Outcome: outcome}
	}
	metrics.RecordBacktestRun("full", "ok")

	eval := &Evaluation{
		Outcome:    outcome,
		SymbolPerf: map[string]float64{primary: outcome.Result.Metrics.TotalReturn},
	}

	if mc, err := backtest.RunMonteCarlo(outcome.Result.TradeReturns(), e.seededMC(strategy)); err == nil {
		eval.MonteCarlo = mc
	} else {
		e.logger.WithFields(logrus.Fields{
			"strategy_id": strategy.ID,
			"error":       err,
		}).Debug("Monte Carlo skipped")
	}

	if wf, err := e.validator.Run(ctx, strategy, primary, candles); err == nil {
		eval.WalkForward = wf
		metrics.RecordBacktestRun("walk_forward", "ok")
	} else {
		metrics.RecordBacktestRun("walk_forward", "skipped")
		e.logger.WithFields(logrus.Fields{
			"strategy_id": strategy.ID,
			"error":       err,
		}).Debug("Walk-forward skipped")
	}

	for _, symbol := range strategy.Ruleset.Symbols[1:] {
		secondary := e.fetchCandles(ctx, symbol, strategy.Ruleset.Timeframe, budget)
		if len(secondary) == 0 {
			continue
		}
		if o := e.engine.Run(ctx, strategy, symbol, secondary); o.IsOK() {
			eval.SymbolPerf[symbol] = o.Result.Metrics.TotalReturn
		}
	}

	eval.Score = e.scorer.Score(backtest.ScoreInputs{
		Backtest:    outcome.Result,
		WalkForward: eval.WalkForward,
		MonteCarlo:  eval.MonteCarlo,
	})
	metrics.CompositeScore.Observe(eval.Score)

	return eval
}

// fetchCandles degrades every failure mode to an empty slice
func (e *Evaluator) fetchCandles(ctx context.Context, symbol, timeframe string, budget *Budget) []models.Candle {
	if budget != nil && !budget.Take() {
		metrics.RecordProviderRequest("budget_exhausted")
		return nil
	}

	candles, err := e.provider.GetCandles(ctx, symbol, timeframe, e.candleLimit, time.Time{}, time.Time{})
	if err != nil {
		metrics.RecordProviderRequest("error")
		e.logger.WithFields(logrus.Fields{
			"symbol": symbol,
			"error":  err,
		}).Warn("Candle fetch failed, treating as no data")
		return nil
	}
	metrics.RecordProviderRequest("ok")
	return candles
}

// seededMC derives a per-strategy seed so repeated evaluations of the same
// strategy are reproducible while different strategies decorrelate.
func (e *Evaluator) seededMC(strategy *models.Strategy) backtest.MonteCarloConfig {
	cfg := e.mcConfig
	if cfg.Seed == 0 {
		cfg.Seed = int64(binary.BigEndian.Uint64(strategy.ID[:8]))
	}
	return cfg
}
