// Package backtest simulates strategy rulesets over historical candles and
// derives performance metrics, Monte Carlo risk estimates, walk-forward
// validation and the composite score.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/evo-trader/internal/indicator"
	"github.com/yourusername/evo-trader/internal/models"
)

// Entry filter parameters. Entries are rejected while current volatility
// exceeds VolatilityMaxRatio times its trailing average, or while volume is
// below LiquidityMinRatio of its trailing average.
const (
	MinCandles         = 10
	FilterWindow       = 20
	VolatilityMaxRatio = 3.0
	LiquidityMinRatio  = 0.10
)

// Config holds simulation parameters
type Config struct {
	InitialCapital float64
	SlippagePct    float64
	RiskFreeRate   float64
}

// DefaultConfig returns the standard simulation parameters
func DefaultConfig() Config {
	return Config{
		InitialCapital: 10000,
		SlippagePct:    DefaultSlippagePct,
		RiskFreeRate:   0.02,
	}
}

// Engine replays rulesets over candle history. It is stateless across runs
// and safe for concurrent use by scheduler workers.
type Engine struct {
	config Config
	logger *logrus.Logger
	now    func() time.Time
}

// NewEngine creates a new simulation engine
func NewEngine(cfg Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 10000
	}
	return &Engine{config: cfg, logger: logger, now: time.Now}
}

// Run simulates the strategy's ruleset over the given candles for one symbol.
// Candles may arrive unsorted, duplicated or future-dated; they are sanitized
// before the replay.
func (e *Engine) Run(ctx context.Context, strategy *models.Strategy, symbol string, candles []models.Candle) Outcome {
	if err := strategy.Ruleset.Validate(); err != nil {
		return InvalidRuleset(err.Error())
	}

	clean := models.SanitizeCandles(candles, e.now().UTC())
	if len(clean) < MinCandles {
		return InsufficientData(fmt.Sprintf("have %d candles, need at least %d", len(clean), MinCandles))
	}

	degraded := false
	if recommended := models.RecommendedMinCandles(strategy.Ruleset.Timeframe); len(clean) < recommended {
		degraded = true
		e.logger.WithFields(logrus.Fields{
			"strategy_id": strategy.ID,
			"symbol":      symbol,
			"candles":     len(clean),
			"recommended": recommended,
		}).Warn("Backtesting with degraded confidence: fewer candles than recommended")
	}

	result, err := e.simulate(ctx, strategy, symbol, clean)
	if err != nil {
		return InvalidRuleset(err.Error())
	}
	result.DegradedConfidence = degraded
	return Ok(result)
}

// RunWithSplit runs the full range plus a deterministic 70/30 chronological
// train/test split and flags train-vs-test overfitting on the result.
func (e *Engine) RunWithSplit(ctx context.Context, strategy *models.Strategy, symbol string, candles []models.Candle) Outcome {
	outcome := e.Run(ctx, strategy, symbol, candles)
	if !outcome.IsOK() {
		return outcome
	}

	clean := models.SanitizeCandles(candles, e.now().UTC())
	train, test := SplitCandles(clean, 0.70)
	if len(train) < MinCandles || len(test) < MinCandles {
		return outcome
	}

	trainResult, err := e.simulate(ctx, strategy, symbol, train)
	if err != nil {
		return outcome
	}
	testResult, err := e.simulate(ctx, strategy, symbol, test)
	if err != nil {
		return outcome
	}

	outcome.Result.TrainMetrics = &trainResult.Metrics
	outcome.Result.TestMetrics = &testResult.Metrics
	outcome.Result.OverfittingDetected = detectOverfitting(trainResult.Metrics, testResult.Metrics)
	return outcome
}

// SplitCandles partitions candles chronologically at the given ratio
func SplitCandles(candles []models.Candle, ratio float64) ([]models.Candle, []models.Candle) {
	cut := int(float64(len(candles)) * ratio)
	if cut <= 0 || cut >= len(candles) {
		return candles, nil
	}
	return candles[:cut], candles[cut:]
}

func detectOverfitting(train, test models.Metrics) bool {
	if train.SharpeRatio <= 0 {
		return false
	}
	if test.SharpeRatio < train.SharpeRatio*0.5 {
		return true
	}
	return train.TotalReturn > 0 && test.TotalReturn < 0
}

type openPosition struct {
	entryIdx   int
	entryPrice float64
	peakClose  float64
}

func (e *Engine) simulate(ctx context.Context, strategy *models.Strategy, symbol string, candles []models.Candle) (*models.BacktestResult, error) {
	ruleset := strategy.Ruleset
	eval := indicator.NewEvaluator(candles)
	costs := newCostModel(symbol, e.config.SlippagePct)
	state := newSimulationState(e.config.InitialCapital, candles[0].Time)

	var position *openPosition

	for i, candle := range candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if position == nil {
			enter, err := eval.EvalAll(ruleset.Entry, i)
			if err != nil {
				return nil, err
			}
			if enter && e.passesEntryFilters(eval, i) {
				position = &openPosition{
					entryIdx:   i,
					entryPrice: costs.entryPrice(candle.Close, ruleset.Direction),
					peakClose:  candle.Close,
				}
			}
			continue
		}

		if ruleset.Direction == models.DirectionLong && candle.Close > position.peakClose {
			position.peakClose = candle.Close
		}
		if ruleset.Direction == models.DirectionShort && candle.Close < position.peakClose {
			position.peakClose = candle.Close
		}

		reason, err := e.checkExit(eval, ruleset, position, candle.Close, i)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			state.closeTrade(e.buildTrade(ruleset, costs, candles, position, i, symbol, reason))
			position = nil
		}
	}

	// Any position still open at the final candle is force-closed
	if position != nil {
		last := len(candles) - 1
		state.closeTrade(e.buildTrade(ruleset, costs, candles, position, last, symbol, models.ExitReasonEndOfData))
	}

	metrics := CalculateMetrics(state.trades, state.equityCurve, e.config)
	return &models.BacktestResult{
		ID:             uuid.New(),
		StrategyID:     strategy.ID,
		Symbol:         symbol,
		Timeframe:      ruleset.Timeframe,
		StartDate:      candles[0].Time,
		EndDate:        candles[len(candles)-1].Time,
		InitialCapital: e.config.InitialCapital,
		FinalCapital:   state.capital,
		Trades:         state.trades,
		EquityCurve:    state.equityCurve,
		Metrics:        metrics,
		CreatedAt:      e.now().UTC(),
	}, nil
}

// checkExit applies exit rules in fixed priority order: stop-loss (including
// the trailing stop), take-profit, then opposite-signal conditions.
func (e *Engine) checkExit(eval *indicator.Evaluator, ruleset models.Ruleset, position *openPosition, close float64, i int) (string, error) {
	ret := rawReturn(ruleset.Direction, position.entryPrice, close)

	if ruleset.Exit.StopLossPct > 0 && ret <= -ruleset.Exit.StopLossPct {
		return models.ExitReasonStopLoss, nil
	}
	if ruleset.Exit.TrailingStopPct > 0 {
		retreat := retreatFromPeak(ruleset.Direction, position.peakClose, close)
		if retreat >= ruleset.Exit.TrailingStopPct {
			return models.ExitReasonTrailingStop, nil
		}
	}
	if ruleset.Exit.TakeProfitPct > 0 && ret >= ruleset.Exit.TakeProfitPct {
		return models.ExitReasonTakeProfit, nil
	}

	opposite, err := eval.EvalAny(ruleset.Exit.ExitConditions, i)
	if err != nil {
		return "", err
	}
	if opposite {
		return models.ExitReasonSignal, nil
	}
	return "", nil
}

func (e *Engine) buildTrade(ruleset models.Ruleset, costs costModel, candles []models.Candle, position *openPosition, exitIdx int, symbol, reason string) models.Trade {
	exitPrice := costs.exitPrice(candles[exitIdx].Close, ruleset.Direction)
	return models.Trade{
		Symbol:     symbol,
		Direction:  ruleset.Direction,
		EntryTime:  candles[position.entryIdx].Time,
		ExitTime:   candles[exitIdx].Time,
		EntryPrice: position.entryPrice,
		ExitPrice:  exitPrice,
		ReturnPct:  rawReturn(ruleset.Direction, position.entryPrice, exitPrice),
		ExitReason: reason,
	}
}

func (e *Engine) passesEntryFilters(eval *indicator.Evaluator, i int) bool {
	if i < FilterWindow+1 {
		return false
	}
	closes := eval.Closes()
	volumes := eval.Volumes()

	current := math.Abs(barReturn(closes, i))
	trailing := 0.0
	for j := i - FilterWindow; j < i; j++ {
		trailing += math.Abs(barReturn(closes, j))
	}
	trailing /= FilterWindow
	if trailing > 0 && current > VolatilityMaxRatio*trailing {
		return false
	}

	avgVolume := 0.0
	for j := i - FilterWindow; j < i; j++ {
		avgVolume += volumes[j]
	}
	avgVolume /= FilterWindow
	if avgVolume > 0 && volumes[i] < LiquidityMinRatio*avgVolume {
		return false
	}
	return true
}

func barReturn(closes []float64, i int) float64 {
	if i <= 0 || closes[i-1] == 0 {
		return 0
	}
	return (closes[i] - closes[i-1]) / closes[i-1]
}

func rawReturn(direction models.Direction, entry, current float64) float64 {
	if entry == 0 {
		return 0
	}
	if direction == models.DirectionShort {
		return (entry - current) / entry
	}
	return (current - entry) / entry
}

func retreatFromPeak(direction models.Direction, peak, close float64) float64 {
	if peak == 0 {
		return 0
	}
	if direction == models.DirectionShort {
		return (close - peak) / peak
	}
	return (peak - close) / peak
}
