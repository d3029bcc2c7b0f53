package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/evo-trader/internal/models"
)

// WalkForwardConfig sizes the rolling validation windows in days
type WalkForwardConfig struct {
	InSampleDays  int
	OutSampleDays int
	StepDays      int
	MinPeriods    int
}

// DefaultWalkForwardConfig returns a 60/20/20 day rolling window
func DefaultWalkForwardConfig() WalkForwardConfig {
	return WalkForwardConfig{
		InSampleDays:  60,
		OutSampleDays: 20,
		StepDays:      20,
		MinPeriods:    2,
	}
}

// Validator runs rolling in-sample/out-of-sample validation over a candle
// history. Each window delegates to the shared engine, so windows see the
// same cost model and entry filters as a full backtest.
type Validator struct {
	engine *Engine
	config WalkForwardConfig
	logger *logrus.Logger
}

// NewValidator creates a walk-forward validator
func NewValidator(engine *Engine, cfg WalkForwardConfig, logger *logrus.Logger) *Validator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Validator{engine: engine, config: cfg, logger: logger}
}

// Run slices the candle history into rolling windows and backtests each.
// Returns ErrTooFewPeriods when the history cannot cover MinPeriods windows.
// Windows whose candle slice is too thin for a backtest are skipped rather
// than failing the whole validation.
func (v *Validator) Run(ctx context.Context, strategy *models.Strategy, symbol string, candles []models.Candle) (*models.WalkForwardResult, error) {
	candles = models.SanitizeCandles(candles, time.Now().UTC())
	if len(candles) < MinCandles {
		return nil, fmt.Errorf("%w: %d candles", models.ErrInsufficientData, len(candles))
	}

	windows := v.windows(candles[0].Time, candles[len(candles)-1].Time)
	if len(windows) < v.config.MinPeriods {
		return nil, fmt.Errorf("%w: %d windows from %s of history, need %d",
			models.ErrTooFewPeriods, len(windows),
			candles[len(candles)-1].Time.Sub(candles[0].Time).Round(time.Hour), v.config.MinPeriods)
	}

	var periods []models.WalkForwardPeriod
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		inSample := v.runWindow(ctx, strategy, symbol, candles, w.inStart, w.inEnd)
		outSample := v.runWindow(ctx, strategy, symbol, candles, w.outStart, w.outEnd)
		if inSample == nil || outSample == nil {
			v.logger.WithFields(logrus.Fields{
				"strategy_id": strategy.ID,
				"in_start":    w.inStart,
				"out_end":     w.outEnd,
			}).Debug("Skipping walk-forward window with insufficient candles")
			continue
		}

		periods = append(periods, models.WalkForwardPeriod{
			InSampleStart:  w.inStart,
			InSampleEnd:    w.inEnd,
			OutSampleStart: w.outStart,
			OutSampleEnd:   w.outEnd,
			InSample:       inSample,
			OutSample:      outSample,
		})
	}

	if len(periods) < v.config.MinPeriods {
		return nil, fmt.Errorf("%w: %d usable windows, need %d",
			models.ErrTooFewPeriods, len(periods), v.config.MinPeriods)
	}

	result := &models.WalkForwardResult{
		Periods:          periods,
		AggregateMetrics: aggregateOutSample(periods),
		ConsistencyScore: consistencyScore(periods),
		OverfittingRisk:  classifyOverfitting(periods),
	}

	v.logger.WithFields(logrus.Fields{
		"strategy_id":       strategy.ID,
		"periods":           len(periods),
		"consistency_score": result.ConsistencyScore,
		"overfitting_risk":  result.OverfittingRisk,
	}).Info("Walk-forward validation complete")

	return result, nil
}

type window struct {
	inStart, inEnd, outStart, outEnd time.Time
}

func (v *Validator) windows(start, end time.Time) []window {
	inSpan := time.Duration(v.config.InSampleDays) * 24 * time.Hour
	outSpan := time.Duration(v.config.OutSampleDays) * 24 * time.Hour
	step := time.Duration(v.config.StepDays) * 24 * time.Hour

	var out []window
	for cursor := start; ; cursor = cursor.Add(step) {
		w := window{
			inStart:  cursor,
			inEnd:    cursor.Add(inSpan),
			outStart: cursor.Add(inSpan),
			outEnd:   cursor.Add(inSpan + outSpan),
		}
		if w.outEnd.After(end) {
			break
		}
		out = append(out, w)
	}
	return out
}

func (v *Validator) runWindow(ctx context.Context, strategy *models.Strategy, symbol string, candles []models.Candle, from, to time.Time) *models.BacktestResult {
	slice := sliceCandles(candles, from, to)
	if len(slice) < MinCandles {
		return nil
	}
	outcome := v.engine.Run(ctx, strategy, symbol, slice)
	if !outcome.IsOK() {
		return nil
	}
	return outcome.Result
}

// sliceCandles returns candles in [from, to). Input must be sorted ascending.
func sliceCandles(candles []models.Candle, from, to time.Time) []models.Candle {
	lo := 0
	for lo < len(candles) && candles[lo].Time.Before(from) {
		lo++
	}
	hi := lo
	for hi < len(candles) && candles[hi].Time.Before(to) {
		hi++
	}
	return candles[lo:hi]
}

// aggregateOutSample averages the out-of-sample metric blocks
func aggregateOutSample(periods []models.WalkForwardPeriod) models.Metrics {
	n := float64(len(periods))
	var agg models.Metrics
	for _, p := range periods {
		m := p.OutSample.Metrics
		agg.TotalReturn += m.TotalReturn / n
		agg.WinRate += m.WinRate / n
		agg.MaxDrawdown += m.MaxDrawdown / n
		agg.AvgProfitLoss += m.AvgProfitLoss / n
		agg.SharpeRatio += m.SharpeRatio / n
		agg.SortinoRatio += m.SortinoRatio / n
		agg.CalmarRatio += m.CalmarRatio / n
		agg.ProfitFactor += m.ProfitFactor / n
		agg.Expectancy += m.Expectancy / n
		agg.TotalTrades += m.TotalTrades
	}
	return agg
}

// consistencyScore maps the dispersion of out-of-sample returns onto (0,1].
// Perfectly uniform windows score 1.
func consistencyScore(periods []models.WalkForwardPeriod) float64 {
	returns := make([]float64, len(periods))
	for i, p := range periods {
		returns[i] = p.OutSample.Metrics.TotalReturn
	}
	return 1.0 / (1.0 + CoefficientOfVariation(returns))
}

// classifyOverfitting labels the mean Sharpe degradation from in-sample to
// out-of-sample. Under 10% is Low, under 30% Medium, anything worse High.
func classifyOverfitting(periods []models.WalkForwardPeriod) models.OverfittingRisk {
	var degradations []float64
	for _, p := range periods {
		in := p.InSample.Metrics.SharpeRatio
		out := p.OutSample.Metrics.SharpeRatio
		if in <= 0 {
			continue
		}
		degradations = append(degradations, (in-out)/in)
	}
	if len(degradations) == 0 {
		return models.OverfittingMedium
	}

	mean := stat.Mean(degradations, nil)
	switch {
	case mean < 0.10:
		return models.OverfittingLow
	case mean < 0.30:
		return models.OverfittingMedium
	default:
		return models.OverfittingHigh
	}
}
