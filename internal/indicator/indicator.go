// Package indicator computes technical indicator series over candle data and
// evaluates boolean entry/exit conditions against them.
package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/yourusername/evo-trader/internal/models"
)

// Evaluator computes and caches indicator series for one candle window.
// Series are computed lazily, once per (indicator, period) pair.
type Evaluator struct {
	candles []models.Candle
	closes  []float64
	highs   []float64
	lows    []float64
	volumes []float64
	cache   map[string][]float64
}

// NewEvaluator creates an evaluator over a candle window
func NewEvaluator(candles []models.Candle) *Evaluator {
	e := &Evaluator{
		candles: candles,
		closes:  make([]float64, len(candles)),
		highs:   make([]float64, len(candles)),
		lows:    make([]float64, len(candles)),
		volumes: make([]float64, len(candles)),
		cache:   make(map[string][]float64),
	}
	for i, c := range candles {
		e.closes[i] = c.Close
		e.highs[i] = c.High
		e.lows[i] = c.Low
		e.volumes[i] = c.Volume
	}
	return e
}

// Closes returns the close price series
func (e *Evaluator) Closes() []float64 { return e.closes }

// Volumes returns the volume series
func (e *Evaluator) Volumes() []float64 { return e.volumes }

// Series computes the indicator series for the given name and period. The
// returned slice is index-aligned with the candle window; warm-up positions
// hold zero (talib convention) and conditions treat them as not-ready.
func (e *Evaluator) Series(name string, period int) ([]float64, error) {
	if period <= 0 {
		period = 14
	}
	key := fmt.Sprintf("%s:%d", name, period)
	if series, ok := e.cache[key]; ok {
		return series, nil
	}

	var series []float64
	switch name {
	case models.IndicatorSMA:
		series = talib.Sma(e.closes, period)
	case models.IndicatorEMA:
		series = talib.Ema(e.closes, period)
	case models.IndicatorRSI:
		series = talib.Rsi(e.closes, period)
	case models.IndicatorMACD:
		macd, _, _ := talib.Macd(e.closes, 12, 26, 9)
		series = macd
	case models.IndicatorATR:
		series = talib.Atr(e.highs, e.lows, e.closes, period)
	case models.IndicatorPrice:
		series = e.closes
	case models.IndicatorVolume:
		series = e.volumes
	default:
		return nil, fmt.Errorf("unsupported indicator %q", name)
	}

	e.cache[key] = series
	return series, nil
}

func (e *Evaluator) warmup(name string, period int) int {
	switch name {
	case models.IndicatorPrice, models.IndicatorVolume:
		return 0
	case models.IndicatorMACD:
		return 26 + 9
	default:
		return period
	}
}

// EvalCondition evaluates a single condition at bar index i
func (e *Evaluator) EvalCondition(cond models.Condition, i int) (bool, error) {
	series, err := e.Series(cond.Indicator, cond.Period)
	if err != nil {
		return false, err
	}
	if i < e.warmup(cond.Indicator, cond.Period) || i >= len(series) {
		return false, nil
	}

	target := cond.Value
	prevTarget := cond.Value
	if cond.Compare != "" {
		comparePeriod := cond.ComparePeriod
		if comparePeriod == 0 {
			comparePeriod = cond.Period
		}
		compareSeries, err := e.Series(cond.Compare, comparePeriod)
		if err != nil {
			return false, err
		}
		if i < e.warmup(cond.Compare, comparePeriod) || i >= len(compareSeries) {
			return false, nil
		}
		target = compareSeries[i]
		if i > 0 {
			prevTarget = compareSeries[i-1]
		}
	}

	value := series[i]
	if math.IsNaN(value) || math.IsNaN(target) {
		return false, nil
	}

	switch cond.Operator {
	case models.OpGreaterThan:
		return value > target, nil
	case models.OpLessThan:
		return value < target, nil
	case models.OpCrossesAbove:
		if i == 0 {
			return false, nil
		}
		return series[i-1] <= prevTarget && value > target, nil
	case models.OpCrossesBelow:
		if i == 0 {
			return false, nil
		}
		return series[i-1] >= prevTarget && value < target, nil
	}
	return false, fmt.Errorf("unsupported operator %q", cond.Operator)
}

// EvalAll reports whether every condition holds at bar index i. An empty
// condition list evaluates to false so exit-only rulesets never enter.
func (e *Evaluator) EvalAll(conds []models.Condition, i int) (bool, error) {
	if len(conds) == 0 {
		return false, nil
	}
	for _, cond := range conds {
		ok, err := e.EvalCondition(cond, i)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// EvalAny reports whether at least one condition holds at bar index i
func (e *Evaluator) EvalAny(conds []models.Condition, i int) (bool, error) {
	for _, cond := range conds {
		ok, err := e.EvalCondition(cond, i)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
