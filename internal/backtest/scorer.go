package backtest

import (
	"math"

	"github.com/yourusername/evo-trader/internal/models"
)

// ScoreWeights weights the composite score components. Components whose
// input is unavailable fall back to a neutral 0.5 and the remaining weights
// are renormalized, so partial evidence never biases the total.
type ScoreWeights struct {
	WinRate     float64
	Return      float64
	Drawdown    float64
	Stability   float64
	RiskRatios  float64
	Consistency float64
	Robustness  float64
}

// DefaultScoreWeights returns the production weighting
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		WinRate:     0.20,
		Return:      0.20,
		Drawdown:    0.15,
		Stability:   0.10,
		RiskRatios:  0.15,
		Consistency: 0.10,
		Robustness:  0.10,
	}
}

// ScoreInputs carries the evidence available for scoring. WalkForward and
// MonteCarlo may be nil when those stages were skipped or failed.
type ScoreInputs struct {
	Backtest    *models.BacktestResult
	WalkForward *models.WalkForwardResult
	MonteCarlo  *models.MonteCarloResult
}

// Scorer folds backtest, walk-forward, and Monte Carlo evidence into a
// single fitness value in [0, 1].
type Scorer struct {
	weights ScoreWeights
}

// NewScorer creates a scorer. Zero-valued weights fall back to defaults.
func NewScorer(weights ScoreWeights) *Scorer {
	if weights == (ScoreWeights{}) {
		weights = DefaultScoreWeights()
	}
	return &Scorer{weights: weights}
}

const neutralComponent = 0.5

// Score computes the composite fitness score. Returns 0 for a nil or
// trade-less backtest.
func (s *Scorer) Score(in ScoreInputs) float64 {
	if in.Backtest == nil || in.Backtest.Metrics.TotalTrades == 0 {
		return 0
	}
	m := in.Backtest.Metrics

	type component struct {
		weight float64
		value  float64
	}
	components := []component{
		{s.weights.WinRate, clamp01(m.WinRate)},
		{s.weights.Return, returnComponent(m.TotalReturn, m.MaxDrawdown)},
		{s.weights.Drawdown, math.Exp(-2 * m.MaxDrawdown)},
		{s.weights.Stability, stabilityComponent(in.Backtest)},
		{s.weights.RiskRatios, riskRatioComponent(m)},
		{s.weights.Consistency, consistencyComponent(in.WalkForward)},
		{s.weights.Robustness, RobustnessScore(in.MonteCarlo)},
	}

	var total, weightSum float64
	for _, c := range components {
		if c.weight <= 0 {
			continue
		}
		total += c.weight * clamp01(c.value)
		weightSum += c.weight
	}
	if weightSum == 0 {
		return 0
	}
	return clamp01(total / weightSum)
}

// returnComponent rewards return earned per unit of drawdown suffered. A
// strategy that returns 20% with a 10% drawdown scores higher than one
// returning 30% with a 40% drawdown.
func returnComponent(totalReturn, maxDrawdown float64) float64 {
	if totalReturn <= 0 {
		return 0
	}
	riskAdjusted := totalReturn / (1 + maxDrawdown*3)
	return 1 - math.Exp(-4*riskAdjusted)
}

func stabilityComponent(result *models.BacktestResult) float64 {
	returns := result.TradeReturns()
	if len(returns) < 2 {
		return neutralComponent
	}
	return 1.0 / (1.0 + CoefficientOfVariation(returns))
}

// riskRatioComponent maps annualized Sharpe and Sortino onto [0,1].
// Sharpe of 2 with matching Sortino saturates the component.
func riskRatioComponent(m models.Metrics) float64 {
	blended := m.SharpeRatio*0.6 + m.SortinoRatio*0.4
	if blended <= 0 {
		return 0
	}
	return clamp01(blended / 2)
}

func consistencyComponent(wf *models.WalkForwardResult) float64 {
	if wf == nil {
		return neutralComponent
	}
	value := wf.ConsistencyScore
	if wf.OverfittingRisk == models.OverfittingHigh {
		value *= 0.5
	}
	return value
}
