package backtest

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
	"github.com/yourusername/evo-trader/internal/models"
)

// Monte Carlo defaults. Ruin is capital falling below RuinFraction of start.
const (
	DefaultMonteCarloIterations = 2000
	RuinFraction                = 0.10
)

// MonteCarloConfig configures the bootstrap simulation
type MonteCarloConfig struct {
	Iterations     int
	Seed           int64
	InitialCapital float64
}

var percentileLevels = []float64{0.05, 0.25, 0.50, 0.75, 0.95}

// RunMonteCarlo bootstraps the realized per-trade return distribution into
// simulated equity paths and derives tail-risk estimates. Given a fixed seed
// the output is bit-identical across invocations.
func RunMonteCarlo(tradeReturns []float64, cfg MonteCarloConfig) (*models.MonteCarloResult, error) {
	if len(tradeReturns) == 0 {
		return nil, fmt.Errorf("%w: no realized trade returns", models.ErrInsufficientData)
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultMonteCarloIterations
	}
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 10000
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	terminalReturns := make([]float64, cfg.Iterations)
	maxDrawdowns := make([]float64, cfg.Iterations)
	ruinCount := 0

	for i := 0; i < cfg.Iterations; i++ {
		capital := cfg.InitialCapital
		peak := capital
		maxDD := 0.0
		ruined := false

		for range tradeReturns {
			r := tradeReturns[rng.Intn(len(tradeReturns))]
			capital *= 1 + r
			if capital > peak {
				peak = capital
			}
			if peak > 0 {
				dd := (peak - capital) / peak
				if dd > maxDD {
					maxDD = dd
				}
			}
			if capital < cfg.InitialCapital*RuinFraction {
				ruined = true
				break
			}
		}

		terminalReturns[i] = (capital - cfg.InitialCapital) / cfg.InitialCapital
		maxDrawdowns[i] = maxDD
		if ruined {
			ruinCount++
		}
	}

	sortedReturns := sortedCopy(terminalReturns)
	sortedDrawdowns := sortedCopy(maxDrawdowns)

	var95 := quantile(sortedReturns, 0.05)
	var99 := quantile(sortedReturns, 0.01)

	return &models.MonteCarloResult{
		Iterations:          cfg.Iterations,
		MeanReturn:          stat.Mean(terminalReturns, nil),
		StdReturn:           stat.StdDev(terminalReturns, nil),
		VaR95:               var95,
		VaR99:               var99,
		CVaR95:              tailMean(sortedReturns, var95),
		CVaR99:              tailMean(sortedReturns, var99),
		ProbabilityOfRuin:   float64(ruinCount) / float64(cfg.Iterations),
		ReturnPercentiles:   percentileMap(sortedReturns),
		DrawdownPercentiles: percentileMap(sortedDrawdowns),
		ConfidenceIntervals: confidenceIntervals(sortedReturns, []float64{0.90, 0.95, 0.99}),
	}, nil
}

// RobustnessScore scores return dispersion inversely on [0,1], penalized when
// the 5th percentile outcome is negative. Used as the Monte Carlo component
// of the composite score.
func RobustnessScore(result *models.MonteCarloResult) float64 {
	if result == nil {
		return 0.5
	}
	dispersion := result.StdReturn
	score := 1.0 / (1.0 + dispersion*4)
	if p5, ok := result.ReturnPercentiles["p5"]; ok && p5 < 0 {
		score *= 1 + p5
		if score < 0 {
			score = 0
		}
	}
	return clamp01(score)
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// quantile reads a percentile from an ascending-sorted slice
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// tailMean is the mean of all outcomes at or below the threshold (CVaR)
func tailMean(sorted []float64, threshold float64) float64 {
	sum, count := 0.0, 0
	for _, v := range sorted {
		if v > threshold {
			break
		}
		sum += v
		count++
	}
	if count == 0 {
		return threshold
	}
	return sum / float64(count)
}

func percentileMap(sorted []float64) map[string]float64 {
	out := make(map[string]float64, len(percentileLevels))
	for _, p := range percentileLevels {
		out[fmt.Sprintf("p%.0f", p*100)] = quantile(sorted, p)
	}
	return out
}

func confidenceIntervals(sorted []float64, levels []float64) map[string]float64 {
	out := make(map[string]float64, len(levels))
	for _, level := range levels {
		tail := (1 - level) / 2
		out[fmt.Sprintf("%.0f%%", level*100)] = quantile(sorted, 1-tail) - quantile(sorted, tail)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
