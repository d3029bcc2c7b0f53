package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"github.com/yourusername/evo-trader/internal/models"
)

const tradingDaysPerYear = 252

// CalculateMetrics derives the metrics block from the trade tape and equity
// curve of one simulation run.
func CalculateMetrics(trades []models.Trade, curve []models.EquityPoint, cfg Config) models.Metrics {
	metrics := models.Metrics{TotalTrades: len(trades)}
	if len(curve) == 0 {
		return metrics
	}

	initial := curve[0].Value
	final := curve[len(curve)-1].Value
	if initial > 0 {
		metrics.TotalReturn = (final - initial) / initial
	}
	metrics.MaxDrawdown = MaxDrawdown(curve)

	returns := EquityReturns(curve)
	metrics.SharpeRatio = SharpeRatio(returns, cfg.RiskFreeRate)
	metrics.SortinoRatio = SortinoRatio(returns, cfg.RiskFreeRate)
	if metrics.MaxDrawdown > 0 {
		metrics.CalmarRatio = metrics.TotalReturn / metrics.MaxDrawdown
	}

	wins, grossProfit, grossLoss := 0, 0.0, 0.0
	net := 0.0
	for _, t := range trades {
		net += t.ProfitLoss
		switch {
		case t.ProfitLoss > 0:
			wins++
			grossProfit += t.ProfitLoss
			if t.ProfitLoss > metrics.LargestWin {
				metrics.LargestWin = t.ProfitLoss
			}
		case t.ProfitLoss < 0:
			grossLoss += math.Abs(t.ProfitLoss)
			if t.ProfitLoss < metrics.LargestLoss {
				metrics.LargestLoss = t.ProfitLoss
			}
		}
	}

	if len(trades) > 0 {
		metrics.WinRate = float64(wins) / float64(len(trades))
		metrics.AvgProfitLoss = net / float64(len(trades))
		metrics.Expectancy = metrics.AvgProfitLoss
	}
	metrics.ProfitFactor = profitFactor(grossProfit, grossLoss)

	return metrics
}

// MaxDrawdown computes peak-to-trough drawdown over an equity curve
func MaxDrawdown(curve []models.EquityPoint) float64 {
	maxDD := 0.0
	peak := 0.0
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak == 0 {
			continue
		}
		drawdown := (peak - p.Value) / peak
		if drawdown > maxDD {
			maxDD = drawdown
		}
	}
	return maxDD
}

// SharpeRatio annualizes the mean excess return over its volatility
func SharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	std := stat.StdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return (mean - riskFreeRate/tradingDaysPerYear) / std * math.Sqrt(tradingDaysPerYear)
}

// SortinoRatio uses downside deviation instead of total volatility
func SortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	downside := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	std := stat.StdDev(downside, nil)
	if std == 0 {
		return 0
	}
	return (mean - riskFreeRate/tradingDaysPerYear) / std * math.Sqrt(tradingDaysPerYear)
}

func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return 999
		}
		return 0
	}
	return grossProfit / grossLoss
}

// CoefficientOfVariation returns std/|mean|, or +Inf when the mean is zero
// with non-zero dispersion.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := stat.Mean(values, nil)
	std := stat.StdDev(values, nil)
	if mean == 0 {
		if std == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return std / math.Abs(mean)
}

// IsFinite reports whether every metric in the block is a finite number
func IsFinite(m models.Metrics) bool {
	for _, v := range []float64{
		m.TotalReturn, m.WinRate, m.MaxDrawdown, m.AvgProfitLoss,
		m.SharpeRatio, m.SortinoRatio, m.ProfitFactor, m.Expectancy,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
