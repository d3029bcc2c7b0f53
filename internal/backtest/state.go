package backtest

import (
	"time"

	"github.com/yourusername/evo-trader/internal/models"
)

// simulationState tracks capital and the trade tape during a single run
type simulationState struct {
	capital     float64
	peakCapital float64
	trades      []models.Trade
	equityCurve []models.EquityPoint
}

func newSimulationState(initialCapital float64, start time.Time) *simulationState {
	s := &simulationState{
		capital:     initialCapital,
		peakCapital: initialCapital,
	}
	s.recordEquity(start)
	return s
}

// closeTrade applies a finished trade's return to capital and records it
func (s *simulationState) closeTrade(trade models.Trade) {
	trade.ProfitLoss = s.capital * trade.ReturnPct
	s.capital += trade.ProfitLoss
	if s.capital > s.peakCapital {
		s.peakCapital = s.capital
	}
	s.trades = append(s.trades, trade)
	s.recordEquity(trade.ExitTime)
}

func (s *simulationState) recordEquity(t time.Time) {
	drawdown := 0.0
	if s.peakCapital > 0 && s.capital < s.peakCapital {
		drawdown = (s.peakCapital - s.capital) / s.peakCapital
	}
	s.equityCurve = append(s.equityCurve, models.EquityPoint{
		Time:     t,
		Value:    s.capital,
		Drawdown: drawdown,
	})
}

// EquityReturns extracts point-to-point returns from an equity curve
func EquityReturns(curve []models.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Value-prev)/prev)
	}
	return returns
}
