package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Trade is one simulated round trip
type Trade struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	ReturnPct  float64   `json:"return_pct"`
	ProfitLoss float64   `json:"profit_loss"`
	ExitReason string    `json:"exit_reason"`
}

// Trade exit reasons
const (
	ExitReasonStopLoss     = "stop_loss"
	ExitReasonTakeProfit   = "take_profit"
	ExitReasonTrailingStop = "trailing_stop"
	ExitReasonSignal       = "opposite_signal"
	ExitReasonEndOfData    = "end_of_data"
)

// EquityPoint is one point on an equity curve
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Drawdown float64   `json:"drawdown"`
}

// Metrics is the performance metrics block of a backtest
type Metrics struct {
	TotalReturn   float64 `json:"total_return"`
	WinRate       float64 `json:"win_rate"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	AvgProfitLoss float64 `json:"avg_pnl"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	SortinoRatio  float64 `json:"sortino_ratio"`
	CalmarRatio   float64 `json:"calmar_ratio"`
	ProfitFactor  float64 `json:"profit_factor"`
	Expectancy    float64 `json:"expectancy"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	TotalTrades   int     `json:"total_trades"`
}

// BacktestResult represents one immutable backtest run. A strategy
// accumulates many results over its lifetime; only the most recent is
// authoritative for lifecycle decisions.
type BacktestResult struct {
	ID                  uuid.UUID     `db:"id" json:"id"`
	StrategyID          uuid.UUID     `db:"strategy_id" json:"strategy_id"`
	Symbol              string        `db:"symbol" json:"symbol"`
	Timeframe           string        `db:"timeframe" json:"timeframe"`
	StartDate           time.Time     `db:"start_date" json:"start_date"`
	EndDate             time.Time     `db:"end_date" json:"end_date"`
	InitialCapital      float64       `db:"initial_capital" json:"initial_capital"`
	FinalCapital        float64       `db:"final_capital" json:"final_capital"`
	Trades              []Trade       `db:"trades" json:"trades"`
	EquityCurve         []EquityPoint `db:"equity_curve" json:"equity_curve"`
	Metrics             Metrics       `db:"metrics" json:"metrics"`
	TrainMetrics        *Metrics      `db:"train_metrics" json:"train_metrics,omitempty"`
	TestMetrics         *Metrics      `db:"test_metrics" json:"test_metrics,omitempty"`
	OverfittingDetected bool          `db:"overfitting_detected" json:"overfitting_detected"`
	DegradedConfidence  bool          `db:"degraded_confidence" json:"degraded_confidence"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
}

// TradeReturns extracts per-trade decimal returns, the Monte Carlo input
func (r *BacktestResult) TradeReturns() []float64 {
	returns := make([]float64, 0, len(r.Trades))
	for _, t := range r.Trades {
		returns = append(returns, t.ReturnPct)
	}
	return returns
}

// ToJSON serializes the result for the strategy's last-backtest payload
func (r *BacktestResult) ToJSON() json.RawMessage {
	data, _ := json.Marshal(r)
	return data
}

// MonteCarloResult holds simulated risk estimates. Derived from a backtest
// result, never persisted independently of it.
type MonteCarloResult struct {
	Iterations          int                `json:"iterations"`
	MeanReturn          float64            `json:"mean_return"`
	StdReturn           float64            `json:"std_return"`
	VaR95               float64            `json:"var_95"`
	VaR99               float64            `json:"var_99"`
	CVaR95              float64            `json:"cvar_95"`
	CVaR99              float64            `json:"cvar_99"`
	ProbabilityOfRuin   float64            `json:"probability_of_ruin"`
	ReturnPercentiles   map[string]float64 `json:"return_percentiles"`
	DrawdownPercentiles map[string]float64 `json:"drawdown_percentiles"`
	ConfidenceIntervals map[string]float64 `json:"confidence_intervals"`
}

// OverfittingRisk labels walk-forward in-sample vs out-of-sample degradation
type OverfittingRisk string

// Overfitting risk labels
const (
	OverfittingLow    OverfittingRisk = "Low"
	OverfittingMedium OverfittingRisk = "Medium"
	OverfittingHigh   OverfittingRisk = "High"
)

// WalkForwardPeriod is one rolling in-sample/out-of-sample window
type WalkForwardPeriod struct {
	InSampleStart  time.Time       `json:"in_sample_start"`
	InSampleEnd    time.Time       `json:"in_sample_end"`
	OutSampleStart time.Time       `json:"out_sample_start"`
	OutSampleEnd   time.Time       `json:"out_sample_end"`
	InSample       *BacktestResult `json:"in_sample"`
	OutSample      *BacktestResult `json:"out_sample"`
}

// WalkForwardResult aggregates rolling out-of-sample validation
type WalkForwardResult struct {
	Periods          []WalkForwardPeriod `json:"periods"`
	AggregateMetrics Metrics             `json:"aggregate_metrics"`
	ConsistencyScore float64             `json:"consistency_score"`
	OverfittingRisk  OverfittingRisk     `json:"overfitting_risk"`
}
