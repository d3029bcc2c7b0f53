package backtest

import (
	"testing"

	"github.com/yourusername/evo-trader/internal/models"
)

func scoredResult(winRate, totalReturn, sharpe, drawdown float64, trades int) *models.BacktestResult {
	return &models.BacktestResult{
		Metrics: models.Metrics{
			TotalTrades:  trades,
			WinRate:      winRate,
			TotalReturn:  totalReturn,
			SharpeRatio:  sharpe,
			SortinoRatio: sharpe,
			MaxDrawdown:  drawdown,
			ProfitFactor: 1.5,
		},
	}
}

func TestScoreEmptyBacktest(t *testing.T) {
	scorer := NewScorer(DefaultScoreWeights())
	if got := scorer.Score(ScoreInputs{}); got != 0 {
		t.Fatalf("nil backtest should score 0, got %f", got)
	}
	if got := scorer.Score(ScoreInputs{Backtest: scoredResult(0, 0, 0, 0, 0)}); got != 0 {
		t.Fatalf("trade-less backtest should score 0, got %f", got)
	}
}

func TestScoreRange(t *testing.T) {
	scorer := NewScorer(DefaultScoreWeights())
	cases := []*models.BacktestResult{
		scoredResult(0.1, -0.5, -2, 0.9, 40),
		scoredResult(0.5, 0.1, 0.5, 0.15, 40),
		scoredResult(0.9, 2.0, 5, 0.02, 40),
	}
	for i, bt := range cases {
		got := scorer.Score(ScoreInputs{Backtest: bt})
		if got < 0 || got > 1 {
			t.Fatalf("case %d: score out of range: %f", i, got)
		}
	}
}

func TestScoreMonotoneInWinRate(t *testing.T) {
	scorer := NewScorer(DefaultScoreWeights())
	low := scorer.Score(ScoreInputs{Backtest: scoredResult(0.40, 0.2, 1.0, 0.10, 40)})
	high := scorer.Score(ScoreInputs{Backtest: scoredResult(0.70, 0.2, 1.0, 0.10, 40)})
	if high <= low {
		t.Fatalf("higher win rate should not lower the score: %f vs %f", high, low)
	}
}

func TestScoreMonotoneInSharpe(t *testing.T) {
	scorer := NewScorer(DefaultScoreWeights())
	low := scorer.Score(ScoreInputs{Backtest: scoredResult(0.55, 0.2, 0.5, 0.10, 40)})
	high := scorer.Score(ScoreInputs{Backtest: scoredResult(0.55, 0.2, 1.8, 0.10, 40)})
	if high <= low {
		t.Fatalf("higher sharpe should not lower the score: %f vs %f", high, low)
	}
}

func TestScorePenalizesDrawdown(t *testing.T) {
	scorer := NewScorer(DefaultScoreWeights())
	shallow := scorer.Score(ScoreInputs{Backtest: scoredResult(0.55, 0.3, 1.0, 0.05, 40)})
	deep := scorer.Score(ScoreInputs{Backtest: scoredResult(0.55, 0.3, 1.0, 0.45, 40)})
	if deep >= shallow {
		t.Fatalf("deeper drawdown should lower the score: %f vs %f", deep, shallow)
	}
}

func TestScoreNeutralSubstitution(t *testing.T) {
	scorer := NewScorer(DefaultScoreWeights())
	bt := scoredResult(0.55, 0.2, 1.0, 0.10, 40)

	bare := scorer.Score(ScoreInputs{Backtest: bt})

	strongEvidence := scorer.Score(ScoreInputs{
		Backtest:    bt,
		WalkForward: &models.WalkForwardResult{ConsistencyScore: 0.95, OverfittingRisk: models.OverfittingLow},
		MonteCarlo:  &models.MonteCarloResult{StdReturn: 0.01, ReturnPercentiles: map[string]float64{"p5": 0.05}},
	})
	weakEvidence := scorer.Score(ScoreInputs{
		Backtest:    bt,
		WalkForward: &models.WalkForwardResult{ConsistencyScore: 0.10, OverfittingRisk: models.OverfittingHigh},
		MonteCarlo:  &models.MonteCarloResult{StdReturn: 1.5, ReturnPercentiles: map[string]float64{"p5": -0.50}},
	})

	if strongEvidence <= bare {
		t.Fatalf("strong validation evidence should raise the score over neutral: %f vs %f", strongEvidence, bare)
	}
	if weakEvidence >= bare {
		t.Fatalf("weak validation evidence should lower the score under neutral: %f vs %f", weakEvidence, bare)
	}
}

func TestScoreHighOverfittingHalvesConsistency(t *testing.T) {
	bt := scoredResult(0.55, 0.2, 1.0, 0.10, 40)
	scorer := NewScorer(DefaultScoreWeights())

	low := scorer.Score(ScoreInputs{
		Backtest:    bt,
		WalkForward: &models.WalkForwardResult{ConsistencyScore: 0.8, OverfittingRisk: models.OverfittingLow},
	})
	high := scorer.Score(ScoreInputs{
		Backtest:    bt,
		WalkForward: &models.WalkForwardResult{ConsistencyScore: 0.8, OverfittingRisk: models.OverfittingHigh},
	})
	if high >= low {
		t.Fatalf("high overfitting risk should cut the consistency component: %f vs %f", high, low)
	}
}
