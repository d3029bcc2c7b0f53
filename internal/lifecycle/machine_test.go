package lifecycle

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/evo-trader/internal/models"
)

func newTestMachine() *Machine {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewMachine(DefaultThresholds(), logger)
}

func ptr(v float64) *float64 { return &v }

func TestPromoteExperimentToCandidate(t *testing.T) {
	m := newTestMachine()
	d := m.Evaluate(Inputs{
		Status:      models.StatusExperiment,
		Trades:      35,
		WinRate:     0.60,
		Sharpe:      0.8,
		MaxDrawdown: 0.12,
	})
	assert.True(t, d.Changed)
	assert.Equal(t, models.StatusCandidate, d.To)
}

func TestExperimentHoldsBelowFloors(t *testing.T) {
	m := newTestMachine()
	cases := []Inputs{
		{Status: models.StatusExperiment, Trades: 20, WinRate: 0.60, MaxDrawdown: 0.12}, // too few trades
		{Status: models.StatusExperiment, Trades: 35, WinRate: 0.50, MaxDrawdown: 0.12}, // win rate low
		{Status: models.StatusExperiment, Trades: 35, WinRate: 0.60, MaxDrawdown: 0.30}, // drawdown deep
	}
	for i, in := range cases {
		d := m.Evaluate(in)
		assert.False(t, d.Changed, "case %d", i)
		assert.Equal(t, models.StatusExperiment, d.To, "case %d", i)
	}
}

func TestPromoteCandidateHighWinPath(t *testing.T) {
	m := newTestMachine()
	d := m.Evaluate(Inputs{
		Status:           models.StatusCandidate,
		Trades:           60,
		WinRate:          0.85,
		Sharpe:           1.2,
		ProfitFactor:     1.8,
		MaxDrawdown:      0.08,
		Score:            0.75,
		OutSampleWinRate: ptr(0.62),
		Robustness:       ptr(0.80),
	})
	require.True(t, d.Changed)
	assert.Equal(t, models.StatusProposable, d.To)
	assert.True(t, strings.Contains(d.Reason, "high-win"), "reason: %s", d.Reason)
}

func TestPromoteCandidateHighSharpePath(t *testing.T) {
	m := newTestMachine()
	d := m.Evaluate(Inputs{
		Status:           models.StatusCandidate,
		Trades:           70,
		WinRate:          0.58,
		Sharpe:           1.6,
		ProfitFactor:     1.5,
		MaxDrawdown:      0.10,
		Score:            0.68,
		OutSampleWinRate: ptr(0.55),
		Robustness:       ptr(0.78),
	})
	require.True(t, d.Changed)
	assert.Equal(t, models.StatusProposable, d.To)
	assert.True(t, strings.Contains(d.Reason, "high-sharpe"), "reason: %s", d.Reason)
}

func TestPromotionRequiresRobustness(t *testing.T) {
	m := newTestMachine()
	in := Inputs{
		Status:       models.StatusCandidate,
		Trades:       60,
		WinRate:      0.85,
		Sharpe:       1.2,
		ProfitFactor: 1.8,
		MaxDrawdown:  0.08,
		Score:        0.75,
	}

	d := m.Evaluate(in)
	assert.False(t, d.Changed, "missing robustness must block promotion")

	in.Robustness = ptr(0.60)
	d = m.Evaluate(in)
	assert.False(t, d.Changed, "low robustness must block promotion")

	in.Robustness = ptr(0.80)
	d = m.Evaluate(in)
	assert.True(t, d.Changed)
	assert.Equal(t, models.StatusProposable, d.To)
}

func TestPromotionOOSGate(t *testing.T) {
	m := newTestMachine()
	in := Inputs{
		Status:           models.StatusCandidate,
		Trades:           60,
		WinRate:          0.85,
		Sharpe:           1.2,
		ProfitFactor:     1.8,
		MaxDrawdown:      0.08,
		Score:            0.75,
		Robustness:       ptr(0.80),
		OutSampleWinRate: ptr(0.40),
	}

	d := m.Evaluate(in)
	assert.False(t, d.Changed, "weak out-of-sample win rate must block promotion")

	in.OutSampleWinRate = nil
	d = m.Evaluate(in)
	assert.True(t, d.Changed, "absent out-of-sample evidence does not block promotion")
}

func TestDiscardProvenLoser(t *testing.T) {
	m := newTestMachine()
	d := m.Evaluate(Inputs{
		Status:  models.StatusCandidate,
		Trades:  80,
		WinRate: 0.40,
		Sharpe:  -0.5,
	})
	require.True(t, d.Changed)
	assert.Equal(t, models.StatusDiscarded, d.To)
}

func TestDiscardAttemptLimits(t *testing.T) {
	m := newTestMachine()

	d := m.Evaluate(Inputs{Status: models.StatusExperiment, EvolutionAttempts: 10})
	assert.Equal(t, models.StatusDiscarded, d.To, "attempt cap")

	d = m.Evaluate(Inputs{Status: models.StatusExperiment, StaleAttempts: 5})
	assert.Equal(t, models.StatusDiscarded, d.To, "stale cap")
}

func TestNegativeSharpeSmallSampleSurvives(t *testing.T) {
	m := newTestMachine()
	d := m.Evaluate(Inputs{
		Status: models.StatusExperiment,
		Trades: 20,
		Sharpe: -0.5,
	})
	assert.False(t, d.Changed, "a small losing sample is not yet a proven loser")
}

func TestHysteresisPreventsFlapping(t *testing.T) {
	m := newTestMachine()

	// Promoted on the high-win path, then re-evaluated just under the
	// promotion floors but inside the hysteresis band.
	in := Inputs{
		Status:       models.StatusProposable,
		Trades:       60,
		WinRate:      0.75, // floor 0.80, band 0.10
		Sharpe:       0.9,  // floor 1.0, band 0.3
		ProfitFactor: 1.4,
		MaxDrawdown:  0.22, // floor 0.20, band 0.05
		Score:        0.58,
		Robustness:   ptr(0.80),
	}
	d := m.Evaluate(in)
	assert.False(t, d.Changed, "inside the hysteresis band the status must hold")

	in.WinRate = 0.40
	in.Sharpe = 0.3
	d = m.Evaluate(in)
	require.True(t, d.Changed, "far below the band the strategy demotes")
	assert.Equal(t, models.StatusCandidate, d.To)
}

func TestCandidateDemotesBelowBand(t *testing.T) {
	m := newTestMachine()
	d := m.Evaluate(Inputs{
		Status:      models.StatusCandidate,
		Trades:      40,
		WinRate:     0.40, // below 0.55 - 0.10
		Sharpe:      0.5,
		MaxDrawdown: 0.10,
	})
	require.True(t, d.Changed)
	assert.Equal(t, models.StatusExperiment, d.To)
}

func TestTerminalStatusesNeverTransition(t *testing.T) {
	m := newTestMachine()
	for _, status := range []models.StrategyStatus{models.StatusDiscarded, models.StatusRejected, models.StatusDuplicate} {
		d := m.Evaluate(Inputs{
			Status:       status,
			Trades:       100,
			WinRate:      0.90,
			Sharpe:       3.0,
			ProfitFactor: 2.5,
			Score:        0.95,
			Robustness:   ptr(0.95),
		})
		assert.False(t, d.Changed, "status %s", status)
		assert.Equal(t, status, d.To, "status %s", status)
	}
}
