package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategySnapshotIsolation(t *testing.T) {
	score := 0.5
	robustness := 0.8
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	original := &Strategy{
		ID:     uuid.New(),
		Name:   "snapshot-source",
		Status: StatusExperiment,
		Ruleset: Ruleset{
			Symbols:   []string{"AAPL"},
			Timeframe: "1h",
			Direction: DirectionLong,
			Entry:     []Condition{{Indicator: IndicatorSMA, Period: 20, Operator: OpGreaterThan, Value: 100}},
		},
		Parameters:        map[string]float64{"threshold": 1.5},
		Score:             &score,
		Robustness:        &robustness,
		LastBacktestAt:    &at,
		SymbolPerformance: map[string]float64{"AAPL": 0.1},
	}

	copied := original.Snapshot()

	newScore := 0.9
	original.Score = &newScore
	*original.Robustness = 0.1
	original.Status = StatusDiscarded
	original.Ruleset.Symbols[0] = "MSFT"
	original.Ruleset.Entry[0].Value = 999
	original.Parameters["threshold"] = 9.9
	original.SymbolPerformance["AAPL"] = -1
	*original.LastBacktestAt = at.Add(24 * time.Hour)

	require.NotNil(t, copied.Score)
	assert.Equal(t, 0.5, *copied.Score)
	assert.Equal(t, 0.8, *copied.Robustness)
	assert.Equal(t, StatusExperiment, copied.Status)
	assert.Equal(t, "AAPL", copied.Ruleset.Symbols[0])
	assert.Equal(t, float64(100), copied.Ruleset.Entry[0].Value)
	assert.Equal(t, 1.5, copied.Parameters["threshold"])
	assert.Equal(t, 0.1, copied.SymbolPerformance["AAPL"])
	assert.True(t, copied.LastBacktestAt.Equal(at))
}

func TestStrategySnapshotNilOptionalFields(t *testing.T) {
	original := &Strategy{ID: uuid.New(), Name: "bare"}
	copied := original.Snapshot()

	assert.Nil(t, copied.Score)
	assert.Nil(t, copied.Robustness)
	assert.Nil(t, copied.LastBacktestAt)
	assert.Nil(t, copied.SymbolPerformance)
}
