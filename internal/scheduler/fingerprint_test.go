package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/evo-trader/internal/models"
)

func TestFingerprintStableAcrossAliases(t *testing.T) {
	// The same strategy submitted through two different field-name
	// conventions must hash identically after normalization.
	a, err := models.NormalizeRuleset(map[string]interface{}{
		"symbols":   []interface{}{"aapl", "MSFT"},
		"timeframe": "1h",
		"direction": "long",
		"entry": []interface{}{
			map[string]interface{}{"indicator": "rsi", "period": 14.0, "operator": "lt", "value": 30.0},
			map[string]interface{}{"indicator": "sma", "period": 20.0, "operator": "gt", "value": 100.0},
		},
		"exit": map[string]interface{}{"stop_loss_pct": 0.05},
	})
	require.NoError(t, err)

	b, err := models.NormalizeRuleset(map[string]interface{}{
		"instruments": []interface{}{"MSFT", "AAPL"},
		"interval":    "1H",
		"entry_conditions": []interface{}{
			map[string]interface{}{"ind": "simple_moving_average", "window": 20.0, "comparison": "above", "threshold": 100.0},
			map[string]interface{}{"ind": "relative_strength_index", "length": 14.0, "op": "below", "level": 30.0},
		},
		"exit_rules": map[string]interface{}{"sl": 0.05},
	})
	require.NoError(t, err)

	assert.Equal(t, Fingerprint(*a), Fingerprint(*b))
}

func TestFingerprintSymbolOrderAndCase(t *testing.T) {
	base := models.Ruleset{
		Symbols:   []string{"AAPL", "MSFT"},
		Timeframe: "1h",
		Direction: models.DirectionLong,
		Entry:     []models.Condition{{Indicator: models.IndicatorPrice, Operator: models.OpGreaterThan, Value: 100}},
	}
	reordered := base
	reordered.Symbols = []string{"msft", " aapl "}

	assert.Equal(t, Fingerprint(base), Fingerprint(reordered))
}

func TestFingerprintDiscriminates(t *testing.T) {
	base := models.Ruleset{
		Symbols:   []string{"AAPL"},
		Timeframe: "1h",
		Direction: models.DirectionLong,
		Entry:     []models.Condition{{Indicator: models.IndicatorPrice, Operator: models.OpGreaterThan, Value: 100}},
	}

	changedValue := base
	changedValue.Entry = []models.Condition{{Indicator: models.IndicatorPrice, Operator: models.OpGreaterThan, Value: 101}}
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changedValue))

	changedTimeframe := base
	changedTimeframe.Timeframe = "4h"
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changedTimeframe))

	changedDirection := base
	changedDirection.Direction = models.DirectionShort
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changedDirection))

	changedExit := base
	changedExit.Exit.StopLossPct = 0.05
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changedExit))
}
