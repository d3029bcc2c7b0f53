package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yourusername/evo-trader/internal/models"
)

func dailyStrategy() *models.Strategy {
	s := alwaysEnterStrategy()
	s.Ruleset.Timeframe = "1d"
	return s
}

func TestWindowsRolling(t *testing.T) {
	v := NewValidator(NewEngine(DefaultConfig(), quietLogger()), DefaultWalkForwardConfig(), quietLogger())
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(149 * 24 * time.Hour)

	windows := v.windows(start, end)
	if len(windows) != 4 {
		t.Fatalf("expected 4 windows over 149 days, got %d", len(windows))
	}

	first := windows[0]
	if !first.inStart.Equal(start) {
		t.Fatalf("first window must start at history start")
	}
	if first.inEnd.Sub(first.inStart) != 60*24*time.Hour {
		t.Fatalf("in-sample span should be 60 days, got %v", first.inEnd.Sub(first.inStart))
	}
	if !first.outStart.Equal(first.inEnd) {
		t.Fatalf("out-of-sample must start where in-sample ends")
	}
	if first.outEnd.Sub(first.outStart) != 20*24*time.Hour {
		t.Fatalf("out-of-sample span should be 20 days, got %v", first.outEnd.Sub(first.outStart))
	}
	if windows[1].inStart.Sub(windows[0].inStart) != 20*24*time.Hour {
		t.Fatalf("windows should roll forward by the step size")
	}
}

func TestWalkForwardRun(t *testing.T) {
	engine := NewEngine(DefaultConfig(), quietLogger())
	v := NewValidator(engine, DefaultWalkForwardConfig(), quietLogger())
	candles := testCandles(150, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 24*time.Hour, func(i int) float64 {
		return 100 + float64(i)*0.2
	})

	result, err := v.Run(context.Background(), dailyStrategy(), "AAPL", candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Periods) != 4 {
		t.Fatalf("expected 4 periods, got %d", len(result.Periods))
	}
	for i, p := range result.Periods {
		if p.InSample == nil || p.OutSample == nil {
			t.Fatalf("period %d missing a result", i)
		}
		if !p.OutSampleStart.Equal(p.InSampleEnd) {
			t.Fatalf("period %d windows overlap", i)
		}
	}
	if result.ConsistencyScore <= 0 || result.ConsistencyScore > 1 {
		t.Fatalf("consistency score out of range: %f", result.ConsistencyScore)
	}
	switch result.OverfittingRisk {
	case models.OverfittingLow, models.OverfittingMedium, models.OverfittingHigh:
	default:
		t.Fatalf("unexpected overfitting risk %q", result.OverfittingRisk)
	}
}

func TestWalkForwardTooFewPeriods(t *testing.T) {
	engine := NewEngine(DefaultConfig(), quietLogger())
	v := NewValidator(engine, DefaultWalkForwardConfig(), quietLogger())
	candles := testCandles(70, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 24*time.Hour, func(int) float64 { return 100 })

	_, err := v.Run(context.Background(), dailyStrategy(), "AAPL", candles)
	if !errors.Is(err, models.ErrTooFewPeriods) {
		t.Fatalf("expected ErrTooFewPeriods, got %v", err)
	}
}

func TestSliceCandles(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := testCandles(10, start, time.Hour, func(int) float64 { return 100 })

	slice := sliceCandles(candles, start.Add(2*time.Hour), start.Add(5*time.Hour))
	if len(slice) != 3 {
		t.Fatalf("expected half-open [from, to) slice of 3, got %d", len(slice))
	}
	if !slice[0].Time.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("slice should include the from boundary")
	}
}
