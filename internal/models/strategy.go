package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StrategyStatus is the lifecycle state of a strategy
type StrategyStatus string

// Lifecycle states
const (
	StatusPendingReview StrategyStatus = "pending_review"
	StatusDuplicate     StrategyStatus = "duplicate"
	StatusRejected      StrategyStatus = "rejected"
	StatusExperiment    StrategyStatus = "experiment"
	StatusCandidate     StrategyStatus = "candidate"
	StatusProposable    StrategyStatus = "proposable"
	StatusDiscarded     StrategyStatus = "discarded"
)

// IsTerminal reports whether the status admits no further transitions
func (s StrategyStatus) IsTerminal() bool {
	switch s {
	case StatusDuplicate, StatusRejected, StatusDiscarded:
		return true
	}
	return false
}

// Strategy represents an evolving trading strategy
type Strategy struct {
	ID                uuid.UUID          `db:"id" json:"id" validate:"required"`
	UserID            uuid.UUID          `db:"user_id" json:"user_id"`
	Name              string             `db:"name" json:"name" validate:"required,min=1,max=255"`
	Ruleset           Ruleset            `db:"ruleset" json:"ruleset"`
	Parameters        map[string]float64 `db:"parameters" json:"parameters"`
	Status            StrategyStatus     `db:"status" json:"status"`
	Score             *float64           `db:"score" json:"score"`
	EvolutionAttempts int                `db:"evolution_attempts" json:"evolution_attempts"`
	BestScore         float64            `db:"best_score" json:"best_score"`
	StaleAttempts     int                `db:"stale_attempts" json:"stale_attempts"`
	Robustness        *float64           `db:"robustness" json:"robustness,omitempty"`
	RobustnessCycles  int                `db:"robustness_cycles" json:"robustness_cycles"`
	LastBacktestAt    *time.Time         `db:"last_backtest_at" json:"last_backtest_at"`
	LastBacktest      json.RawMessage    `db:"last_backtest" json:"last_backtest,omitempty"`
	SymbolPerformance map[string]float64 `db:"symbol_performance" json:"symbol_performance,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`
}

// Validate performs basic validation on the strategy
func (s *Strategy) Validate() error {
	if s.Name == "" {
		return ErrStrategyNameRequired
	}
	return s.Ruleset.Validate()
}

// Param returns a numeric parameter with a fallback default
func (s *Strategy) Param(key string, fallback float64) float64 {
	if s.Parameters == nil {
		return fallback
	}
	if v, ok := s.Parameters[key]; ok {
		return v
	}
	return fallback
}

// Snapshot returns a copy that is safe to read while the original is being
// updated. Pointer and reference fields are duplicated so neither side
// observes the other's writes.
func (s *Strategy) Snapshot() *Strategy {
	out := *s
	out.Ruleset = s.Ruleset.Clone()
	out.Parameters = s.CloneParameters()
	out.LastBacktest = append(json.RawMessage(nil), s.LastBacktest...)
	if s.Score != nil {
		v := *s.Score
		out.Score = &v
	}
	if s.Robustness != nil {
		v := *s.Robustness
		out.Robustness = &v
	}
	if s.LastBacktestAt != nil {
		t := *s.LastBacktestAt
		out.LastBacktestAt = &t
	}
	if s.SymbolPerformance != nil {
		out.SymbolPerformance = make(map[string]float64, len(s.SymbolPerformance))
		for k, v := range s.SymbolPerformance {
			out.SymbolPerformance[k] = v
		}
	}
	return &out
}

// CloneParameters returns a copy of the parameter map
func (s *Strategy) CloneParameters() map[string]float64 {
	out := make(map[string]float64, len(s.Parameters))
	for k, v := range s.Parameters {
		out[k] = v
	}
	return out
}
