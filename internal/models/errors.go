package models

import "errors"

// Custom errors
var (
	ErrNotFound             = errors.New("record not found")
	ErrDuplicateKey         = errors.New("duplicate key violation")
	ErrInvalidID            = errors.New("invalid ID format")
	ErrInvalidRuleset       = errors.New("ruleset has no entry or exit rules")
	ErrInsufficientData     = errors.New("insufficient candle data")
	ErrStatusConflict       = errors.New("strategy status changed concurrently")
	ErrUnknownTimeframe     = errors.New("unknown timeframe")
	ErrTooFewPeriods        = errors.New("walk-forward range yields too few periods")
	ErrStrategyNameRequired = errors.New("strategy name is required")
)
