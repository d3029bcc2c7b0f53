package backtest

import "github.com/yourusername/evo-trader/internal/models"

// OutcomeKind discriminates simulation outcomes. Batch processing switches on
// the kind instead of relying on error control flow, so one bad strategy can
// never abort a cycle.
type OutcomeKind int

// Outcome kinds
const (
	OutcomeOK OutcomeKind = iota
	OutcomeInsufficientData
	OutcomeInvalidRuleset
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeInsufficientData:
		return "insufficient_data"
	case OutcomeInvalidRuleset:
		return "invalid_ruleset"
	default:
		return "unknown"
	}
}

// Outcome is the variant result of a simulation run
type Outcome struct {
	Kind   OutcomeKind
	Result *models.BacktestResult
	Reason string
}

// Ok wraps a successful result
func Ok(result *models.BacktestResult) Outcome {
	return Outcome{Kind: OutcomeOK, Result: result}
}

// InsufficientData marks a run skipped for lack of candles
func InsufficientData(reason string) Outcome {
	return Outcome{Kind: OutcomeInsufficientData, Reason: reason}
}

// InvalidRuleset marks a run rejected for a malformed ruleset
func InvalidRuleset(reason string) Outcome {
	return Outcome{Kind: OutcomeInvalidRuleset, Reason: reason}
}

// IsOK reports whether the outcome carries a usable result
func (o Outcome) IsOK() bool {
	return o.Kind == OutcomeOK && o.Result != nil
}
