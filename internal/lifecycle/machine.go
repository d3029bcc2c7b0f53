package lifecycle

import (
	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/models"
)

// Inputs is the evidence a transition decision is made from. OutSampleWinRate
// and Robustness are nil when that evidence has not been produced yet; a
// missing out-of-sample win rate does not block promotion, a missing
// robustness score does.
type Inputs struct {
	Status            models.StrategyStatus
	Trades            int
	WinRate           float64
	Sharpe            float64
	ProfitFactor      float64
	MaxDrawdown       float64
	Score             float64
	OutSampleWinRate  *float64
	Robustness        *float64
	EvolutionAttempts int
	StaleAttempts     int
}

// Decision records a transition outcome with the reason it was taken
type Decision struct {
	From    models.StrategyStatus
	To      models.StrategyStatus
	Changed bool
	Reason  string
}

// Machine decides lifecycle transitions from numeric thresholds only.
// It never touches storage; callers persist the decision.
type Machine struct {
	thresholds Thresholds
	logger     *logrus.Logger
}

// NewMachine creates a lifecycle state machine
func NewMachine(thresholds Thresholds, logger *logrus.Logger) *Machine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Machine{thresholds: thresholds, logger: logger}
}

// Evaluate decides the next status for a strategy. Discard rules run first
// and apply from any non-terminal state. Terminal states never transition.
func (m *Machine) Evaluate(in Inputs) Decision {
	decision := m.evaluate(in)

	m.logger.WithFields(logrus.Fields{
		"from":          decision.From,
		"to":            decision.To,
		"reason":        decision.Reason,
		"trades":        in.Trades,
		"win_rate":      in.WinRate,
		"sharpe":        in.Sharpe,
		"profit_factor": in.ProfitFactor,
		"max_drawdown":  in.MaxDrawdown,
		"score":         in.Score,
		"attempts":      in.EvolutionAttempts,
	}).Info("Lifecycle evaluation")

	return decision
}

func (m *Machine) evaluate(in Inputs) Decision {
	t := m.thresholds

	if in.Status.IsTerminal() {
		return unchanged(in.Status, "terminal status")
	}

	if in.Sharpe < 0 && in.Trades >= t.ProvenLoserMinTrades {
		return transition(in.Status, models.StatusDiscarded, "proven loser: negative Sharpe on large sample")
	}
	if in.EvolutionAttempts >= t.MaxEvolutionAttempts {
		return transition(in.Status, models.StatusDiscarded, "evolution attempt limit reached")
	}
	if in.StaleAttempts >= t.StaleAttemptLimit {
		return transition(in.Status, models.StatusDiscarded, "no score improvement across attempts")
	}

	switch in.Status {
	case models.StatusExperiment:
		if m.meetsCandidate(in) {
			return transition(in.Status, models.StatusCandidate, "candidate floors met")
		}
	case models.StatusCandidate:
		if ok, path := m.meetsProposable(in); ok {
			return transition(in.Status, models.StatusProposable, "proposable via "+path)
		}
		if m.belowCandidateBand(in) {
			return transition(in.Status, models.StatusExperiment, "fell below candidate hysteresis band")
		}
	case models.StatusProposable:
		if m.belowProposableBand(in) {
			return transition(in.Status, models.StatusCandidate, "fell below proposable hysteresis band")
		}
	}

	return unchanged(in.Status, "thresholds unchanged")
}

func (m *Machine) meetsCandidate(in Inputs) bool {
	t := m.thresholds
	return in.Trades >= t.CandidateMinTrades &&
		in.WinRate >= t.CandidateMinWinRate &&
		in.MaxDrawdown <= t.CandidateMaxDD
}

// meetsProposable checks both promotion paths plus the shared floors and the
// robustness gate. Returns the satisfied path name for the decision log.
func (m *Machine) meetsProposable(in Inputs) (bool, string) {
	t := m.thresholds

	path := ""
	switch {
	case in.WinRate >= t.HighWinMinWinRate && in.Sharpe >= t.HighWinMinSharpe:
		path = "high-win path"
	case in.WinRate >= t.HighSharpeMinWinRate && in.Sharpe >= t.HighSharpeMinSharpe:
		path = "high-sharpe path"
	default:
		return false, ""
	}

	if in.ProfitFactor < t.ProposableMinProfitFactor ||
		in.MaxDrawdown > t.ProposableMaxDD ||
		in.Score < t.ProposableMinScore {
		return false, ""
	}
	if in.OutSampleWinRate != nil && *in.OutSampleWinRate < t.ProposableMinOOSWinRate {
		return false, ""
	}
	if in.Robustness == nil || *in.Robustness < t.ProposableMinRobustness {
		return false, ""
	}
	return true, path
}

func (m *Machine) belowCandidateBand(in Inputs) bool {
	t := m.thresholds
	return in.WinRate < t.CandidateMinWinRate-t.HysteresisWinRate ||
		in.MaxDrawdown > t.CandidateMaxDD+t.HysteresisDD
}

// belowProposableBand demotes only when neither promotion path holds even
// with the hysteresis band applied, or a shared floor is breached by more
// than the band.
func (m *Machine) belowProposableBand(in Inputs) bool {
	t := m.thresholds

	highWin := in.WinRate >= t.HighWinMinWinRate-t.HysteresisWinRate &&
		in.Sharpe >= t.HighWinMinSharpe-t.HysteresisSharpe
	highSharpe := in.WinRate >= t.HighSharpeMinWinRate-t.HysteresisWinRate &&
		in.Sharpe >= t.HighSharpeMinSharpe-t.HysteresisSharpe
	if !highWin && !highSharpe {
		return true
	}

	return in.MaxDrawdown > t.ProposableMaxDD+t.HysteresisDD ||
		in.ProfitFactor < t.ProposableMinProfitFactor-0.2 ||
		in.Score < t.ProposableMinScore-0.10
}

func transition(from, to models.StrategyStatus, reason string) Decision {
	return Decision{From: from, To: to, Changed: from != to, Reason: reason}
}

func unchanged(status models.StrategyStatus, reason string) Decision {
	return Decision{From: status, To: status, Changed: false, Reason: reason}
}
