package lifecycle

// Thresholds gates every status transition. All values are explicit so a
// promotion or demotion can be reconstructed from logs after the fact.
//
// Demotion thresholds are derived from promotion thresholds minus the
// hysteresis band, so a strategy sitting exactly at a promotion floor is
// never demoted by re-evaluation noise.
type Thresholds struct {
	// experiment -> candidate
	CandidateMinTrades  int
	CandidateMinWinRate float64
	CandidateMaxDD      float64

	// candidate -> proposable, high-win path
	HighWinMinWinRate float64
	HighWinMinSharpe  float64

	// candidate -> proposable, high-Sharpe path
	HighSharpeMinWinRate float64
	HighSharpeMinSharpe  float64

	// candidate -> proposable, shared floors
	ProposableMinProfitFactor float64
	ProposableMaxDD           float64
	ProposableMinScore        float64
	ProposableMinOOSWinRate   float64
	ProposableMinRobustness   float64

	// hysteresis band subtracted from promotion floors on demotion checks
	HysteresisWinRate float64
	HysteresisSharpe  float64
	HysteresisDD      float64

	// discard
	MaxEvolutionAttempts int
	ProvenLoserMinTrades int
	StaleAttemptLimit    int
}

// DefaultThresholds returns the production gate values
func DefaultThresholds() Thresholds {
	return Thresholds{
		CandidateMinTrades:  30,
		CandidateMinWinRate: 0.55,
		CandidateMaxDD:      0.25,

		HighWinMinWinRate: 0.80,
		HighWinMinSharpe:  1.0,

		HighSharpeMinWinRate: 0.55,
		HighSharpeMinSharpe:  1.5,

		ProposableMinProfitFactor: 1.3,
		ProposableMaxDD:           0.20,
		ProposableMinScore:        0.60,
		ProposableMinOOSWinRate:   0.50,
		ProposableMinRobustness:   0.75,

		HysteresisWinRate: 0.10,
		HysteresisSharpe:  0.3,
		HysteresisDD:      0.05,

		MaxEvolutionAttempts: 10,
		ProvenLoserMinTrades: 50,
		StaleAttemptLimit:    5,
	}
}
