package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/backtest"
	"github.com/yourusername/evo-trader/internal/config"
	"github.com/yourusername/evo-trader/internal/marketdata"
	"github.com/yourusername/evo-trader/internal/memory"
	"github.com/yourusername/evo-trader/internal/metrics"
	"github.com/yourusername/evo-trader/internal/models"
	"github.com/yourusername/evo-trader/internal/notification"
	"github.com/yourusername/evo-trader/internal/repository"
)

// Robustness component weights
const (
	robustnessClassicWeight     = 0.40
	robustnessDiversityWeight   = 0.30
	robustnessStabilityWeight   = 0.20
	robustnessSensitivityWeight = 0.10
)

// IntakeCycle gatekeeps newly submitted strategies and continuously scores
// robustness for active ones. It runs independently of the evolution cycle
// and tolerates concurrent status writes through compare-and-swap updates.
type IntakeCycle struct {
	repos    *repository.Repositories
	provider marketdata.Provider
	engine   *backtest.Engine
	memory   *memory.Client
	notifier notification.Notifier
	cfg      config.IntakeConfig
	logger   *logrus.Logger
}

// NewIntakeCycle wires an intake cycle from its dependencies
func NewIntakeCycle(repos *repository.Repositories, provider marketdata.Provider, engine *backtest.Engine, memoryClient *memory.Client, notifier notification.Notifier, cfg config.IntakeConfig, logger *logrus.Logger) *IntakeCycle {
	if logger == nil {
		logger = logrus.New()
	}
	return &IntakeCycle{
		repos:    repos,
		provider: provider,
		engine:   engine,
		memory:   memoryClient,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes one intake pass: admit pending strategies, then refresh
// robustness for the active population.
func (c *IntakeCycle) Run(ctx context.Context) error {
	started := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues("intake").Observe(time.Since(started).Seconds())
	}()

	pending, err := c.repos.Strategy.GetByStatus(ctx, models.StatusPendingReview)
	if err != nil {
		return err
	}

	nonTerminal, err := c.repos.Strategy.GetNonTerminal(ctx)
	if err != nil {
		return err
	}
	fingerprints := c.buildFingerprintIndex(nonTerminal)

	for _, strategy := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.admit(ctx, strategy, fingerprints)
	}

	return c.refreshRobustness(ctx)
}

// buildFingerprintIndex maps ruleset fingerprints of non-terminal strategies
// to their ids, excluding the pending ones being decided this pass.
func (c *IntakeCycle) buildFingerprintIndex(strategies []*models.Strategy) map[string]*models.Strategy {
	index := make(map[string]*models.Strategy, len(strategies))
	for _, s := range strategies {
		if s.Status == models.StatusPendingReview {
			continue
		}
		fp := Fingerprint(s.Ruleset)
		if _, exists := index[fp]; !exists {
			index[fp] = s
		}
	}
	return index
}

// admit decides duplicate / rejected / experiment for one pending strategy
func (c *IntakeCycle) admit(ctx context.Context, strategy *models.Strategy, fingerprints map[string]*models.Strategy) {
	log := c.logger.WithField("strategy_id", strategy.ID)

	fp := Fingerprint(strategy.Ruleset)
	if existing, dup := fingerprints[fp]; dup {
		log.WithField("existing_id", existing.ID).Info("Duplicate strategy submitted")
		c.decide(ctx, strategy, models.StatusDuplicate, "identical ruleset already exists")
		return
	}

	decision, reason := c.sanityCheck(ctx, strategy)
	c.decide(ctx, strategy, decision, reason)
	if decision == models.StatusExperiment {
		// future submissions of the same ruleset this pass are duplicates
		fingerprints[fp] = strategy
	}
}

// sanityCheck runs a cheap short-window backtest. The same strategy with the
// same data always yields the same decision.
func (c *IntakeCycle) sanityCheck(ctx context.Context, strategy *models.Strategy) (models.StrategyStatus, string) {
	if err := strategy.Ruleset.Validate(); err != nil {
		return models.StatusRejected, "malformed ruleset"
	}

	symbol := strategy.Ruleset.Symbols[0]
	candles, err := c.provider.GetCandles(ctx, symbol, strategy.Ruleset.Timeframe, c.cfg.SanityCandleLimit, time.Time{}, time.Time{})
	if err != nil || len(candles) == 0 {
		// provider failure is not the strategy's fault; leave it pending
		c.logger.WithFields(logrus.Fields{
			"strategy_id": strategy.ID,
			"symbol":      symbol,
			"error":       err,
		}).Warn("Sanity backtest has no data, leaving strategy pending")
		return models.StatusPendingReview, "no data available"
	}

	outcome := c.engine.Run(ctx, strategy, symbol, candles)
	switch outcome.Kind {
	case backtest.OutcomeInvalidRuleset:
		metrics.RecordBacktestRun("sanity", "invalid_ruleset")
		return models.StatusRejected, "malformed ruleset"
	case backtest.OutcomeInsufficientData:
		metrics.RecordBacktestRun("sanity", "insufficient_data")
		return models.StatusPendingReview, "insufficient data"
	}
	metrics.RecordBacktestRun("sanity", "ok")

	m := outcome.Result.Metrics
	switch {
	case !backtest.IsFinite(m):
		return models.StatusRejected, "non-finite metrics"
	case m.TotalTrades < c.cfg.MinTrades:
		return models.StatusRejected, "too few trades in sanity window"
	case m.MaxDrawdown > c.cfg.MaxDrawdown:
		return models.StatusRejected, "drawdown exceeds intake ceiling"
	}
	return models.StatusExperiment, "passed sanity backtest"
}

func (c *IntakeCycle) decide(ctx context.Context, strategy *models.Strategy, next models.StrategyStatus, reason string) {
	if next == models.StatusPendingReview {
		return
	}

	err := c.repos.Strategy.UpdateStatus(ctx, strategy.ID, models.StatusPendingReview, next, nil)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"strategy_id": strategy.ID,
			"error":       err,
		}).Warn("Intake decision not applied")
		return
	}

	metrics.RecordIntakeDecision(intakeDecisionLabel(next))
	metrics.RecordTransition(string(models.StatusPendingReview), string(next))
	c.notifier.NotifyTransition(strategy, models.StatusPendingReview, next, reason)
	c.memory.RecordEvent(ctx, memory.EventStatusTransition, map[string]interface{}{
		"strategy_id": strategy.ID,
		"from":        models.StatusPendingReview,
		"to":          next,
		"reason":      reason,
	})
}

func intakeDecisionLabel(status models.StrategyStatus) string {
	switch status {
	case models.StatusExperiment:
		return "accepted"
	case models.StatusDuplicate:
		return "duplicate"
	default:
		return "rejected"
	}
}

// refreshRobustness recomputes the robustness score for experiments and
// candidates. Experiments that keep failing the robustness floor after the
// minimum number of evaluation cycles are discarded.
func (c *IntakeCycle) refreshRobustness(ctx context.Context) error {
	strategies, err := c.repos.Strategy.GetByStatus(ctx, models.StatusExperiment, models.StatusCandidate)
	if err != nil {
		return err
	}

	for _, strategy := range strategies {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if strategy.LastBacktestAt == nil {
			continue
		}

		result, err := c.repos.Backtest.GetLatestByStrategy(ctx, strategy.ID)
		if err != nil {
			continue
		}

		score := c.robustness(ctx, strategy, result)
		strategy.Robustness = &score
		strategy.RobustnessCycles++

		if strategy.Status == models.StatusExperiment &&
			strategy.RobustnessCycles >= c.cfg.MinEvalCycles &&
			score < c.cfg.MinRobustness {
			strategy.Status = models.StatusDiscarded
			c.notifier.NotifyTransition(strategy, models.StatusExperiment, models.StatusDiscarded,
				"consistently failed robustness evaluation")
			metrics.RecordTransition(string(models.StatusExperiment), string(models.StatusDiscarded))
		}

		if err := c.repos.Strategy.Update(ctx, strategy); err != nil {
			c.logger.WithFields(logrus.Fields{
				"strategy_id": strategy.ID,
				"error":       err,
			}).Warn("Failed to persist robustness score")
		}
	}
	return nil
}

// robustness blends classic metrics, cross-symbol diversity, in/out-of-sample
// stability, and a parameter-sensitivity proxy. Components without evidence
// contribute a neutral 0.5.
func (c *IntakeCycle) robustness(ctx context.Context, strategy *models.Strategy, result *models.BacktestResult) float64 {
	classic := classicComponent(result.Metrics)
	diversity := diversityComponent(strategy.SymbolPerformance)
	stability := stabilityComponent(result)
	sensitivity := c.sensitivityComponent(ctx, strategy)

	score := robustnessClassicWeight*classic +
		robustnessDiversityWeight*diversity +
		robustnessStabilityWeight*stability +
		robustnessSensitivityWeight*sensitivity

	c.logger.WithFields(logrus.Fields{
		"strategy_id": strategy.ID,
		"classic":     classic,
		"diversity":   diversity,
		"stability":   stability,
		"sensitivity": sensitivity,
		"robustness":  score,
	}).Debug("Robustness computed")

	return score
}

func classicComponent(m models.Metrics) float64 {
	sharpe := m.SharpeRatio / 2
	if sharpe < 0 {
		sharpe = 0
	} else if sharpe > 1 {
		sharpe = 1
	}
	pf := m.ProfitFactor / 2
	if pf > 1 {
		pf = 1
	}
	return 0.4*m.WinRate + 0.3*pf + 0.3*sharpe
}

// diversityComponent is the fraction of tested symbols with positive return
func diversityComponent(perf map[string]float64) float64 {
	if len(perf) < 2 {
		return 0.5
	}
	positive := 0
	for _, ret := range perf {
		if ret > 0 {
			positive++
		}
	}
	return float64(positive) / float64(len(perf))
}

// stabilityComponent compares train and test win rates from the split run
func stabilityComponent(result *models.BacktestResult) float64 {
	if result.TrainMetrics == nil || result.TestMetrics == nil {
		return 0.5
	}
	gap := result.TrainMetrics.WinRate - result.TestMetrics.WinRate
	if gap < 0 {
		gap = -gap
	}
	score := 1 - gap*2
	if score < 0 {
		return 0
	}
	return score
}

// sensitivityComponent proxies parameter sensitivity through the dispersion
// of recent backtest returns: a strategy whose results swing wildly between
// evaluations is treated as parameter-fragile.
func (c *IntakeCycle) sensitivityComponent(ctx context.Context, strategy *models.Strategy) float64 {
	since := time.Now().Add(-30 * 24 * time.Hour)
	results, err := c.repos.Backtest.GetByStrategy(ctx, strategy.ID, since)
	if err != nil || len(results) < 2 {
		return 0.5
	}

	returns := make([]float64, len(results))
	for i, r := range results {
		returns[i] = r.Metrics.TotalReturn
	}
	return 1.0 / (1.0 + backtest.CoefficientOfVariation(returns))
}
