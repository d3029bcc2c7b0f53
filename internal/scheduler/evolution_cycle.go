package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/backtest"
	"github.com/yourusername/evo-trader/internal/config"
	"github.com/yourusername/evo-trader/internal/evolution"
	"github.com/yourusername/evo-trader/internal/lifecycle"
	"github.com/yourusername/evo-trader/internal/memory"
	"github.com/yourusername/evo-trader/internal/metrics"
	"github.com/yourusername/evo-trader/internal/models"
	"github.com/yourusername/evo-trader/internal/notification"
	"github.com/yourusername/evo-trader/internal/repository"
)

// EvolutionCycle runs one recurring evolution pass: select and prioritize
// strategies, evaluate a capped batch through a worker pool, apply lifecycle
// decisions, spawn mutations, and enforce the population cap.
type EvolutionCycle struct {
	repos     *repository.Repositories
	evaluator *Evaluator
	machine   *lifecycle.Machine
	mutator   *evolution.Mutator
	memory    *memory.Client
	notifier  notification.Notifier
	cfg       config.EvolutionConfig
	// provider request cap per cycle; zero derives one from the batch size
	maxRequests int
	logger      *logrus.Logger

	// serializes population-cap enforcement and child persistence
	populationMu sync.Mutex
}

// NewEvolutionCycle wires an evolution cycle from its dependencies.
// maxRequests caps provider fetches per cycle (DataProviderConfig.MaxRequestsPerCycle).
func NewEvolutionCycle(repos *repository.Repositories, evaluator *Evaluator, machine *lifecycle.Machine, mutator *evolution.Mutator, memoryClient *memory.Client, notifier notification.Notifier, cfg config.EvolutionConfig, maxRequests int, logger *logrus.Logger) *EvolutionCycle {
	if logger == nil {
		logger = logrus.New()
	}
	return &EvolutionCycle{
		repos:       repos,
		evaluator:   evaluator,
		machine:     machine,
		mutator:     mutator,
		memory:      memoryClient,
		notifier:    notifier,
		cfg:         cfg,
		maxRequests: maxRequests,
		logger:      logger,
	}
}

func (c *EvolutionCycle) requestBudget() int {
	if c.maxRequests > 0 {
		return c.maxRequests
	}
	return c.cfg.BatchSize * 4
}

// Run executes one full cycle. Cancellation is cooperative: workers finish
// their current strategy before observing the context.
func (c *EvolutionCycle) Run(ctx context.Context) error {
	started := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues("evolution").Observe(time.Since(started).Seconds())
	}()

	strategies, err := c.repos.Strategy.GetActive(ctx)
	if err != nil {
		return err
	}

	batch := c.selectBatch(strategies)
	if len(batch) == 0 {
		c.logger.Debug("Evolution cycle found no strategies to process")
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"eligible": len(strategies),
		"batch":    len(batch),
		"workers":  c.cfg.Workers,
	}).Info("Starting evolution cycle")

	// Workers write evaluation results to the live batch records, while the
	// mutator reads mates from the population. Mates come from a point-in-time
	// copy so no worker ever reads a record a sibling is updating.
	pool := make([]*models.Strategy, len(strategies))
	for i, s := range strategies {
		pool[i] = s.Snapshot()
	}

	budget := NewBudget(c.requestBudget())
	c.runWorkers(ctx, batch, pool, budget)

	if err := c.enforcePopulationCap(ctx); err != nil {
		c.logger.WithField("error", err).Warn("Population cap enforcement failed")
	}

	c.publishPopulationGauges(ctx)
	return nil
}

// selectBatch orders strategies by re-evaluation priority and caps the batch.
// Priority: never backtested, then stale backtests, then experiments, then
// the rest; ties broken by oldest backtest first.
func (c *EvolutionCycle) selectBatch(strategies []*models.Strategy) []*models.Strategy {
	staleBefore := time.Now().Add(-time.Duration(c.cfg.RebacktestAfterDays) * 24 * time.Hour)

	prioritized := make([]*models.Strategy, len(strategies))
	copy(prioritized, strategies)
	sort.SliceStable(prioritized, func(i, j int) bool {
		pi, pj := priorityOf(prioritized[i], staleBefore), priorityOf(prioritized[j], staleBefore)
		if pi != pj {
			return pi < pj
		}
		return backtestTime(prioritized[i]).Before(backtestTime(prioritized[j]))
	})

	if len(prioritized) > c.cfg.BatchSize {
		prioritized = prioritized[:c.cfg.BatchSize]
	}
	return prioritized
}

func priorityOf(s *models.Strategy, staleBefore time.Time) int {
	switch {
	case s.LastBacktestAt == nil:
		return 0
	case s.LastBacktestAt.Before(staleBefore):
		return 1
	case s.Status == models.StatusExperiment:
		return 2
	default:
		return 3
	}
}

func backtestTime(s *models.Strategy) time.Time {
	if s.LastBacktestAt == nil {
		return time.Time{}
	}
	return *s.LastBacktestAt
}

func (c *EvolutionCycle) runWorkers(ctx context.Context, batch, population []*models.Strategy, budget *Budget) {
	jobs := make(chan *models.Strategy)
	var wg sync.WaitGroup

	workers := c.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for strategy := range jobs {
				c.processStrategy(ctx, strategy, population, budget)
			}
		}()
	}

	for _, strategy := range batch {
		if ctx.Err() != nil {
			break
		}
		jobs <- strategy
	}
	close(jobs)
	wg.Wait()
}

// processStrategy runs the pipeline for one strategy and applies the
// lifecycle decision. Insufficient data skips the strategy without an
// attempt-count penalty; invalid rulesets are skipped and logged.
func (c *EvolutionCycle) processStrategy(ctx context.Context, strategy *models.Strategy, population []*models.Strategy, budget *Budget) {
	log := c.logger.WithFields(logrus.Fields{
		"strategy_id": strategy.ID,
		"status":      strategy.Status,
	})

	eval := c.evaluator.Evaluate(ctx, strategy, budget)
	switch eval.Outcome.Kind {
	case backtest.OutcomeInsufficientData:
		log.WithField("reason", eval.Outcome.Reason).Info("Skipping strategy: insufficient data")
		return
	case backtest.OutcomeInvalidRuleset:
		log.WithField("reason", eval.Outcome.Reason).Warn("Skipping strategy: invalid ruleset")
		return
	}

	result := eval.Outcome.Result
	strategy.EvolutionAttempts++
	if eval.Score > strategy.BestScore {
		strategy.BestScore = eval.Score
		strategy.StaleAttempts = 0
	} else {
		strategy.StaleAttempts++
	}

	decision := c.machine.Evaluate(lifecycleInputs(strategy, eval))
	c.persistEvaluation(ctx, strategy, eval, decision)

	if decision.Changed {
		metrics.RecordTransition(string(decision.From), string(decision.To))
		c.notifier.NotifyTransition(strategy, decision.From, decision.To, decision.Reason)
		c.memory.RecordEvent(ctx, memory.EventStatusTransition, map[string]interface{}{
			"strategy_id": strategy.ID,
			"from":        decision.From,
			"to":          decision.To,
			"reason":      decision.Reason,
		})
	}

	if c.shouldMutate(strategy, result, decision) {
		c.spawnChildren(ctx, strategy, population)
	}
}

func lifecycleInputs(strategy *models.Strategy, eval *Evaluation) lifecycle.Inputs {
	result := eval.Outcome.Result
	in := lifecycle.Inputs{
		Status:            strategy.Status,
		Trades:            result.Metrics.TotalTrades,
		WinRate:           result.Metrics.WinRate,
		Sharpe:            result.Metrics.SharpeRatio,
		ProfitFactor:      result.Metrics.ProfitFactor,
		MaxDrawdown:       result.Metrics.MaxDrawdown,
		Score:             eval.Score,
		Robustness:        strategy.Robustness,
		EvolutionAttempts: strategy.EvolutionAttempts,
		StaleAttempts:     strategy.StaleAttempts,
	}
	if result.TestMetrics != nil {
		oos := result.TestMetrics.WinRate
		in.OutSampleWinRate = &oos
	}
	return in
}

func (c *EvolutionCycle) persistEvaluation(ctx context.Context, strategy *models.Strategy, eval *Evaluation, decision lifecycle.Decision) {
	result := eval.Outcome.Result
	now := time.Now().UTC()

	strategy.Score = &eval.Score
	strategy.Status = decision.To
	strategy.LastBacktestAt = &now
	strategy.LastBacktest = result.ToJSON()
	if strategy.SymbolPerformance == nil {
		strategy.SymbolPerformance = map[string]float64{}
	}
	for symbol, perf := range eval.SymbolPerf {
		strategy.SymbolPerformance[symbol] = perf
	}

	// CAS on the old status first so a concurrent intake decision wins;
	// then persist the full record under whatever status stuck.
	if decision.Changed {
		err := c.repos.Strategy.UpdateStatus(ctx, strategy.ID, decision.From, decision.To, strategy.Score)
		if errors.Is(err, models.ErrStatusConflict) {
			c.logger.WithFields(logrus.Fields{
				"strategy_id": strategy.ID,
				"expected":    decision.From,
			}).Warn("Status changed concurrently, keeping the other writer's status")
			if current, getErr := c.repos.Strategy.GetByID(ctx, strategy.ID); getErr == nil {
				strategy.Status = current.Status
			}
		} else if err != nil {
			c.logger.WithField("error", err).Error("Failed to update strategy status")
		}
	}

	if err := c.repos.Strategy.Update(ctx, strategy); err != nil {
		c.logger.WithFields(logrus.Fields{
			"strategy_id": strategy.ID,
			"error":       err,
		}).Error("Failed to persist strategy evaluation")
	}
	if err := c.repos.Backtest.Create(ctx, result); err != nil {
		c.logger.WithFields(logrus.Fields{
			"strategy_id": strategy.ID,
			"error":       err,
		}).Error("Failed to persist backtest result")
	}

	metrics.StrategyScore.WithLabelValues(strategy.ID.String()).Set(eval.Score)
	c.memory.RecordEvent(ctx, memory.EventBacktestComplete, map[string]interface{}{
		"strategy_id": strategy.ID,
		"score":       eval.Score,
		"win_rate":    result.Metrics.WinRate,
		"sharpe":      result.Metrics.SharpeRatio,
	})
}

// shouldMutate triggers evolution on an attempt-count multiple or a win rate
// below the floor, never for strategies that just got discarded.
func (c *EvolutionCycle) shouldMutate(strategy *models.Strategy, result *models.BacktestResult, decision lifecycle.Decision) bool {
	if decision.To == models.StatusDiscarded {
		return false
	}
	if c.cfg.MutationEveryN > 0 && strategy.EvolutionAttempts%c.cfg.MutationEveryN == 0 {
		return true
	}
	return result.Metrics.WinRate < c.cfg.MutationWinRateFloor
}

func (c *EvolutionCycle) spawnChildren(ctx context.Context, parent *models.Strategy, population []*models.Strategy) {
	children := c.mutator.Spawn(parent, population)

	c.populationMu.Lock()
	defer c.populationMu.Unlock()

	for _, child := range children {
		if err := c.repos.Strategy.Create(ctx, child.Strategy); err != nil {
			c.logger.WithFields(logrus.Fields{
				"parent_id": parent.ID,
				"error":     err,
			}).Error("Failed to persist child strategy")
			continue
		}
		if err := c.repos.Lineage.Create(ctx, child.Edge); err != nil {
			c.logger.WithFields(logrus.Fields{
				"child_id": child.Strategy.ID,
				"error":    err,
			}).Error("Failed to persist lineage edge")
		}
		metrics.RecordMutation(string(child.Edge.MutationType))
		c.memory.RecordEvent(ctx, memory.EventMutationSpawned, map[string]interface{}{
			"parent_id":     parent.ID,
			"child_id":      child.Strategy.ID,
			"mutation_type": child.Edge.MutationType,
		})
	}
}

// enforcePopulationCap deactivates the lowest-scoring strategies beyond the
// configured maximum. Never-scored strategies sort as zero but experiments
// that have never been evaluated are spared one cycle.
func (c *EvolutionCycle) enforcePopulationCap(ctx context.Context) error {
	c.populationMu.Lock()
	defer c.populationMu.Unlock()

	active, err := c.repos.Strategy.GetActive(ctx)
	if err != nil {
		return err
	}
	excess := len(active) - c.cfg.MaxPopulation
	if excess <= 0 {
		return nil
	}

	culled := make([]*models.Strategy, 0, len(active))
	for _, s := range active {
		if s.LastBacktestAt == nil {
			continue
		}
		culled = append(culled, s)
	}
	sort.Slice(culled, func(i, j int) bool {
		return scoreValue(culled[i]) < scoreValue(culled[j])
	})

	for i := 0; i < excess && i < len(culled); i++ {
		victim := culled[i]
		if err := c.repos.Strategy.Deactivate(ctx, victim.ID); err != nil {
			c.logger.WithFields(logrus.Fields{
				"strategy_id": victim.ID,
				"error":       err,
			}).Warn("Failed to deactivate excess strategy")
			continue
		}
		c.notifier.NotifyTransition(victim, victim.Status, models.StatusDiscarded, "population cap")
		metrics.RecordTransition(string(victim.Status), string(models.StatusDiscarded))
	}

	c.logger.WithFields(logrus.Fields{
		"population": len(active),
		"cap":        c.cfg.MaxPopulation,
		"culled":     min(excess, len(culled)),
	}).Info("Population cap enforced")
	return nil
}

func (c *EvolutionCycle) publishPopulationGauges(ctx context.Context) {
	for _, status := range []models.StrategyStatus{
		models.StatusPendingReview, models.StatusExperiment,
		models.StatusCandidate, models.StatusProposable,
	} {
		if count, err := c.repos.Strategy.CountByStatus(ctx, status); err == nil {
			metrics.PopulationSize.WithLabelValues(string(status)).Set(float64(count))
		}
	}
}

func scoreValue(s *models.Strategy) float64 {
	if s.Score == nil {
		return 0
	}
	return *s.Score
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
