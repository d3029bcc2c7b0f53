package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/evo-trader/internal/backtest"
	"github.com/yourusername/evo-trader/internal/config"
	"github.com/yourusername/evo-trader/internal/evolution"
	"github.com/yourusername/evo-trader/internal/lifecycle"
	"github.com/yourusername/evo-trader/internal/memory"
	"github.com/yourusername/evo-trader/internal/models"
	"github.com/yourusername/evo-trader/internal/notification"
	"github.com/yourusername/evo-trader/internal/repository"
)

func testEvolutionConfig() config.EvolutionConfig {
	return config.EvolutionConfig{
		IntervalSeconds:      300,
		BatchSize:            3,
		Workers:              2,
		MaxPopulation:        50,
		MutationEveryN:       3,
		MutationWinRateFloor: 0.40,
		MaxAttempts:          10,
		StaleAttemptLimit:    5,
		RebacktestAfterDays:  7,
		CandleLimit:          500,
	}
}

func newTestEvolutionCycle() *EvolutionCycle {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewEvolutionCycle(nil, nil, nil, nil, nil, nil, testEvolutionConfig(), 0, logger)
}

func strategyWithBacktest(status models.StrategyStatus, age time.Duration) *models.Strategy {
	at := time.Now().Add(-age)
	return &models.Strategy{ID: uuid.New(), Status: status, LastBacktestAt: &at}
}

func TestBudget(t *testing.T) {
	budget := NewBudget(2)
	assert.True(t, budget.Take())
	assert.True(t, budget.Take())
	assert.False(t, budget.Take(), "an exhausted budget denies further requests")
	assert.False(t, budget.Take())
}

func TestSelectBatchPrioritizesUnbacktested(t *testing.T) {
	cycle := newTestEvolutionCycle()

	fresh := &models.Strategy{ID: uuid.New(), Status: models.StatusCandidate}
	stale := strategyWithBacktest(models.StatusCandidate, 30*24*time.Hour)
	experiment := strategyWithBacktest(models.StatusExperiment, time.Hour)
	recent := strategyWithBacktest(models.StatusProposable, time.Hour)

	batch := cycle.selectBatch([]*models.Strategy{recent, experiment, stale, fresh})
	require.Len(t, batch, 3, "batch is capped at the configured size")
	assert.Equal(t, fresh.ID, batch[0].ID, "never-backtested first")
	assert.Equal(t, stale.ID, batch[1].ID, "stale backtest second")
	assert.Equal(t, experiment.ID, batch[2].ID, "experiments before settled strategies")
}

func TestSelectBatchTiesBrokenByOldest(t *testing.T) {
	cycle := newTestEvolutionCycle()

	older := strategyWithBacktest(models.StatusCandidate, 3*time.Hour)
	newer := strategyWithBacktest(models.StatusCandidate, time.Hour)

	batch := cycle.selectBatch([]*models.Strategy{newer, older})
	require.Len(t, batch, 2)
	assert.Equal(t, older.ID, batch[0].ID)
}

func TestShouldMutate(t *testing.T) {
	cycle := newTestEvolutionCycle()
	healthy := &models.BacktestResult{Metrics: models.Metrics{WinRate: 0.60}}
	losing := &models.BacktestResult{Metrics: models.Metrics{WinRate: 0.30}}
	kept := lifecycle.Decision{To: models.StatusCandidate}
	discarded := lifecycle.Decision{To: models.StatusDiscarded, Changed: true}

	onMultiple := &models.Strategy{EvolutionAttempts: 6}
	offMultiple := &models.Strategy{EvolutionAttempts: 7}

	assert.True(t, cycle.shouldMutate(onMultiple, healthy, kept), "attempt-count multiple triggers mutation")
	assert.False(t, cycle.shouldMutate(offMultiple, healthy, kept))
	assert.True(t, cycle.shouldMutate(offMultiple, losing, kept), "a weak win rate triggers mutation")
	assert.False(t, cycle.shouldMutate(onMultiple, healthy, discarded), "discarded strategies never mutate")
}

func TestLifecycleInputsCarryEvaluation(t *testing.T) {
	robustness := 0.8
	strategy := &models.Strategy{
		ID:                uuid.New(),
		Status:            models.StatusCandidate,
		EvolutionAttempts: 4,
		StaleAttempts:     1,
		Robustness:        &robustness,
	}
	eval := &Evaluation{Score: 0.7}
	eval.Outcome.Result = &models.BacktestResult{
		Metrics: models.Metrics{
			TotalTrades:  45,
			WinRate:      0.62,
			SharpeRatio:  1.4,
			ProfitFactor: 1.6,
			MaxDrawdown:  0.12,
		},
		TestMetrics: &models.Metrics{WinRate: 0.57},
	}

	in := lifecycleInputs(strategy, eval)
	assert.Equal(t, models.StatusCandidate, in.Status)
	assert.Equal(t, 45, in.Trades)
	assert.Equal(t, 0.62, in.WinRate)
	assert.Equal(t, 1.4, in.Sharpe)
	assert.Equal(t, 0.7, in.Score)
	assert.Equal(t, 4, in.EvolutionAttempts)
	require.NotNil(t, in.OutSampleWinRate)
	assert.Equal(t, 0.57, *in.OutSampleWinRate)
	require.NotNil(t, in.Robustness)
	assert.Equal(t, 0.8, *in.Robustness)
}

func TestRequestBudgetPrefersConfiguredCap(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	capped := NewEvolutionCycle(nil, nil, nil, nil, nil, nil, testEvolutionConfig(), 7, logger)
	assert.Equal(t, 7, capped.requestBudget(), "the configured provider cap wins")

	fallback := newTestEvolutionCycle()
	assert.Equal(t, testEvolutionConfig().BatchSize*4, fallback.requestBudget(),
		"an unset cap derives one from the batch size")
}

// Exercises the worker pool end to end: concurrent evaluation writes and
// mutation reads must never touch the same strategy record. Run with the
// race detector to cover the population snapshot taken before fan-out.
func TestRunConcurrentEvaluationAndMutation(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	seed := make([]*models.Strategy, 0, 12)
	for i := 0; i < 12; i++ {
		s := pendingStrategy(fmt.Sprintf("swarm-%d", i))
		s.Status = models.StatusExperiment
		score := 0.5
		s.Score = &score
		seed = append(seed, s)
	}
	strategyRepo := newFakeStrategyRepo(seed...)
	repos := &repository.Repositories{Strategy: strategyRepo, Lineage: &fakeLineageRepo{}, Backtest: newFakeBacktestRepo()}

	engine := backtest.NewEngine(backtest.DefaultConfig(), logger)
	validator := backtest.NewValidator(engine, backtest.DefaultWalkForwardConfig(), logger)
	scorer := backtest.NewScorer(backtest.DefaultScoreWeights())
	provider := &fakeProvider{candles: flatCandles(60)}
	evaluator := NewEvaluator(provider, engine, validator, scorer, backtest.MonteCarloConfig{Iterations: 200, Seed: 7}, 500, logger)
	machine := lifecycle.NewMachine(lifecycle.DefaultThresholds(), logger)
	mutator := evolution.NewMutator(7, logger)
	memoryClient := memory.NewClient(config.MemoryConfig{}, logger)

	cfg := testEvolutionConfig()
	cfg.Workers = 4
	cfg.BatchSize = 4
	cfg.MutationWinRateFloor = 1.0 // every evaluated strategy mutates

	cycle := NewEvolutionCycle(repos, evaluator, machine, mutator, memoryClient,
		notification.NewLogNotifier(logger), cfg, 0, logger)

	for i := 0; i < 4; i++ {
		require.NoError(t, cycle.Run(context.Background()))
	}

	active, err := strategyRepo.GetActive(context.Background())
	require.NoError(t, err)
	assert.Greater(t, len(active), len(seed), "mutation spawned children into the population")
}
