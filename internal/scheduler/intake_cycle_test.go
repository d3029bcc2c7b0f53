package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/evo-trader/internal/backtest"
	"github.com/yourusername/evo-trader/internal/config"
	"github.com/yourusername/evo-trader/internal/memory"
	"github.com/yourusername/evo-trader/internal/models"
	"github.com/yourusername/evo-trader/internal/notification"
	"github.com/yourusername/evo-trader/internal/repository"
)

// fakeStrategyRepo is an in-memory StrategyRepository
type fakeStrategyRepo struct {
	mu         sync.Mutex
	strategies map[uuid.UUID]*models.Strategy
}

func newFakeStrategyRepo(strategies ...*models.Strategy) *fakeStrategyRepo {
	r := &fakeStrategyRepo{strategies: make(map[uuid.UUID]*models.Strategy)}
	for _, s := range strategies {
		r.strategies[s.ID] = s
	}
	return r
}

func (r *fakeStrategyRepo) Create(_ context.Context, s *models.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID] = s
	return nil
}

func (r *fakeStrategyRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strategies[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s, nil
}

func (r *fakeStrategyRepo) GetByStatus(_ context.Context, statuses ...models.StrategyStatus) ([]*models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Strategy
	for _, s := range r.strategies {
		for _, status := range statuses {
			if s.Status == status {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (r *fakeStrategyRepo) GetActive(ctx context.Context) ([]*models.Strategy, error) {
	return r.GetByStatus(ctx, models.StatusExperiment, models.StatusCandidate, models.StatusProposable)
}

func (r *fakeStrategyRepo) GetNonTerminal(_ context.Context) ([]*models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Strategy
	for _, s := range r.strategies {
		if !s.Status.IsTerminal() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeStrategyRepo) Update(_ context.Context, s *models.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID] = s
	return nil
}

func (r *fakeStrategyRepo) UpdateStatus(_ context.Context, id uuid.UUID, expected, next models.StrategyStatus, score *float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.strategies[id]
	if !ok {
		return models.ErrNotFound
	}
	if s.Status != expected {
		return models.ErrStatusConflict
	}
	s.Status = next
	if score != nil {
		s.Score = score
	}
	return nil
}

func (r *fakeStrategyRepo) CountByStatus(_ context.Context, status models.StrategyStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.strategies {
		if s.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeStrategyRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.strategies[id]; ok {
		s.Status = models.StatusDiscarded
	}
	return nil
}

func (r *fakeStrategyRepo) statusOf(id uuid.UUID) models.StrategyStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.strategies[id].Status
}

// fakeLineageRepo is an in-memory LineageRepository
type fakeLineageRepo struct {
	mu    sync.Mutex
	edges []*models.LineageEdge
}

func (r *fakeLineageRepo) Create(_ context.Context, edge *models.LineageEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = append(r.edges, edge)
	return nil
}

func (r *fakeLineageRepo) GetByChild(_ context.Context, childID uuid.UUID) ([]*models.LineageEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LineageEdge
	for _, e := range r.edges {
		if e.ChildID == childID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeLineageRepo) GetByParent(_ context.Context, parentID uuid.UUID) ([]*models.LineageEdge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LineageEdge
	for _, e := range r.edges {
		for _, p := range e.ParentIDs {
			if p == parentID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// fakeBacktestRepo is an in-memory BacktestResultRepository
type fakeBacktestRepo struct {
	mu      sync.Mutex
	results map[uuid.UUID][]*models.BacktestResult
}

func newFakeBacktestRepo() *fakeBacktestRepo {
	return &fakeBacktestRepo{results: make(map[uuid.UUID][]*models.BacktestResult)}
}

func (r *fakeBacktestRepo) Create(_ context.Context, result *models.BacktestResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result.StrategyID] = append(r.results[result.StrategyID], result)
	return nil
}

func (r *fakeBacktestRepo) GetLatestByStrategy(_ context.Context, strategyID uuid.UUID) (*models.BacktestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.results[strategyID]
	if len(list) == 0 {
		return nil, models.ErrNotFound
	}
	return list[len(list)-1], nil
}

func (r *fakeBacktestRepo) GetByStrategy(_ context.Context, strategyID uuid.UUID, since time.Time) ([]*models.BacktestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BacktestResult
	for _, result := range r.results[strategyID] {
		if result.CreatedAt.After(since) {
			out = append(out, result)
		}
	}
	return out, nil
}

// fakeProvider serves a fixed candle set, or fails
type fakeProvider struct {
	candles []models.Candle
	err     error
}

func (p *fakeProvider) GetCandles(_ context.Context, _, _ string, limit int, _, _ time.Time) ([]models.Candle, error) {
	if p.err != nil {
		return nil, p.err
	}
	if limit > 0 && limit < len(p.candles) {
		return p.candles[len(p.candles)-limit:], nil
	}
	return p.candles, nil
}

func (p *fakeProvider) Close() error { return nil }

func testIntakeConfig() config.IntakeConfig {
	return config.IntakeConfig{
		IntervalSeconds:   60,
		SanityCandleLimit: 100,
		MinTrades:         1,
		MaxDrawdown:       0.50,
		MinRobustness:     0.75,
		MinEvalCycles:     1,
	}
}

func flatCandles(n int) []models.Candle {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: 1000,
		}
	}
	return candles
}

func pendingStrategy(name string) *models.Strategy {
	return &models.Strategy{
		ID:     uuid.New(),
		Name:   name,
		Status: models.StatusPendingReview,
		Ruleset: models.Ruleset{
			Symbols:   []string{"AAPL"},
			Timeframe: "1h",
			Direction: models.DirectionLong,
			Entry: []models.Condition{
				{Indicator: models.IndicatorPrice, Period: 14, Operator: models.OpGreaterThan, Value: 1},
			},
		},
	}
}

func newIntakeCycle(repos *repository.Repositories, provider *fakeProvider) *IntakeCycle {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	engine := backtest.NewEngine(backtest.DefaultConfig(), logger)
	memoryClient := memory.NewClient(config.MemoryConfig{}, logger)
	return NewIntakeCycle(repos, provider, engine, memoryClient, notification.NewLogNotifier(logger), testIntakeConfig(), logger)
}

func TestIntakeAcceptsHealthySubmission(t *testing.T) {
	pending := pendingStrategy("fresh")
	strategyRepo := newFakeStrategyRepo(pending)
	repos := &repository.Repositories{Strategy: strategyRepo, Lineage: &fakeLineageRepo{}, Backtest: newFakeBacktestRepo()}
	cycle := newIntakeCycle(repos, &fakeProvider{candles: flatCandles(60)})

	require.NoError(t, cycle.Run(context.Background()))
	assert.Equal(t, models.StatusExperiment, strategyRepo.statusOf(pending.ID))
}

func TestIntakeMarksDuplicate(t *testing.T) {
	existing := pendingStrategy("original")
	existing.Status = models.StatusExperiment

	// the same structure resubmitted through alias field names
	aliased, err := models.NormalizeRuleset(map[string]interface{}{
		"instruments": []interface{}{"aapl"},
		"interval":    "1H",
		"entry_conditions": []interface{}{
			map[string]interface{}{"ind": "close", "comparison": "above", "threshold": 1.0, "length": 14.0},
		},
	})
	require.NoError(t, err)
	duplicate := pendingStrategy("copycat")
	duplicate.Ruleset = *aliased

	strategyRepo := newFakeStrategyRepo(existing, duplicate)
	repos := &repository.Repositories{Strategy: strategyRepo, Lineage: &fakeLineageRepo{}, Backtest: newFakeBacktestRepo()}
	cycle := newIntakeCycle(repos, &fakeProvider{candles: flatCandles(60)})

	require.NoError(t, cycle.Run(context.Background()))
	assert.Equal(t, models.StatusDuplicate, strategyRepo.statusOf(duplicate.ID))
	assert.Equal(t, models.StatusExperiment, strategyRepo.statusOf(existing.ID))
}

func TestIntakeDuplicateWithinSamePass(t *testing.T) {
	first := pendingStrategy("first")
	second := pendingStrategy("second")

	strategyRepo := newFakeStrategyRepo(first, second)
	repos := &repository.Repositories{Strategy: strategyRepo, Lineage: &fakeLineageRepo{}, Backtest: newFakeBacktestRepo()}
	cycle := newIntakeCycle(repos, &fakeProvider{candles: flatCandles(60)})

	require.NoError(t, cycle.Run(context.Background()))

	statuses := []models.StrategyStatus{strategyRepo.statusOf(first.ID), strategyRepo.statusOf(second.ID)}
	assert.Contains(t, statuses, models.StatusExperiment, "exactly one twin is admitted")
	assert.Contains(t, statuses, models.StatusDuplicate, "the other twin is a duplicate")
}

func TestIntakeRejectsTradelessStrategy(t *testing.T) {
	pending := pendingStrategy("inert")
	// entry condition that can never fire in the sanity window
	pending.Ruleset.Entry[0].Value = 1e9

	strategyRepo := newFakeStrategyRepo(pending)
	repos := &repository.Repositories{Strategy: strategyRepo, Lineage: &fakeLineageRepo{}, Backtest: newFakeBacktestRepo()}
	cycle := newIntakeCycle(repos, &fakeProvider{candles: flatCandles(60)})

	require.NoError(t, cycle.Run(context.Background()))
	assert.Equal(t, models.StatusRejected, strategyRepo.statusOf(pending.ID))
}

func TestIntakeLeavesPendingOnProviderFailure(t *testing.T) {
	pending := pendingStrategy("unlucky")
	strategyRepo := newFakeStrategyRepo(pending)
	repos := &repository.Repositories{Strategy: strategyRepo, Lineage: &fakeLineageRepo{}, Backtest: newFakeBacktestRepo()}
	cycle := newIntakeCycle(repos, &fakeProvider{err: errors.New("upstream down")})

	require.NoError(t, cycle.Run(context.Background()))
	assert.Equal(t, models.StatusPendingReview, strategyRepo.statusOf(pending.ID),
		"a data outage must not burn the submission")
}

func TestIntakeIdempotentAcrossRuns(t *testing.T) {
	pending := pendingStrategy("fresh")
	strategyRepo := newFakeStrategyRepo(pending)
	repos := &repository.Repositories{Strategy: strategyRepo, Lineage: &fakeLineageRepo{}, Backtest: newFakeBacktestRepo()}
	cycle := newIntakeCycle(repos, &fakeProvider{candles: flatCandles(60)})

	require.NoError(t, cycle.Run(context.Background()))
	first := strategyRepo.statusOf(pending.ID)
	require.NoError(t, cycle.Run(context.Background()))
	assert.Equal(t, first, strategyRepo.statusOf(pending.ID), "a second pass changes nothing")
}

func TestIntakeDiscardsPersistentlyFragileExperiment(t *testing.T) {
	now := time.Now().UTC()
	experiment := pendingStrategy("fragile")
	experiment.Status = models.StatusExperiment
	experiment.LastBacktestAt = &now

	strategyRepo := newFakeStrategyRepo(experiment)
	backtestRepo := newFakeBacktestRepo()
	require.NoError(t, backtestRepo.Create(context.Background(), &models.BacktestResult{
		ID:         uuid.New(),
		StrategyID: experiment.ID,
		Metrics: models.Metrics{
			TotalTrades:  40,
			WinRate:      0.20,
			ProfitFactor: 0.5,
			SharpeRatio:  0,
		},
		CreatedAt: now,
	}))

	repos := &repository.Repositories{Strategy: strategyRepo, Lineage: &fakeLineageRepo{}, Backtest: backtestRepo}
	cycle := newIntakeCycle(repos, &fakeProvider{candles: flatCandles(60)})

	require.NoError(t, cycle.Run(context.Background()))

	assert.Equal(t, models.StatusDiscarded, strategyRepo.statusOf(experiment.ID))
	require.NotNil(t, experiment.Robustness)
	assert.Less(t, *experiment.Robustness, testIntakeConfig().MinRobustness)
	assert.Equal(t, 1, experiment.RobustnessCycles)
}

func TestRobustnessComponents(t *testing.T) {
	// classic: strong metrics approach 1, weak ones approach 0
	strong := classicComponent(models.Metrics{WinRate: 0.9, ProfitFactor: 2.5, SharpeRatio: 2.5})
	weak := classicComponent(models.Metrics{WinRate: 0.2, ProfitFactor: 0.4, SharpeRatio: -1})
	assert.Greater(t, strong, weak)
	assert.InDelta(t, 0.96, strong, 0.01)

	// diversity: fraction of symbols with positive return, neutral under 2
	assert.Equal(t, 0.5, diversityComponent(nil))
	assert.Equal(t, 0.5, diversityComponent(map[string]float64{"AAPL": 0.1}))
	assert.InDelta(t, 2.0/3.0, diversityComponent(map[string]float64{"AAPL": 0.1, "MSFT": 0.2, "TSLA": -0.1}), 1e-9)

	// stability: train/test win rate gap
	assert.Equal(t, 0.5, stabilityComponent(&models.BacktestResult{}))
	matched := &models.BacktestResult{
		TrainMetrics: &models.Metrics{WinRate: 0.60},
		TestMetrics:  &models.Metrics{WinRate: 0.58},
	}
	drifted := &models.BacktestResult{
		TrainMetrics: &models.Metrics{WinRate: 0.80},
		TestMetrics:  &models.Metrics{WinRate: 0.30},
	}
	assert.Greater(t, stabilityComponent(matched), stabilityComponent(drifted))
	assert.Equal(t, 0.0, stabilityComponent(drifted), "a 50-point gap exhausts the component")
}
