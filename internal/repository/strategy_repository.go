package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/evo-trader/internal/database"
	"github.com/yourusername/evo-trader/internal/models"
)

// PostgresStrategyRepository implements StrategyRepository for PostgreSQL
type PostgresStrategyRepository struct {
	db *database.DB
}

// NewPostgresStrategyRepository creates a new strategy repository
func NewPostgresStrategyRepository(db *database.DB) StrategyRepository {
	return &PostgresStrategyRepository{db: db}
}

const strategyColumns = `id, user_id, name, ruleset, parameters, status, score,
	evolution_attempts, best_score, stale_attempts, robustness, robustness_cycles,
	last_backtest_at, last_backtest, symbol_performance, created_at, updated_at`

// Create inserts a new strategy
func (s *PostgresStrategyRepository) Create(ctx context.Context, strategy *models.Strategy) error {
	if err := strategy.Validate(); err != nil {
		return err
	}

	ruleset, params, perf, err := marshalStrategyFields(strategy)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO strategies (id, user_id, name, ruleset, parameters, status, score,
			evolution_attempts, best_score, stale_attempts, robustness, robustness_cycles,
			last_backtest_at, last_backtest, symbol_performance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.GetPool().Exec(ctx, query,
		strategy.ID, strategy.UserID, strategy.Name, ruleset, params, strategy.Status,
		strategy.Score, strategy.EvolutionAttempts, strategy.BestScore, strategy.StaleAttempts,
		strategy.Robustness, strategy.RobustnessCycles,
		strategy.LastBacktestAt, strategy.LastBacktest, perf,
	)
	if err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}
	return nil
}

// GetByID retrieves a strategy by ID
func (s *PostgresStrategyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Strategy, error) {
	query := fmt.Sprintf(`SELECT %s FROM strategies WHERE id = $1`, strategyColumns)

	row := s.db.GetPool().QueryRow(ctx, query, id)
	strategy, err := scanStrategy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}
	return strategy, nil
}

// GetByStatus retrieves strategies in any of the given statuses
func (s *PostgresStrategyRepository) GetByStatus(ctx context.Context, statuses ...models.StrategyStatus) ([]*models.Strategy, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM strategies
		WHERE status = ANY($1)
		ORDER BY updated_at ASC
	`, strategyColumns)

	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}

	rows, err := s.db.GetPool().Query(ctx, query, values)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies by status: %w", err)
	}
	defer rows.Close()

	return scanStrategies(rows)
}

// GetActive retrieves strategies eligible for evolution cycles
func (s *PostgresStrategyRepository) GetActive(ctx context.Context) ([]*models.Strategy, error) {
	return s.GetByStatus(ctx, models.StatusExperiment, models.StatusCandidate, models.StatusProposable)
}

// GetNonTerminal retrieves every strategy that is not in a terminal status
func (s *PostgresStrategyRepository) GetNonTerminal(ctx context.Context) ([]*models.Strategy, error) {
	return s.GetByStatus(ctx,
		models.StatusPendingReview, models.StatusExperiment,
		models.StatusCandidate, models.StatusProposable)
}

// Update updates an existing strategy
func (s *PostgresStrategyRepository) Update(ctx context.Context, strategy *models.Strategy) error {
	ruleset, params, perf, err := marshalStrategyFields(strategy)
	if err != nil {
		return err
	}

	query := `
		UPDATE strategies SET
			name = $2, ruleset = $3, parameters = $4, status = $5, score = $6,
			evolution_attempts = $7, best_score = $8, stale_attempts = $9,
			robustness = $10, robustness_cycles = $11,
			last_backtest_at = $12, last_backtest = $13, symbol_performance = $14,
			updated_at = NOW()
		WHERE id = $1
	`
	commandTag, err := s.db.GetPool().Exec(ctx, query,
		strategy.ID, strategy.Name, ruleset, params, strategy.Status, strategy.Score,
		strategy.EvolutionAttempts, strategy.BestScore, strategy.StaleAttempts,
		strategy.Robustness, strategy.RobustnessCycles,
		strategy.LastBacktestAt, strategy.LastBacktest, perf,
	)
	if err != nil {
		return fmt.Errorf("failed to update strategy: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateStatus performs an atomic compare-and-swap status transition. The
// WHERE clause on the expected status makes concurrent intake and evolution
// cycles last-writer-wins without ever leaving an undefined status.
func (s *PostgresStrategyRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.StrategyStatus, score *float64) error {
	query := `
		UPDATE strategies SET status = $3, score = COALESCE($4, score), updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	commandTag, err := s.db.GetPool().Exec(ctx, query, id, expected, next, score)
	if err != nil {
		return fmt.Errorf("failed to update strategy status: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrStatusConflict
	}
	return nil
}

// CountByStatus counts strategies in a given status
func (s *PostgresStrategyRepository) CountByStatus(ctx context.Context, status models.StrategyStatus) (int, error) {
	var count int
	err := s.db.GetPool().QueryRow(ctx,
		`SELECT COUNT(*) FROM strategies WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count strategies: %w", err)
	}
	return count, nil
}

// Deactivate moves a strategy to discarded regardless of its current status
func (s *PostgresStrategyRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	commandTag, err := s.db.GetPool().Exec(ctx,
		`UPDATE strategies SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, models.StatusDiscarded)
	if err != nil {
		return fmt.Errorf("failed to deactivate strategy: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func marshalStrategyFields(strategy *models.Strategy) ([]byte, []byte, []byte, error) {
	ruleset, err := json.Marshal(strategy.Ruleset)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal ruleset: %w", err)
	}
	params, err := json.Marshal(strategy.Parameters)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}
	perf, err := json.Marshal(strategy.SymbolPerformance)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal symbol performance: %w", err)
	}
	return ruleset, params, perf, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (*models.Strategy, error) {
	strategy := &models.Strategy{}
	var ruleset, params, perf []byte

	err := row.Scan(
		&strategy.ID, &strategy.UserID, &strategy.Name, &ruleset, &params,
		&strategy.Status, &strategy.Score, &strategy.EvolutionAttempts,
		&strategy.BestScore, &strategy.StaleAttempts, &strategy.Robustness,
		&strategy.RobustnessCycles, &strategy.LastBacktestAt,
		&strategy.LastBacktest, &perf, &strategy.CreatedAt, &strategy.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(ruleset, &strategy.Ruleset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ruleset: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &strategy.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parameters: %w", err)
		}
	}
	if len(perf) > 0 {
		if err := json.Unmarshal(perf, &strategy.SymbolPerformance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal symbol performance: %w", err)
		}
	}
	return strategy, nil
}

func scanStrategies(rows pgx.Rows) ([]*models.Strategy, error) {
	var strategies []*models.Strategy
	for rows.Next() {
		strategy, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		strategies = append(strategies, strategy)
	}
	return strategies, rows.Err()
}
