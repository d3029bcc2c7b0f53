package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/evo-trader/internal/database"
	"github.com/yourusername/evo-trader/internal/models"
)

// PostgresBacktestResultRepository implements BacktestResultRepository
type PostgresBacktestResultRepository struct {
	db *database.DB
}

// NewPostgresBacktestResultRepository creates a new backtest result repository
func NewPostgresBacktestResultRepository(db *database.DB) BacktestResultRepository {
	return &PostgresBacktestResultRepository{db: db}
}

// Create inserts a backtest result. Results are immutable once created.
func (r *PostgresBacktestResultRepository) Create(ctx context.Context, result *models.BacktestResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest result: %w", err)
	}

	query := `
		INSERT INTO backtest_results (id, strategy_id, symbol, timeframe, start_date, end_date,
			overfitting_detected, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.GetPool().Exec(ctx, query,
		result.ID, result.StrategyID, result.Symbol, result.Timeframe,
		result.StartDate, result.EndDate, result.OverfittingDetected, payload)
	if err != nil {
		return fmt.Errorf("failed to create backtest result: %w", err)
	}
	return nil
}

// GetLatestByStrategy retrieves the most recent (authoritative) result
func (r *PostgresBacktestResultRepository) GetLatestByStrategy(ctx context.Context, strategyID uuid.UUID) (*models.BacktestResult, error) {
	query := `
		SELECT payload FROM backtest_results
		WHERE strategy_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var payload []byte
	err := r.db.GetPool().QueryRow(ctx, query, strategyID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest backtest result: %w", err)
	}

	result := &models.BacktestResult{}
	if err := json.Unmarshal(payload, result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backtest result: %w", err)
	}
	return result, nil
}

// GetByStrategy retrieves results for a strategy since the given time
func (r *PostgresBacktestResultRepository) GetByStrategy(ctx context.Context, strategyID uuid.UUID, since time.Time) ([]*models.BacktestResult, error) {
	query := `
		SELECT payload FROM backtest_results
		WHERE strategy_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.GetPool().Query(ctx, query, strategyID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest results: %w", err)
	}
	defer rows.Close()

	var results []*models.BacktestResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan backtest result: %w", err)
		}
		result := &models.BacktestResult{}
		if err := json.Unmarshal(payload, result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal backtest result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
