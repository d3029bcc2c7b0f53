// Package repository provides data access for strategies, lineage and
// backtest results.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/evo-trader/internal/models"
)

// StrategyRepository defines strategy persistence operations
type StrategyRepository interface {
	Create(ctx context.Context, strategy *models.Strategy) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Strategy, error)
	GetByStatus(ctx context.Context, statuses ...models.StrategyStatus) ([]*models.Strategy, error)
	GetActive(ctx context.Context) ([]*models.Strategy, error)
	GetNonTerminal(ctx context.Context) ([]*models.Strategy, error)
	Update(ctx context.Context, strategy *models.Strategy) error
	// UpdateStatus performs an atomic read-current-write-new transition and
	// returns models.ErrStatusConflict when the stored status no longer
	// matches expected.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.StrategyStatus, score *float64) error
	CountByStatus(ctx context.Context, status models.StrategyStatus) (int, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// LineageRepository defines lineage edge persistence operations
type LineageRepository interface {
	Create(ctx context.Context, edge *models.LineageEdge) error
	GetByChild(ctx context.Context, childID uuid.UUID) ([]*models.LineageEdge, error)
	GetByParent(ctx context.Context, parentID uuid.UUID) ([]*models.LineageEdge, error)
}

// BacktestResultRepository defines backtest result persistence operations
type BacktestResultRepository interface {
	Create(ctx context.Context, result *models.BacktestResult) error
	GetLatestByStrategy(ctx context.Context, strategyID uuid.UUID) (*models.BacktestResult, error)
	GetByStrategy(ctx context.Context, strategyID uuid.UUID, since time.Time) ([]*models.BacktestResult, error)
}
