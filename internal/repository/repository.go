package repository

import (
	"fmt"

	"github.com/yourusername/evo-trader/internal/database"
)

// Repositories aggregates all repository implementations
type Repositories struct {
	Strategy StrategyRepository
	Lineage  LineageRepository
	Backtest BacktestResultRepository
}

// NewRepositories creates the repository container backed by PostgreSQL
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &Repositories{
		Strategy: NewPostgresStrategyRepository(db),
		Lineage:  NewPostgresLineageRepository(db),
		Backtest: NewPostgresBacktestResultRepository(db),
	}, nil
}
