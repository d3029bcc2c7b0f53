package marketdata

import (
	"context"
	"time"

	"github.com/yourusername/evo-trader/internal/models"
)

// Provider fetches historical candles. Implementations may return an empty
// slice; callers treat empty as insufficient data, never as a fault that
// aborts a cycle.
type Provider interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int, start, end time.Time) ([]models.Candle, error)
	Close() error
}
