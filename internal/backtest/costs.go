package backtest

import "github.com/yourusername/evo-trader/internal/models"

// Default transaction cost parameters. Spread is per asset class; slippage is
// uniform. Both are applied to entry and exit, always against the trader.
const (
	DefaultSlippagePct = 0.001

	spreadPctStock  = 0.0003
	spreadPctCrypto = 0.003
	spreadPctForex  = 0.0002
)

// SpreadPct returns the spread percentage for an asset class
func SpreadPct(class models.AssetClass) float64 {
	switch class {
	case models.AssetClassCrypto:
		return spreadPctCrypto
	case models.AssetClassForex:
		return spreadPctForex
	default:
		return spreadPctStock
	}
}

// costModel precomputes the adverse cost fraction for one symbol
type costModel struct {
	adversePct float64
}

func newCostModel(symbol string, slippagePct float64) costModel {
	if slippagePct <= 0 {
		slippagePct = DefaultSlippagePct
	}
	return costModel{adversePct: slippagePct + SpreadPct(models.ClassifySymbol(symbol))}
}

// entryPrice returns the fill price when opening a position. A buyer pays the
// ask (price shifted up), a seller receives the bid (shifted down).
func (c costModel) entryPrice(price float64, direction models.Direction) float64 {
	if direction == models.DirectionShort {
		return price * (1 - c.adversePct)
	}
	return price * (1 + c.adversePct)
}

// exitPrice returns the fill price when closing a position
func (c costModel) exitPrice(price float64, direction models.Direction) float64 {
	if direction == models.DirectionShort {
		return price * (1 + c.adversePct)
	}
	return price * (1 - c.adversePct)
}
