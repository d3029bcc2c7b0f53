package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeCandles(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mk := func(offset time.Duration) Candle {
		return Candle{Time: now.Add(offset), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000}
	}

	input := []Candle{
		mk(-1 * time.Hour),
		mk(-3 * time.Hour),
		mk(24 * time.Hour), // future-dated, must be dropped
		mk(-2 * time.Hour),
		mk(-2 * time.Hour), // duplicate timestamp
	}

	out := SanitizeCandles(input, now)
	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		assert.True(t, out[i].Time.After(out[i-1].Time), "output must be strictly ascending")
	}
	assert.True(t, out[len(out)-1].Time.Before(now.Add(time.Second)), "no candle may postdate now")
}

func TestSanitizeCandlesEmpty(t *testing.T) {
	out := SanitizeCandles(nil, time.Now())
	assert.Empty(t, out)
}

func TestClassifySymbol(t *testing.T) {
	cases := map[string]AssetClass{
		"BTC-USDT": AssetClassCrypto,
		"ethusdc":  AssetClassCrypto,
		"SOL/BTC":  AssetClassCrypto,
		"EURUSD":   AssetClassForex,
		"GBP/JPY":  AssetClassForex,
		"AAPL":     AssetClassStock,
		"MSFT":     AssetClassStock,
	}
	for symbol, want := range cases {
		assert.Equal(t, want, ClassifySymbol(symbol), "symbol %s", symbol)
	}
}

func TestTimeframeDuration(t *testing.T) {
	d, err := TimeframeDuration("1h")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	d, err = TimeframeDuration("1W")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	_, err = TimeframeDuration("2h")
	assert.ErrorIs(t, err, ErrUnknownTimeframe)
}

func TestRecommendedMinCandles(t *testing.T) {
	assert.Equal(t, 1000, RecommendedMinCandles("1m"))
	assert.Equal(t, 300, RecommendedMinCandles("1h"))
	assert.Equal(t, 100, RecommendedMinCandles("1d"))
}
