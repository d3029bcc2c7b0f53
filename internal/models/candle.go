package models

import (
	"sort"
	"strings"
	"time"
)

// Candle represents a single OHLCV bar
type Candle struct {
	Time   time.Time `db:"time" json:"time"`
	Open   float64   `db:"open" json:"open"`
	High   float64   `db:"high" json:"high"`
	Low    float64   `db:"low" json:"low"`
	Close  float64   `db:"close" json:"close"`
	Volume float64   `db:"volume" json:"volume"`
}

// AssetClass categorizes a symbol for cost modelling
type AssetClass string

// Asset classes
const (
	AssetClassStock  AssetClass = "stock"
	AssetClassCrypto AssetClass = "crypto"
	AssetClassForex  AssetClass = "forex"
)

var forexCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"AUD": true, "CAD": true, "NZD": true,
}

// ClassifySymbol infers the asset class from symbol naming conventions
func ClassifySymbol(symbol string) AssetClass {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
	s = strings.ReplaceAll(s, "-", "")
	if strings.HasSuffix(s, "USDT") || strings.HasSuffix(s, "USDC") || strings.HasSuffix(s, "BTC") {
		return AssetClassCrypto
	}
	if len(s) == 6 && forexCurrencies[s[:3]] && forexCurrencies[s[3:]] {
		return AssetClassForex
	}
	return AssetClassStock
}

// SanitizeCandles sorts candles chronologically, removes duplicate timestamps
// and drops any candle timestamped after now. The input slice is not modified.
func SanitizeCandles(candles []Candle, now time.Time) []Candle {
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Time.After(now) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	deduped := out[:0]
	for i, c := range out {
		if i > 0 && c.Time.Equal(out[i-1].Time) {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

// TimeframeDuration converts a timeframe label ("1m", "1h", "1d") to a duration
func TimeframeDuration(timeframe string) (time.Duration, error) {
	switch strings.ToLower(timeframe) {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	}
	return 0, ErrUnknownTimeframe
}

// RecommendedMinCandles returns the minimum candle count for a confident
// backtest on the given timeframe. Runs below this still execute but are
// flagged as degraded-confidence.
func RecommendedMinCandles(timeframe string) int {
	switch strings.ToLower(timeframe) {
	case "1m", "5m":
		return 1000
	case "15m", "30m":
		return 500
	case "1h", "4h":
		return 300
	default:
		return 100
	}
}
