package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/models"
)

// HTTPProvider fetches candles from a REST market-data API. Prices arrive as
// strings and are parsed through decimal to avoid float artifacts before
// conversion into the simulator's float64 candles.
type HTTPProvider struct {
	httpClient *RateLimitedHTTPClient
	baseURL    string
	apiKey     string
	logger     *logrus.Logger
}

// wireCandle is the provider's JSON candle shape
type wireCandle struct {
	Time   int64  `json:"t"`
	Open   string `json:"o"`
	High   string `json:"h"`
	Low    string `json:"l"`
	Close  string `json:"c"`
	Volume string `json:"v"`
}

type candleResponse struct {
	Symbol  string       `json:"symbol"`
	Candles []wireCandle `json:"candles"`
}

// NewHTTPProvider creates a candle provider against the given base URL
func NewHTTPProvider(httpClient *RateLimitedHTTPClient, baseURL, apiKey string, logger *logrus.Logger) *HTTPProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &HTTPProvider{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// GetCandles fetches up to limit candles for the symbol and timeframe.
// Candles the provider sends with unparseable prices are dropped, not
// surfaced as errors.
func (p *HTTPProvider) GetCandles(ctx context.Context, symbol, timeframe string, limit int, start, end time.Time) ([]models.Candle, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("timeframe", timeframe)
	query.Set("limit", fmt.Sprintf("%d", limit))
	if !start.IsZero() {
		query.Set("start", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		query.Set("end", end.UTC().Format(time.RFC3339))
	}

	endpoint := fmt.Sprintf("%s/candles?%s", p.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create candle request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("data provider rejected API key")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("data provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload candleResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse candle response: %w", err)
	}

	candles := make([]models.Candle, 0, len(payload.Candles))
	dropped := 0
	for _, wc := range payload.Candles {
		candle, ok := parseWireCandle(wc)
		if !ok {
			dropped++
			continue
		}
		candles = append(candles, candle)
	}
	if dropped > 0 {
		p.logger.WithFields(logrus.Fields{
			"symbol":  symbol,
			"dropped": dropped,
		}).Warn("Dropped candles with unparseable prices")
	}

	return candles, nil
}

// Close releases the underlying HTTP client
func (p *HTTPProvider) Close() error {
	return p.httpClient.Close()
}

func parseWireCandle(wc wireCandle) (models.Candle, bool) {
	open, err1 := decimal.NewFromString(wc.Open)
	high, err2 := decimal.NewFromString(wc.High)
	low, err3 := decimal.NewFromString(wc.Low)
	closePrice, err4 := decimal.NewFromString(wc.Close)
	volume, err5 := decimal.NewFromString(wc.Volume)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return models.Candle{}, false
	}

	return models.Candle{
		Time:   time.Unix(wc.Time, 0).UTC(),
		Open:   open.InexactFloat64(),
		High:   high.InexactFloat64(),
		Low:    low.InexactFloat64(),
		Close:  closePrice.InexactFloat64(),
		Volume: volume.InexactFloat64(),
	}, true
}
