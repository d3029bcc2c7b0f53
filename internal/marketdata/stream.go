package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/models"
)

// StreamClient maintains a websocket subscription to the provider's live
// candle feed and forwards closed bars to a handler, typically a cache
// warmer. The stream is an optimization only; evolution cycles function
// without it.
type StreamClient struct {
	url       string
	apiKey    string
	reconnect ReconnectConfig
	handler   CandleHandler
	logger    *logrus.Logger

	mu          sync.RWMutex
	conn        *websocket.Conn
	isConnected bool
}

// CandleHandler receives each closed candle from the stream
type CandleHandler func(symbol, timeframe string, candle models.Candle)

// ReconnectConfig controls stream reconnection backoff
type ReconnectConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultReconnectConfig returns default reconnection behavior
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:        10,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

type streamMessage struct {
	Op        string     `json:"op"`
	Symbol    string     `json:"symbol,omitempty"`
	Timeframe string     `json:"timeframe,omitempty"`
	Candle    wireCandle `json:"candle,omitempty"`
	Heartbeat bool       `json:"heartbeat,omitempty"`
}

type subscribeMessage struct {
	Op      string   `json:"op"`
	AuthKey string   `json:"auth_key"`
	Symbols []string `json:"symbols"`
}

// NewStreamClient creates a live candle stream client
func NewStreamClient(url, apiKey string, reconnect ReconnectConfig, handler CandleHandler, logger *logrus.Logger) *StreamClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &StreamClient{
		url:       url,
		apiKey:    apiKey,
		reconnect: reconnect,
		handler:   handler,
		logger:    logger,
	}
}

// Run connects, subscribes, and consumes the stream until the context is
// cancelled, reconnecting with exponential backoff on failure.
func (s *StreamClient) Run(ctx context.Context, symbols []string) error {
	backoff := s.reconnect.InitialBackoff
	retries := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.consume(ctx, symbols)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		retries++
		if s.reconnect.MaxRetries > 0 && retries > s.reconnect.MaxRetries {
			return fmt.Errorf("stream gave up after %d reconnect attempts: %w", retries-1, err)
		}

		s.logger.WithFields(logrus.Fields{
			"attempt": retries,
			"backoff": backoff,
			"error":   err,
		}).Warn("Candle stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * s.reconnect.BackoffMultiplier)
		if backoff > s.reconnect.MaxBackoff {
			backoff = s.reconnect.MaxBackoff
		}
	}
}

func (s *StreamClient) consume(ctx context.Context, symbols []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial stream: %w", err)
	}
	defer conn.Close()

	s.setConn(conn, true)
	defer s.setConn(nil, false)

	sub := subscribeMessage{Op: "subscribe", AuthKey: s.apiKey, Symbols: symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.WithField("error", err).Debug("Skipping malformed stream message")
			continue
		}
		if msg.Heartbeat || msg.Op != "candle" {
			continue
		}

		candle, ok := parseWireCandle(msg.Candle)
		if !ok {
			continue
		}
		if s.handler != nil {
			s.handler(msg.Symbol, msg.Timeframe, candle)
		}
	}
}

// IsConnected reports the current connection state
func (s *StreamClient) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

func (s *StreamClient) setConn(conn *websocket.Conn, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.isConnected = connected
}
