// Package memory provides a best-effort client for the external
// pattern-memory (MCN) service. Every call degrades to a neutral result on
// failure; nothing in an evolution cycle may block on this service.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/evo-trader/internal/config"
)

// Event types recorded to pattern memory
const (
	EventBacktestComplete = "backtest_complete"
	EventStatusTransition = "status_transition"
	EventMutationSpawned  = "mutation_spawned"
)

// Match is one ranked result from a pattern query
type Match struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Client records events to and queries the MCN service. After FailureLimit
// consecutive errors the client goes quiet for a cooldown window instead of
// hammering a down service.
type Client struct {
	client       *http.Client
	baseURL      string
	enabled      bool
	failureLimit int
	logger       *logrus.Logger

	mu           sync.Mutex
	failures     int
	quietUntil   time.Time
}

const failureCooldown = 5 * time.Minute

// NewClient creates a pattern-memory client from config
func NewClient(cfg config.MemoryConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := cfg.FailureLimit
	if limit <= 0 {
		limit = 3
	}
	return &Client{
		client:       &http.Client{Timeout: timeout},
		baseURL:      cfg.BaseURL,
		enabled:      cfg.Enabled && cfg.BaseURL != "",
		failureLimit: limit,
		logger:       logger,
	}
}

// RecordEvent sends an event to pattern memory. Never returns an error;
// failures are logged and counted toward the quiet period.
func (c *Client) RecordEvent(ctx context.Context, eventType string, payload interface{}) {
	if !c.available() {
		return
	}

	body, err := json.Marshal(map[string]interface{}{
		"type":    eventType,
		"payload": payload,
		"at":      time.Now().UTC(),
	})
	if err != nil {
		c.logger.WithField("error", err).Debug("Failed to marshal memory event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/events", bytes.NewBuffer(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure(err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		c.recordFailure(fmt.Errorf("memory service returned status %d", resp.StatusCode))
		return
	}
	c.recordSuccess()
}

// Query returns ranked matches for a feature vector, or an empty slice on
// any failure.
func (c *Client) Query(ctx context.Context, vector []float64) []Match {
	if !c.available() {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{"vector": vector})
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/query", bytes.NewBuffer(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordFailure(err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.recordFailure(fmt.Errorf("memory query returned status %d", resp.StatusCode))
		return nil
	}

	var result struct {
		Matches []Match `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.recordFailure(err)
		return nil
	}
	c.recordSuccess()
	return result.Matches
}

func (c *Client) available() bool {
	if !c.enabled {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().After(c.quietUntil)
}

func (c *Client) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= c.failureLimit {
		c.quietUntil = time.Now().Add(failureCooldown)
		c.failures = 0
		c.logger.WithFields(logrus.Fields{
			"cooldown": failureCooldown,
			"error":    err,
		}).Warn("Pattern memory unavailable, entering quiet period")
		return
	}
	c.logger.WithField("error", err).Debug("Pattern memory call failed")
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
}
