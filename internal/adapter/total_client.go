package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/portfolio-tracker/internal/circuitbreaker"
	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/types"
)

// TotalPath is the bot endpoint serving the portfolio composition.
const TotalPath = "/portfolio/total"

// TotalClient queries the bot service for the current portfolio total
type TotalClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *logging.Logger
}

// NewTotalClient creates a client for the bot's total-value query.
// Each call is bounded by timeout.
func NewTotalClient(baseURL string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker, logger *logging.Logger) *TotalClient {
	return &TotalClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger.WithField("component", "total_client"),
	}
}

// FetchTotal returns the bot's current composition payload
func (c *TotalClient) FetchTotal(ctx context.Context) (*types.TotalList, error) {
	var list *types.TotalList
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		list, err = c.fetch(ctx)
		return err
	})
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailableError("portfolio bot", err)
	}
	return list, nil
}

func (c *TotalClient) fetch(ctx context.Context) (*types.TotalList, error) {
	url := c.baseURL + TotalPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() {
		_ = resp.Body.Close() // nolint:errcheck // response body
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, string(body))
	}

	var list types.TotalList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode total response: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"items":    len(list.Items),
		"duration": time.Since(start).String(),
	}).Debug("fetched portfolio total")

	return &list, nil
}
