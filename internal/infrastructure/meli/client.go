// Package meli implements the OrderPlatform port against the Mercado Libre
// REST API: paginated order search, single-order fetch, bearer credentials
// with transparent refresh, and retry with exponential backoff that honors
// server throttling hints.
package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nexus/backend/internal/domain/integration"
)

// maxResponseSize is the maximum allowed API response size (10MB)
const maxResponseSize = 10 * 1024 * 1024

// dateLayout is the timestamp format the search filters expect
const dateLayout = time.RFC3339

// Client implements integration.OrderPlatform for Mercado Libre
type Client struct {
	config     *Config
	httpClient *http.Client
	tokens     integration.TokenProvider
	policy     RetryPolicy
	logger     *zap.Logger
}

// NewClient creates a Mercado Libre API client. The underlying HTTP client
// and its connection pool are shared by all concurrent callers.
func NewClient(config *Config, tokens integration.TokenProvider, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		MaxIdleConns:        config.PoolMaxConns,
		MaxIdleConnsPerHost: config.PoolMaxConns,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		tokens: tokens,
		policy: NewRetryPolicy(config),
		logger: logger,
	}, nil
}

// SearchOrders fetches one page of orders matching the request filter
func (c *Client) SearchOrders(ctx context.Context, req *integration.OrderSearchRequest) (*integration.OrderSearchPage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("seller", strconv.FormatInt(req.AccountID, 10))
	query.Set("offset", strconv.Itoa(req.Offset))
	query.Set("limit", strconv.Itoa(req.Limit))
	query.Set("sort", req.Sort.String())
	if req.DateFrom != nil {
		query.Set("order.date_closed.from", req.DateFrom.Format(dateLayout))
	}
	if req.DateTo != nil {
		query.Set("order.date_closed.to", req.DateTo.Format(dateLayout))
	}
	if req.Status != "" {
		query.Set("order.status", req.Status)
	}

	body, err := c.doRequest(ctx, req.AccountID, "/orders/search?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}

	limit := resp.Paging.Limit
	if limit == 0 {
		limit = req.Limit
	}
	return &integration.OrderSearchPage{
		Results: resp.Results,
		Total:   resp.Paging.Total,
		Offset:  resp.Paging.Offset,
		Limit:   limit,
	}, nil
}

// GetOrder fetches the full order document for a single order id
func (c *Client) GetOrder(ctx context.Context, accountID int64, orderID string) (*integration.OrderDocument, error) {
	if orderID == "" {
		return nil, integration.ErrOrderNotFound
	}

	body, err := c.doRequest(ctx, accountID, "/orders/"+url.PathEscape(orderID))
	if err != nil {
		return nil, err
	}

	var doc integration.OrderDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	return &doc, nil
}

// doRequest performs one authenticated GET with the retry policy. An HTTP 401
// triggers a single transparent credential refresh; a second 401 for the same
// request is fatal.
func (c *Client) doRequest(ctx context.Context, accountID int64, path string) ([]byte, error) {
	token, err := c.tokens.ValidToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	refreshed := false
	var lastStatus int

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("meli: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Network errors are retried like 5xx responses
			lastStatus = 0
			c.logger.Warn("request failed",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if attempt < c.policy.MaxAttempts {
				if err := sleep(ctx, c.policy.Backoff(attempt, "")); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("meli: read response: %w", readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil

		case resp.StatusCode == http.StatusUnauthorized:
			if refreshed {
				return nil, fmt.Errorf("%w: account %d", integration.ErrPlatformUnauthorized, accountID)
			}
			refreshed = true
			token, err = c.tokens.Refresh(ctx, accountID)
			if err != nil {
				return nil, fmt.Errorf("%w: account %d: %v", integration.ErrPlatformUnauthorized, accountID, err)
			}
			c.logger.Info("credential refreshed after 401",
				zap.Int64("account_id", accountID),
				zap.String("path", path))
			// Retry the same page immediately without consuming an attempt
			attempt--
			continue

		case resp.StatusCode == http.StatusNotFound:
			return nil, integration.ErrOrderNotFound

		case c.policy.Retryable(resp.StatusCode):
			lastStatus = resp.StatusCode
			c.logger.Warn("retryable platform response",
				zap.String("path", path),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt))
			if attempt < c.policy.MaxAttempts {
				if err := sleep(ctx, c.policy.Backoff(attempt, resp.Header.Get("Retry-After"))); err != nil {
					return nil, err
				}
				continue
			}

		default:
			return nil, fmt.Errorf("%w: HTTP %d: %s", integration.ErrPlatformRequestFailed, resp.StatusCode, apiErrorMessage(body))
		}
	}

	if lastStatus == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: retries exhausted", integration.ErrPlatformRateLimited)
	}
	return nil, fmt.Errorf("%w: retries exhausted, last status %d", integration.ErrPlatformRequestFailed, lastStatus)
}

// apiErrorMessage extracts the platform's error message from an error body,
// falling back to a trimmed raw body.
func apiErrorMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	if len(body) > 120 {
		body = body[:120]
	}
	return string(body)
}

// Ensure Client implements OrderPlatform
var _ integration.OrderPlatform = (*Client)(nil)
