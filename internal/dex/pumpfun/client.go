// internal/dex/pumpfun/client.go
package pumpfun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/domain"
)

const (
	candidatesPath  = "/coins/for-you"
	candidatesLimit = 50
	coinPath        = "/coins/"

	defaultTimeout      = 10 * time.Second
	defaultMaxTries     = 3
	defaultRetryInitial = 500 * time.Millisecond
	maxBodyBytes        = 4 << 20
)

// ClientConfig configures the market data client.
type ClientConfig struct {
	BaseURL           string
	RequestsPerSecond int
	Timeout           time.Duration
	MaxTries          uint
	RetryInitial      time.Duration
}

// Client reads coin data from the pump.fun frontend API.
type Client struct {
	baseURL      string
	http         *http.Client
	limiter      ratelimit.Limiter
	maxTries     uint
	retryInitial time.Duration
	logger       *zap.Logger
}

// coin is the subset of the pump.fun coin object the bot uses.
type coin struct {
	Mint         string  `json:"mint"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	USDMarketCap float64 `json:"usd_market_cap"`
	Website      string  `json:"website"`
	Telegram     string  `json:"telegram"`
	Twitter      string  `json:"twitter"`
}

// statusError carries a non-2xx HTTP status.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// NewClient creates a market data client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = defaultRetryInitial
	}
	limiter := ratelimit.NewUnlimited()
	if cfg.RequestsPerSecond > 0 {
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		http:         &http.Client{Timeout: cfg.Timeout},
		limiter:      limiter,
		maxTries:     cfg.MaxTries,
		retryInitial: cfg.RetryInitial,
		logger:       logger.Named("pumpfun"),
	}
}

// ListCandidates returns the coins currently promoted by pump.fun. Records
// without a mint or a positive market cap are dropped.
func (c *Client) ListCandidates(ctx context.Context) ([]domain.TokenSummary, error) {
	q := url.Values{}
	q.Set("offset", "0")
	q.Set("limit", fmt.Sprintf("%d", candidatesLimit))
	q.Set("includeNsfw", "false")

	var coins []coin
	if err := c.getJSON(ctx, candidatesPath+"?"+q.Encode(), &coins); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	out := make([]domain.TokenSummary, 0, len(coins))
	for _, cn := range coins {
		if cn.Mint == "" || cn.USDMarketCap <= 0 {
			continue
		}
		out = append(out, cn.summary())
	}
	return out, nil
}

// GetSnapshot returns the current market cap of tokenID.
func (c *Client) GetSnapshot(ctx context.Context, tokenID string) (domain.MarketSnapshot, error) {
	var cn coin
	if err := c.getJSON(ctx, coinPath+url.PathEscape(tokenID), &cn); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("snapshot %s: %w", tokenID, err)
	}
	if cn.USDMarketCap <= 0 {
		return domain.MarketSnapshot{}, fmt.Errorf("snapshot %s: invalid market cap %v", tokenID, cn.USDMarketCap)
	}
	return domain.MarketSnapshot{
		TokenID:   tokenID,
		Name:      cn.Name,
		Value:     cn.USDMarketCap,
		Timestamp: time.Now(),
	}, nil
}

func (cn coin) summary() domain.TokenSummary {
	return domain.TokenSummary{
		TokenID:  cn.Mint,
		Name:     cn.Name,
		Symbol:   cn.Symbol,
		Value:    cn.USDMarketCap,
		Website:  cn.Website,
		Telegram: cn.Telegram,
		Twitter:  cn.Twitter,
	}
}

// getJSON performs a rate limited GET with retries and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInitial
	policy.MaxInterval = c.retryInitial * 8

	notify := func(err error, d time.Duration) {
		c.logger.Debug("Retrying market data request",
			zap.String("path", path),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.do(ctx, path)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	c.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &statusError{code: resp.StatusCode, body: truncate(string(body), 200)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(se)
		}
		return nil, se
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
