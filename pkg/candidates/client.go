package candidates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ecolote/leadengine/pkg/config"
	pkgerrors "github.com/ecolote/leadengine/pkg/errors"
)

const (
	candidatesPath             = "candidates"
	errorBodyReadLimit   int64 = 1024
	defaultInitialRetry        = 500 * time.Millisecond
	defaultMaxRetryDelay       = 10 * time.Second
)

var errBaseURLRequired = errors.New("candidate source base url is required")

// Candidate is a scraped business record that may become a lead.
type Candidate struct {
	PlaceID          string     `json:"place_id,omitempty"`
	Name             string     `json:"name" validate:"required"`
	FormattedAddress string     `json:"formatted_address" validate:"required"`
	City             string     `json:"city,omitempty"`
	State            string     `json:"state,omitempty"`
	Neighborhood     string     `json:"neighborhood,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	ImageURLs        []string   `json:"image_urls,omitempty"`
	Type             string     `json:"type,omitempty"`
	Latitude         *float64   `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude        *float64   `json:"longitude,omitempty" validate:"omitempty,longitude"`
	CollectedAt      *time.Time `json:"collected_at,omitempty"`
}

// Query selects which candidates the source should scrape.
type Query struct {
	City  string `json:"city"`
	State string `json:"state"`
	Term  string `json:"term"`
}

type fetchResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// Client calls the external scraper service that produces candidates.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	limiter      *rate.Limiter
	maxRetries   uint64
	initialRetry time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithInitialRetryInterval sets the first backoff delay.
func WithInitialRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.initialRetry = d
		}
	}
}

// NewClient builds a candidate source client from configuration.
func NewClient(cfg config.CandidatesConfig, opts ...Option) (*Client, error) {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		limiter:      rate.NewLimiter(limit, burst),
		maxRetries:   cfg.MaxRetries,
		initialRetry: defaultInitialRetry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.baseURL == "" {
		return nil, errBaseURLRequired
	}
	return client, nil
}

// Fetch asks the source for candidates matching the query. Transport errors and
// 5xx responses are retried; everything else fails immediately.
func (c *Client) Fetch(ctx context.Context, q Query) ([]Candidate, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeIngestion, "candidate source not configured")
	}
	if strings.TrimSpace(q.Term) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "term is required")
	}

	payload, err := json.Marshal(q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIngestion, err, "marshal candidate query")
	}

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+candidatesPath, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("execute candidate request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusInternalServerError {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
			return fmt.Errorf("candidate source status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		}
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
			return backoff.Permanent(fmt.Errorf("candidate source status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read candidate response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialRetry
	b.MaxInterval = defaultMaxRetryDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIngestion, err, "fetch candidates").
			WithDetails(map[string]any{"term": q.Term, "attempts": attempt})
	}

	var decoded fetchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIngestion, err, "decode candidate response").
			WithDetails(map[string]any{"term": q.Term})
	}
	for i := range decoded.Candidates {
		if decoded.Candidates[i].Type == "" {
			decoded.Candidates[i].Type = q.Term
		}
	}
	return decoded.Candidates, nil
}
