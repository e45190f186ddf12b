// Package api is the HTTP client for the analytics service that computes
// history, indicators, signals and forecasts.
package api

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

	"github.com/rs/zerolog"

	"github.com/Omsherani/stock-market/internal/market"
	"github.com/Omsherani/stock-market/internal/metrics"
	"github.com/Omsherani/stock-market/internal/stats"
)

const (
	defaultBaseURL   = "http://127.0.0.1:5000/api"
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "stock-market/1.0"
	maxErrorBody     = 4 << 10
)

// GenericMessage is surfaced when the service gave no usable error text.
const GenericMessage = "Failed to fetch data. Is the backend running?"

// ErrUnavailable wraps transport failures (connection refused, timeouts, bad payloads).
var ErrUnavailable = errors.New("analytics service unavailable")

// APIError is a non-2xx answer from the service.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Endpoint, e.Message, e.Status)
}

// ServerMessage returns the service's own error text, or "" when it sent none.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// Message extracts the user-facing text for a failed request.
func Message(err error) string {
	if msg := ServerMessage(err); msg != "" {
		return msg
	}
	return GenericMessage
}

// Client talks to the analytics service.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	log       zerolog.Logger
}

// Option configures Client construction parameters.
type Option func(*Client)

// WithBaseURL overrides the service root (for example http://host:5000/api).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithHTTPClient injects a preconfigured http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient constructs a client with sane defaults.
func NewClient(log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		log:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchStock loads history, stats and signals for a symbol.
func (c *Client) FetchStock(ctx context.Context, symbol string) (*market.StockPayload, error) {
	var payload market.StockPayload
	if err := c.get(ctx, "stock", "/stock/"+url.PathEscape(symbol), &payload); err != nil {
		return nil, err
	}
	if payload.Symbol == "" {
		payload.Symbol = symbol
	}
	return &payload, nil
}

type priceResponse struct {
	Price *float64 `json:"price"`
}

// FetchPrice loads the latest price. A payload without a usable price is not
// an error: it yields Quote{OK: false}.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (market.Quote, error) {
	var payload priceResponse
	if err := c.get(ctx, "price", "/price/"+url.PathEscape(symbol), &payload); err != nil {
		return market.Quote{}, err
	}
	if payload.Price == nil || !stats.ValidPrice(*payload.Price) {
		c.log.Debug().Str("symbol", symbol).Msg("price payload without usable price")
		return market.Quote{}, nil
	}
	return market.Quote{Price: *payload.Price, OK: true}, nil
}

// Quote lets the client act as a live quote source.
func (c *Client) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	return c.FetchPrice(ctx, symbol)
}

type predictionResponse struct {
	Symbol      string                   `json:"symbol"`
	Model       string                   `json:"model"`
	Predictions []market.PredictionPoint `json:"predictions"`
}

// FetchPrediction asks the service for a forecast with the given model.
func (c *Client) FetchPrediction(ctx context.Context, symbol string, kind market.ModelKind) ([]market.PredictionPoint, error) {
	path := "/predict/" + url.PathEscape(symbol) + "?" + url.Values{"model": {string(kind)}}.Encode()
	var payload predictionResponse
	if err := c.get(ctx, "predict", path, &payload); err != nil {
		return nil, err
	}
	return payload.Predictions, nil
}

// Health pings the service's health endpoint. The root sits one level above /api.
func (c *Client) Health(ctx context.Context) error {
	root := strings.TrimSuffix(c.baseURL, "/api")
	return c.getURL(ctx, "health", root+"/health", nil)
}

func (c *Client) get(ctx context.Context, endpoint, path string, out any) error {
	return c.getURL(ctx, endpoint, c.baseURL+path, out)
}

func (c *Client) getURL(ctx context.Context, endpoint, target string, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.FetchTotal.WithLabelValues(endpoint, result).Inc()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(endpoint, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUnavailable, endpoint, err)
	}
	return nil
}

func decodeError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Error
	}
	return apiErr
}
