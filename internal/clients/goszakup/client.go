// Package goszakup is the client for the goszakup.gov.kz v3 API (REST and
// GraphQL). It classifies failures, retries the transient ones with
// exponential backoff and keeps under a per-minute request cap.
package goszakup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tenderwatch/internal/domain"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 60 * time.Second
	maxPageSize        = 100
)

// Client talks to the upstream API
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	window      *rateWindow
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	log         zerolog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff sets the first retry delay and the per-wait cap
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

// WithMaxAttempts bounds the attempts per request
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithRateWindow overrides the rolling window length (one minute by default)
func WithRateWindow(d time.Duration) Option {
	return func(c *Client) { c.window.window = d }
}

// NewClient creates a client allowing ratePerMinute requests per rolling minute
func NewClient(baseURL, token string, ratePerMinute int, log zerolog.Logger, opts ...Option) *Client {
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	c := &Client{
		baseURL:     baseURL,
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		window:      newRateWindow(ratePerMinute, time.Minute),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		log:         log.With().Str("component", "goszakup").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// backoff returns the wait before attempt+1: base*2^(attempt-1), or the
// server's Retry-After, capped at maxDelay.
func (c *Client) backoff(attempt int, err error) time.Duration {
	d := c.baseDelay << (attempt - 1)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		d = apiErr.RetryAfter
	}
	if d > c.maxDelay || d <= 0 {
		d = c.maxDelay
	}
	return d
}

// do sends one logical request, retrying transient failures
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := c.backoff(attempt-1, lastErr)
			c.log.Warn().
				Err(lastErr).
				Str("path", path).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("Retrying upstream request")
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}

		if err := c.window.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := c.send(ctx, method, path, query, payload)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("giving up on %s after %d attempts: %w", path, c.maxAttempts, lastErr)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp, data)
	}
	return data, nil
}

// Page is one page of lots
type Page struct {
	Items []domain.Lot `json:"items"`
	Total int          `json:"total"`
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// GetLots returns one offset/limit page of /v3/lots
func (c *Client) GetLots(ctx context.Context, offset, limit int) (*Page, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(clampLimit(limit)))
	query.Set("offset", strconv.Itoa(offset))

	data, err := c.do(ctx, http.MethodGet, "/v3/lots", query, nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Items json.RawMessage `json:"items"`
		Data  json.RawMessage `json:"data"`
		Total int             `json:"total"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &APIError{Type: ErrValidation, Message: "malformed lots page", Err: err}
	}
	items := raw.Items
	if len(items) == 0 {
		items = raw.Data
	}

	page := &Page{Total: raw.Total, Items: []domain.Lot{}}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &page.Items); err != nil {
			return nil, &APIError{Type: ErrValidation, Message: "malformed lot record", Err: err}
		}
	}
	return page, nil
}

// GetLot returns /v3/lots/{id}
func (c *Client) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	data, err := c.do(ctx, http.MethodGet, "/v3/lots/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var lot domain.Lot
	if err := json.Unmarshal(data, &lot); err != nil {
		return nil, &APIError{Type: ErrValidation, Message: "malformed lot record", Err: err}
	}
	return &lot, nil
}

// TrdBuy is the announcement a lot belongs to
type TrdBuy struct {
	ID          json.Number `json:"id"`
	NameRu      string      `json:"name_ru"`
	PublishDate string      `json:"publish_date"`
	EndDate     string      `json:"end_date"`
	TradeMethod string      `json:"ref_trade_methods_id"`
	CustomerBIN string      `json:"customer_bin"`
}

// GetTrdBuy returns /v3/trd-buy/{id}
func (c *Client) GetTrdBuy(ctx context.Context, id string) (*TrdBuy, error) {
	data, err := c.do(ctx, http.MethodGet, "/v3/trd-buy/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var tb TrdBuy
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&tb); err != nil {
		return nil, &APIError{Type: ErrValidation, Message: "malformed trd-buy record", Err: err}
	}
	return &tb, nil
}

// FetchAll pages through /v3/lots until a short page or maxPages pages
func (c *Client) FetchAll(ctx context.Context, pageSize, maxPages int) ([]domain.Lot, error) {
	pageSize = clampLimit(pageSize)
	var lots []domain.Lot
	for page := 0; page < maxPages; page++ {
		p, err := c.GetLots(ctx, page*pageSize, pageSize)
		if err != nil {
			return lots, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		lots = append(lots, p.Items...)
		c.log.Debug().Int("page", page).Int("items", len(p.Items)).Msg("Fetched lots page")
		if len(p.Items) < pageSize {
			break
		}
	}
	return lots, nil
}
