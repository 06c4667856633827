// Package transport talks to the authoritative store over HTTP/JSON.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	TerminalIDHeader     = "X-Terminal-ID"

	maxResponseSize = 16 << 20
)

type Config struct {
	BaseURL        string
	TerminalID     string
	RequestTimeout time.Duration
	RatePerSecond  float64
	Burst          int
	// Breaker trips after this many consecutive server faults.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		RequestTimeout:  10 * time.Second,
		RatePerSecond:   20,
		Burst:           10,
		BreakerFailures: 5,
		BreakerTimeout:  15 * time.Second,
	}
}

// Client implements every collaborator call the terminal makes.
type Client struct {
	baseURL  string
	terminal string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]byte]
	limiter  *rate.Limiter
	log      *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = float64(rate.Inf)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		terminal: cfg.TerminalID,
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		log:     log,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "store",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			var he *HTTPError
			if errors.As(err, &he) {
				return he.clientFault()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Client) CreateOrder(ctx context.Context, payload domain.OrderPayload, idempotencyKey string) (domain.Order, error) {
	var out domain.Order
	headers := map[string]string{IdempotencyKeyHeader: idempotencyKey}
	err := c.do(ctx, http.MethodPost, c.path(domain.EntityOrder), nil, payload, headers, &out)
	return out, err
}

func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.path(domain.EntityOrder, id), nil, nil, nil, nil)
}

type openCashSessionRequest struct {
	StartAmount decimal.Decimal `json:"start_amount"`
}

func (c *Client) OpenCashSession(ctx context.Context, startAmount decimal.Decimal) (domain.CashSession, error) {
	var out domain.CashSession
	err := c.do(ctx, http.MethodPost, c.path(domain.EntityCashSession), nil,
		openCashSessionRequest{StartAmount: startAmount}, nil, &out)
	return out, err
}

func (c *Client) CloseCashSession(ctx context.Context, id string, patch domain.CashSessionClose) (domain.CashSession, error) {
	var out domain.CashSession
	err := c.do(ctx, http.MethodPatch, c.path(domain.EntityCashSession, id), nil, patch, nil, &out)
	return out, err
}

type createWithdrawalRequest struct {
	CashSessionID string          `json:"cash_session_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}

func (c *Client) CreateWithdrawal(ctx context.Context, sessionID string, amount decimal.Decimal, description string) (domain.CashWithdrawal, error) {
	var out domain.CashWithdrawal
	err := c.do(ctx, http.MethodPost, c.path(domain.EntityWithdrawal), nil, createWithdrawalRequest{
		CashSessionID: sessionID,
		Amount:        amount,
		Description:   description,
	}, nil, &out)
	return out, err
}

func (c *Client) DeleteWithdrawal(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.path(domain.EntityWithdrawal, id), nil, nil, nil, nil)
}

type createCoworkingRequest struct {
	ClientName string `json:"client_name"`
}

func (c *Client) CreateCoworkingSession(ctx context.Context, clientName string) (domain.CoworkingSession, error) {
	var out domain.CoworkingSession
	err := c.do(ctx, http.MethodPost, c.path(domain.EntityCoworkingSession), nil,
		createCoworkingRequest{ClientName: clientName}, nil, &out)
	return out, err
}

func (c *Client) UpdateCoworkingSession(ctx context.Context, id string, patch domain.CoworkingPatch) (domain.CoworkingSession, error) {
	var out domain.CoworkingSession
	err := c.do(ctx, http.MethodPatch, c.path(domain.EntityCoworkingSession, id), nil, patch, nil, &out)
	return out, err
}

func (c *Client) DeleteCoworkingSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.path(domain.EntityCoworkingSession, id), nil, nil, nil, nil)
}

// List fetches a whole collection, limit items per page. The store answers
// either with a bare array or with a {data, pagination} envelope; pages are
// followed until the envelope total is reached.
func (c *Client) List(ctx context.Context, entity domain.EntityType, limit int) ([]json.RawMessage, error) {
	var all []json.RawMessage
	var prevFirst json.RawMessage
	for page := 1; page <= maxListPages; page++ {
		q := url.Values{}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		if page > 1 {
			q.Set("page", strconv.Itoa(page))
		}
		var body json.RawMessage
		if err := c.do(ctx, http.MethodGet, c.path(entity), q, nil, nil, &body); err != nil {
			return nil, err
		}
		items, total, err := decodeList(body)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", entity.Plural(), err)
		}
		if len(items) == 0 {
			break
		}
		if prevFirst != nil && bytes.Equal(prevFirst, items[0]) {
			c.log.WarnContext(ctx, "store ignored the page parameter, collection truncated",
				"collection", entity.Plural(), "loaded", len(all), "total", total)
			break
		}
		prevFirst = items[0]
		all = append(all, items...)
		if limit <= 0 || len(all) >= total {
			break
		}
	}
	if all == nil {
		all = []json.RawMessage{}
	}
	return all, nil
}

// maxListPages bounds one List call.
const maxListPages = 1000

type listEnvelope struct {
	Data       []json.RawMessage `json:"data"`
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

func decodeList(body json.RawMessage) ([]json.RawMessage, int, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || string(body) == "null" {
		return []json.RawMessage{}, 0, nil
	}
	if body[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, 0, err
		}
		return items, len(items), nil
	}
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, 0, err
	}
	if env.Data == nil {
		env.Data = []json.RawMessage{}
	}
	return env.Data, env.Pagination.Total, nil
}

func (c *Client) path(entity domain.EntityType, id ...string) string {
	p := "/" + entity.Plural()
	for _, part := range id {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	payload, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, query, body, headers)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s %s: %w", method, path, &unavailableError{cause: err})
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any, headers map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.terminal != "" {
		req.Header.Set(TerminalIDHeader, c.terminal)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// errorMessage extracts {"error": "..."} or {"message": "..."} bodies.
func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
