// Package backend is the REST client for the TPA backend: rule creation and
// the price-list and procedure lookups.
package backend

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-health/rulesmith/internal/breaker"
	"github.com/opensource-health/rulesmith/internal/domain"
)

// APIError is a non-2xx backend answer.
type APIError = domain.APIError

// Paths relative to the base URL.
const (
	PathPricingRules   = "/pricing-rules"
	PathPriceLists     = "/price-lists"
	PathProcedureQuery = "/procedures/search"
)

const maxBodyBytes = 4 << 20

// Observer receives per-call timings.
type Observer interface {
	ObserveBackend(operation, status string, d time.Duration)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Optional
	HTTPClient *http.Client
	Breaker    *breaker.CircuitBreaker
	Cache      domain.Cache
	CacheTTL   time.Duration
	Observer   Observer
}

// Client talks to the TPA backend. Calls are never retried.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	breaker  *breaker.CircuitBreaker
	cache    domain.Cache
	cacheTTL time.Duration
	observer Observer
	tracer   trace.Tracer
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base URL %q", opts.BaseURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		http:     hc,
		breaker:  opts.Breaker,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		observer: opts.Observer,
		tracer:   otel.Tracer("rulesmith/backend"),
	}, nil
}

// BreakerSuccess classifies errors for the circuit breaker: backend 4xx
// answers mean the service is up. Caller cancellation, such as a superseded
// lookup, says nothing about backend health.
func BreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status < 500
}

// CreatePricingRule sends the compiled payload once.
func (c *Client) CreatePricingRule(ctx context.Context, tenantID string, req *domain.CreateRuleRequest) (*domain.CreatedRule, error) {
	if req == nil {
		return nil, errors.New("create rule: nil payload")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	raw, err := c.do(ctx, "createPricingRule", tenantID, http.MethodPost, PathPricingRules, nil, body)
	if err != nil {
		return nil, err
	}

	return &domain.CreatedRule{ID: extractID(raw), Raw: raw}, nil
}

// SearchPriceLists queries price lists. Results are cached per tenant.
func (c *Client) SearchPriceLists(ctx context.Context, tenantID string, q domain.PriceListQuery) (*domain.Page[domain.PriceList], error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("size", strconv.Itoa(q.Size))
	if q.Code != "" {
		params.Set("code", q.Code)
	}
	if q.NameEn != "" {
		params.Set("nameEn", q.NameEn)
	}

	return cachedPage[domain.PriceList](ctx, c, tenantID, "price-lists:"+params.Encode(), func() ([]byte, error) {
		return c.do(ctx, "searchPriceLists", tenantID, http.MethodGet, PathPriceLists, params, nil)
	})
}

type procedureSearchBody struct {
	Filters procedureFilters `json:"filters"`
	Page    int              `json:"page"`
	Size    int              `json:"size"`
}

type procedureFilters struct {
	Keyword string `json:"keyword,omitempty"`
}

// SearchProcedures queries procedures. Results are cached per tenant.
func (c *Client) SearchProcedures(ctx context.Context, tenantID string, q domain.ProcedureQuery) (*domain.Page[domain.Procedure], error) {
	body, err := json.Marshal(procedureSearchBody{
		Filters: procedureFilters{Keyword: q.Keyword},
		Page:    q.Page,
		Size:    q.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	return cachedPage[domain.Procedure](ctx, c, tenantID, "procedures:"+string(body), func() ([]byte, error) {
		return c.do(ctx, "searchProcedures", tenantID, http.MethodPost, PathProcedureQuery, nil, body)
	})
}

// Ping checks that the backend base URL answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}

func cachedPage[T any](ctx context.Context, c *Client, tenantID, key string, fetch func() ([]byte, error)) (*domain.Page[T], error) {
	if c.cache != nil {
		cached, err := c.cache.Get(ctx, tenantID, key)
		if err != nil {
			slog.Warn("search cache read failed", "tenant_id", tenantID, "error", err)
		} else if cached != nil {
			var page domain.Page[T]
			if err := json.Unmarshal(cached, &page); err == nil {
				return &page, nil
			}
		}
	}

	raw, err := fetch()
	if err != nil {
		return nil, err
	}

	var page domain.Page[T]
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, tenantID, key, raw, c.cacheTTL); err != nil {
			slog.Warn("search cache write failed", "tenant_id", tenantID, "error", err)
		}
	}
	return &page, nil
}

// do performs one call through the breaker and returns the 2xx body.
func (c *Client) do(ctx context.Context, op, tenantID, method, path string, params url.Values, body []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, errors.New("tenantID is required")
	}

	ctx, span := c.tracer.Start(ctx, "backend."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
			attribute.String("tenant.id", tenantID),
		))
	defer span.End()

	call := func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, op, tenantID, method, path, params, body)
	}

	var raw []byte
	var err error
	if c.breaker != nil {
		raw, err = breaker.Execute(ctx, c.breaker, call)
	} else {
		raw, err = call(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return raw, nil
}

func (c *Client) roundTrip(ctx context.Context, op, tenantID, method, path string, params url.Values, body []byte) ([]byte, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Tenant-ID", tenantID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(op, "error", start)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	c.observe(op, strconv.Itoa(resp.StatusCode), start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	return raw, nil
}

func (c *Client) observe(op, status string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveBackend(op, status, time.Since(start))
	}
}

// errorMessage pulls the backend's own message out of an error body.
func errorMessage(status int, raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		case body.Detail != "":
			return body.Detail
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "{") && len(text) < 512 {
		return text
	}
	return fmt.Sprintf("Request failed with status %d", status)
}

// extractID finds the created rule's id in {"id": ...} or {"data": {"id": ...}}.
func extractID(raw []byte) string {
	var body struct {
		ID   json.RawMessage `json:"id"`
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	id := body.ID
	if len(id) == 0 || string(id) == "null" {
		id = body.Data.ID
	}
	if len(id) == 0 || string(id) == "null" {
		return ""
	}
	return strings.Trim(string(id), `"`)
}
