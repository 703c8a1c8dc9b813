package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-health/rulesmith/internal/breaker"
	"github.com/opensource-health/rulesmith/internal/cache"
	"github.com/opensource-health/rulesmith/internal/domain"
	"github.com/opensource-health/rulesmith/internal/search"
)

func newTestClient(t *testing.T, h http.Handler, mutate func(*Options)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts := Options{BaseURL: srv.URL + "/api", APIKey: "secret", Timeout: 5 * time.Second}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func samplePayload() *domain.CreateRuleRequest {
	return &domain.CreateRuleRequest{
		ProcedureID: 42,
		PriceListID: 7,
		Priority:    1,
		ValidFrom:   "2026-03-15",
		Conditions:  []domain.Condition{{Factor: "doctor_title", Operator: "EQUALS", Value: "SPECIALIST"}},
		Pricing:     domain.Pricing{Mode: "FIXED", FixedPrice: 100},
	}
}

func TestCreatePricingRule(t *testing.T) {
	var got map[string]any
	var headers http.Header

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/pricing-rules" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 981, "status": "ACTIVE"}`))
	}), nil)

	rule, err := c.CreatePricingRule(context.Background(), "tenant-1", samplePayload())
	if err != nil {
		t.Fatalf("CreatePricingRule failed: %v", err)
	}
	if rule.ID != "981" {
		t.Errorf("expected id 981, got %q", rule.ID)
	}
	if len(rule.Raw) == 0 {
		t.Error("raw body not kept")
	}

	if headers.Get("X-Tenant-ID") != "tenant-1" || headers.Get("Authorization") != "Bearer secret" {
		t.Errorf("missing headers: %v", headers)
	}
	if got["procedureId"] != float64(42) || got["priceListId"] != float64(7) {
		t.Errorf("unexpected body %v", got)
	}
	if v, ok := got["validTo"]; !ok || v != nil {
		t.Errorf("validTo must be sent as null, got %v", v)
	}
}

func TestCreatePricingRuleErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"message field", 400, `{"message":"Price list 7 is expired"}`, "Price list 7 is expired"},
		{"error field", 409, `{"error":"Duplicate rule"}`, "Duplicate rule"},
		{"plain text", 502, "upstream unavailable", "upstream unavailable"},
		{"empty body", 500, "", "Request failed with status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}), nil)

			_, err := c.CreatePricingRule(context.Background(), "tenant-1", samplePayload())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.Status != tt.status || apiErr.Message != tt.expected {
				t.Errorf("expected %d %q, got %d %q", tt.status, tt.expected, apiErr.Status, apiErr.Message)
			}
		})
	}
}

func TestCreatePricingRuleNoRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}), nil)

	_, err := c.CreatePricingRule(context.Background(), "tenant-1", samplePayload())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one call, got %d", calls.Load())
	}
}

func TestTenantRequired(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), nil)
	if _, err := c.CreatePricingRule(context.Background(), "", samplePayload()); err == nil {
		t.Error("expected error without tenant")
	}
}

func TestSearchPriceLists(t *testing.T) {
	var calls atomic.Int32
	lru := cache.NewLRUCache(10)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodGet || r.URL.Path != "/api/price-lists" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("code") != "PL-01" || q.Get("page") != "0" || q.Get("size") != "20" || q.Has("nameEn") {
			t.Errorf("unexpected query %v", q)
		}
		_, _ = w.Write([]byte(`{"content":[{"id":7,"code":"PL-01","providerType":"HOSPITAL","regionName":"Riyadh","validFrom":"2026-01-01","validTo":null}],"page":0,"size":20,"totalElements":1}`))
	}), func(o *Options) {
		o.Cache = lru
		o.CacheTTL = time.Minute
	})

	q := domain.PriceListQuery{Page: 0, Size: 20, Code: "PL-01"}
	for i := 0; i < 2; i++ {
		page, err := c.SearchPriceLists(context.Background(), "tenant-1", q)
		if err != nil {
			t.Fatalf("SearchPriceLists failed: %v", err)
		}
		if len(page.Content) != 1 || page.Content[0].ID != 7 || page.Content[0].RegionName != "Riyadh" {
			t.Errorf("unexpected page %+v", page)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected cached second call, got %d backend calls", calls.Load())
	}

	t.Run("OtherTenantNotCached", func(t *testing.T) {
		if _, err := c.SearchPriceLists(context.Background(), "tenant-2", q); err != nil {
			t.Fatalf("SearchPriceLists failed: %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected a backend call for tenant-2, got %d", calls.Load())
		}
	})
}

func TestSearchProcedures(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/procedures/search" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte(`{"content":[{"id":42,"systemCode":"MRI-01","unitOfMeasure":"SESSION","referencePrice":850.5}],"page":1,"size":10,"totalElements":11}`))
	}), nil)

	page, err := c.SearchProcedures(context.Background(), "tenant-1", domain.ProcedureQuery{Keyword: "MRI", Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("SearchProcedures failed: %v", err)
	}
	if page.TotalElements != 11 || page.Content[0].ReferencePrice == nil || *page.Content[0].ReferencePrice != 850.5 {
		t.Errorf("unexpected page %+v", page)
	}

	filters, _ := body["filters"].(map[string]any)
	if filters["keyword"] != "MRI" || body["page"] != float64(1) || body["size"] != float64(10) {
		t.Errorf("unexpected request body %v", body)
	}
}

func TestBreakerIntegration(t *testing.T) {
	var calls atomic.Int32
	cfg := breaker.DefaultConfig("tpa-backend")
	cfg.ConsecutiveFailures = 2
	cfg.MinRequests = 100
	cfg.Timeout = time.Hour
	cfg.IsSuccessful = BreakerSuccess
	cb, err := breaker.New(cfg)
	if err != nil {
		t.Fatalf("breaker.New failed: %v", err)
	}

	status := http.StatusBadRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"nope"}`))
	}), func(o *Options) { o.Breaker = cb })

	for i := 0; i < 3; i++ {
		_, _ = c.CreatePricingRule(context.Background(), "tenant-1", samplePayload())
	}
	if cb.State() != breaker.StateClosed {
		t.Fatalf("4xx answers must not open the circuit, got %s", cb.State())
	}

	status = http.StatusInternalServerError
	for i := 0; i < 2; i++ {
		_, _ = c.CreatePricingRule(context.Background(), "tenant-1", samplePayload())
	}
	if cb.State() != breaker.StateOpen {
		t.Fatalf("expected open circuit, got %s", cb.State())
	}

	before := calls.Load()
	_, err = c.CreatePricingRule(context.Background(), "tenant-1", samplePayload())
	if !breaker.Rejected(err) {
		t.Errorf("expected breaker rejection, got %v", err)
	}
	if calls.Load() != before {
		t.Error("open circuit reached the backend")
	}
}

func TestSupersededLookupsKeepCircuitClosed(t *testing.T) {
	cfg := breaker.DefaultConfig("tpa-backend")
	cfg.IsSuccessful = BreakerSuccess
	cb, err := breaker.New(cfg)
	if err != nil {
		t.Fatalf("breaker.New failed: %v", err)
	}

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/pricing-rules" {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 981}`))
			return
		}
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"id":42,"systemCode":"MRI-01"}],"page":0,"size":20,"totalElements":1}`))
	}), func(o *Options) { o.Breaker = cb })

	cat := search.NewCatalog(c, c, 0, 20)
	keywords := []string{"M", "MR", "MRI", "MRI ", "MRI b", "MRI br", "MRI brain"}
	pages := make([]*domain.Page[domain.Procedure], len(keywords))
	errs := make([]error, len(keywords))

	var wg sync.WaitGroup
	for i, kw := range keywords {
		wg.Add(1)
		go func(i int, kw string) {
			defer wg.Done()
			pages[i], errs[i] = cat.Procedures(context.Background(), "tenant-1", "designer-1", domain.ProcedureQuery{Keyword: kw})
		}(i, kw)
		time.Sleep(30 * time.Millisecond)
	}
	wg.Wait()

	last := len(keywords) - 1
	for i, err := range errs[:last] {
		if !errors.Is(err, search.ErrSuperseded) {
			t.Errorf("call %d: expected ErrSuperseded, got %v", i, err)
		}
	}
	if errs[last] != nil {
		t.Fatalf("latest lookup failed: %v", errs[last])
	}
	if len(pages[last].Content) != 1 || pages[last].Content[0].ID != 42 {
		t.Errorf("unexpected page %+v", pages[last])
	}
	if cb.State() != breaker.StateClosed {
		t.Fatalf("superseded lookups opened the circuit: %s", cb.State())
	}

	if _, err := c.CreatePricingRule(context.Background(), "tenant-1", samplePayload()); err != nil {
		t.Errorf("submit after lookups failed: %v (rejected=%v)", err, breaker.Rejected(err))
	}
}

func TestBreakerSuccess(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "Nil", err: nil, want: true},
		{name: "ClientError", err: &APIError{Status: http.StatusBadRequest}, want: true},
		{name: "ServerError", err: &APIError{Status: http.StatusBadGateway}, want: false},
		{name: "Canceled", err: fmt.Errorf("searchProcedures: %w", context.Canceled), want: true},
		{name: "DeadlineExceeded", err: fmt.Errorf("searchProcedures: %w", context.DeadlineExceeded), want: false},
		{name: "Transport", err: errors.New("connection refused"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BreakerSuccess(tt.err); got != tt.want {
				t.Errorf("BreakerSuccess(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type recordingObserver struct {
	ops []string
}

func (r *recordingObserver) ObserveBackend(op, status string, d time.Duration) {
	r.ops = append(r.ops, op+":"+status)
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"r-1"}}`))
	}), func(o *Options) { o.Observer = obs })

	rule, err := c.CreatePricingRule(context.Background(), "tenant-1", samplePayload())
	if err != nil {
		t.Fatalf("CreatePricingRule failed: %v", err)
	}
	if rule.ID != "r-1" {
		t.Errorf("expected nested id, got %q", rule.ID)
	}
	if len(obs.ops) != 1 || obs.ops[0] != "createPricingRule:200" {
		t.Errorf("unexpected observations %v", obs.ops)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "not a url"}); err == nil {
		t.Error("expected error for invalid base URL")
	}
}
