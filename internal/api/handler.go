package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-health/rulesmith/internal/breaker"
	"github.com/opensource-health/rulesmith/internal/designer"
	"github.com/opensource-health/rulesmith/internal/domain"
	"github.com/opensource-health/rulesmith/internal/factors"
	"github.com/opensource-health/rulesmith/internal/observability"
	"github.com/opensource-health/rulesmith/internal/preview"
	"github.com/opensource-health/rulesmith/internal/repository"
	"github.com/opensource-health/rulesmith/internal/search"
)

const maxRequestBytes = 1 << 20

// Pinger is a dependency with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP API. Optional fields may be nil.
type Deps struct {
	Taxonomy  *factors.Taxonomy
	Compiler  *designer.Compiler
	Simulator *preview.Simulator
	Sessions  *designer.SessionStore
	Catalog   *search.Catalog

	// Optional
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Backend    Pinger
	Breaker    *breaker.CircuitBreaker
	Metrics    *observability.Metrics
	Version    string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string                      `json:"error"`
	Tab           designer.Tab                `json:"tab,omitempty"`
	Issues        []*designer.ValidationError `json:"issues,omitempty"`
	BackendStatus int                         `json:"backendStatus,omitempty"`
}

// PreviewRequest is the body of POST /rules/preview. Exactly one of Form
// and Payload is used; Form wins when both are sent.
type PreviewRequest struct {
	Form    *domain.RuleFormState     `json:"form,omitempty"`
	Payload *domain.CreateRuleRequest `json:"payload,omitempty"`
	Sample  map[string]any            `json:"sample"`
}

// UnmarshalJSON decodes a posted form over the designer defaults, so
// omitted fields read the same as in a fresh session.
func (p *PreviewRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Form    json.RawMessage           `json:"form"`
		Payload *domain.CreateRuleRequest `json:"payload"`
		Sample  map[string]any            `json:"sample"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = PreviewRequest{Payload: raw.Payload, Sample: raw.Sample}
	if len(raw.Form) == 0 || string(raw.Form) == "null" {
		return nil
	}
	form := designer.NewForm(time.Now())
	if err := json.Unmarshal(raw.Form, &form); err != nil {
		return fmt.Errorf("form: %w", err)
	}
	p.Form = &form
	return nil
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	if h.deps.Repository != nil {
		check("repository", h.deps.Repository)
	}
	if h.deps.Cache != nil {
		check("cache", h.deps.Cache)
	}
	if h.deps.Bus != nil {
		check("eventBus", h.deps.Bus)
	}

	resp := map[string]any{
		"status":  status,
		"version": h.deps.Version,
		"checks":  checks,
	}
	if h.deps.Breaker != nil {
		resp["backendCircuit"] = h.deps.Breaker.State()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether the journal and the backend are reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.deps.Repository != nil {
		if err := h.deps.Repository.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "repository unavailable"})
			return
		}
	}
	if h.deps.Backend != nil {
		if err := h.deps.Backend.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "backend unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// ListFactors returns the factor taxonomy grouped by category.
func (h *Handler) ListFactors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": h.deps.Taxonomy.Categories(),
	})
}

// CompileRule compiles a posted form without submitting it. Omitted fields
// take the designer defaults.
func (h *Handler) CompileRule(w http.ResponseWriter, r *http.Request) {
	form := designer.NewForm(time.Now())
	if !decodeJSON(w, r, &form) {
		return
	}

	payload, err := h.deps.Compiler.Compile(form)
	h.observeCompile(err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// PreviewRule compiles a form (or takes a payload) and simulates it against a sample.
func (h *Handler) PreviewRule(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	payload := req.Payload
	if req.Form != nil {
		var err error
		payload, err = h.deps.Compiler.Compile(*req.Form)
		h.observeCompile(err)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}
	if payload == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "form or payload is required"})
		return
	}

	result, err := h.deps.Simulator.Simulate(payload, req.Sample)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateSession opens a designer session for the tenant.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.deps.Sessions.Create(GetTenantID(r.Context()))
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

// GetSession returns the session snapshot.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// DeleteSession closes a session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Sessions.Delete(GetTenantID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DispatchAction applies one designer action to the session form.
func (h *Handler) DispatchAction(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var raw json.RawMessage
	if !decodeJSON(w, r, &raw) {
		return
	}
	action, err := designer.DecodeAction(raw)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if _, err := session.Dispatch(action); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// SubmitSession compiles the session form and creates the rule on the backend.
func (h *Handler) SubmitSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	result, err := session.Submit(r.Context())
	if err != nil {
		var subErr *designer.SubmissionError
		switch {
		case errors.As(err, &subErr):
			h.countSubmission(designer.Outcome(subErr.Err))
		case !errors.Is(err, designer.ErrSubmissionInFlight):
			h.observeCompile(err)
		}
		h.writeError(w, err)
		return
	}

	h.observeCompile(nil)
	h.countSubmission(domain.OutcomeCreated)
	writeJSON(w, http.StatusCreated, result)
}

// SearchPriceLists runs a last-request-wins price-list lookup.
func (h *Handler) SearchPriceLists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, ok := pageParams(w, q.Get("page"), q.Get("size"))
	if !ok {
		return
	}

	result, err := h.deps.Catalog.PriceLists(r.Context(), GetTenantID(r.Context()), lane(r), domain.PriceListQuery{
		Page:   page,
		Size:   size,
		Code:   q.Get("code"),
		NameEn: q.Get("nameEn"),
	})
	if err != nil {
		if errors.Is(err, search.ErrSuperseded) {
			h.countSuperseded("price_list")
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SearchProcedures runs a last-request-wins procedure lookup.
func (h *Handler) SearchProcedures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, ok := pageParams(w, q.Get("page"), q.Get("size"))
	if !ok {
		return
	}

	result, err := h.deps.Catalog.Procedures(r.Context(), GetTenantID(r.Context()), lane(r), domain.ProcedureQuery{
		Keyword: q.Get("keyword"),
		Page:    page,
		Size:    size,
	})
	if err != nil {
		if errors.Is(err, search.ErrSuperseded) {
			h.countSuperseded("procedure")
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListSubmissions returns the tenant's journaled submissions.
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Repository == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "repository not available"})
		return
	}

	q := r.URL.Query()
	filter := domain.SubmissionFilter{Outcome: domain.SubmissionOutcome(q.Get("outcome"))}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	subs, err := h.deps.Repository.ListSubmissions(r.Context(), GetTenantID(r.Context()), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if subs == nil {
		subs = []*domain.Submission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"submissions": subs,
		"count":       len(subs),
	})
}

// GetSubmission returns one journaled submission.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	if h.deps.Repository == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "repository not available"})
		return
	}

	sub, err := h.deps.Repository.GetSubmission(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*designer.Session, bool) {
	session, err := h.deps.Sessions.Get(GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return session, true
}

// writeError maps domain errors onto HTTP answers.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validation *designer.ValidationErrors
	var single *designer.ValidationError
	var apiErr *domain.APIError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  designer.DisplayMessage(err),
			Tab:    designer.FocusTab(err),
			Issues: validation.Issues,
		})
	case errors.As(err, &single):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  single.Message,
			Tab:    single.Tab,
			Issues: []*designer.ValidationError{single},
		})
	case errors.Is(err, factors.ErrUnknownFactor), errors.Is(err, factors.ErrValueNotAllowed):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Tab: designer.TabFactors})
	case errors.Is(err, designer.ErrInvalidAction):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, designer.ErrSubmissionInFlight):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: designer.DisplayMessage(err)})
	case errors.Is(err, search.ErrSuperseded):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, designer.ErrSessionNotFound), errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case breaker.Rejected(err):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "backend temporarily unavailable"})
	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:         designer.DisplayMessage(err),
			BackendStatus: apiErr.Status,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: err.Error()})
	default:
		var subErr *designer.SubmissionError
		if errors.As(err, &subErr) {
			writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: subErr.Message})
			return
		}
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func (h *Handler) observeCompile(err error) {
	m := h.deps.Metrics
	if m == nil {
		return
	}
	if err == nil {
		m.Compilations.WithLabelValues("ok").Inc()
		return
	}
	var validation *designer.ValidationErrors
	if errors.As(err, &validation) {
		m.Compilations.WithLabelValues("invalid").Inc()
		m.ValidationFailures.WithLabelValues(string(designer.FocusTab(err))).Inc()
		return
	}
	m.Compilations.WithLabelValues("error").Inc()
}

func (h *Handler) countSubmission(outcome domain.SubmissionOutcome) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.Submissions.WithLabelValues(string(outcome)).Inc()
	}
}

func (h *Handler) countSuperseded(kind string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.SearchSuperseded.WithLabelValues(kind).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid JSON request body: %v", err)})
		return false
	}
	return true
}

func pageParams(w http.ResponseWriter, pageStr, sizeStr string) (int, int, bool) {
	var page, size int
	var err error
	if pageStr != "" {
		if page, err = strconv.Atoi(pageStr); err != nil || page < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "page must be a non-negative integer"})
			return 0, 0, false
		}
	}
	if sizeStr != "" {
		if size, err = strconv.Atoi(sizeStr); err != nil || size < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "size must be a non-negative integer"})
			return 0, 0, false
		}
	}
	return page, size, true
}

// lane names the last-request-wins slot of a lookup: one per designer
// session, falling back to a shared default.
func lane(r *http.Request) string {
	if v := r.Header.Get(SessionIDHeader); v != "" {
		return v
	}
	if v := r.URL.Query().Get("session"); v != "" {
		return v
	}
	return "default"
}
