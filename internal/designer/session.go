package designer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-health/rulesmith/internal/domain"
)

// View is what the designer currently shows.
type View string

const (
	ViewEditor  View = "editor"
	ViewSummary View = "summary"
)

// Journal records submit attempts.
type Journal interface {
	SaveSubmission(ctx context.Context, tenantID string, s *domain.Submission) error
}

// Publisher announces submit outcomes.
type Publisher interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Reducer  *Reducer
	Compiler *Compiler
	Creator  domain.RuleCreator

	// Optional
	Journal   Journal
	Publisher Publisher
	Now       func() time.Time
}

// SubmitResult is a successful submission.
type SubmitResult struct {
	SubmissionID string                    `json:"submissionId"`
	Rule         *domain.CreatedRule       `json:"rule"`
	Payload      *domain.CreateRuleRequest `json:"payload"`
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID         string               `json:"id"`
	TenantID   string               `json:"tenantId"`
	Form       domain.RuleFormState `json:"form"`
	View       View                 `json:"view"`
	Submitting bool                 `json:"submitting"`
	LastResult *SubmitResult        `json:"lastResult,omitempty"`
	LastError  string               `json:"lastError,omitempty"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

// Session is one open designer. Edits and submits may arrive concurrently;
// at most one create call is in flight at a time.
type Session struct {
	id       string
	tenantID string
	deps     Deps

	submitting atomic.Bool

	mu         sync.Mutex
	form       domain.RuleFormState
	view       View
	lastResult *SubmitResult
	lastError  string
	updatedAt  time.Time
}

// NewSession opens a designer with a fresh form.
func NewSession(tenantID string, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	now := deps.Now()
	return &Session{
		id:        uuid.New().String(),
		tenantID:  tenantID,
		deps:      deps,
		form:      NewForm(now),
		view:      ViewEditor,
		updatedAt: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// TenantID returns the owning tenant.
func (s *Session) TenantID() string { return s.tenantID }

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.id,
		TenantID:   s.tenantID,
		Form:       cloneForm(s.form),
		View:       s.view,
		Submitting: s.submitting.Load(),
		LastResult: s.lastResult,
		LastError:  s.lastError,
		UpdatedAt:  s.updatedAt,
	}
}

// Form returns a copy of the current form.
func (s *Session) Form() domain.RuleFormState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneForm(s.form)
}

// Dispatch applies one action. A rejected action leaves the form unchanged.
func (s *Session) Dispatch(a Action) (domain.RuleFormState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.deps.Reducer.Reduce(s.form, a)
	if err != nil {
		return cloneForm(s.form), err
	}
	s.form = next
	s.view = ViewEditor
	s.updatedAt = s.deps.Now()
	return cloneForm(s.form), nil
}

// Submit compiles the current form and sends it to the backend once.
//
// Validation failures return *ValidationErrors without a network call.
// A concurrent submit returns ErrSubmissionInFlight. A backend failure keeps
// the form and returns *SubmissionError. Success resets the form and
// switches the view to the summary.
func (s *Session) Submit(ctx context.Context) (*SubmitResult, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	defer s.submitting.Store(false)

	form := s.Form()
	payload, err := s.deps.Compiler.Compile(form)
	if err != nil {
		s.setError(DisplayMessage(err))
		return nil, err
	}

	created, callErr := s.deps.Creator.CreatePricingRule(ctx, s.tenantID, payload)

	sub := s.journalEntry(form, payload)
	if callErr != nil {
		subErr := &SubmissionError{Message: submissionMessage(callErr), Err: callErr}
		sub.Outcome = Outcome(callErr)
		sub.Message = subErr.Message
		s.record(ctx, sub, domain.TopicRuleRejected)
		s.setError(subErr.Message)

		slog.Warn("rule submission failed",
			"session_id", s.id,
			"tenant_id", s.tenantID,
			"outcome", sub.Outcome,
			"error", callErr,
		)
		return nil, subErr
	}

	sub.Outcome = domain.OutcomeCreated
	if created != nil {
		sub.RemoteID = created.ID
	}
	s.record(ctx, sub, domain.TopicRuleSubmitted)

	result := &SubmitResult{SubmissionID: sub.ID, Rule: created, Payload: payload}

	s.mu.Lock()
	s.form = NewForm(s.deps.Now())
	s.view = ViewSummary
	s.lastResult = result
	s.lastError = ""
	s.updatedAt = s.deps.Now()
	s.mu.Unlock()

	slog.Info("rule submitted",
		"session_id", s.id,
		"tenant_id", s.tenantID,
		"submission_id", sub.ID,
		"remote_id", sub.RemoteID,
	)
	return result, nil
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.updatedAt = s.deps.Now()
	s.mu.Unlock()
}

func (s *Session) journalEntry(form domain.RuleFormState, payload *domain.CreateRuleRequest) *domain.Submission {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	return &domain.Submission{
		ID:          uuid.New().String(),
		TenantID:    s.tenantID,
		SessionID:   s.id,
		RuleName:    form.Name,
		PriceListID: payload.PriceListID,
		ProcedureID: payload.ProcedureID,
		Payload:     raw,
		CreatedAt:   s.deps.Now().UTC(),
	}
}

// record journals and announces a submission. Failures here never change
// the submit outcome.
// record journals and publishes the outcome even if the caller has gone away.
func (s *Session) record(ctx context.Context, sub *domain.Submission, topic string) {
	ctx = context.WithoutCancel(ctx)
	if s.deps.Journal != nil {
		if err := s.deps.Journal.SaveSubmission(ctx, s.tenantID, sub); err != nil {
			slog.Error("failed to journal submission", "submission_id", sub.ID, "error", err)
		}
	}
	if s.deps.Publisher != nil {
		body, err := json.Marshal(sub)
		if err == nil {
			err = s.deps.Publisher.Publish(ctx, s.tenantID, topic, body)
		}
		if err != nil {
			slog.Error("failed to publish submission", "submission_id", sub.ID, "topic", topic, "error", err)
		}
	}
}

func submissionMessage(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// Outcome classifies a create-call error for the journal: a backend answer is
// a rejection, anything else a failure.
func Outcome(err error) domain.SubmissionOutcome {
	if err == nil {
		return domain.OutcomeCreated
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return domain.OutcomeRejected
	}
	return domain.OutcomeFailed
}
