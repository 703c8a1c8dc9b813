package designer

import (
	"errors"
	"strings"
)

// Tab is the designer tab that should regain focus after a failure.
type Tab string

const (
	TabNone    Tab = ""
	TabGeneral Tab = "general"
	TabFactors Tab = "factors"
	TabPricing Tab = "pricing"
)

// Validation failures. Each is reported on a specific tab.
var (
	ErrNameRequired                = errors.New("rule name is required")
	ErrSelectPriceListAndProcedure = errors.New("price list and procedure must be selected")
	ErrInvalidScope                = errors.New("unknown rule scope")
	ErrInvalidStatus               = errors.New("unknown rule status")
	ErrNoFactorContext             = errors.New("no factor context")
	ErrNegativeBasePrice           = errors.New("base price is negative")
	ErrInvalidDiscountType         = errors.New("unknown discount type")
	ErrInvalidAdjustmentDirection  = errors.New("unknown adjustment direction")
	ErrInvalidAdjustmentUnit       = errors.New("unknown adjustment unit")
	ErrEffectiveFromRequired       = errors.New("effective from date is required")
	ErrInvalidEffectiveDate        = errors.New("effective date is not YYYY-MM-DD")
	ErrEffectiveRangeInvalid       = errors.New("effective to date is before effective from date")
	ErrNegativeDiscount            = errors.New("discount value or cap is negative")
	ErrNegativeAdjustment          = errors.New("adjustment value is negative")
)

// messages holds the user-facing text for each validation failure.
var messages = map[error]string{
	ErrNameRequired:                "Rule name is required.",
	ErrSelectPriceListAndProcedure: "Please select a price list and a procedure.",
	ErrInvalidScope:                "Select a valid rule scope.",
	ErrInvalidStatus:               "Select a valid rule status.",
	ErrNoFactorContext:             "Select at least one factor value. Switch to the Factors tab to add rule context.",
	ErrNegativeBasePrice:           "Base price cannot be negative.",
	ErrInvalidDiscountType:         "Select a valid discount type.",
	ErrInvalidAdjustmentDirection:  "Select a valid adjustment direction.",
	ErrInvalidAdjustmentUnit:       "Select a valid adjustment unit.",
	ErrEffectiveFromRequired:       "Effective from date is required.",
	ErrInvalidEffectiveDate:        "Effective dates must use the YYYY-MM-DD format.",
	ErrEffectiveRangeInvalid:       "Effective to date cannot be before the effective from date.",
	ErrNegativeDiscount:            "Discount value and cap cannot be negative.",
	ErrNegativeAdjustment:          "Adjustment value cannot be negative.",
}

// Session and reducer errors.
var (
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrSessionNotFound    = errors.New("designer session not found")
	ErrInvalidAction      = errors.New("invalid designer action")
)

// ValidationError is one failed precondition and the tab it belongs to.
type ValidationError struct {
	Tab     Tab    `json:"tab"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidationErrors collects every failed precondition in check order.
// The first issue decides where focus goes.
type ValidationErrors struct {
	Issues []*ValidationError
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationErrors) Unwrap() []error {
	errs := make([]error, len(e.Issues))
	for i, issue := range e.Issues {
		errs[i] = issue
	}
	return errs
}

// First returns the issue that decides focus.
func (e *ValidationErrors) First() *ValidationError {
	if len(e.Issues) == 0 {
		return nil
	}
	return e.Issues[0]
}

func (e *ValidationErrors) add(tab Tab, err error) {
	msg, ok := messages[err]
	if !ok {
		msg = err.Error()
	}
	e.Issues = append(e.Issues, &ValidationError{Tab: tab, Message: msg, Err: err})
}

func (e *ValidationErrors) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}

// SubmissionError is a failed create call, already converted for display.
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	return e.Message
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// FocusTab returns the tab that should regain focus for err.
func FocusTab(err error) Tab {
	var multi *ValidationErrors
	if errors.As(err, &multi) {
		if first := multi.First(); first != nil {
			return first.Tab
		}
		return TabNone
	}
	var single *ValidationError
	if errors.As(err, &single) {
		return single.Tab
	}
	return TabNone
}

// DisplayMessage returns the single message shown to the user for err.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var multi *ValidationErrors
	if errors.As(err, &multi) {
		if first := multi.First(); first != nil {
			return first.Message
		}
	}
	var single *ValidationError
	if errors.As(err, &single) {
		return single.Message
	}
	var sub *SubmissionError
	if errors.As(err, &sub) {
		return sub.Message
	}
	if errors.Is(err, ErrSubmissionInFlight) {
		return "A submission is already in progress."
	}
	return err.Error()
}
