package designer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-health/rulesmith/internal/domain"
	"github.com/opensource-health/rulesmith/internal/factors"
)

// Action is one edit applied to a form by Reducer.Reduce.
type Action interface {
	Type() string
	apply(r *Reducer, s domain.RuleFormState) (domain.RuleFormState, error)
}

// Reducer is the single update function over RuleFormState.
type Reducer struct {
	Taxonomy *factors.Taxonomy
	Now      func() time.Time
}

// NewReducer returns a Reducer checking factor values against t.
func NewReducer(t *factors.Taxonomy) *Reducer {
	return &Reducer{Taxonomy: t, Now: time.Now}
}

// Reduce returns the state that results from applying a to s.
// s is never modified. On error the caller keeps s.
func (r *Reducer) Reduce(s domain.RuleFormState, a Action) (domain.RuleFormState, error) {
	if a == nil {
		return s, fmt.Errorf("%w: nil action", ErrInvalidAction)
	}
	next, err := a.apply(r, cloneForm(s))
	if err != nil {
		return s, err
	}
	return next, nil
}

func (r *Reducer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// SetGeneral updates any subset of the general fields. Nil fields are left alone.
type SetGeneral struct {
	Name        *string            `json:"name,omitempty"`
	Scope       *domain.RuleScope  `json:"scope,omitempty"`
	Status      *domain.RuleStatus `json:"status,omitempty"`
	Description *string            `json:"description,omitempty"`
	Stackable   *bool              `json:"stackable,omitempty"`
}

func (SetGeneral) Type() string { return "setGeneral" }

func (a SetGeneral) apply(_ *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	if a.Scope != nil && !a.Scope.Valid() {
		return s, fmt.Errorf("%w: scope %q", ErrInvalidAction, *a.Scope)
	}
	if a.Status != nil && !a.Status.Valid() {
		return s, fmt.Errorf("%w: status %q", ErrInvalidAction, *a.Status)
	}
	if a.Name != nil {
		s.Name = *a.Name
	}
	if a.Scope != nil {
		s.Scope = *a.Scope
	}
	if a.Status != nil {
		s.Status = *a.Status
	}
	if a.Description != nil {
		s.Description = *a.Description
	}
	if a.Stackable != nil {
		s.Stackable = *a.Stackable
	}
	return s, nil
}

// SetFactor sets one factor's raw value. An empty value unsets it.
type SetFactor struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (SetFactor) Type() string { return "setFactor" }

func (a SetFactor) apply(r *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	if a.Key == "" {
		return s, fmt.Errorf("%w: factor key is required", ErrInvalidAction)
	}
	if r.Taxonomy != nil {
		if err := r.Taxonomy.CheckAllowed(a.Key, strings.TrimSpace(a.Value)); err != nil {
			return s, err
		}
	}
	s.Factors = s.Factors.With(a.Key, a.Value)
	return s, nil
}

// ClearFactor removes a factor entry.
type ClearFactor struct {
	Key string `json:"key"`
}

func (ClearFactor) Type() string { return "clearFactor" }

func (a ClearFactor) apply(_ *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	s.Factors = s.Factors.Without(a.Key)
	return s, nil
}

// SetDiscount replaces the discount configuration.
type SetDiscount struct {
	DiscountType domain.DiscountType `json:"discountType"`
	Value        float64             `json:"value"`
	Cap          *float64            `json:"cap,omitempty"`
}

func (SetDiscount) Type() string { return "setDiscount" }

func (a SetDiscount) apply(_ *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	if !a.DiscountType.Valid() {
		return s, fmt.Errorf("%w: discount type %q", ErrInvalidAction, a.DiscountType)
	}
	s.DiscountType = a.DiscountType
	s.DiscountValue = a.Value
	s.DiscountCap = cloneFloat(a.Cap)
	return s, nil
}

// SetAdjustment replaces the directional adjustment.
type SetAdjustment struct {
	Direction domain.AdjustmentDirection `json:"direction"`
	Unit      domain.AdjustmentUnit      `json:"unit"`
	Value     float64                    `json:"value"`
}

func (SetAdjustment) Type() string { return "setAdjustment" }

func (a SetAdjustment) apply(_ *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	if !a.Direction.Valid() {
		return s, fmt.Errorf("%w: adjustment direction %q", ErrInvalidAction, a.Direction)
	}
	unit := a.Unit
	if unit == "" {
		unit = s.AdjustmentUnit
	}
	if !unit.Valid() {
		return s, fmt.Errorf("%w: adjustment unit %q", ErrInvalidAction, a.Unit)
	}
	s.AdjustmentDirection = a.Direction
	s.AdjustmentUnit = unit
	s.AdjustmentValue = a.Value
	return s, nil
}

// SetEffectiveRange sets the validity window. Dates are checked at submit.
type SetEffectiveRange struct {
	From string  `json:"from"`
	To   *string `json:"to,omitempty"`
}

func (SetEffectiveRange) Type() string { return "setEffectiveRange" }

func (a SetEffectiveRange) apply(_ *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	s.EffectiveFrom = a.From
	s.EffectiveTo = cloneString(a.To)
	if s.EffectiveTo != nil && *s.EffectiveTo == "" {
		s.EffectiveTo = nil
	}
	return s, nil
}

// SelectPriceList picks a price list. A nil ID clears the selection.
type SelectPriceList struct {
	ID *int64 `json:"id"`
}

func (SelectPriceList) Type() string { return "selectPriceList" }

func (a SelectPriceList) apply(_ *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	s.PriceListID = cloneInt64(a.ID)
	return s, nil
}

// SelectProcedure picks a procedure. A nil ID clears the selection.
type SelectProcedure struct {
	ID *int64 `json:"id"`
}

func (SelectProcedure) Type() string { return "selectProcedure" }

func (a SelectProcedure) apply(_ *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	s.ProcedureID = cloneInt64(a.ID)
	return s, nil
}

// SetPriority sets the evaluation priority carried to the payload.
type SetPriority struct {
	Priority int `json:"priority"`
}

func (SetPriority) Type() string { return "setPriority" }

func (a SetPriority) apply(_ *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	s.Priority = a.Priority
	return s, nil
}

// SetBasePrice sets the fixed price.
type SetBasePrice struct {
	Price float64 `json:"price"`
}

func (SetBasePrice) Type() string { return "setBasePrice" }

func (a SetBasePrice) apply(_ *Reducer, s domain.RuleFormState) (domain.RuleFormState, error) {
	s.BasePrice = a.Price
	return s, nil
}

// Reset discards every edit.
type Reset struct{}

func (Reset) Type() string { return "reset" }

func (Reset) apply(r *Reducer, _ domain.RuleFormState) (domain.RuleFormState, error) {
	return NewForm(r.now()), nil
}

// DecodeAction decodes a JSON action of the form {"type": "...", ...fields}.
func DecodeAction(data []byte) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	var a Action
	var err error
	switch head.Type {
	case SetGeneral{}.Type():
		a, err = decodeInto[SetGeneral](data)
	case SetFactor{}.Type():
		a, err = decodeInto[SetFactor](data)
	case ClearFactor{}.Type():
		a, err = decodeInto[ClearFactor](data)
	case SetDiscount{}.Type():
		a, err = decodeInto[SetDiscount](data)
	case SetAdjustment{}.Type():
		a, err = decodeInto[SetAdjustment](data)
	case SetEffectiveRange{}.Type():
		a, err = decodeInto[SetEffectiveRange](data)
	case SelectPriceList{}.Type():
		a, err = decodeInto[SelectPriceList](data)
	case SelectProcedure{}.Type():
		a, err = decodeInto[SelectProcedure](data)
	case SetPriority{}.Type():
		a, err = decodeInto[SetPriority](data)
	case SetBasePrice{}.Type():
		a, err = decodeInto[SetBasePrice](data)
	case Reset{}.Type():
		a = Reset{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return a, nil
}

func decodeInto[T Action](data []byte) (Action, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
