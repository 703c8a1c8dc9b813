// Package designer implements the pricing-rule designer: an immutable form
// state driven by a single reducer, the submit-gate validation, the payload
// compiler and the session that submits compiled rules.
package designer

import (
	"time"

	"github.com/opensource-health/rulesmith/internal/domain"
)

// DefaultPriority is the priority of a fresh form.
const DefaultPriority = 1

// NewForm returns a fresh form with every default applied.
// The effective-from date is the calendar day of now.
func NewForm(now time.Time) domain.RuleFormState {
	return domain.RuleFormState{
		Scope:               domain.ScopeProcedurePricing,
		Status:              domain.StatusDraft,
		Priority:            DefaultPriority,
		EffectiveFrom:       now.Format(domain.DateLayout),
		Factors:             domain.FactorValues{},
		DiscountType:        domain.DiscountNone,
		AdjustmentDirection: domain.AdjustNone,
		AdjustmentUnit:      domain.UnitPercent,
	}
}

// cloneForm copies s so that no pointer or slice is shared with the result.
func cloneForm(s domain.RuleFormState) domain.RuleFormState {
	out := s
	out.PriceListID = cloneInt64(s.PriceListID)
	out.ProcedureID = cloneInt64(s.ProcedureID)
	out.EffectiveTo = cloneString(s.EffectiveTo)
	out.DiscountCap = cloneFloat(s.DiscountCap)
	if s.Factors != nil {
		out.Factors = make(domain.FactorValues, len(s.Factors))
		copy(out.Factors, s.Factors)
	}
	return out
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
