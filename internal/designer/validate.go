package designer

import (
	"strings"
	"time"

	"github.com/opensource-health/rulesmith/internal/domain"
)

// Validate runs the submit gate over s and collects every failing
// precondition. It returns nil or a *ValidationErrors.
func Validate(s domain.RuleFormState) error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(s.Name) == "" {
		errs.add(TabGeneral, ErrNameRequired)
	}
	if s.PriceListID == nil || s.ProcedureID == nil {
		errs.add(TabGeneral, ErrSelectPriceListAndProcedure)
	}
	if !s.Scope.Valid() {
		errs.add(TabGeneral, ErrInvalidScope)
	}
	if !s.Status.Valid() {
		errs.add(TabGeneral, ErrInvalidStatus)
	}
	if len(s.Factors.NonEmpty()) == 0 {
		errs.add(TabFactors, ErrNoFactorContext)
	}
	if s.BasePrice < 0 {
		errs.add(TabPricing, ErrNegativeBasePrice)
	}
	if !s.DiscountType.Valid() {
		errs.add(TabPricing, ErrInvalidDiscountType)
	}
	if !s.AdjustmentDirection.Valid() {
		errs.add(TabPricing, ErrInvalidAdjustmentDirection)
	}
	if !s.AdjustmentUnit.Valid() {
		errs.add(TabPricing, ErrInvalidAdjustmentUnit)
	}

	validateDates(s, errs)

	if s.DiscountValue < 0 || (s.DiscountCap != nil && *s.DiscountCap < 0) {
		errs.add(TabPricing, ErrNegativeDiscount)
	}
	if s.AdjustmentValue < 0 {
		errs.add(TabPricing, ErrNegativeAdjustment)
	}

	return errs.orNil()
}

func validateDates(s domain.RuleFormState, errs *ValidationErrors) {
	fromRaw := strings.TrimSpace(s.EffectiveFrom)
	if fromRaw == "" {
		errs.add(TabGeneral, ErrEffectiveFromRequired)
		return
	}
	from, err := time.Parse(domain.DateLayout, fromRaw)
	if err != nil {
		errs.add(TabGeneral, ErrInvalidEffectiveDate)
		return
	}

	toRaw := effectiveTo(s)
	if toRaw == nil {
		return
	}
	to, err := time.Parse(domain.DateLayout, *toRaw)
	if err != nil {
		errs.add(TabGeneral, ErrInvalidEffectiveDate)
		return
	}
	if to.Before(from) {
		errs.add(TabGeneral, ErrEffectiveRangeInvalid)
	}
}

// effectiveTo returns the trimmed end date, or nil when unset.
func effectiveTo(s domain.RuleFormState) *string {
	if s.EffectiveTo == nil {
		return nil
	}
	v := strings.TrimSpace(*s.EffectiveTo)
	if v == "" {
		return nil
	}
	return &v
}
