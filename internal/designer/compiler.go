package designer

import (
	"math"
	"strings"

	"github.com/opensource-health/rulesmith/internal/domain"
	"github.com/opensource-health/rulesmith/internal/factors"
)

// Compiler turns a valid form into the create-rule payload.
// Compile is a pure function of the form; it never touches the network.
type Compiler struct {
	parser factors.ValueParser
}

// NewCompiler returns a Compiler that coerces factor values with p.
func NewCompiler(p factors.ValueParser) *Compiler {
	return &Compiler{parser: p}
}

// Compile validates s and builds the payload. Validation failures are
// returned as *ValidationErrors and no payload is built.
func (c *Compiler) Compile(s domain.RuleFormState) (*domain.CreateRuleRequest, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}

	conditions, err := c.conditions(s.Factors.NonEmpty())
	if err != nil {
		return nil, err
	}

	req := &domain.CreateRuleRequest{
		ProcedureID: *s.ProcedureID,
		PriceListID: *s.PriceListID,
		Priority:    s.Priority,
		ValidFrom:   strings.TrimSpace(s.EffectiveFrom),
		ValidTo:     effectiveTo(s),
		Conditions:  conditions,
		Pricing: domain.Pricing{
			Mode:       domain.PricingModeFixed,
			FixedPrice: s.BasePrice,
		},
		Discount:    discount(s),
		Adjustments: adjustments(s),
	}
	return req, nil
}

func (c *Compiler) conditions(entries domain.FactorValues) ([]domain.Condition, error) {
	out := make([]domain.Condition, 0, len(entries))
	errs := &ValidationErrors{}
	for _, fv := range entries {
		v, err := c.parser.Parse(fv.Key, fv.Value)
		if err != nil {
			errs.add(TabFactors, err)
			continue
		}
		out = append(out, domain.Condition{
			Factor:   fv.Key,
			Operator: domain.OperatorEquals,
			Value:    v,
		})
	}
	if err := errs.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// discount is set only for a positive percent discount.
func discount(s domain.RuleFormState) *domain.Discount {
	if s.DiscountType != domain.DiscountPercent || s.DiscountValue <= 0 {
		return nil
	}
	return &domain.Discount{
		Apply:       true,
		LogicBlocks: []domain.LogicBlock{{Percent: s.DiscountValue}},
	}
}

// adjustments appends the flat discount first, then the directional adjustment.
func adjustments(s domain.RuleFormState) []domain.Adjustment {
	var out []domain.Adjustment

	if s.DiscountType == domain.DiscountAmount && s.DiscountValue > 0 {
		out = append(out, domain.Adjustment{
			Type:      domain.AdjustmentFlatDiscount,
			FactorKey: domain.GlobalFactorKey,
			Cases: domain.AdjustmentCases{
				Default: -math.Abs(s.DiscountValue),
				Cap:     cloneFloat(s.DiscountCap),
			},
		})
	}

	if s.AdjustmentDirection != domain.AdjustNone && s.AdjustmentValue > 0 {
		signed := s.AdjustmentValue
		if s.AdjustmentDirection == domain.AdjustDecrease {
			signed = -signed
		}

		adj := domain.Adjustment{FactorKey: domain.GlobalFactorKey}
		if s.AdjustmentUnit == domain.UnitAmount {
			adj.Type = domain.AdjustmentAmount
			adj.Cases.Default = signed
		} else {
			adj.Type = domain.AdjustmentPercent
			adj.Percent = &signed
			adj.Cases.Default = domain.GlobalFactorKey
		}
		out = append(out, adj)
	}

	return out
}
