package designer

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/opensource-health/rulesmith/internal/domain"
	"github.com/opensource-health/rulesmith/internal/factors"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64       { return &v }
func float64Ptr(v float64) *float64 { return &v }
func stringPtr(v string) *string    { return &v }

func newTestCompiler() *Compiler {
	return NewCompiler(factors.NewLenientParser(factors.DefaultTaxonomy()))
}

// validForm returns a form that passes the submit gate.
func validForm() domain.RuleFormState {
	f := NewForm(testNow)
	f.Name = "Specialist visit"
	f.PriceListID = int64Ptr(7)
	f.ProcedureID = int64Ptr(42)
	f.BasePrice = 250
	f.Factors = domain.FactorValues{}.
		With("doctor_experience_years", "5").
		With("doctor_title", "SPECIALIST")
	return f
}

func TestCompileConditions(t *testing.T) {
	c := newTestCompiler()

	req, err := c.Compile(validForm())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	expected := []domain.Condition{
		{Factor: "doctor_experience_years", Operator: "EQUALS", Value: float64(5)},
		{Factor: "doctor_title", Operator: "EQUALS", Value: "SPECIALIST"},
	}
	if !reflect.DeepEqual(req.Conditions, expected) {
		t.Errorf("expected %#v, got %#v", expected, req.Conditions)
	}
}

func TestCompileSkipsEmptyFactors(t *testing.T) {
	f := validForm()
	f.Factors = domain.FactorValues{}.
		With("patient_gender", "").
		With("doctor_title", "SPECIALIST").
		With("patient_age", "")

	req, err := newTestCompiler().Compile(f)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(req.Conditions) != 1 || req.Conditions[0].Factor != "doctor_title" {
		t.Errorf("expected only doctor_title, got %#v", req.Conditions)
	}
}

func TestCompileGeneralFields(t *testing.T) {
	f := validForm()
	f.Priority = 3
	f.EffectiveFrom = "2026-04-01"
	f.EffectiveTo = stringPtr("2026-12-31")

	req, err := newTestCompiler().Compile(f)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if req.ProcedureID != 42 || req.PriceListID != 7 || req.Priority != 3 {
		t.Errorf("ids/priority not carried: %+v", req)
	}
	if req.ValidFrom != "2026-04-01" || req.ValidTo == nil || *req.ValidTo != "2026-12-31" {
		t.Errorf("dates not carried: %v %v", req.ValidFrom, req.ValidTo)
	}
	if req.Pricing.Mode != "FIXED" || req.Pricing.FixedPrice != 250 {
		t.Errorf("unexpected pricing %+v", req.Pricing)
	}

	t.Run("ValidToAliasing", func(t *testing.T) {
		*f.EffectiveTo = "2030-01-01"
		if *req.ValidTo != "2026-12-31" {
			t.Error("payload shares validTo with the form")
		}
	})
}

func TestCompileDiscount(t *testing.T) {
	c := newTestCompiler()

	t.Run("Percent", func(t *testing.T) {
		f := validForm()
		f.DiscountType = domain.DiscountPercent
		f.DiscountValue = 10

		req, err := c.Compile(f)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if req.Discount == nil || !req.Discount.Apply {
			t.Fatalf("expected discount block, got %+v", req.Discount)
		}
		if !reflect.DeepEqual(req.Discount.LogicBlocks, []domain.LogicBlock{{Percent: 10}}) {
			t.Errorf("unexpected logic blocks %+v", req.Discount.LogicBlocks)
		}
		for _, adj := range req.Adjustments {
			if adj.Type == domain.AdjustmentFlatDiscount {
				t.Error("percent discount produced a FLAT_DISCOUNT adjustment")
			}
		}
	})

	t.Run("Amount", func(t *testing.T) {
		f := validForm()
		f.DiscountType = domain.DiscountAmount
		f.DiscountValue = 15
		f.DiscountCap = float64Ptr(50)

		req, err := c.Compile(f)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if req.Discount != nil {
			t.Errorf("amount discount must not set discount, got %+v", req.Discount)
		}
		expected := []domain.Adjustment{{
			Type:      domain.AdjustmentFlatDiscount,
			FactorKey: "GLOBAL",
			Cases:     domain.AdjustmentCases{Default: float64(-15), Cap: float64Ptr(50)},
		}}
		if !reflect.DeepEqual(req.Adjustments, expected) {
			t.Errorf("expected %#v, got %#v", expected, req.Adjustments)
		}
	})

	t.Run("AmountWithoutCap", func(t *testing.T) {
		f := validForm()
		f.DiscountType = domain.DiscountAmount
		f.DiscountValue = 15

		req, _ := c.Compile(f)
		if len(req.Adjustments) != 1 || req.Adjustments[0].Cases.Cap != nil {
			t.Errorf("expected uncapped flat discount, got %#v", req.Adjustments)
		}
	})

	t.Run("ZeroValueOmitted", func(t *testing.T) {
		for _, dt := range []domain.DiscountType{domain.DiscountPercent, domain.DiscountAmount, domain.DiscountNone} {
			f := validForm()
			f.DiscountType = dt
			f.DiscountValue = 0

			req, _ := c.Compile(f)
			if req.Discount != nil || req.Adjustments != nil {
				t.Errorf("%s with zero value produced %+v / %+v", dt, req.Discount, req.Adjustments)
			}
		}
	})
}

func TestCompileAdjustment(t *testing.T) {
	c := newTestCompiler()

	t.Run("DecreasePercent", func(t *testing.T) {
		f := validForm()
		f.AdjustmentDirection = domain.AdjustDecrease
		f.AdjustmentUnit = domain.UnitPercent
		f.AdjustmentValue = 20

		req, err := c.Compile(f)
		if err != nil {
			t.Fatalf("Compile failed: %v", err)
		}
		if len(req.Adjustments) != 1 {
			t.Fatalf("expected 1 adjustment, got %d", len(req.Adjustments))
		}
		adj := req.Adjustments[0]
		if adj.Type != domain.AdjustmentPercent || adj.FactorKey != "GLOBAL" {
			t.Errorf("unexpected adjustment %+v", adj)
		}
		if adj.Percent == nil || *adj.Percent != -20 {
			t.Errorf("expected percent -20, got %v", adj.Percent)
		}
		if adj.Cases.Default != "GLOBAL" {
			t.Errorf("expected GLOBAL sentinel default, got %#v", adj.Cases.Default)
		}
	})

	t.Run("IncreaseAmount", func(t *testing.T) {
		f := validForm()
		f.AdjustmentDirection = domain.AdjustIncrease
		f.AdjustmentUnit = domain.UnitAmount
		f.AdjustmentValue = 30

		req, _ := c.Compile(f)
		adj := req.Adjustments[0]
		if adj.Type != domain.AdjustmentAmount || adj.Percent != nil {
			t.Errorf("unexpected adjustment %+v", adj)
		}
		if adj.Cases.Default != float64(30) {
			t.Errorf("expected default 30, got %#v", adj.Cases.Default)
		}
	})

	t.Run("FlatDiscountFirst", func(t *testing.T) {
		f := validForm()
		f.DiscountType = domain.DiscountAmount
		f.DiscountValue = 5
		f.AdjustmentDirection = domain.AdjustDecrease
		f.AdjustmentUnit = domain.UnitAmount
		f.AdjustmentValue = 12

		req, _ := c.Compile(f)
		if len(req.Adjustments) != 2 {
			t.Fatalf("expected 2 adjustments, got %d", len(req.Adjustments))
		}
		if req.Adjustments[0].Type != domain.AdjustmentFlatDiscount || req.Adjustments[1].Type != domain.AdjustmentAmount {
			t.Errorf("wrong order: %+v", req.Adjustments)
		}
		if req.Adjustments[1].Cases.Default != float64(-12) {
			t.Errorf("expected -12, got %#v", req.Adjustments[1].Cases.Default)
		}
	})

	t.Run("NoneOmitted", func(t *testing.T) {
		f := validForm()
		f.AdjustmentDirection = domain.AdjustNone
		f.AdjustmentValue = 99

		req, _ := c.Compile(f)
		if req.Adjustments != nil {
			t.Errorf("expected no adjustments, got %+v", req.Adjustments)
		}
	})
}

func TestCompileWireShape(t *testing.T) {
	f := validForm()
	f.DiscountType = domain.DiscountAmount
	f.DiscountValue = 15
	f.DiscountCap = float64Ptr(50)

	req, err := newTestCompiler().Compile(f)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(body, &wire); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := wire["discount"]; ok {
		t.Error("discount must be omitted, not null")
	}
	if v, ok := wire["validTo"]; !ok || v != nil {
		t.Errorf("validTo must be present and null, got %v (present=%v)", v, ok)
	}
	adj := wire["adjustments"].([]any)[0].(map[string]any)
	if _, ok := adj["percent"]; ok {
		t.Error("flat discount must not carry percent")
	}
	cases := adj["cases"].(map[string]any)
	if cases["default"] != float64(-15) || cases["cap"] != float64(50) {
		t.Errorf("unexpected cases %v", cases)
	}

	t.Run("NoAdjustmentsKey", func(t *testing.T) {
		req, _ := newTestCompiler().Compile(validForm())
		body, _ := json.Marshal(req)
		var wire map[string]any
		_ = json.Unmarshal(body, &wire)
		if _, ok := wire["adjustments"]; ok {
			t.Error("empty adjustments must be omitted")
		}
	})
}

func TestCompileValidation(t *testing.T) {
	c := newTestCompiler()

	tests := []struct {
		name    string
		mutate  func(*domain.RuleFormState)
		wantErr error
		tab     Tab
		message string
	}{
		{
			name:    "blank name",
			mutate:  func(f *domain.RuleFormState) { f.Name = "   " },
			wantErr: ErrNameRequired,
			tab:     TabGeneral,
			message: "Rule name is required.",
		},
		{
			name:    "missing price list",
			mutate:  func(f *domain.RuleFormState) { f.PriceListID = nil },
			wantErr: ErrSelectPriceListAndProcedure,
			tab:     TabGeneral,
			message: "Please select a price list and a procedure.",
		},
		{
			name:    "missing procedure",
			mutate:  func(f *domain.RuleFormState) { f.ProcedureID = nil },
			wantErr: ErrSelectPriceListAndProcedure,
			tab:     TabGeneral,
			message: "Please select a price list and a procedure.",
		},
		{
			name:    "unknown scope",
			mutate:  func(f *domain.RuleFormState) { f.Scope = "" },
			wantErr: ErrInvalidScope,
			tab:     TabGeneral,
			message: "Select a valid rule scope.",
		},
		{
			name:    "unknown status",
			mutate:  func(f *domain.RuleFormState) { f.Status = "archived" },
			wantErr: ErrInvalidStatus,
			tab:     TabGeneral,
			message: "Select a valid rule status.",
		},
		{
			name:    "no factors",
			mutate:  func(f *domain.RuleFormState) { f.Factors = nil },
			wantErr: ErrNoFactorContext,
			tab:     TabFactors,
			message: "Select at least one factor value. Switch to the Factors tab to add rule context.",
		},
		{
			name: "only empty factors",
			mutate: func(f *domain.RuleFormState) {
				f.Factors = domain.FactorValues{}.With("doctor_title", "")
			},
			wantErr: ErrNoFactorContext,
			tab:     TabFactors,
			message: "Select at least one factor value. Switch to the Factors tab to add rule context.",
		},
		{
			name:    "negative base price",
			mutate:  func(f *domain.RuleFormState) { f.BasePrice = -1 },
			wantErr: ErrNegativeBasePrice,
			tab:     TabPricing,
			message: "Base price cannot be negative.",
		},
		{
			name: "unknown discount type",
			mutate: func(f *domain.RuleFormState) {
				f.DiscountType = "PERCENT"
				f.DiscountValue = 10
			},
			wantErr: ErrInvalidDiscountType,
			tab:     TabPricing,
			message: "Select a valid discount type.",
		},
		{
			name: "missing adjustment direction",
			mutate: func(f *domain.RuleFormState) {
				f.AdjustmentDirection = ""
				f.AdjustmentValue = 5
			},
			wantErr: ErrInvalidAdjustmentDirection,
			tab:     TabPricing,
			message: "Select a valid adjustment direction.",
		},
		{
			name:    "unknown adjustment unit",
			mutate:  func(f *domain.RuleFormState) { f.AdjustmentUnit = "percent" },
			wantErr: ErrInvalidAdjustmentUnit,
			tab:     TabPricing,
			message: "Select a valid adjustment unit.",
		},
		{
			name:    "missing effective from",
			mutate:  func(f *domain.RuleFormState) { f.EffectiveFrom = "" },
			wantErr: ErrEffectiveFromRequired,
			tab:     TabGeneral,
			message: "Effective from date is required.",
		},
		{
			name:    "malformed date",
			mutate:  func(f *domain.RuleFormState) { f.EffectiveFrom = "15/03/2026" },
			wantErr: ErrInvalidEffectiveDate,
			tab:     TabGeneral,
			message: "Effective dates must use the YYYY-MM-DD format.",
		},
		{
			name: "inverted range",
			mutate: func(f *domain.RuleFormState) {
				f.EffectiveFrom = "2026-05-01"
				f.EffectiveTo = stringPtr("2026-04-30")
			},
			wantErr: ErrEffectiveRangeInvalid,
			tab:     TabGeneral,
			message: "Effective to date cannot be before the effective from date.",
		},
		{
			name: "negative cap",
			mutate: func(f *domain.RuleFormState) {
				f.DiscountType = domain.DiscountAmount
				f.DiscountValue = 5
				f.DiscountCap = float64Ptr(-1)
			},
			wantErr: ErrNegativeDiscount,
			tab:     TabPricing,
			message: "Discount value and cap cannot be negative.",
		},
		{
			name:    "negative adjustment",
			mutate:  func(f *domain.RuleFormState) { f.AdjustmentValue = -3 },
			wantErr: ErrNegativeAdjustment,
			tab:     TabPricing,
			message: "Adjustment value cannot be negative.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.mutate(&f)

			req, err := c.Compile(f)
			if req != nil {
				t.Fatal("payload built despite validation failure")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got := FocusTab(err); got != tt.tab {
				t.Errorf("expected tab %q, got %q", tt.tab, got)
			}
			if got := DisplayMessage(err); got != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, got)
			}
		})
	}
}

func TestCompileBothGatesFail(t *testing.T) {
	f := validForm()
	f.PriceListID = nil
	f.Factors = nil

	_, err := newTestCompiler().Compile(f)
	if !errors.Is(err, ErrSelectPriceListAndProcedure) || !errors.Is(err, ErrNoFactorContext) {
		t.Fatalf("expected both failures, got %v", err)
	}

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if len(verrs.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(verrs.Issues))
	}
	if verrs.Issues[0].Tab != TabGeneral || verrs.Issues[1].Tab != TabFactors {
		t.Errorf("unexpected tabs %q, %q", verrs.Issues[0].Tab, verrs.Issues[1].Tab)
	}
	if FocusTab(err) != TabGeneral {
		t.Errorf("first issue should decide focus, got %q", FocusTab(err))
	}
}

func TestCompileStrictParser(t *testing.T) {
	c := NewCompiler(factors.NewStrictParser(factors.DefaultTaxonomy()))
	f := validForm()
	f.Factors = f.Factors.With("doctor_experience_years", "many")

	_, err := c.Compile(f)
	if !errors.Is(err, factors.ErrInvalidNumber) {
		t.Fatalf("expected ErrInvalidNumber, got %v", err)
	}
	if FocusTab(err) != TabFactors {
		t.Errorf("expected factors tab, got %q", FocusTab(err))
	}
}

func genFactors() gopter.Gen {
	keys := []string{"doctor_experience_years", "doctor_title", "patient_age", "provider_region", "service_attributes"}
	return gen.SliceOfN(len(keys), gen.OneConstOf("", "5", "12.5", "SPECIALIST", " padded ", `{"a":1}`, "[1,2]")).
		Map(func(vals []string) domain.FactorValues {
			fv := domain.FactorValues{}
			for i, v := range vals {
				fv = fv.With(keys[i], v)
			}
			return fv
		})
}

func genOptionalID() gopter.Gen {
	return gen.Int64Range(0, 1000).Map(func(v int64) *int64 {
		if v%2 == 0 {
			return nil
		}
		return &v
	})
}

func TestCompileProperties(t *testing.T) {
	c := newTestCompiler()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("no factors always fails with no factor context", prop.ForAll(
		func(name string, priceList, procedure *int64, base float64) bool {
			f := NewForm(testNow)
			f.Name = name
			f.PriceListID = priceList
			f.ProcedureID = procedure
			f.BasePrice = base
			f.Factors = domain.FactorValues{}.With("doctor_title", "")

			req, err := c.Compile(f)
			return req == nil && errors.Is(err, ErrNoFactorContext)
		},
		gen.AlphaString(),
		genOptionalID(),
		genOptionalID(),
		gen.Float64Range(-100, 1000),
	))

	properties.Property("missing price list or procedure always fails", prop.ForAll(
		func(fv domain.FactorValues, id int64, dropPriceList bool) bool {
			f := validForm()
			f.Factors = fv
			if dropPriceList {
				f.PriceListID = nil
				f.ProcedureID = &id
			} else {
				f.PriceListID = &id
				f.ProcedureID = nil
			}
			req, err := c.Compile(f)
			return req == nil && errors.Is(err, ErrSelectPriceListAndProcedure)
		},
		genFactors(),
		gen.Int64Range(1, 1000),
		gen.Bool(),
	))

	properties.Property("compiling twice yields identical payloads", prop.ForAll(
		func(fv domain.FactorValues, discount float64, dt domain.DiscountType, adj float64, dir domain.AdjustmentDirection, unit domain.AdjustmentUnit) bool {
			f := validForm()
			f.Factors = fv.With("doctor_title", "SPECIALIST")
			f.DiscountType = dt
			f.DiscountValue = discount
			f.DiscountCap = float64Ptr(discount * 2)
			f.AdjustmentDirection = dir
			f.AdjustmentUnit = unit
			f.AdjustmentValue = adj

			a, errA := c.Compile(f)
			b, errB := c.Compile(f)
			if errA != nil || errB != nil {
				return false
			}
			ja, _ := json.Marshal(a)
			jb, _ := json.Marshal(b)
			return reflect.DeepEqual(a, b) && string(ja) == string(jb)
		},
		genFactors(),
		gen.Float64Range(0, 500),
		gen.OneConstOf(domain.DiscountNone, domain.DiscountPercent, domain.DiscountAmount),
		gen.Float64Range(0, 500),
		gen.OneConstOf(domain.AdjustNone, domain.AdjustIncrease, domain.AdjustDecrease),
		gen.OneConstOf(domain.UnitPercent, domain.UnitAmount),
	))

	properties.Property("conditions follow factor order", prop.ForAll(
		func(fv domain.FactorValues) bool {
			f := validForm()
			f.Factors = fv.With("doctor_title", "SPECIALIST")

			req, err := c.Compile(f)
			if err != nil {
				return false
			}
			nonEmpty := f.Factors.NonEmpty()
			if len(nonEmpty) != len(req.Conditions) {
				return false
			}
			for i, cond := range req.Conditions {
				if cond.Factor != nonEmpty[i].Key || cond.Operator != "EQUALS" {
					return false
				}
			}
			return true
		},
		genFactors(),
	))

	properties.TestingRun(t)
}
