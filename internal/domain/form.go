package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DateLayout is the wire format of effective dates.
const DateLayout = "2006-01-02"

// RuleScope is the closed set of rule scopes the designer offers.
type RuleScope string

const (
	ScopeProcedurePricing  RuleScope = "procedure_pricing"
	ScopeAuthorizationRule RuleScope = "authorization_rule"
	ScopeLimitRule         RuleScope = "limit_rule"
	ScopeCoverageRule      RuleScope = "coverage_rule"
)

// Valid reports whether s is one of the known scopes.
func (s RuleScope) Valid() bool {
	switch s {
	case ScopeProcedurePricing, ScopeAuthorizationRule, ScopeLimitRule, ScopeCoverageRule:
		return true
	}
	return false
}

// RuleStatus is the lifecycle status chosen in the designer.
type RuleStatus string

const (
	StatusDraft  RuleStatus = "draft"
	StatusActive RuleStatus = "active"
)

// Valid reports whether s is a known status.
func (s RuleStatus) Valid() bool {
	return s == StatusDraft || s == StatusActive
}

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	DiscountNone    DiscountType = "none"
	DiscountPercent DiscountType = "percent"
	DiscountAmount  DiscountType = "amount"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountNone || t == DiscountPercent || t == DiscountAmount
}

// AdjustmentDirection is the sign of a directional adjustment.
type AdjustmentDirection string

const (
	AdjustNone     AdjustmentDirection = "none"
	AdjustIncrease AdjustmentDirection = "increase"
	AdjustDecrease AdjustmentDirection = "decrease"
)

// Valid reports whether d is a known direction.
func (d AdjustmentDirection) Valid() bool {
	return d == AdjustNone || d == AdjustIncrease || d == AdjustDecrease
}

// AdjustmentUnit is the unit of AdjustmentValue.
type AdjustmentUnit string

const (
	UnitPercent AdjustmentUnit = "PERCENT"
	UnitAmount  AdjustmentUnit = "AMOUNT"
)

// Valid reports whether u is a known unit.
func (u AdjustmentUnit) Valid() bool {
	return u == UnitPercent || u == UnitAmount
}

// RuleFormState is the editing state of one candidate rule.
// Values are replaced wholesale by the designer reducer; treat a state as immutable.
type RuleFormState struct {
	// General tab
	Name        string     `json:"name"`
	Scope       RuleScope  `json:"scope"`
	Status      RuleStatus `json:"status"`
	Description string     `json:"description"`
	Stackable   bool       `json:"stackable"`

	PriceListID *int64 `json:"priceListId"`
	ProcedureID *int64 `json:"procedureId"`
	Priority    int    `json:"priority"`

	EffectiveFrom string  `json:"effectiveFrom"`
	EffectiveTo   *string `json:"effectiveTo"`

	// Factors tab
	Factors FactorValues `json:"factors"`

	// Pricing tab
	BasePrice float64 `json:"basePrice"`

	DiscountType  DiscountType `json:"discountType"`
	DiscountValue float64      `json:"discountValue"`
	DiscountCap   *float64     `json:"discountCap"`

	AdjustmentDirection AdjustmentDirection `json:"adjustmentDirection"`
	AdjustmentUnit      AdjustmentUnit      `json:"adjustmentUnit"`
	AdjustmentValue     float64             `json:"adjustmentValue"`
}

// FactorValue is one raw factor entry. An empty Value means unset.
type FactorValue struct {
	Key   string
	Value string
}

// FactorValues is an insertion-ordered map from factor key to raw value.
// Setting an existing key keeps its position; keys are unique.
// It marshals to a JSON object and keeps the object's key order on decode.
type FactorValues []FactorValue

// Get returns the raw value for key.
func (f FactorValues) Get(key string) (string, bool) {
	for _, fv := range f {
		if fv.Key == key {
			return fv.Value, true
		}
	}
	return "", false
}

// With returns a copy of f with key set to value.
func (f FactorValues) With(key, value string) FactorValues {
	out := make(FactorValues, len(f), len(f)+1)
	copy(out, f)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, FactorValue{Key: key, Value: value})
}

// Without returns a copy of f with key removed.
func (f FactorValues) Without(key string) FactorValues {
	out := make(FactorValues, 0, len(f))
	for _, fv := range f {
		if fv.Key != key {
			out = append(out, fv)
		}
	}
	return out
}

// NonEmpty returns the entries with a non-empty value, in order.
func (f FactorValues) NonEmpty() FactorValues {
	var out FactorValues
	for _, fv := range f {
		if fv.Value != "" {
			out = append(out, fv)
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (f FactorValues) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fv := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(fv.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(fv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
// Duplicate keys collapse onto the first position with the last value.
func (f *FactorValues) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("factors: expected JSON object")
	}

	var out FactorValues
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("factors: expected string key")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("factors: value for %q must be a string: %w", key, err)
		}
		out = out.With(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*f = out
	return nil
}
