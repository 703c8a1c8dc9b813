// Package factors holds the static factor taxonomy and the Factor Value Parser
// that turns raw designer input into condition values.
package factors

import (
	"errors"
	"fmt"
	"slices"
)

// Errors returned by the taxonomy and parsers.
var (
	ErrDuplicateFactorKey = errors.New("duplicate factor key")
	ErrUnknownFactor      = errors.New("unknown factor")
	ErrValueNotAllowed    = errors.New("value not allowed for factor")
	ErrInvalidNumber      = errors.New("factor value is not a number")
)

// DataType is the value type of a factor.
type DataType string

const (
	TypeString DataType = "STRING"
	TypeNumber DataType = "NUMBER"
)

// Definition describes one rating dimension.
type Definition struct {
	Key           string   `json:"key"`
	Name          string   `json:"name"`
	DataType      DataType `json:"dataType"`
	AllowedValues []string `json:"allowedValues,omitempty"`
}

// Closed reports whether the factor only accepts its AllowedValues.
func (d Definition) Closed() bool {
	return len(d.AllowedValues) > 0
}

// Category groups definitions for presentation only.
type Category struct {
	Name    string       `json:"name"`
	Factors []Definition `json:"factors"`
}

// Taxonomy is the flattened, read-only factor catalog.
type Taxonomy struct {
	categories []Category
	index      map[string]Definition
	keys       []string
}

// NewTaxonomy flattens categories into a key index.
// Keys must be unique across all categories.
func NewTaxonomy(categories []Category) (*Taxonomy, error) {
	t := &Taxonomy{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]Definition),
	}

	for _, c := range categories {
		cat := Category{Name: c.Name, Factors: slices.Clone(c.Factors)}
		for _, def := range cat.Factors {
			if def.Key == "" {
				return nil, fmt.Errorf("category %q: factor with empty key", c.Name)
			}
			if _, exists := t.index[def.Key]; exists {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateFactorKey, def.Key)
			}
			t.index[def.Key] = def
			t.keys = append(t.keys, def.Key)
		}
		t.categories = append(t.categories, cat)
	}

	return t, nil
}

// Lookup returns the definition for key.
func (t *Taxonomy) Lookup(key string) (Definition, bool) {
	def, ok := t.index[key]
	return def, ok
}

// Categories returns a copy of the categories in presentation order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = Category{Name: c.Name, Factors: slices.Clone(c.Factors)}
	}
	return out
}

// Keys returns every factor key in presentation order.
func (t *Taxonomy) Keys() []string {
	return slices.Clone(t.keys)
}

// Len returns the number of factors.
func (t *Taxonomy) Len() int {
	return len(t.keys)
}

// CheckAllowed verifies raw against a closed-choice factor.
// Empty values clear a factor and are always accepted, as are free-text factors.
func (t *Taxonomy) CheckAllowed(key, raw string) error {
	if raw == "" {
		return nil
	}
	def, ok := t.index[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFactor, key)
	}
	if !def.Closed() {
		return nil
	}
	if slices.Contains(def.AllowedValues, raw) {
		return nil
	}
	return fmt.Errorf("%w: %s=%q", ErrValueNotAllowed, key, raw)
}
