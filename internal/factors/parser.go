package factors

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ValueParser converts a raw factor string into the value carried by a condition.
type ValueParser interface {
	Parse(key, raw string) (any, error)
}

// LenientParser is the default parser. It never fails:
// NUMBER factors fall back to the raw string when they do not parse, and
// JSON-looking text falls back to the trimmed string when it does not decode.
type LenientParser struct {
	Taxonomy *Taxonomy
}

// NewLenientParser returns a LenientParser over t.
func NewLenientParser(t *Taxonomy) *LenientParser {
	return &LenientParser{Taxonomy: t}
}

// Parse implements ValueParser. The returned error is always nil.
func (p *LenientParser) Parse(key, raw string) (any, error) {
	if raw == "" {
		return raw, nil
	}

	if def, ok := p.lookup(key); ok && def.DataType == TypeNumber {
		if f, ok := parseNumber(raw); ok {
			return f, nil
		}
		return raw, nil
	}

	trimmed := strings.TrimSpace(raw)
	if v, ok := parseJSON(trimmed); ok {
		return v, nil
	}
	return trimmed, nil
}

func (p *LenientParser) lookup(key string) (Definition, bool) {
	if p.Taxonomy == nil {
		return Definition{}, false
	}
	return p.Taxonomy.Lookup(key)
}

// StrictParser rejects unknown keys, non-numeric NUMBER values and values
// outside a closed set.
type StrictParser struct {
	Taxonomy *Taxonomy
}

// NewStrictParser returns a StrictParser over t.
func NewStrictParser(t *Taxonomy) *StrictParser {
	return &StrictParser{Taxonomy: t}
}

// Parse implements ValueParser.
func (p *StrictParser) Parse(key, raw string) (any, error) {
	def, ok := p.Taxonomy.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFactor, key)
	}
	if raw == "" {
		return raw, nil
	}

	trimmed := strings.TrimSpace(raw)
	switch def.DataType {
	case TypeNumber:
		f, ok := parseNumber(trimmed)
		if !ok {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidNumber, key, raw)
		}
		return f, nil
	default:
		if def.Closed() {
			if !slices.Contains(def.AllowedValues, trimmed) {
				return nil, fmt.Errorf("%w: %s=%q", ErrValueNotAllowed, key, raw)
			}
			return trimmed, nil
		}
		if v, ok := parseJSON(trimmed); ok {
			return v, nil
		}
		return trimmed, nil
	}
}

// FormatValue renders a parsed value for display.
// Numbers keep their shortest decimal form so "12.5" parses back to 12.5.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func parseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseJSON(trimmed string) (any, bool) {
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	return v, true
}
