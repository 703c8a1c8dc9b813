// Package preview simulates a compiled pricing rule against a sample claim
// context. Conditions are evaluated with CEL; prices are computed with
// fixed-point decimals.
package preview

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/shopspring/decimal"

	"github.com/opensource-health/rulesmith/internal/domain"
	"github.com/opensource-health/rulesmith/internal/factors"
)

// ErrNoPayload is returned when Simulate is called without a payload.
var ErrNoPayload = errors.New("preview: payload is required")

// maxPrograms bounds the compiled-program cache.
const maxPrograms = 256

// Step is one price transformation applied during a simulation.
type Step struct {
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

// Result is the outcome of one simulation.
// When Matched is false Price equals BasePrice and Steps is empty.
type Result struct {
	Expression string          `json:"expression"`
	Matched    bool            `json:"matched"`
	BasePrice  decimal.Decimal `json:"basePrice"`
	Price      decimal.Decimal `json:"price"`
	Steps      []Step          `json:"steps,omitempty"`
}

// Simulator evaluates payload conditions against sample factor values.
type Simulator struct {
	mu       sync.RWMutex
	env      *cel.Env
	parser   factors.ValueParser
	programs map[string]cel.Program
}

// NewSimulator creates a Simulator. String sample values are coerced with p
// so that "10" matches a NUMBER condition the same way the payload does.
func NewSimulator(p factors.ValueParser) (*Simulator, error) {
	env, err := cel.NewEnv(
		cel.Variable("factors", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Simulator{
		env:      env,
		parser:   p,
		programs: make(map[string]cel.Program),
	}, nil
}

// Simulate reports whether sample satisfies every condition of payload and,
// when it does, the price the rule would produce.
func (s *Simulator) Simulate(payload *domain.CreateRuleRequest, sample map[string]any) (*Result, error) {
	if payload == nil {
		return nil, ErrNoPayload
	}

	expr, err := Expression(payload.Conditions)
	if err != nil {
		return nil, err
	}

	prg, err := s.program(expr)
	if err != nil {
		return nil, err
	}

	vars, err := s.activation(sample)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(map[string]any{"factors": vars})
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	matched, ok := out.(types.Bool)
	if !ok {
		return nil, fmt.Errorf("expression %q returned %s, want bool", expr, out.Type().TypeName())
	}

	base := decimal.NewFromFloat(payload.Pricing.FixedPrice)
	res := &Result{
		Expression: expr,
		Matched:    bool(matched),
		BasePrice:  base,
		Price:      base,
	}
	if res.Matched {
		res.Price, res.Steps = price(payload)
	}
	return res, nil
}

func (s *Simulator) program(expr string) (cel.Program, error) {
	s.mu.RLock()
	prg, ok := s.programs[expr]
	s.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := s.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for %q: %w", expr, err)
	}

	s.mu.Lock()
	if len(s.programs) >= maxPrograms {
		s.programs = make(map[string]cel.Program)
	}
	s.programs[expr] = prg
	s.mu.Unlock()
	return prg, nil
}

func (s *Simulator) activation(sample map[string]any) (map[string]any, error) {
	vars := make(map[string]any, len(sample))
	for k, v := range sample {
		if raw, ok := v.(string); ok && s.parser != nil {
			parsed, err := s.parser.Parse(k, raw)
			if err != nil {
				return nil, fmt.Errorf("sample %s: %w", k, err)
			}
			v = parsed
		}
		vars[k] = normalize(v)
	}
	return vars, nil
}

// normalize widens Go integers to float64 so they compare like JSON numbers.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

// Expression renders conditions as a CEL boolean expression.
// Each condition becomes `"key" in factors && factors["key"] == value`;
// an empty condition list matches everything.
func Expression(conditions []domain.Condition) (string, error) {
	if len(conditions) == 0 {
		return "true", nil
	}
	parts := make([]string, 0, len(conditions))
	for _, c := range conditions {
		if c.Operator != domain.OperatorEquals {
			return "", fmt.Errorf("condition %s: unsupported operator %q", c.Factor, c.Operator)
		}
		lit, err := literal(c.Value)
		if err != nil {
			return "", fmt.Errorf("condition %s: %w", c.Factor, err)
		}
		key := strconv.Quote(c.Factor)
		parts = append(parts, fmt.Sprintf("(%s in factors && factors[%s] == %s)", key, key, lit))
	}
	return strings.Join(parts, " && "), nil
}

func literal(v any) (string, error) {
	switch x := normalize(v).(type) {
	case nil:
		return "null", nil
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return strconv.Quote(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", fmt.Errorf("non-finite number %v", x)
		}
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.ContainsAny(s, ".") {
			s += ".0"
		}
		return s, nil
	case []any:
		elems := make([]string, len(x))
		for i, e := range x {
			lit, err := literal(e)
			if err != nil {
				return "", err
			}
			elems[i] = lit
		}
		return "[" + strings.Join(elems, ", ") + "]", nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]string, len(keys))
		for i, k := range keys {
			lit, err := literal(x[k])
			if err != nil {
				return "", err
			}
			entries[i] = strconv.Quote(k) + ": " + lit
		}
		return "{" + strings.Join(entries, ", ") + "}", nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

var hundred = decimal.NewFromInt(100)

// price applies discounts then adjustments to the fixed price, in payload order.
// The result never drops below zero and is rounded to cents.
func price(p *domain.CreateRuleRequest) (decimal.Decimal, []Step) {
	current := decimal.NewFromFloat(p.Pricing.FixedPrice)
	var steps []Step

	if p.Discount != nil && p.Discount.Apply {
		for _, block := range p.Discount.LogicBlocks {
			pct := decimal.NewFromFloat(block.Percent)
			amount := current.Mul(pct).Div(hundred)
			current = current.Sub(amount)
			steps = append(steps, Step{Kind: "PERCENT_DISCOUNT", Amount: amount.Neg(), Price: current})
		}
	}

	for _, adj := range p.Adjustments {
		var amount decimal.Decimal
		switch adj.Type {
		case domain.AdjustmentFlatDiscount:
			v, ok := number(adj.Cases.Default)
			if !ok {
				continue
			}
			off := v.Abs()
			if adj.Cases.Cap != nil {
				if limit := decimal.NewFromFloat(*adj.Cases.Cap).Abs(); off.GreaterThan(limit) {
					off = limit
				}
			}
			amount = off.Neg()
		case domain.AdjustmentPercent:
			if adj.Percent == nil {
				continue
			}
			amount = current.Mul(decimal.NewFromFloat(*adj.Percent)).Div(hundred)
		case domain.AdjustmentAmount:
			v, ok := number(adj.Cases.Default)
			if !ok {
				continue
			}
			amount = v
		default:
			continue
		}
		current = current.Add(amount)
		steps = append(steps, Step{Kind: string(adj.Type), Amount: amount, Price: current})
	}

	if current.IsNegative() {
		current = decimal.Zero
	}
	return current.Round(2), steps
}

func number(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case float64:
		return decimal.NewFromFloat(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	}
	return decimal.Decimal{}, false
}
