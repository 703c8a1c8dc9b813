package domain

// Wire constants for the create-rule payload.
const (
	// OperatorEquals is the only operator the designer emits.
	OperatorEquals = "EQUALS"

	// PricingModeFixed prices the procedure at a fixed amount.
	PricingModeFixed = "FIXED"

	// GlobalFactorKey marks an adjustment that applies regardless of factor values.
	// It doubles as the cases.default sentinel of a percent adjustment.
	GlobalFactorKey = "GLOBAL"
)

// AdjustmentType identifies how an adjustment entry modifies the computed price.
type AdjustmentType string

const (
	AdjustmentFlatDiscount AdjustmentType = "FLAT_DISCOUNT"
	AdjustmentPercent      AdjustmentType = "PERCENT_ADJUSTMENT"
	AdjustmentAmount       AdjustmentType = "AMOUNT_ADJUSTMENT"
)

// CreateRuleRequest is the payload sent to the rule-creation endpoint.
// It is always derived from a RuleFormState, never edited by hand.
type CreateRuleRequest struct {
	ProcedureID int64   `json:"procedureId"`
	PriceListID int64   `json:"priceListId"`
	Priority    int     `json:"priority"`
	ValidFrom   string  `json:"validFrom"`
	ValidTo     *string `json:"validTo"`

	Conditions []Condition `json:"conditions"`
	Pricing    Pricing     `json:"pricing"`

	// Discount is present only for a positive percent discount.
	Discount *Discount `json:"discount,omitempty"`

	// Adjustments is omitted entirely when no adjustment applies.
	Adjustments []Adjustment `json:"adjustments,omitempty"`
}

// Condition matches one factor against a value.
type Condition struct {
	Factor   string `json:"factor"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Pricing is the primary price outcome of a rule.
type Pricing struct {
	Mode       string  `json:"mode"`
	FixedPrice float64 `json:"fixedPrice"`
}

// Discount carries percent discounts. Flat amounts travel as adjustments.
type Discount struct {
	Apply       bool         `json:"apply"`
	LogicBlocks []LogicBlock `json:"logicBlocks"`
}

// LogicBlock is one discount step.
type LogicBlock struct {
	Percent float64 `json:"percent"`
}

// Adjustment is a signed modification applied to the computed price.
type Adjustment struct {
	Type      AdjustmentType  `json:"type"`
	FactorKey string          `json:"factorKey"`
	Percent   *float64        `json:"percent,omitempty"`
	Cases     AdjustmentCases `json:"cases"`
}

// AdjustmentCases holds the per-case values of an adjustment.
// Default is a float64 for amount-based entries and the GlobalFactorKey
// sentinel string for percent adjustments.
type AdjustmentCases struct {
	Default any      `json:"default"`
	Cap     *float64 `json:"cap,omitempty"`
}

// CreatedRule is the backend's answer to a successful create call.
// The body is opaque; ID is extracted when the backend sends one.
type CreatedRule struct {
	ID  string `json:"id,omitempty"`
	Raw []byte `json:"-"`
}
