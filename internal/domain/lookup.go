package domain

import "context"

// PriceList is one row of the price-list search collaborator.
type PriceList struct {
	ID           int64   `json:"id"`
	Code         string  `json:"code,omitempty"`
	NameEn       string  `json:"nameEn,omitempty"`
	ProviderType string  `json:"providerType,omitempty"`
	RegionName   string  `json:"regionName,omitempty"`
	ValidFrom    string  `json:"validFrom,omitempty"`
	ValidTo      *string `json:"validTo,omitempty"`
}

// Procedure is one row of the procedure search collaborator.
type Procedure struct {
	ID             int64    `json:"id"`
	SystemCode     string   `json:"systemCode,omitempty"`
	NameEn         string   `json:"nameEn,omitempty"`
	UnitOfMeasure  string   `json:"unitOfMeasure,omitempty"`
	ReferencePrice *float64 `json:"referencePrice,omitempty"`
}

// Page is a paged collaborator result.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
}

// PriceListQuery is the price-list search input.
type PriceListQuery struct {
	Page   int    `json:"page"`
	Size   int    `json:"size"`
	Code   string `json:"code,omitempty"`
	NameEn string `json:"nameEn,omitempty"`
}

// ProcedureQuery is the procedure search input.
type ProcedureQuery struct {
	Keyword string `json:"keyword,omitempty"`
	Page    int    `json:"page"`
	Size    int    `json:"size"`
}

// RuleCreator persists a compiled rule on the backend.
type RuleCreator interface {
	CreatePricingRule(ctx context.Context, tenantID string, req *CreateRuleRequest) (*CreatedRule, error)
}

// PriceListSearcher looks up price lists.
type PriceListSearcher interface {
	SearchPriceLists(ctx context.Context, tenantID string, q PriceListQuery) (*Page[PriceList], error)
}

// ProcedureSearcher looks up procedures.
type ProcedureSearcher interface {
	SearchProcedures(ctx context.Context, tenantID string, q ProcedureQuery) (*Page[Procedure], error)
}
