package search

import (
	"context"
	"strings"
	"time"

	"github.com/opensource-health/rulesmith/internal/domain"
)

// Catalog fronts the price-list and procedure collaborators.
// Each caller key gets its own last-request-wins lane.
type Catalog struct {
	priceLists  *Keyed[domain.PriceListQuery, *domain.Page[domain.PriceList]]
	procedures  *Keyed[domain.ProcedureQuery, *domain.Page[domain.Procedure]]
	defaultSize int
}

// NewCatalog binds the lookups to their collaborators.
func NewCatalog(pl domain.PriceListSearcher, pr domain.ProcedureSearcher, debounce time.Duration, defaultSize int) *Catalog {
	if defaultSize <= 0 {
		defaultSize = 20
	}
	return &Catalog{
		priceLists: NewKeyed(func(ctx context.Context, key string, q domain.PriceListQuery) (*domain.Page[domain.PriceList], error) {
			return pl.SearchPriceLists(ctx, tenantOf(key), q)
		}, debounce),
		procedures: NewKeyed(func(ctx context.Context, key string, q domain.ProcedureQuery) (*domain.Page[domain.Procedure], error) {
			return pr.SearchProcedures(ctx, tenantOf(key), q)
		}, debounce),
		defaultSize: defaultSize,
	}
}

// PriceLists searches price lists for tenantID on the lane named by lane.
func (c *Catalog) PriceLists(ctx context.Context, tenantID, lane string, q domain.PriceListQuery) (*domain.Page[domain.PriceList], error) {
	if q.Size <= 0 {
		q.Size = c.defaultSize
	}
	if q.Page < 0 {
		q.Page = 0
	}
	return c.priceLists.Do(ctx, laneKey(tenantID, lane), q)
}

// Procedures searches procedures for tenantID on the lane named by lane.
func (c *Catalog) Procedures(ctx context.Context, tenantID, lane string, q domain.ProcedureQuery) (*domain.Page[domain.Procedure], error) {
	if q.Size <= 0 {
		q.Size = c.defaultSize
	}
	if q.Page < 0 {
		q.Page = 0
	}
	return c.procedures.Do(ctx, laneKey(tenantID, lane), q)
}

const laneSep = "\x00"

func laneKey(tenantID, lane string) string {
	return tenantID + laneSep + lane
}

func tenantOf(key string) string {
	tenant, _, _ := strings.Cut(key, laneSep)
	return tenant
}
