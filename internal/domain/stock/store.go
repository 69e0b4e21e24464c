package stock

import (
	"context"

	"marmora/internal/core/id"
	"marmora/internal/core/types"
)

// Store defines operations against the stock record store.
//
// Implementations must return records for a product in FIFO order:
// created_at ascending, stock_id ascending as tie-break. The allocation
// loops in Service depend on that ordering being deterministic.
type Store interface {
	// ListForProduct returns all records for (company, product) in FIFO order.
	// The PostgreSQL implementation locks the rows when called inside a
	// transaction so a whole core operation works on a stable snapshot.
	ListForProduct(ctx context.Context, companyID, productID id.ID) ([]Record, error)

	// ListByCompany returns records for a company with pagination.
	ListByCompany(ctx context.Context, companyID id.ID, filter ListFilter) (ListResult, error)

	// Get returns one record, scoped by company for ownership validation.
	Get(ctx context.Context, companyID, stockID id.ID) (Record, error)

	// Create inserts a new record. StockID and timestamps are assigned
	// when zero.
	Create(ctx context.Context, rec *Record) error

	// UpdateQuantities persists new quantity and reserved_quantity for one
	// record in a single update. companyID is passed for server-side
	// ownership validation.
	UpdateQuantities(ctx context.Context, companyID, stockID id.ID, quantity, reserved types.Quantity) error

	// UpdateAttributes updates descriptive and valuation fields. Nil fields
	// stay untouched. Quantities never move through this path.
	UpdateAttributes(ctx context.Context, companyID, stockID id.ID, update AttributeUpdate) error

	// Delete soft-deletes a record. Not used by the core operations,
	// exposed for the company-stocks CRUD surface.
	Delete(ctx context.Context, companyID, stockID id.ID) error
}

// AttributeUpdate is a partial update of a record's descriptive fields.
type AttributeUpdate struct {
	UnitCost     *types.Money
	SellingPrice *types.Money
	State        *string
	Splicer      *string
	Width        *types.Quantity
	Length       *types.Quantity
	Location     *string
	Supplier     *string
}

// ListFilter controls ListByCompany queries.
type ListFilter struct {
	ProductID   *id.ID
	Location    string
	Supplier    string
	ExcludeZero bool
	Limit       int
	Offset      int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: 50}
}

// ListResult contains paginated records.
type ListResult struct {
	Items      []Record `json:"items"`
	TotalCount int      `json:"totalCount"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
}

// AuditSink receives adjustments produced by mutating core operations.
// Implementations persist them for traceability; the core treats the sink
// as best-effort and never fails an operation on sink errors.
type AuditSink interface {
	RecordAdjustments(ctx context.Context, adjustments []Adjustment) error
}

// Locker serializes stock operations that cannot rely on store-side
// transactions (the REST collaborator). Keys are per company.
type Locker interface {
	// WithLock runs fn while holding the named lock.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
