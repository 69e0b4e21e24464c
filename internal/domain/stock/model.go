// Package stock provides the multi-company stock reservation core.
//
// A product can be spread over several stock records per company (one per
// slab variant: finish state, dimensions, location, supplier). Availability
// and allocation always work across the whole record set for a
// (company, product) pair.
package stock

import (
	"time"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/core/types"
)

// Record is one persisted stock row for a (company, product, variant) tuple.
type Record struct {
	StockID   id.ID `db:"stock_id" json:"stockId"`
	CompanyID id.ID `db:"company_id" json:"companyId"`
	ProductID id.ID `db:"product_id" json:"productId"`

	// Quantity is the total physical quantity on hand.
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// ReservedQuantity is earmarked for unfulfilled orders.
	// Invariant after every committed mutation: 0 <= reserved <= quantity.
	ReservedQuantity types.Quantity `db:"reserved_quantity" json:"reservedQuantity"`

	// Valuation (optional).
	UnitCost     types.Money `db:"unit_cost" json:"unitCost"`
	SellingPrice types.Money `db:"selling_price" json:"sellingPrice"`

	// Variant attributes. Multiple records may exist for the same
	// (company, product) pair when these differ.
	State    string         `db:"state" json:"state,omitempty"`
	Splicer  string         `db:"splicer" json:"splicer,omitempty"`
	Width    types.Quantity `db:"width" json:"width,omitempty"`
	Length   types.Quantity `db:"length" json:"length,omitempty"`
	Location string         `db:"location" json:"location,omitempty"`
	Supplier string         `db:"supplier" json:"supplier,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Available returns the quantity still open for fresh allocation.
func (r *Record) Available() types.Quantity {
	return r.Quantity - r.ReservedQuantity
}

// CheckInvariant verifies 0 <= reserved <= quantity.
func (r *Record) CheckInvariant() error {
	if r.ReservedQuantity.IsNegative() {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "reserved quantity is negative").
			WithDetail("stock_id", r.StockID)
	}
	if r.ReservedQuantity > r.Quantity {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "reserved quantity exceeds total quantity").
			WithDetail("stock_id", r.StockID)
	}
	return nil
}

// ItemRequest is a requested quantity of a product for a given company,
// one line of an order or issue slip.
type ItemRequest struct {
	ProductID id.ID          `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
}

// AdjustmentReason classifies why stock changed.
type AdjustmentReason string

const (
	ReasonOrderCreated     AdjustmentReason = "order_created"
	ReasonOrderCancelled   AdjustmentReason = "order_cancelled"
	ReasonOrderModified    AdjustmentReason = "order_modified"
	ReasonManualAdjustment AdjustmentReason = "manual_adjustment"
	ReasonReturn           AdjustmentReason = "return"
)

// Valid reports whether the reason is one of the known values.
func (r AdjustmentReason) Valid() bool {
	switch r {
	case ReasonOrderCreated, ReasonOrderCancelled, ReasonOrderModified,
		ReasonManualAdjustment, ReasonReturn:
		return true
	}
	return false
}

// ReferenceType identifies the kind of document an adjustment points at.
type ReferenceType string

const (
	ReferenceOrder  ReferenceType = "order"
	ReferenceReturn ReferenceType = "return"
	ReferenceManual ReferenceType = "manual"
)

// Adjustment is an ephemeral signed-delta record describing one
// allocation/release/reduction step, returned to the caller for audit.
// Negative QuantityChange means availability decreased.
type Adjustment struct {
	ProductID      id.ID            `db:"product_id" json:"productId"`
	CompanyID      id.ID            `db:"company_id" json:"companyId"`
	StockID        id.ID            `db:"stock_id" json:"stockId"`
	QuantityChange types.Quantity   `db:"quantity_change" json:"quantityChange"`
	Reason         AdjustmentReason `db:"reason" json:"reason"`
	ReferenceID    id.ID            `db:"reference_id" json:"referenceId"`
	ReferenceType  ReferenceType    `db:"reference_type" json:"referenceType"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

// Availability is the aggregated view for one requested product.
type Availability struct {
	ProductID         id.ID          `json:"productId"`
	CompanyID         id.ID          `json:"companyId"`
	AvailableQuantity types.Quantity `json:"availableQuantity"`
	ReservedQuantity  types.Quantity `json:"reservedQuantity"`
	TotalQuantity     types.Quantity `json:"totalQuantity"`
}

// InsufficientItem names a product whose request could not be covered.
type InsufficientItem struct {
	ProductID id.ID          `json:"productId"`
	Requested types.Quantity `json:"requested"`
	Available types.Quantity `json:"available"`
}

// AvailabilityResult is the outcome of CheckAvailability.
type AvailabilityResult struct {
	Availability []Availability     `json:"availability"`
	Insufficient []InsufficientItem `json:"insufficientItems,omitempty"`
}

// OK reports whether every requested item is fully available.
func (r *AvailabilityResult) OK() bool {
	return len(r.Insufficient) == 0
}
