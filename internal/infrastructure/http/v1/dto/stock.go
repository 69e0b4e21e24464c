package dto

import (
	"time"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/core/types"
	"marmora/internal/domain/stock"
)

// --- Request DTOs for core stock operations ---

// ItemRequest is one requested product line.
type ItemRequest struct {
	ProductID string  `json:"productId" binding:"required,uuid"`
	Quantity  float64 `json:"quantity" binding:"required,gt=0"`
}

// ToItems converts request lines to domain item requests.
func ToItems(items []ItemRequest) ([]stock.ItemRequest, error) {
	out := make([]stock.ItemRequest, len(items))
	for i, item := range items {
		productID, err := id.Parse(item.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid productId format").
				WithDetail("productId", item.ProductID)
		}
		out[i] = stock.ItemRequest{
			ProductID: productID,
			Quantity:  types.NewQuantityFromFloat64(item.Quantity),
		}
	}
	return out, nil
}

// CheckAvailabilityRequest for POST /stock/check-availability.
type CheckAvailabilityRequest struct {
	CompanyID string        `json:"companyId" binding:"required,uuid"`
	Items     []ItemRequest `json:"items" binding:"required,min=1,dive"`
}

// OrderOperationRequest for reserve / confirm-reduction / cancel-reservation.
type OrderOperationRequest struct {
	CompanyID string        `json:"companyId" binding:"required,uuid"`
	OrderID   string        `json:"orderId" binding:"required,uuid"`
	Items     []ItemRequest `json:"items" binding:"required,min=1,dive"`
}

// AddStockRequest for POST /stock/add.
type AddStockRequest struct {
	CompanyID   string  `json:"companyId" binding:"required,uuid"`
	ProductID   string  `json:"productId" binding:"required,uuid"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	Reason      string  `json:"reason" binding:"required"`
	ReferenceID string  `json:"referenceId" binding:"required,uuid"`
}

// --- Response DTOs ---

// AvailabilityResponse is the aggregated view for one product.
type AvailabilityResponse struct {
	ProductID         string  `json:"productId"`
	AvailableQuantity float64 `json:"availableQuantity"`
	ReservedQuantity  float64 `json:"reservedQuantity"`
	TotalQuantity     float64 `json:"totalQuantity"`
}

// InsufficientItemResponse names a product whose request cannot be covered.
type InsufficientItemResponse struct {
	ProductID string  `json:"productId"`
	Requested float64 `json:"requested"`
	Available float64 `json:"available"`
}

// CheckAvailabilityResponse for POST /stock/check-availability.
type CheckAvailabilityResponse struct {
	Available         bool                       `json:"available"`
	Availability      []AvailabilityResponse     `json:"availability"`
	InsufficientItems []InsufficientItemResponse `json:"insufficientItems,omitempty"`
}

// FromAvailabilityResult converts domain result to response DTO.
func FromAvailabilityResult(r *stock.AvailabilityResult) CheckAvailabilityResponse {
	resp := CheckAvailabilityResponse{
		Available:    r.OK(),
		Availability: make([]AvailabilityResponse, len(r.Availability)),
	}
	for i, a := range r.Availability {
		resp.Availability[i] = AvailabilityResponse{
			ProductID:         a.ProductID.String(),
			AvailableQuantity: a.AvailableQuantity.Float64(),
			ReservedQuantity:  a.ReservedQuantity.Float64(),
			TotalQuantity:     a.TotalQuantity.Float64(),
		}
	}
	for _, item := range r.Insufficient {
		resp.InsufficientItems = append(resp.InsufficientItems, InsufficientItemResponse{
			ProductID: item.ProductID.String(),
			Requested: item.Requested.Float64(),
			Available: item.Available.Float64(),
		})
	}
	return resp
}

// AdjustmentResponse represents one signed stock delta in API responses.
type AdjustmentResponse struct {
	ProductID      string    `json:"productId"`
	StockID        string    `json:"stockId"`
	QuantityChange float64   `json:"quantityChange"`
	Reason         string    `json:"reason"`
	ReferenceID    string    `json:"referenceId"`
	ReferenceType  string    `json:"referenceType"`
	CreatedAt      time.Time `json:"createdAt"`
}

// OperationResponse wraps the adjustments produced by a mutating operation.
type OperationResponse struct {
	Success     bool                 `json:"success"`
	Adjustments []AdjustmentResponse `json:"adjustments"`
}

// FromAdjustments converts domain adjustments to an operation response.
func FromAdjustments(adjustments []stock.Adjustment) OperationResponse {
	resp := OperationResponse{
		Success:     true,
		Adjustments: make([]AdjustmentResponse, len(adjustments)),
	}
	for i, a := range adjustments {
		resp.Adjustments[i] = AdjustmentResponse{
			ProductID:      a.ProductID.String(),
			StockID:        a.StockID.String(),
			QuantityChange: a.QuantityChange.Float64(),
			Reason:         string(a.Reason),
			ReferenceID:    a.ReferenceID.String(),
			ReferenceType:  string(a.ReferenceType),
			CreatedAt:      a.CreatedAt,
		}
	}
	return resp
}

// --- Company stock record CRUD DTOs ---

// StockRecordResponse represents one stock record in API responses.
type StockRecordResponse struct {
	StockID           string    `json:"stockId"`
	CompanyID         string    `json:"companyId"`
	ProductID         string    `json:"productId"`
	Quantity          float64   `json:"quantity"`
	ReservedQuantity  float64   `json:"reservedQuantity"`
	AvailableQuantity float64   `json:"availableQuantity"`
	UnitCost          string    `json:"unitCost"`
	SellingPrice      string    `json:"sellingPrice"`
	State             string    `json:"state,omitempty"`
	Splicer           string    `json:"splicer,omitempty"`
	Width             float64   `json:"width,omitempty"`
	Length            float64   `json:"length,omitempty"`
	Location          string    `json:"location,omitempty"`
	Supplier          string    `json:"supplier,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// FromRecord converts a domain record to a response DTO.
func FromRecord(r stock.Record) StockRecordResponse {
	return StockRecordResponse{
		StockID:           r.StockID.String(),
		CompanyID:         r.CompanyID.String(),
		ProductID:         r.ProductID.String(),
		Quantity:          r.Quantity.Float64(),
		ReservedQuantity:  r.ReservedQuantity.Float64(),
		AvailableQuantity: r.Available().Float64(),
		UnitCost:          r.UnitCost.String(),
		SellingPrice:      r.SellingPrice.String(),
		State:             r.State,
		Splicer:           r.Splicer,
		Width:             r.Width.Float64(),
		Length:            r.Length.Float64(),
		Location:          r.Location,
		Supplier:          r.Supplier,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// CreateStockRecordRequest for POST /company-stocks.
type CreateStockRecordRequest struct {
	CompanyID    string  `json:"companyId" binding:"required,uuid"`
	ProductID    string  `json:"productId" binding:"required,uuid"`
	Quantity     float64 `json:"quantity" binding:"required,gt=0"`
	UnitCost     string  `json:"unitCost"`
	SellingPrice string  `json:"sellingPrice"`
	State        string  `json:"state"`
	Splicer      string  `json:"splicer"`
	Width        float64 `json:"width"`
	Length       float64 `json:"length"`
	Location     string  `json:"location"`
	Supplier     string  `json:"supplier"`
}

// ToRecord converts the request to a domain record.
func (r *CreateStockRecordRequest) ToRecord() (*stock.Record, error) {
	companyID, err := id.Parse(r.CompanyID)
	if err != nil {
		return nil, apperror.NewValidation("invalid companyId format")
	}
	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return nil, apperror.NewValidation("invalid productId format")
	}

	rec := &stock.Record{
		CompanyID: companyID,
		ProductID: productID,
		Quantity:  types.NewQuantityFromFloat64(r.Quantity),
		State:     r.State,
		Splicer:   r.Splicer,
		Width:     types.NewQuantityFromFloat64(r.Width),
		Length:    types.NewQuantityFromFloat64(r.Length),
		Location:  r.Location,
		Supplier:  r.Supplier,
	}
	if r.UnitCost != "" {
		if rec.UnitCost, err = types.NewMoneyFromString(r.UnitCost); err != nil {
			return nil, apperror.NewValidation("invalid unitCost format")
		}
	}
	if r.SellingPrice != "" {
		if rec.SellingPrice, err = types.NewMoneyFromString(r.SellingPrice); err != nil {
			return nil, apperror.NewValidation("invalid sellingPrice format")
		}
	}
	return rec, nil
}

// UpdateStockRecordRequest for PUT /company-stocks/:stockId.
// Only descriptive attributes and valuation are updatable here; quantities
// move through the stock operations so reservations stay consistent.
type UpdateStockRecordRequest struct {
	CompanyID    string   `json:"companyId" binding:"required,uuid"`
	UnitCost     *string  `json:"unitCost"`
	SellingPrice *string  `json:"sellingPrice"`
	State        *string  `json:"state"`
	Splicer      *string  `json:"splicer"`
	Width        *float64 `json:"width"`
	Length       *float64 `json:"length"`
	Location     *string  `json:"location"`
	Supplier     *string  `json:"supplier"`
}

// ListStockRecordsRequest for GET /company-stocks.
type ListStockRecordsRequest struct {
	PaginationRequest
	CompanyID   string `form:"companyId" binding:"required,uuid"`
	ProductID   string `form:"productId" binding:"omitempty,uuid"`
	Location    string `form:"location"`
	Supplier    string `form:"supplier"`
	ExcludeZero bool   `form:"excludeZero"`
}
