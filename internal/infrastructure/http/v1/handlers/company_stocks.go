package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/core/types"
	"marmora/internal/domain/stock"
	"marmora/internal/infrastructure/http/v1/dto"
)

// CompanyStocksHandler handles CRUD for individual stock records.
// Quantity changes are not accepted here; they go through the stock
// operations so reservations stay consistent.
type CompanyStocksHandler struct {
	*BaseHandler
	store stock.Store
}

// NewCompanyStocksHandler creates a new company stocks handler.
func NewCompanyStocksHandler(base *BaseHandler, store stock.Store) *CompanyStocksHandler {
	return &CompanyStocksHandler{
		BaseHandler: base,
		store:       store,
	}
}

// List handles GET /company-stocks
func (h *CompanyStocksHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ListStockRecordsRequest
	if !h.BindQuery(c, &req) {
		return
	}
	req.Defaults()

	companyID, err := id.Parse(req.CompanyID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid companyId format"))
		return
	}

	filter := stock.ListFilter{
		Location:    req.Location,
		Supplier:    req.Supplier,
		ExcludeZero: req.ExcludeZero,
		Limit:       req.Limit,
		Offset:      req.Offset,
	}
	if req.ProductID != "" {
		productID, err := id.Parse(req.ProductID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid productId format"))
			return
		}
		filter.ProductID = &productID
	}

	result, err := h.store.ListByCompany(ctx, companyID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.StockRecordResponse, len(result.Items))
	for i, rec := range result.Items {
		items[i] = dto.FromRecord(rec)
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Get handles GET /company-stocks/:stockId
func (h *CompanyStocksHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	companyID, stockID, ok := h.parseIDs(c)
	if !ok {
		return
	}

	rec, err := h.store.Get(ctx, companyID, stockID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromRecord(rec))
}

// Create handles POST /company-stocks
func (h *CompanyStocksHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateStockRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rec, err := req.ToRecord()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.store.Create(ctx, rec); err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromRecord(*rec))
}

// Update handles PUT /company-stocks/:stockId
func (h *CompanyStocksHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	stockID, err := id.Parse(c.Param("stockId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid stockId format"))
		return
	}

	var req dto.UpdateStockRecordRequest
	if !h.BindJSON(c, &req) {
		return
	}

	companyID, err := id.Parse(req.CompanyID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid companyId format"))
		return
	}

	update := stock.AttributeUpdate{
		State:    req.State,
		Splicer:  req.Splicer,
		Location: req.Location,
		Supplier: req.Supplier,
	}
	if req.UnitCost != nil {
		cost, err := types.NewMoneyFromString(*req.UnitCost)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid unitCost format"))
			return
		}
		update.UnitCost = &cost
	}
	if req.SellingPrice != nil {
		price, err := types.NewMoneyFromString(*req.SellingPrice)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid sellingPrice format"))
			return
		}
		update.SellingPrice = &price
	}
	if req.Width != nil {
		w := types.NewQuantityFromFloat64(*req.Width)
		update.Width = &w
	}
	if req.Length != nil {
		l := types.NewQuantityFromFloat64(*req.Length)
		update.Length = &l
	}

	if err := h.store.UpdateAttributes(ctx, companyID, stockID, update); err != nil {
		h.Error(c, err)
		return
	}

	rec, err := h.store.Get(ctx, companyID, stockID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromRecord(rec))
}

// Delete handles DELETE /company-stocks/:stockId
func (h *CompanyStocksHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	companyID, stockID, ok := h.parseIDs(c)
	if !ok {
		return
	}

	// Refuse to drop records with live reservations.
	rec, err := h.store.Get(ctx, companyID, stockID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if rec.ReservedQuantity.IsPositive() {
		h.Error(c, apperror.NewBusinessRule(apperror.CodeBusinessRule,
			"stock record has active reservations").
			WithDetail("stock_id", stockID.String()).
			WithDetail("reserved", rec.ReservedQuantity.Float64()))
		return
	}

	if err := h.store.Delete(ctx, companyID, stockID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

func (h *CompanyStocksHandler) parseIDs(c *gin.Context) (companyID, stockID id.ID, ok bool) {
	stockID, err := id.Parse(c.Param("stockId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid stockId format"))
		return id.Nil(), id.Nil(), false
	}
	companyID, err = id.Parse(c.Query("companyId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("companyId query parameter is required"))
		return id.Nil(), id.Nil(), false
	}
	return companyID, stockID, true
}

// RegisterRoutes registers company stock record routes.
func (h *CompanyStocksHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:stockId", h.Get)
	rg.PUT("/:stockId", h.Update)
	rg.DELETE("/:stockId", h.Delete)
}
