package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/core/types"
	"marmora/internal/domain/stock"
	"marmora/internal/infrastructure/http/v1/dto"
)

// StockHandler handles the core stock operations.
type StockHandler struct {
	*BaseHandler
	service *stock.Service
}

// NewStockHandler creates a new stock operations handler.
func NewStockHandler(base *BaseHandler, service *stock.Service) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
	}
}

// CheckAvailability handles POST /stock/check-availability
func (h *StockHandler) CheckAvailability(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CheckAvailabilityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	companyID, items, err := parseCompanyItems(req.CompanyID, req.Items)
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.CheckAvailability(ctx, companyID, items)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromAvailabilityResult(result))
}

// Reserve handles POST /stock/reserve
func (h *StockHandler) Reserve(c *gin.Context) {
	h.runOrderOperation(c, h.service.Reserve)
}

// ConfirmReduction handles POST /stock/confirm-reduction
func (h *StockHandler) ConfirmReduction(c *gin.Context) {
	h.runOrderOperation(c, h.service.ConfirmReduction)
}

// CancelReservation handles POST /stock/cancel-reservation
func (h *StockHandler) CancelReservation(c *gin.Context) {
	h.runOrderOperation(c, h.service.CancelReservation)
}

// AddStock handles POST /stock/add
func (h *StockHandler) AddStock(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.AddStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	companyID, err := id.Parse(req.CompanyID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid companyId format"))
		return
	}
	productID, err := id.Parse(req.ProductID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}
	referenceID, err := id.Parse(req.ReferenceID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid referenceId format"))
		return
	}

	adjustments, err := h.service.AddStock(ctx, companyID, productID,
		types.NewQuantityFromFloat64(req.Quantity),
		stock.AdjustmentReason(req.Reason), referenceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromAdjustments(adjustments))
}

// orderOperation is the shared shape of Reserve, ConfirmReduction and
// CancelReservation on the stock service.
type orderOperation func(ctx context.Context, companyID id.ID, items []stock.ItemRequest, orderID id.ID) ([]stock.Adjustment, error)

// runOrderOperation binds an order-scoped request and dispatches it to the
// given core operation.
func (h *StockHandler) runOrderOperation(c *gin.Context, op orderOperation) {
	ctx := c.Request.Context()

	var req dto.OrderOperationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	companyID, items, err := parseCompanyItems(req.CompanyID, req.Items)
	if err != nil {
		h.Error(c, err)
		return
	}

	orderID, err := id.Parse(req.OrderID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid orderId format"))
		return
	}

	adjustments, err := op(ctx, companyID, items, orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromAdjustments(adjustments))
}

func parseCompanyItems(companyIDStr string, reqItems []dto.ItemRequest) (id.ID, []stock.ItemRequest, error) {
	companyID, err := id.Parse(companyIDStr)
	if err != nil {
		return id.Nil(), nil, apperror.NewValidation("invalid companyId format")
	}
	items, err := dto.ToItems(reqItems)
	if err != nil {
		return id.Nil(), nil, err
	}
	return companyID, items, nil
}

// RegisterRoutes registers stock operation routes.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/check-availability", h.CheckAvailability)
	rg.POST("/reserve", h.Reserve)
	rg.POST("/confirm-reduction", h.ConfirmReduction)
	rg.POST("/cancel-reservation", h.CancelReservation)
	rg.POST("/add", h.AddStock)
}
