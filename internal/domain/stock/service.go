package stock

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/core/tx"
	"marmora/internal/core/types"
	"marmora/pkg/logger"
)

var tracer = otel.Tracer("marmora/stock")

// Service implements the stock core operations: availability check,
// reservation, reduction confirmation, reservation cancellation and
// replenishment.
//
// Every mutating operation is two-phase: all items are planned against
// in-memory copies of the loaded records first, then the resulting updates
// are persisted. A shortfall on any item fails the whole call before a
// single record is written.
//
// The company is explicit on every call; the service holds no ambient state.
type Service struct {
	store     Store
	txManager tx.Manager
	locker    Locker    // optional, serializes ops on stores without transactions
	audit     AuditSink // optional, durable adjustment log
}

// NewService creates a new stock service. locker and audit may be nil.
func NewService(store Store, txManager tx.Manager, locker Locker, audit AuditSink) *Service {
	if txManager == nil {
		txManager = tx.NewNop()
	}
	return &Service{
		store:     store,
		txManager: txManager,
		locker:    locker,
		audit:     audit,
	}
}

// CheckAvailability computes per-product availability for the requested
// items. Read-only. Zero or negative requested quantities are the caller's
// concern; they trivially pass the sufficiency check.
func (s *Service) CheckAvailability(ctx context.Context, companyID id.ID, items []ItemRequest) (*AvailabilityResult, error) {
	ctx, span := tracer.Start(ctx, "stock.check_availability",
		trace.WithAttributes(
			attribute.String("company_id", companyID.String()),
			attribute.Int("items", len(items)),
		))
	defer span.End()

	result := &AvailabilityResult{
		Availability: make([]Availability, 0, len(items)),
	}

	for _, item := range items {
		records, err := s.store.ListForProduct(ctx, companyID, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("list stock for product %s: %w", item.ProductID, err)
		}

		var total, reserved types.Quantity
		for _, rec := range records {
			total += rec.Quantity
			reserved += rec.ReservedQuantity
		}
		available := total - reserved

		result.Availability = append(result.Availability, Availability{
			ProductID:         item.ProductID,
			CompanyID:         companyID,
			AvailableQuantity: available,
			ReservedQuantity:  reserved,
			TotalQuantity:     total,
		})

		if available < item.Quantity {
			result.Insufficient = append(result.Insufficient, InsufficientItem{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			})
		}
	}

	return result, nil
}

// Reserve earmarks the requested quantities against in-flight order orderID.
// Allocation is FIFO across the product's records (oldest record first);
// only reserved_quantity moves, physical quantity is untouched.
func (s *Service) Reserve(ctx context.Context, companyID id.ID, items []ItemRequest, orderID id.ID) ([]Adjustment, error) {
	ctx, span := tracer.Start(ctx, "stock.reserve",
		trace.WithAttributes(
			attribute.String("company_id", companyID.String()),
			attribute.String("order_id", orderID.String()),
			attribute.Int("items", len(items)),
		))
	defer span.End()

	if err := validateMutation(items, orderID); err != nil {
		return nil, err
	}

	var adjustments []Adjustment
	err := s.withGuards(ctx, companyID, func(ctx context.Context) error {
		alloc := newAllocation(s.store, companyID)
		for _, item := range items {
			adjs, err := alloc.planReserve(ctx, item, orderID)
			if err != nil {
				return err
			}
			adjustments = append(adjustments, adjs...)
		}
		if err := alloc.flush(ctx); err != nil {
			return err
		}
		s.emitAudit(ctx, adjustments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock reserved",
		"company_id", companyID,
		"order_id", orderID,
		"items", len(items),
		"adjustments", len(adjustments),
	)
	return adjustments, nil
}

// ConfirmReduction converts reservations into physical reduction on
// delivery: both quantity and reserved_quantity go down on the affected
// records, floored at zero per record. This is the only operation that
// lowers total on-hand quantity.
func (s *Service) ConfirmReduction(ctx context.Context, companyID id.ID, items []ItemRequest, orderID id.ID) ([]Adjustment, error) {
	ctx, span := tracer.Start(ctx, "stock.confirm_reduction",
		trace.WithAttributes(
			attribute.String("company_id", companyID.String()),
			attribute.String("order_id", orderID.String()),
			attribute.Int("items", len(items)),
		))
	defer span.End()

	if err := validateMutation(items, orderID); err != nil {
		return nil, err
	}

	var adjustments []Adjustment
	err := s.withGuards(ctx, companyID, func(ctx context.Context) error {
		alloc := newAllocation(s.store, companyID)
		for _, item := range items {
			adjs, err := alloc.planReduction(ctx, item, orderID)
			if err != nil {
				return err
			}
			adjustments = append(adjustments, adjs...)
		}
		if err := alloc.flush(ctx); err != nil {
			return err
		}
		s.emitAudit(ctx, adjustments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock reduction confirmed",
		"company_id", companyID,
		"order_id", orderID,
		"items", len(items),
	)
	return adjustments, nil
}

// CancelReservation releases previously reserved quantity back to the
// available pool. Physical quantity is unaffected. Releasing more than is
// currently reserved releases what is there and stops; the operation does
// not fail, so a cancel after partial delivery stays safe to call.
func (s *Service) CancelReservation(ctx context.Context, companyID id.ID, items []ItemRequest, orderID id.ID) ([]Adjustment, error) {
	ctx, span := tracer.Start(ctx, "stock.cancel_reservation",
		trace.WithAttributes(
			attribute.String("company_id", companyID.String()),
			attribute.String("order_id", orderID.String()),
			attribute.Int("items", len(items)),
		))
	defer span.End()

	if err := validateMutation(items, orderID); err != nil {
		return nil, err
	}

	var adjustments []Adjustment
	err := s.withGuards(ctx, companyID, func(ctx context.Context) error {
		alloc := newAllocation(s.store, companyID)
		for _, item := range items {
			adjs, err := alloc.planRelease(ctx, item, orderID)
			if err != nil {
				return err
			}
			adjustments = append(adjustments, adjs...)
		}
		if err := alloc.flush(ctx); err != nil {
			return err
		}
		s.emitAudit(ctx, adjustments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock reservation cancelled",
		"company_id", companyID,
		"order_id", orderID,
		"items", len(items),
	)
	return adjustments, nil
}

// AddStock adds quantity for a product (replenishment or return). The
// quantity accumulates into the oldest existing record; a new record with
// zero reserved is created when the product has none.
func (s *Service) AddStock(ctx context.Context, companyID, productID id.ID, quantity types.Quantity, reason AdjustmentReason, referenceID id.ID) ([]Adjustment, error) {
	ctx, span := tracer.Start(ctx, "stock.add",
		trace.WithAttributes(
			attribute.String("company_id", companyID.String()),
			attribute.String("product_id", productID.String()),
			attribute.String("reason", string(reason)),
		))
	defer span.End()

	if !quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	if !reason.Valid() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown adjustment reason %q", reason))
	}

	referenceType := ReferenceManual
	if reason == ReasonReturn {
		referenceType = ReferenceReturn
	}

	var adjustments []Adjustment
	err := s.withGuards(ctx, companyID, func(ctx context.Context) error {
		records, err := s.store.ListForProduct(ctx, companyID, productID)
		if err != nil {
			return fmt.Errorf("list stock for product %s: %w", productID, err)
		}

		var target Record
		if len(records) > 0 {
			target = records[0]
			target.Quantity += quantity
			if err := s.store.UpdateQuantities(ctx, companyID, target.StockID, target.Quantity, target.ReservedQuantity); err != nil {
				return fmt.Errorf("update stock %s: %w", target.StockID, err)
			}
		} else {
			target = Record{
				CompanyID: companyID,
				ProductID: productID,
				Quantity:  quantity,
			}
			if err := s.store.Create(ctx, &target); err != nil {
				return fmt.Errorf("create stock record: %w", err)
			}
		}

		adjustments = append(adjustments, Adjustment{
			ProductID:      productID,
			CompanyID:      companyID,
			StockID:        target.StockID,
			QuantityChange: quantity,
			Reason:         reason,
			ReferenceID:    referenceID,
			ReferenceType:  referenceType,
			CreatedAt:      time.Now().UTC(),
		})
		s.emitAudit(ctx, adjustments)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock added",
		"company_id", companyID,
		"product_id", productID,
		"quantity", quantity,
		"reason", reason,
	)
	return adjustments, nil
}

// withGuards runs fn inside a transaction, behind the company lock when a
// locker is configured. Both guards are no-ops for stores that do not need
// them.
func (s *Service) withGuards(ctx context.Context, companyID id.ID, fn func(ctx context.Context) error) error {
	run := func(ctx context.Context) error {
		return s.txManager.RunInTransaction(ctx, fn)
	}
	if s.locker != nil {
		return s.locker.WithLock(ctx, lockKey(companyID), run)
	}
	return run(ctx)
}

func (s *Service) emitAudit(ctx context.Context, adjustments []Adjustment) {
	if s.audit == nil || len(adjustments) == 0 {
		return
	}
	if err := s.audit.RecordAdjustments(ctx, adjustments); err != nil {
		logger.Warn(ctx, "record stock adjustments failed", "error", err)
	}
}

func lockKey(companyID id.ID) string {
	return "stock:company:" + companyID.String()
}

func validateMutation(items []ItemRequest, orderID id.ID) error {
	if len(items) == 0 {
		return apperror.NewValidation("items are required")
	}
	if id.IsNil(orderID) {
		return apperror.NewValidation("order id is required")
	}
	for i, item := range items {
		if id.IsNil(item.ProductID) {
			return apperror.NewValidation(fmt.Sprintf("item %d: product id is required", i))
		}
		if !item.Quantity.IsPositive() {
			return apperror.NewValidation(fmt.Sprintf("item %d: quantity must be positive", i))
		}
	}
	return nil
}

// allocation stages changes for one core operation. Records are loaded once
// per product and mutated in memory; flush persists every touched record.
// Nothing reaches the store until all items have been planned, which is what
// keeps a mid-operation shortfall from leaving partial reservations behind.
type allocation struct {
	store     Store
	companyID id.ID
	records   map[id.ID][]Record // keyed by product, FIFO order
	loaded    []id.ID            // products in first-load order
	touched   map[id.ID]struct{} // stock ids with pending changes
}

func newAllocation(store Store, companyID id.ID) *allocation {
	return &allocation{
		store:     store,
		companyID: companyID,
		records:   make(map[id.ID][]Record),
		touched:   make(map[id.ID]struct{}),
	}
}

// recordsFor returns the staged records for a product, loading them on
// first use. Later items for the same product see earlier planned changes.
func (a *allocation) recordsFor(ctx context.Context, productID id.ID) ([]Record, error) {
	if recs, ok := a.records[productID]; ok {
		return recs, nil
	}
	recs, err := a.store.ListForProduct(ctx, a.companyID, productID)
	if err != nil {
		return nil, fmt.Errorf("list stock for product %s: %w", productID, err)
	}
	a.records[productID] = recs
	a.loaded = append(a.loaded, productID)
	return recs, nil
}

func (a *allocation) touch(stockID id.ID) {
	a.touched[stockID] = struct{}{}
}

// planReserve allocates item.Quantity across the product's records in FIFO
// order, bumping reserved_quantity on the staged copies. Fails with an
// insufficiency error, without staging anything, when total availability
// cannot cover the request.
func (a *allocation) planReserve(ctx context.Context, item ItemRequest, orderID id.ID) ([]Adjustment, error) {
	records, err := a.recordsFor(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}

	var available types.Quantity
	for i := range records {
		if avail := records[i].Available(); avail.IsPositive() {
			available += avail
		}
	}
	if available < item.Quantity {
		return nil, apperror.NewInsufficientStock(
			item.ProductID.String(),
			item.Quantity.Float64(),
			available.Float64(),
		)
	}

	now := time.Now().UTC()
	var adjustments []Adjustment
	remaining := item.Quantity
	for i := range records {
		if !remaining.IsPositive() {
			break
		}
		availInRecord := records[i].Available()
		toReserve := availInRecord.Min(remaining)
		if !toReserve.IsPositive() {
			continue
		}

		records[i].ReservedQuantity += toReserve
		a.touch(records[i].StockID)
		remaining -= toReserve

		adjustments = append(adjustments, Adjustment{
			ProductID:      item.ProductID,
			CompanyID:      a.companyID,
			StockID:        records[i].StockID,
			QuantityChange: toReserve.Neg(),
			Reason:         ReasonOrderCreated,
			ReferenceID:    orderID,
			ReferenceType:  ReferenceOrder,
			CreatedAt:      now,
		})
	}

	return adjustments, nil
}

// planReduction lowers quantity and clears the matching reservation on
// delivery. Per record, quantity drops by min(quantity, remaining) and
// reserved by min(reserved, remaining) in one staged update, so neither can
// go negative. The on-hand pre-check makes a whole-item over-reduction fail
// before anything is staged.
func (a *allocation) planReduction(ctx context.Context, item ItemRequest, orderID id.ID) ([]Adjustment, error) {
	records, err := a.recordsFor(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}

	var onHand types.Quantity
	for i := range records {
		onHand += records[i].Quantity
	}
	if onHand < item.Quantity {
		return nil, apperror.NewInsufficientStock(
			item.ProductID.String(),
			item.Quantity.Float64(),
			onHand.Float64(),
		)
	}

	now := time.Now().UTC()
	var adjustments []Adjustment
	remaining := item.Quantity
	for i := range records {
		if !remaining.IsPositive() {
			break
		}
		toReduce := records[i].Quantity.Min(remaining)
		reservedToClear := records[i].ReservedQuantity.Min(remaining)
		if !toReduce.IsPositive() {
			continue
		}

		records[i].Quantity -= toReduce
		records[i].ReservedQuantity -= reservedToClear
		a.touch(records[i].StockID)
		remaining -= toReduce

		adjustments = append(adjustments, Adjustment{
			ProductID:      item.ProductID,
			CompanyID:      a.companyID,
			StockID:        records[i].StockID,
			QuantityChange: toReduce.Neg(),
			Reason:         ReasonOrderCreated,
			ReferenceID:    orderID,
			ReferenceType:  ReferenceOrder,
			CreatedAt:      now,
		})
	}

	return adjustments, nil
}

// planRelease returns reserved quantity to the available pool in FIFO
// order. Quantity is never touched.
func (a *allocation) planRelease(ctx context.Context, item ItemRequest, orderID id.ID) ([]Adjustment, error) {
	records, err := a.recordsFor(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var adjustments []Adjustment
	remaining := item.Quantity
	for i := range records {
		if !remaining.IsPositive() {
			break
		}
		toRelease := records[i].ReservedQuantity.Min(remaining)
		if !toRelease.IsPositive() {
			continue
		}

		records[i].ReservedQuantity -= toRelease
		a.touch(records[i].StockID)
		remaining -= toRelease

		adjustments = append(adjustments, Adjustment{
			ProductID:      item.ProductID,
			CompanyID:      a.companyID,
			StockID:        records[i].StockID,
			QuantityChange: toRelease,
			Reason:         ReasonOrderCancelled,
			ReferenceID:    orderID,
			ReferenceType:  ReferenceOrder,
			CreatedAt:      now,
		})
	}

	return adjustments, nil
}

// flush persists every staged record that changed, preserving product load
// order and FIFO record order. Each record gets exactly one update even when
// several items touched it.
func (a *allocation) flush(ctx context.Context) error {
	for _, productID := range a.loaded {
		for i := range a.records[productID] {
			rec := &a.records[productID][i]
			if _, ok := a.touched[rec.StockID]; !ok {
				continue
			}
			if err := rec.CheckInvariant(); err != nil {
				return err
			}
			if err := a.store.UpdateQuantities(ctx, a.companyID, rec.StockID, rec.Quantity, rec.ReservedQuantity); err != nil {
				return fmt.Errorf("update stock %s: %w", rec.StockID, err)
			}
		}
	}
	return nil
}
