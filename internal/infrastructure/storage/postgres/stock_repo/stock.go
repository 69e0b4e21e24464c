// Package stock_repo provides the PostgreSQL implementation of the stock
// record store.
package stock_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/core/types"
	"marmora/internal/domain/stock"
	"marmora/internal/infrastructure/storage/postgres"
)

const companyStocksTable = "company_stocks"

var stockColumns = []string{
	"stock_id", "company_id", "product_id",
	"quantity", "reserved_quantity",
	"unit_cost", "selling_price",
	"state", "splicer", "width", "length", "location", "supplier",
	"created_at", "updated_at",
}

// StockRepo implements stock.Store on PostgreSQL.
//
// FIFO ordering is explicit: created_at ascending with stock_id as
// tie-break (stock ids are UUIDv7, themselves time-ordered). When called
// inside a transaction, ListForProduct locks the returned rows so a core
// operation works on a snapshot no concurrent reservation can move under it.
type StockRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock record repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListForProduct returns records for (company, product) in FIFO order.
func (r *StockRepo) ListForProduct(ctx context.Context, companyID, productID id.ID) ([]stock.Record, error) {
	q := r.builder.Select(stockColumns...).
		From(companyStocksTable).
		Where(squirrel.Eq{
			"company_id": companyID,
			"product_id": productID,
		}).
		Where("deleted_at IS NULL").
		OrderBy("created_at", "stock_id")

	if r.txManager.InTx(ctx) {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []stock.Record
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &records, sql, args...); err != nil {
		return nil, apperror.NewStore("list", err)
	}

	return records, nil
}

// ListByCompany returns records for a company with pagination.
func (r *StockRepo) ListByCompany(ctx context.Context, companyID id.ID, filter stock.ListFilter) (stock.ListResult, error) {
	result := stock.ListResult{Limit: filter.Limit, Offset: filter.Offset}

	base := r.builder.Select().
		From(companyStocksTable).
		Where(squirrel.Eq{"company_id": companyID}).
		Where("deleted_at IS NULL")

	if filter.ProductID != nil {
		base = base.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.Location != "" {
		base = base.Where(squirrel.Eq{"location": filter.Location})
	}
	if filter.Supplier != "" {
		base = base.Where(squirrel.Eq{"supplier": filter.Supplier})
	}
	if filter.ExcludeZero {
		base = base.Where(squirrel.NotEq{"quantity": int64(0)})
	}

	countSQL, countArgs, err := base.Columns("COUNT(*)").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, apperror.NewStore("count", err)
	}

	q := base.Columns(stockColumns...).OrderBy("created_at", "stock_id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, apperror.NewStore("list", err)
	}

	return result, nil
}

// Get returns one record scoped by company.
func (r *StockRepo) Get(ctx context.Context, companyID, stockID id.ID) (stock.Record, error) {
	var record stock.Record

	q := r.builder.Select(stockColumns...).
		From(companyStocksTable).
		Where(squirrel.Eq{
			"stock_id":   stockID,
			"company_id": companyID,
		}).
		Where("deleted_at IS NULL").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return record, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &record, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return record, apperror.NewNotFound("stock record", stockID)
		}
		return record, apperror.NewStore("get", err)
	}

	return record, nil
}

// Create inserts a new record, assigning id and timestamps when zero.
func (r *StockRepo) Create(ctx context.Context, rec *stock.Record) error {
	if id.IsNil(rec.StockID) {
		rec.StockID = id.New()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	q := r.builder.Insert(companyStocksTable).
		Columns(stockColumns...).
		Values(
			rec.StockID, rec.CompanyID, rec.ProductID,
			rec.Quantity, rec.ReservedQuantity,
			rec.UnitCost, rec.SellingPrice,
			rec.State, rec.Splicer, rec.Width, rec.Length, rec.Location, rec.Supplier,
			rec.CreatedAt, rec.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return apperror.NewStore("create", err)
	}

	return nil
}

// UpdateQuantities persists quantity and reserved_quantity in one update.
func (r *StockRepo) UpdateQuantities(ctx context.Context, companyID, stockID id.ID, quantity, reserved types.Quantity) error {
	q := r.builder.Update(companyStocksTable).
		Set("quantity", quantity).
		Set("reserved_quantity", reserved).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{
			"stock_id":   stockID,
			"company_id": companyID,
		}).
		Where("deleted_at IS NULL")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewStore("update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock record", stockID)
	}

	return nil
}

// UpdateAttributes updates descriptive and valuation fields; nil fields
// are left untouched.
func (r *StockRepo) UpdateAttributes(ctx context.Context, companyID, stockID id.ID, update stock.AttributeUpdate) error {
	q := r.builder.Update(companyStocksTable).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{
			"stock_id":   stockID,
			"company_id": companyID,
		}).
		Where("deleted_at IS NULL")

	if update.UnitCost != nil {
		q = q.Set("unit_cost", *update.UnitCost)
	}
	if update.SellingPrice != nil {
		q = q.Set("selling_price", *update.SellingPrice)
	}
	if update.State != nil {
		q = q.Set("state", *update.State)
	}
	if update.Splicer != nil {
		q = q.Set("splicer", *update.Splicer)
	}
	if update.Width != nil {
		q = q.Set("width", *update.Width)
	}
	if update.Length != nil {
		q = q.Set("length", *update.Length)
	}
	if update.Location != nil {
		q = q.Set("location", *update.Location)
	}
	if update.Supplier != nil {
		q = q.Set("supplier", *update.Supplier)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewStore("update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock record", stockID)
	}

	return nil
}

// Delete soft-deletes a record.
func (r *StockRepo) Delete(ctx context.Context, companyID, stockID id.ID) error {
	q := r.builder.Update(companyStocksTable).
		Set("deleted_at", time.Now().UTC()).
		Where(squirrel.Eq{
			"stock_id":   stockID,
			"company_id": companyID,
		}).
		Where("deleted_at IS NULL")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return apperror.NewStore("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock record", stockID)
	}

	return nil
}

// Ensure interface compliance.
var _ stock.Store = (*StockRepo)(nil)
