// Package restclient implements the stock record store over the remote
// company-stocks REST API. It is the adapter used when stock rows live in
// the central back office rather than a local database.
//
// The remote API has no transactions and no row locking. Callers pair this
// store with tx.Nop and the redis locker so concurrent operations on the
// same company are serialized on this side.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/core/types"
	"marmora/internal/domain/stock"
)

// listLimit is sent on every list call. The core needs the full record set
// for a company/product pair before computing availability; the remote API
// offers no server-side aggregation.
const listLimit = 1000

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the company-stocks REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a new company-stocks API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// --- wire types (remote API speaks snake_case) ---

type wireRecord struct {
	StockID          id.ID          `json:"stock_id"`
	CompanyID        id.ID          `json:"company_id"`
	ProductID        id.ID          `json:"product_id"`
	Quantity         types.Quantity `json:"quantity"`
	ReservedQuantity types.Quantity `json:"reserved_quantity"`
	UnitCost         types.Money    `json:"unit_cost"`
	SellingPrice     types.Money    `json:"selling_price"`
	State            string         `json:"state,omitempty"`
	Splicer          string         `json:"splicer,omitempty"`
	Width            types.Quantity `json:"width,omitempty"`
	Length           types.Quantity `json:"length,omitempty"`
	Location         string         `json:"location,omitempty"`
	Supplier         string         `json:"supplier,omitempty"`
	CreatedAt        time.Time      `json:"stock_created_at"`
	UpdatedAt        time.Time      `json:"stock_updated_at"`
}

func (w wireRecord) toRecord() stock.Record {
	return stock.Record{
		StockID:          w.StockID,
		CompanyID:        w.CompanyID,
		ProductID:        w.ProductID,
		Quantity:         w.Quantity,
		ReservedQuantity: w.ReservedQuantity,
		UnitCost:         w.UnitCost,
		SellingPrice:     w.SellingPrice,
		State:            w.State,
		Splicer:          w.Splicer,
		Width:            w.Width,
		Length:           w.Length,
		Location:         w.Location,
		Supplier:         w.Supplier,
		CreatedAt:        w.CreatedAt,
		UpdatedAt:        w.UpdatedAt,
	}
}

func fromRecord(rec *stock.Record) wireRecord {
	return wireRecord{
		StockID:          rec.StockID,
		CompanyID:        rec.CompanyID,
		ProductID:        rec.ProductID,
		Quantity:         rec.Quantity,
		ReservedQuantity: rec.ReservedQuantity,
		UnitCost:         rec.UnitCost,
		SellingPrice:     rec.SellingPrice,
		State:            rec.State,
		Splicer:          rec.Splicer,
		Width:            rec.Width,
		Length:           rec.Length,
		Location:         rec.Location,
		Supplier:         rec.Supplier,
	}
}

type wirePagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type listEnvelope struct {
	Success    bool           `json:"success"`
	Data       []wireRecord   `json:"data"`
	Pagination wirePagination `json:"pagination"`
	Error      string         `json:"error,omitempty"`
}

type singleEnvelope struct {
	Success bool        `json:"success"`
	Data    *wireRecord `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// --- stock.Store implementation ---

// ListForProduct returns all records for (company, product) in FIFO order.
// The sort is applied here: the remote API's response order is incidental,
// so ordering by creation time with stock id as tie-break is made explicit.
func (c *Client) ListForProduct(ctx context.Context, companyID, productID id.ID) ([]stock.Record, error) {
	params := url.Values{}
	params.Set("company_id", companyID.String())
	params.Set("product_id", productID.String())
	params.Set("limit", strconv.Itoa(listLimit))

	var env listEnvelope
	if err := c.do(ctx, http.MethodGet, "/company-stocks?"+params.Encode(), nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, apperror.NewStore("list", fmt.Errorf("remote: %s", env.Error))
	}

	records := make([]stock.Record, 0, len(env.Data))
	for _, w := range env.Data {
		records = append(records, w.toRecord())
	}
	sortFIFO(records)
	return records, nil
}

// ListByCompany returns records for a company with pagination.
func (c *Client) ListByCompany(ctx context.Context, companyID id.ID, filter stock.ListFilter) (stock.ListResult, error) {
	params := url.Values{}
	params.Set("company_id", companyID.String())
	if filter.ProductID != nil {
		params.Set("product_id", filter.ProductID.String())
	}
	if filter.Location != "" {
		params.Set("location", filter.Location)
	}
	if filter.Supplier != "" {
		params.Set("supplier", filter.Supplier)
	}
	if filter.ExcludeZero {
		params.Set("exclude_zero", "true")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = listLimit
	}
	params.Set("limit", strconv.Itoa(limit))
	if filter.Offset > 0 {
		params.Set("offset", strconv.Itoa(filter.Offset))
	}

	var env listEnvelope
	if err := c.do(ctx, http.MethodGet, "/company-stocks?"+params.Encode(), nil, &env); err != nil {
		return stock.ListResult{}, err
	}
	if !env.Success {
		return stock.ListResult{}, apperror.NewStore("list", fmt.Errorf("remote: %s", env.Error))
	}

	result := stock.ListResult{
		Items:      make([]stock.Record, 0, len(env.Data)),
		TotalCount: env.Pagination.Total,
		Limit:      limit,
		Offset:     filter.Offset,
	}
	for _, w := range env.Data {
		result.Items = append(result.Items, w.toRecord())
	}
	return result, nil
}

// Get returns one record scoped by company.
func (c *Client) Get(ctx context.Context, companyID, stockID id.ID) (stock.Record, error) {
	params := url.Values{}
	params.Set("company_id", companyID.String())

	var env singleEnvelope
	err := c.do(ctx, http.MethodGet, "/company-stocks/"+stockID.String()+"?"+params.Encode(), nil, &env)
	if err != nil {
		return stock.Record{}, err
	}
	if !env.Success || env.Data == nil {
		return stock.Record{}, apperror.NewNotFound("stock record", stockID)
	}
	return env.Data.toRecord(), nil
}

// Create inserts a new record via POST /company-stocks.
func (c *Client) Create(ctx context.Context, rec *stock.Record) error {
	var env singleEnvelope
	if err := c.do(ctx, http.MethodPost, "/company-stocks", fromRecord(rec), &env); err != nil {
		return err
	}
	if !env.Success {
		return apperror.NewStore("create", fmt.Errorf("remote: %s", env.Error))
	}
	if env.Data != nil {
		rec.StockID = env.Data.StockID
		rec.CreatedAt = env.Data.CreatedAt
		rec.UpdatedAt = env.Data.UpdatedAt
	}
	return nil
}

// UpdateQuantities persists new quantities via PUT /company-stocks/{id}.
// company_id rides along for server-side ownership validation.
func (c *Client) UpdateQuantities(ctx context.Context, companyID, stockID id.ID, quantity, reserved types.Quantity) error {
	body := map[string]any{
		"company_id":        companyID.String(),
		"quantity":          quantity,
		"reserved_quantity": reserved,
	}

	var env singleEnvelope
	if err := c.do(ctx, http.MethodPut, "/company-stocks/"+stockID.String(), body, &env); err != nil {
		return err
	}
	if !env.Success {
		return apperror.NewStore("update", fmt.Errorf("remote: %s", env.Error))
	}
	return nil
}

// UpdateAttributes sends only the provided fields via PUT /company-stocks/{id}.
func (c *Client) UpdateAttributes(ctx context.Context, companyID, stockID id.ID, update stock.AttributeUpdate) error {
	body := map[string]any{"company_id": companyID.String()}
	if update.UnitCost != nil {
		body["unit_cost"] = *update.UnitCost
	}
	if update.SellingPrice != nil {
		body["selling_price"] = *update.SellingPrice
	}
	if update.State != nil {
		body["state"] = *update.State
	}
	if update.Splicer != nil {
		body["splicer"] = *update.Splicer
	}
	if update.Width != nil {
		body["width"] = *update.Width
	}
	if update.Length != nil {
		body["length"] = *update.Length
	}
	if update.Location != nil {
		body["location"] = *update.Location
	}
	if update.Supplier != nil {
		body["supplier"] = *update.Supplier
	}

	var env singleEnvelope
	if err := c.do(ctx, http.MethodPut, "/company-stocks/"+stockID.String(), body, &env); err != nil {
		return err
	}
	if !env.Success {
		return apperror.NewStore("update", fmt.Errorf("remote: %s", env.Error))
	}
	return nil
}

// Delete soft-deletes a record via DELETE /company-stocks/{id}.
func (c *Client) Delete(ctx context.Context, companyID, stockID id.ID) error {
	body := map[string]any{"company_id": companyID.String()}

	var env singleEnvelope
	if err := c.do(ctx, http.MethodDelete, "/company-stocks/"+stockID.String(), body, &env); err != nil {
		return err
	}
	if !env.Success {
		return apperror.NewStore("delete", fmt.Errorf("remote: %s", env.Error))
	}
	return nil
}

// do performs one HTTP round-trip and decodes the envelope. Transport
// failures and 5xx responses surface as store errors; the core never
// retries, callers decide retry/abort.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.NewStore(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperror.NewNotFound("stock record", path)
	}
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperror.NewStore(method+" "+path,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(payload)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperror.NewStore(method+" "+path, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func sortFIFO(records []stock.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].StockID.String() < records[j].StockID.String()
	})
}

// Ensure interface compliance.
var _ stock.Store = (*Client)(nil)
