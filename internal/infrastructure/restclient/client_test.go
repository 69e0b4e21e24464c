package restclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/core/types"
	"marmora/internal/domain/stock"
	"marmora/internal/infrastructure/restclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *restclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return restclient.NewClient(restclient.Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
}

func wireRecordJSON(stockID, companyID, productID id.ID, qty, reserved float64, createdAt time.Time) map[string]any {
	return map[string]any{
		"stock_id":          stockID.String(),
		"company_id":        companyID.String(),
		"product_id":        productID.String(),
		"quantity":          qty,
		"reserved_quantity": reserved,
		"unit_cost":         "120.50",
		"selling_price":     "180.00",
		"stock_created_at":  createdAt.Format(time.RFC3339Nano),
		"stock_updated_at":  createdAt.Format(time.RFC3339Nano),
	}
}

func TestListForProduct_SortsFIFO(t *testing.T) {
	companyID := id.New()
	productID := id.New()
	older := id.New()
	newer := id.New()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/company-stocks", r.URL.Path)
		assert.Equal(t, companyID.String(), r.URL.Query().Get("company_id"))
		assert.Equal(t, productID.String(), r.URL.Query().Get("product_id"))
		assert.Equal(t, "1000", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		// Newest first on the wire, client must re-sort oldest first.
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				wireRecordJSON(newer, companyID, productID, 10, 0, base.Add(time.Hour)),
				wireRecordJSON(older, companyID, productID, 5, 2, base),
			},
			"pagination": map[string]any{"total": 2, "limit": 1000, "offset": 0},
		})
	})

	records, err := client.ListForProduct(context.Background(), companyID, productID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, older, records[0].StockID)
	assert.Equal(t, newer, records[1].StockID)
	assert.Equal(t, types.NewQuantityFromFloat64(5), records[0].Quantity)
	assert.Equal(t, types.NewQuantityFromFloat64(2), records[0].ReservedQuantity)
	assert.Equal(t, "120.5", records[0].UnitCost.String())
}

func TestListForProduct_RemoteFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "database unavailable",
		})
	})

	_, err := client.ListForProduct(context.Background(), id.New(), id.New())
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeStore, appErr.Code)
}

func TestListForProduct_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.ListForProduct(context.Background(), id.New(), id.New())
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeStore, appErr.Code)
}

func TestUpdateQuantities_SendsPayload(t *testing.T) {
	companyID := id.New()
	stockID := id.New()

	var payload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/company-stocks/"+stockID.String(), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	err := client.UpdateQuantities(context.Background(), companyID, stockID,
		types.NewQuantityFromFloat64(7.5), types.NewQuantityFromFloat64(2))
	require.NoError(t, err)

	assert.Equal(t, companyID.String(), payload["company_id"])
	assert.Equal(t, 7.5, payload["quantity"])
	assert.Equal(t, 2.0, payload["reserved_quantity"])
}

func TestGet_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "not found"})
	})

	_, err := client.Get(context.Background(), id.New(), id.New())
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestCreate_AdoptsServerAssignedFields(t *testing.T) {
	companyID := id.New()
	productID := id.New()
	assigned := id.New()
	createdAt := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, companyID.String(), body["company_id"])
		assert.Equal(t, productID.String(), body["product_id"])

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    wireRecordJSON(assigned, companyID, productID, 12, 0, createdAt),
		})
	})

	rec := stock.Record{
		CompanyID: companyID,
		ProductID: productID,
		Quantity:  types.NewQuantityFromFloat64(12),
		UnitCost:  types.MustMoney("120.50"),
	}
	require.NoError(t, client.Create(context.Background(), &rec))

	assert.Equal(t, assigned, rec.StockID)
	assert.True(t, createdAt.Equal(rec.CreatedAt))
}

func TestListByCompany_Pagination(t *testing.T) {
	companyID := id.New()
	productID := id.New()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, companyID.String(), q.Get("company_id"))
		assert.Equal(t, productID.String(), q.Get("product_id"))
		assert.Equal(t, "25", q.Get("limit"))
		assert.Equal(t, "50", q.Get("offset"))
		assert.Equal(t, "true", q.Get("exclude_zero"))

		data := make([]map[string]any, 0, 25)
		for i := 0; i < 25; i++ {
			data = append(data, wireRecordJSON(id.New(), companyID, productID, float64(i+1), 0,
				time.Date(2025, 3, 1, 0, 0, i, 0, time.UTC)))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"data":       data,
			"pagination": map[string]any{"total": 120, "limit": 25, "offset": 50},
		})
	})

	result, err := client.ListByCompany(context.Background(), companyID, stock.ListFilter{
		ProductID:   &productID,
		ExcludeZero: true,
		Limit:       25,
		Offset:      50,
	})
	require.NoError(t, err)

	assert.Len(t, result.Items, 25)
	assert.Equal(t, 120, result.TotalCount)
	assert.Equal(t, 25, result.Limit)
	assert.Equal(t, 50, result.Offset)
}

func TestDelete(t *testing.T) {
	stockID := id.New()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/company-stocks/"+stockID.String(), r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	require.NoError(t, client.Delete(context.Background(), id.New(), stockID))
}

func TestClientWorksAsStoreForService(t *testing.T) {
	companyID := id.New()
	productID := id.New()
	stockID := id.New()
	qty := 20.0
	reserved := 0.0

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data": []map[string]any{
					wireRecordJSON(stockID, companyID, productID, qty, reserved,
						time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
				},
				"pagination": map[string]any{"total": 1, "limit": 1000, "offset": 0},
			})
		case r.Method == http.MethodPut:
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			qty = body["quantity"].(float64)
			reserved = body["reserved_quantity"].(float64)
			json.NewEncoder(w).Encode(map[string]any{"success": true})
		default:
			http.Error(w, fmt.Sprintf("unexpected %s", r.Method), http.StatusBadRequest)
		}
	})

	svc := stock.NewService(client, nil, nil, nil)

	orderID := id.New()
	adjustments, err := svc.Reserve(context.Background(), companyID, []stock.ItemRequest{
		{ProductID: productID, Quantity: types.NewQuantityFromFloat64(8)},
	}, orderID)
	require.NoError(t, err)
	require.Len(t, adjustments, 1)

	assert.Equal(t, 20.0, qty)
	assert.Equal(t, 8.0, reserved)
}
