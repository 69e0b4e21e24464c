package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"marmora/internal/core/apperror"
	"marmora/internal/core/id"
	"marmora/internal/core/types"
	"marmora/internal/domain/auth"
	"marmora/internal/domain/stock"
	v1 "marmora/internal/infrastructure/http/v1"
	"marmora/pkg/logger"
)

// fakeStore is an in-memory stock.Store for HTTP tests.
type fakeStore struct {
	mu      sync.Mutex
	records []stock.Record
}

func (f *fakeStore) ListForProduct(_ context.Context, companyID, productID id.ID) ([]stock.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []stock.Record
	for _, r := range f.records {
		if r.CompanyID == companyID && r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByCompany(_ context.Context, companyID id.ID, filter stock.ListFilter) (stock.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []stock.Record
	for _, r := range f.records {
		if r.CompanyID == companyID {
			items = append(items, r)
		}
	}
	return stock.ListResult{Items: items, TotalCount: len(items), Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (f *fakeStore) Get(_ context.Context, companyID, stockID id.ID) (stock.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.CompanyID == companyID && r.StockID == stockID {
			return r, nil
		}
	}
	return stock.Record{}, apperror.NewNotFound("stock record", stockID)
}

func (f *fakeStore) Create(_ context.Context, rec *stock.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id.IsNil(rec.StockID) {
		rec.StockID = id.New()
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeStore) UpdateQuantities(_ context.Context, companyID, stockID id.ID, quantity, reserved types.Quantity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].CompanyID == companyID && f.records[i].StockID == stockID {
			f.records[i].Quantity = quantity
			f.records[i].ReservedQuantity = reserved
			return nil
		}
	}
	return apperror.NewNotFound("stock record", stockID)
}

func (f *fakeStore) UpdateAttributes(_ context.Context, companyID, stockID id.ID, update stock.AttributeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].CompanyID == companyID && f.records[i].StockID == stockID {
			if update.Location != nil {
				f.records[i].Location = *update.Location
			}
			return nil
		}
	}
	return apperror.NewNotFound("stock record", stockID)
}

func (f *fakeStore) Delete(_ context.Context, companyID, stockID id.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].CompanyID == companyID && f.records[i].StockID == stockID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return apperror.NewNotFound("stock record", stockID)
}

func (f *fakeStore) seed(companyID, productID id.ID, quantity, reserved float64) id.ID {
	rec := stock.Record{
		StockID:          id.New(),
		CompanyID:        companyID,
		ProductID:        productID,
		Quantity:         types.NewQuantityFromFloat64(quantity),
		ReservedQuantity: types.NewQuantityFromFloat64(reserved),
	}
	f.records = append(f.records, rec)
	return rec.StockID
}

// fakeUserStore holds operator accounts in memory.
type fakeUserStore struct {
	users map[string]*auth.User
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, apperror.NewNotFound("user", email)
}

func (f *fakeUserStore) Create(_ context.Context, user *auth.User) error {
	f.users[user.Email] = user
	return nil
}

func (f *fakeUserStore) Exists(_ context.Context, email string) (bool, error) {
	_, ok := f.users[email]
	return ok, nil
}

type testEnv struct {
	router *httptest.Server
	store  *fakeStore
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := &fakeStore{}
	service := stock.NewService(store, nil, nil, nil)

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))

	hash, err := bcrypt.GenerateFromPassword([]byte("op-password"), bcrypt.MinCost)
	require.NoError(t, err)
	operator := auth.NewUser("ops@example.com", string(hash))
	users := &fakeUserStore{users: map[string]*auth.User{operator.Email: operator}}
	authService := auth.NewService(users, jwtService, auth.DefaultServiceConfig())

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)

	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		JWTValidator: jwtService,
		AuthService:  authService,
		StockService: service,
		StockStore:   store,
	})

	token, _, err := jwtService.GenerateAccessToken(operator.ID.String(), operator.Email, nil, false)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{router: srv, store: store, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authenticated bool) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.router.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func TestHealthLive(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/health/live", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/stock/check-availability", map[string]any{}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperror.CodeUnauthorized, body["code"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"email":    "ops@example.com",
		"password": "op-password",
	}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	token := body["token"].(map[string]any)
	assert.NotEmpty(t, token["accessToken"])
	assert.Equal(t, "Bearer", token["tokenType"])

	resp, body = env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"email":    "ops@example.com",
		"password": "wrong",
	}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperror.CodeUnauthorized, body["code"])
}

func TestCheckAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(t)
	companyID := id.New()
	productID := id.New()
	env.store.seed(companyID, productID, 10, 2)
	env.store.seed(companyID, productID, 5, 0)

	resp, body := env.do(t, http.MethodPost, "/api/v1/stock/check-availability", map[string]any{
		"companyId": companyID.String(),
		"items": []map[string]any{
			{"productId": productID.String(), "quantity": 13},
		},
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, true, body["available"])
	availability := body["availability"].([]any)
	require.Len(t, availability, 1)
	first := availability[0].(map[string]any)
	assert.Equal(t, 13.0, first["availableQuantity"])
	assert.Equal(t, 2.0, first["reservedQuantity"])
	assert.Equal(t, 15.0, first["totalQuantity"])
}

func TestReserveEndpoint(t *testing.T) {
	env := newTestEnv(t)
	companyID := id.New()
	productID := id.New()
	env.store.seed(companyID, productID, 10, 0)

	t.Run("success", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/api/v1/stock/reserve", map[string]any{
			"companyId": companyID.String(),
			"orderId":   id.New().String(),
			"items": []map[string]any{
				{"productId": productID.String(), "quantity": 4},
			},
		}, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		assert.Equal(t, true, body["success"])
		adjustments := body["adjustments"].([]any)
		require.Len(t, adjustments, 1)
		first := adjustments[0].(map[string]any)
		assert.Equal(t, -4.0, first["quantityChange"])
		assert.Equal(t, "order_created", first["reason"])
	})

	t.Run("insufficient stock", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/api/v1/stock/reserve", map[string]any{
			"companyId": companyID.String(),
			"orderId":   id.New().String(),
			"items": []map[string]any{
				{"productId": productID.String(), "quantity": 100},
			},
		}, true)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		assert.Equal(t, apperror.CodeInsufficientStock, body["code"])
		details := body["details"].(map[string]any)
		assert.Equal(t, productID.String(), details["product_id"])
		assert.Equal(t, 100.0, details["requested"])
		assert.Equal(t, 6.0, details["available"])
	})

	t.Run("validation", func(t *testing.T) {
		resp, body := env.do(t, http.MethodPost, "/api/v1/stock/reserve", map[string]any{
			"companyId": companyID.String(),
			"items":     []map[string]any{},
		}, true)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, apperror.CodeValidation, body["code"])
	})
}

func TestOrderFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	companyID := id.New()
	productID := id.New()
	env.store.seed(companyID, productID, 20, 0)
	orderID := id.New()

	reserve := map[string]any{
		"companyId": companyID.String(),
		"orderId":   orderID.String(),
		"items": []map[string]any{
			{"productId": productID.String(), "quantity": 5},
		},
	}

	resp, _ := env.do(t, http.MethodPost, "/api/v1/stock/reserve", reserve, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/v1/stock/confirm-reduction", reserve, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	adjustments := body["adjustments"].([]any)
	require.Len(t, adjustments, 1)

	// 20 on hand, 5 reserved, 5 shipped: 15 remain, nothing reserved.
	resp, body = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/company-stocks?companyId=%s", companyID), nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	rec := items[0].(map[string]any)
	assert.Equal(t, 15.0, rec["quantity"])
	assert.Equal(t, 0.0, rec["reservedQuantity"])
	assert.Equal(t, 15.0, rec["availableQuantity"])
}

func TestCompanyStocksCRUD(t *testing.T) {
	env := newTestEnv(t)
	companyID := id.New()
	productID := id.New()

	create := map[string]any{
		"companyId": companyID.String(),
		"productId": productID.String(),
		"quantity":  12.5,
		"unitCost":  "120.50",
		"location":  "Warehouse A",
	}
	resp, body := env.do(t, http.MethodPost, "/api/v1/company-stocks", create, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	stockID := body["stockId"].(string)
	assert.Equal(t, 12.5, body["quantity"])
	assert.Equal(t, "Warehouse A", body["location"])

	resp, body = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/company-stocks/%s?companyId=%s", stockID, companyID), nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, productID.String(), body["productId"])

	resp, body = env.do(t, http.MethodPut,
		"/api/v1/company-stocks/"+stockID, map[string]any{
			"companyId": companyID.String(),
			"location":  "Warehouse B",
		}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Warehouse B", body["location"])

	resp, _ = env.do(t, http.MethodDelete,
		fmt.Sprintf("/api/v1/company-stocks/%s?companyId=%s", stockID, companyID), nil, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestDeleteRefusesReservedRecord(t *testing.T) {
	env := newTestEnv(t)
	companyID := id.New()
	productID := id.New()
	stockID := env.store.seed(companyID, productID, 10, 3)

	resp, body := env.do(t, http.MethodDelete,
		fmt.Sprintf("/api/v1/company-stocks/%s?companyId=%s", stockID, companyID), nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, apperror.CodeBusinessRule, body["code"])
}
