package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velmart/storefront/internal/domain/auth"
	"github.com/velmart/storefront/internal/domain/catalog"
	"github.com/velmart/storefront/internal/domain/checkout"
	"github.com/velmart/storefront/internal/domain/discount"
	"github.com/velmart/storefront/internal/domain/dispatch"
	"github.com/velmart/storefront/internal/domain/fraud"
	"github.com/velmart/storefront/internal/domain/order"
	"github.com/velmart/storefront/internal/domain/payment"
	"github.com/velmart/storefront/internal/domain/reservation"
	"github.com/velmart/storefront/internal/storage/rediscache"
)

// --- Mock implementations ---

type mockProducts struct {
	byID map[string]*catalog.Product
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

type mockDiscounts struct{}

func (m *mockDiscounts) FindByCode(_ context.Context, _ string) (*discount.Code, error) {
	return nil, discount.ErrNotFound
}

func (m *mockDiscounts) IncrementUses(_ context.Context, _ string) error { return nil }

type mockOrders struct {
	byID   map[string]*order.Order
	byNum  map[string]*order.Order
	marked []string
}

func (m *mockOrders) Create(_ context.Context, o *order.Order) error {
	m.byID[o.ID] = o
	m.byNum[o.Number] = o
	return nil
}

func (m *mockOrders) Delete(_ context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

func (m *mockOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrders) MarkPaid(_ context.Context, orderNumber, reference string) (*order.Order, error) {
	o, ok := m.byNum[orderNumber]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = order.StatusProcessing
	o.PaymentStatus = order.PaymentCompleted
	o.PaymentReference = reference
	m.marked = append(m.marked, orderNumber)
	return o, nil
}

func newMockOrders() *mockOrders {
	return &mockOrders{
		byID:  make(map[string]*order.Order),
		byNum: make(map[string]*order.Order),
	}
}

type mockManager struct {
	committed []string
}

func (m *mockManager) Reserve(_ context.Context, _, _ string, _ []reservation.Line, _ time.Duration) error {
	return nil
}

func (m *mockManager) Commit(_ context.Context, orderID string) error {
	m.committed = append(m.committed, orderID)
	return nil
}

func (m *mockManager) Release(_ context.Context, _ string) error { return nil }

func (m *mockManager) SweepExpired(_ context.Context) (int64, error) { return 0, nil }

type mockGateway struct{}

func (m *mockGateway) Initialize(_ context.Context, req payment.InitializeRequest) (*payment.Session, error) {
	return &payment.Session{
		AuthorizationURL: "https://pay.example.com/" + req.Reference,
		AccessCode:       "ac_test",
		Reference:        req.Reference,
	}, nil
}

func (m *mockGateway) Verify(_ context.Context, reference string) (*payment.Verification, error) {
	return &payment.Verification{Reference: reference, Paid: true}, nil
}

type mockEvents struct {
	seen map[int64]bool
}

func (m *mockEvents) Insert(_ context.Context, e *payment.Event) error {
	if m.seen == nil {
		m.seen = make(map[int64]bool)
	}
	if m.seen[e.ID] {
		return payment.ErrDuplicateEvent
	}
	m.seen[e.ID] = true
	return nil
}

func (m *mockEvents) MarkStatus(_ context.Context, _ int64, _ payment.EventStatus) error {
	return nil
}

type mockCarts struct{}

func (m *mockCarts) ClearCart(_ context.Context, _ string) error { return nil }

type mockInvoices struct{}

func (m *mockInvoices) Create(_ context.Context, _ *payment.Invoice) error { return nil }

type mockHistory struct {
	orders *mockOrders
}

func (m *mockHistory) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return m.orders.GetByID(ctx, id)
}

func (m *mockHistory) CountOrdersSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return 1, nil
}

func (m *mockHistory) CountCompletedOrders(_ context.Context, _ string) (int, error) {
	return 2, nil
}

func (m *mockHistory) RecentCompletedAddresses(_ context.Context, _ string, _ int) ([]order.Address, error) {
	return nil, nil
}

type mockWriter struct{}

func (m *mockWriter) UpdateRiskAssessment(_ context.Context, _ string, _ int, _ []string) error {
	return nil
}

type mockCouriers struct{}

func (m *mockCouriers) ListAvailable(_ context.Context) ([]dispatch.Courier, error) {
	return nil, nil
}

func (m *mockCouriers) Assign(_ context.Context, _, _ string) error {
	return dispatch.ErrCourierUnavailable
}

func (m *mockCouriers) CompleteDelivery(_ context.Context, _ string) error { return nil }

type memStatusCache struct {
	mu      sync.Mutex
	entries map[string]rediscache.OrderStatus
}

func newMemStatusCache() *memStatusCache {
	return &memStatusCache{entries: make(map[string]rediscache.OrderStatus)}
}

func (c *memStatusCache) Get(_ context.Context, orderID string) (*rediscache.OrderStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[orderID]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *memStatusCache) Set(_ context.Context, orderID string, s rediscache.OrderStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[orderID] = s
}

func (c *memStatusCache) Invalidate(_ context.Context, orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, orderID)
}

// --- Helpers ---

const (
	jwtSecret     = "test-jwt-secret"
	webhookSecret = "whsec_test"
)

type env struct {
	router *chi.Mux
	orders *mockOrders
	stock  *mockManager
	cache  *memStatusCache
}

func newEnv(t *testing.T) *env {
	t.Helper()

	products := &mockProducts{byID: map[string]*catalog.Product{
		"p1": {
			ID:            "p1",
			Name:          "Widget",
			Price:         decimal.RequireFromString("20.00"),
			StockQuantity: 10,
			IsActive:      true,
		},
	}}
	orders := newMockOrders()
	stock := &mockManager{}
	gateway := &mockGateway{}

	checkoutSvc := checkout.NewService(
		products, &mockDiscounts{}, orders, stock, gateway,
		"https://shop.example.com/callback", zap.NewNop(),
	)
	reconciler := payment.NewReconciler(
		[]byte(webhookSecret), &mockEvents{}, orders, &mockDiscounts{},
		stock, &mockCarts{}, &mockInvoices{}, gateway, zap.NewNop(),
	)
	scorer := fraud.NewScorer(&mockHistory{orders: orders}, &mockWriter{})
	matcher := dispatch.NewMatcher(&mockCouriers{})

	cache := newMemStatusCache()
	h := NewHandler(checkoutSvc, reconciler, scorer, matcher, orders, cache, []byte(jwtSecret))
	router := chi.NewRouter()
	router.Route("/api", h.Routes)

	return &env{router: router, orders: orders, stock: stock, cache: cache}
}

func makeToken(t *testing.T, sub string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if len(roles) > 0 {
		anyRoles := make([]any, len(roles))
		for i, r := range roles {
			anyRoles[i] = r
		}
		claims["roles"] = anyRoles
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return token
}

func doJSON(e *env, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func webhookSign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func checkoutBody() map[string]any {
	return map[string]any{
		"cart_items": []map[string]any{{"product_id": "p1", "quantity": 2}},
		"shipping_address": map[string]string{
			"full_name": "Test Buyer",
			"phone":     "+2348000000000",
			"address":   "1 Marina Rd",
			"city":      "Lagos",
			"state":     "Lagos",
			"country":   "NG",
		},
	}
}

// --- Tests ---

func TestCheckout_RequiresAuth(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(e, http.MethodPost, "/api/checkout", "", checkoutBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckout_RejectsForeignSignature(t *testing.T) {
	e := newEnv(t)

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).
		SignedString([]byte("other-secret"))
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPost, "/api/checkout", other, checkoutBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckout_Success(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(e, http.MethodPost, "/api/checkout", makeToken(t, "u1"), checkoutBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "40.00", resp.TotalAmount)
	assert.Regexp(t, `^ORD-\d+-[0-9A-Z]{9}$`, resp.OrderNumber)
	assert.Contains(t, resp.AuthorizationURL, resp.Reference)
}

func TestCheckout_InsufficientStockConflict(t *testing.T) {
	e := newEnv(t)

	body := checkoutBody()
	body["cart_items"] = []map[string]any{{"product_id": "p1", "quantity": 99}}

	rec := doJSON(e, http.MethodPost, "/api/checkout", makeToken(t, "u1"), body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckout_UnknownProductConflict(t *testing.T) {
	e := newEnv(t)

	body := checkoutBody()
	body["cart_items"] = []map[string]any{{"product_id": "nope", "quantity": 1}}

	rec := doJSON(e, http.MethodPost, "/api/checkout", makeToken(t, "u1"), body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWebhook_BadSignature(t *testing.T) {
	e := newEnv(t)

	body := []byte(`{"id":1,"event":"charge.success","data":{"reference":"ORD-X"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(body))
	req.Header.Set("x-signature", "deadbeef")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_ChargeSuccessEndToEnd(t *testing.T) {
	e := newEnv(t)

	// Place an order through checkout first.
	rec := doJSON(e, http.MethodPost, "/api/checkout", makeToken(t, "u1"), checkoutBody())
	require.Equal(t, http.StatusOK, rec.Code)
	var placed checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	body := []byte(fmt.Sprintf(`{"id":100,"event":"charge.success","data":{"reference":%q}}`, placed.Reference))
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(body))
	req.Header.Set("x-signature", webhookSign(body))
	wrec := httptest.NewRecorder()
	e.router.ServeHTTP(wrec, req)

	require.Equal(t, http.StatusOK, wrec.Code, wrec.Body.String())
	assert.Equal(t, []string{placed.OrderNumber}, e.orders.marked)
	assert.Equal(t, []string{placed.OrderID}, e.stock.committed)

	// The order now reads as paid and processing.
	o, err := e.orders.GetByID(context.Background(), placed.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)
}

func TestWebhook_StatusPollFreshAfterPayment(t *testing.T) {
	e := newEnv(t)
	token := makeToken(t, "u1")

	rec := doJSON(e, http.MethodPost, "/api/checkout", token, checkoutBody())
	require.Equal(t, http.StatusOK, rec.Code)
	var placed checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	// The pending status is cached at checkout and served to polls.
	rec = doJSON(e, http.MethodGet, "/api/orders/"+placed.OrderID+"/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st orderStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, string(order.PaymentPending), st.PaymentStatus)

	body := []byte(fmt.Sprintf(`{"id":101,"event":"charge.success","data":{"reference":%q}}`, placed.Reference))
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(body))
	req.Header.Set("x-signature", webhookSign(body))
	wrec := httptest.NewRecorder()
	e.router.ServeHTTP(wrec, req)
	require.Equal(t, http.StatusOK, wrec.Code, wrec.Body.String())

	// Reconciliation dropped the cached pending entry, so the very next
	// poll must read the paid order, not a stale snapshot.
	_, ok := e.cache.Get(context.Background(), placed.OrderID)
	assert.False(t, ok, "cached status invalidated by the webhook")

	rec = doJSON(e, http.MethodGet, "/api/orders/"+placed.OrderID+"/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, string(order.PaymentCompleted), st.PaymentStatus)
	assert.Equal(t, string(order.StatusProcessing), st.Status)
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(e, http.MethodPost, "/api/checkout", makeToken(t, "u1"), checkoutBody())
	require.Equal(t, http.StatusOK, rec.Code)
	var placed checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	// Owner sees the order.
	rec = doJSON(e, http.MethodGet, "/api/orders/"+placed.OrderID, makeToken(t, "u1"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A different user gets a 404, not a 403.
	rec = doJSON(e, http.MethodGet, "/api/orders/"+placed.OrderID, makeToken(t, "u2"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// An admin can inspect any order.
	rec = doJSON(e, http.MethodGet, "/api/orders/"+placed.OrderID, makeToken(t, "staff", auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	e := newEnv(t)

	body := map[string]string{"order_id": "order-1"}

	rec := doJSON(e, http.MethodPost, "/api/admin/fraud-check", makeToken(t, "u1"), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/admin/fraud-check", makeToken(t, "staff", auth.RoleAdmin), body)
	assert.Equal(t, http.StatusNotFound, rec.Code, "admin passes the gate, order does not exist")
}

func TestAdmin_FraudCheck(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(e, http.MethodPost, "/api/checkout", makeToken(t, "u1"), checkoutBody())
	require.Equal(t, http.StatusOK, rec.Code)
	var placed checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))

	rec = doJSON(e, http.MethodPost, "/api/admin/fraud-check",
		makeToken(t, "staff", auth.RoleAdmin), map[string]string{"order_id": placed.OrderID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp fraudCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "low", resp.RiskLevel)
	assert.Equal(t, "approve", resp.Recommendation)
	assert.NotNil(t, resp.Flags)
}

func TestAdmin_DispatchAssignConflict(t *testing.T) {
	e := newEnv(t)

	rec := doJSON(e, http.MethodPost, "/api/admin/dispatch/assign",
		makeToken(t, "staff", auth.RoleSuperAdmin),
		map[string]string{"order_id": "order-1", "courier_id": "courier-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
