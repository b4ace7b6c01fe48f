package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/templamart/internal/domain"
	"github.com/utafrali/templamart/internal/service"
	"github.com/utafrali/templamart/internal/storage/memory"
	apperrors "github.com/utafrali/templamart/pkg/errors"
	"github.com/utafrali/templamart/pkg/health"
	"github.com/utafrali/templamart/pkg/httputil"
	"github.com/utafrali/templamart/pkg/logger"
	"github.com/utafrali/templamart/pkg/middleware"
)

// ============================================================================
// Mock catalog
// ============================================================================

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetItem(ctx context.Context, id string) (domain.CatalogItem, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.CatalogItem), args.Error(1)
}

// ============================================================================
// Test helpers
// ============================================================================

func template(id string, price int64) domain.CatalogItem {
	return domain.CatalogItem{
		ID:       id,
		Title:    "Template " + id,
		Category: "portfolio",
		Price:    decimal.NewFromInt(price),
		Author:   domain.Author{ID: "a1", Name: "Ada"},
		Rating:   4.5,
	}
}

func setupRouter(t *testing.T) (http.Handler, *mockCatalog) {
	t.Helper()
	cat := new(mockCatalog)
	svc := service.NewShopperService(memory.New(), cat, nil, logger.Discard())
	return NewRouter(svc, health.NewHandler(), RouterOptions{CORS: middleware.DefaultCORSConfig()}, logger.Discard()), cat
}

func doRequest(t *testing.T, h http.Handler, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set(middleware.SessionIDHeader, session)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) httputil.ErrorResponse {
	t.Helper()
	var env struct {
		Data  json.RawMessage         `json:"data"`
		Error *httputil.ErrorResponse `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if env.Error != nil {
		return *env.Error
	}
	if dst != nil {
		require.NoError(t, json.Unmarshal(env.Data, dst))
	}
	return httputil.ErrorResponse{}
}

// ============================================================================
// Session header
// ============================================================================

func TestShopper_RequiresSession(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/shopper", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeResponse(t, rec, nil).Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/shopper", "bad:session", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// Cart endpoints
// ============================================================================

func TestShopper_EmptySnapshot(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/shopper", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap domain.Snapshot
	decodeResponse(t, rec, &snap)
	assert.Empty(t, snap.Cart)
	assert.Empty(t, snap.Wishlist)
	assert.Zero(t, snap.CartCount)
	assert.True(t, snap.CartTotal.IsZero())
}

func TestShopper_AddRemoveClear(t *testing.T) {
	router, cat := setupRouter(t)
	cat.On("GetItem", mock.Anything, "t1").Return(template("t1", 10), nil).Once()
	cat.On("GetItem", mock.Anything, "t2").Return(template("t2", 5), nil).Once()

	doRequest(t, router, http.MethodPost, "/api/v1/shopper/cart/items", "sess-1", AddToCartRequest{ItemID: "t1"})
	doRequest(t, router, http.MethodPost, "/api/v1/shopper/cart/items", "sess-1", AddToCartRequest{ItemID: "t1"})
	rec := doRequest(t, router, http.MethodPost, "/api/v1/shopper/cart/items", "sess-1", AddToCartRequest{ItemID: "t2"})
	require.Equal(t, http.StatusOK, rec.Code)

	var snap domain.Snapshot
	decodeResponse(t, rec, &snap)
	assert.Equal(t, 3, snap.CartCount)
	assert.Len(t, snap.Cart, 2)
	assert.True(t, decimal.NewFromInt(25).Equal(snap.CartTotal))

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/shopper/cart/items/t1", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeResponse(t, rec, &snap)
	assert.Equal(t, 1, snap.CartCount)

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/shopper/cart", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeResponse(t, rec, &snap)
	assert.Zero(t, snap.CartCount)

	cat.AssertExpectations(t)
}

func TestShopper_Forget(t *testing.T) {
	router, cat := setupRouter(t)
	cat.On("GetItem", mock.Anything, "t1").Return(template("t1", 10), nil).Once()

	doRequest(t, router, http.MethodPost, "/api/v1/shopper/cart/items", "sess-1", AddToCartRequest{ItemID: "t1"})

	rec := doRequest(t, router, http.MethodDelete, "/api/v1/shopper", "sess-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/api/v1/shopper", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap domain.Snapshot
	decodeResponse(t, rec, &snap)
	assert.Zero(t, snap.CartCount)

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/shopper", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestShopper_AddToCart_Validation(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/shopper/cart/items", "sess-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeResponse(t, rec, nil)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
	assert.Contains(t, errResp.Fields, "item_id")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shopper/cart/items", strings.NewReader("{"))
	req.Header.Set(middleware.SessionIDHeader, "sess-1")
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestShopper_AddToCart_WrongContentType(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shopper/cart/items", strings.NewReader("item_id=t1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.SessionIDHeader, "sess-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestShopper_AddToCart_UnknownItem(t *testing.T) {
	router, cat := setupRouter(t)
	cat.On("GetItem", mock.Anything, "ghost").Return(domain.CatalogItem{}, apperrors.NotFound("template", "ghost"))

	rec := doRequest(t, router, http.MethodPost, "/api/v1/shopper/cart/items", "sess-1", AddToCartRequest{ItemID: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeResponse(t, rec, nil).Code)
}

func TestShopper_AddToCart_CatalogDown(t *testing.T) {
	router, cat := setupRouter(t)
	cat.On("GetItem", mock.Anything, "t1").Return(domain.CatalogItem{}, apperrors.ServiceUnavailable("catalog is unavailable"))

	rec := doRequest(t, router, http.MethodPost, "/api/v1/shopper/cart/items", "sess-1", AddToCartRequest{ItemID: "t1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// ============================================================================
// Wishlist endpoints
// ============================================================================

func TestShopper_ToggleWishlist(t *testing.T) {
	router, cat := setupRouter(t)
	cat.On("GetItem", mock.Anything, "w1").Return(template("w1", 3), nil).Once()

	rec := doRequest(t, router, http.MethodPost, "/api/v1/shopper/wishlist/w1/toggle", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var toggled ToggleResponse
	decodeResponse(t, rec, &toggled)
	assert.True(t, toggled.InWishlist)
	require.NotNil(t, toggled.Shopper)
	assert.Equal(t, 1, toggled.Shopper.WishlistCount)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/shopper/wishlist/w1", "sess-1", nil)
	var check ToggleResponse
	decodeResponse(t, rec, &check)
	assert.True(t, check.InWishlist)
	assert.Nil(t, check.Shopper)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/shopper/wishlist/w1/toggle", "sess-1", nil)
	decodeResponse(t, rec, &toggled)
	assert.False(t, toggled.InWishlist)
	assert.Zero(t, toggled.Shopper.WishlistCount)

	cat.AssertExpectations(t)
}

// ============================================================================
// Notices
// ============================================================================

func TestShopper_Notices(t *testing.T) {
	router, cat := setupRouter(t)
	cat.On("GetItem", mock.Anything, "t1").Return(template("t1", 10), nil)

	doRequest(t, router, http.MethodPost, "/api/v1/shopper/cart/items", "sess-1", AddToCartRequest{ItemID: "t1"})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/shopper/notices", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got NoticesResponse
	decodeResponse(t, rec, &got)
	require.Len(t, got.Notices, 1)
	assert.Equal(t, "Template t1 added to cart", got.Notices[0].Message)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/shopper/notices", "sess-1", nil)
	decodeResponse(t, rec, &got)
	assert.Empty(t, got.Notices)
}

// ============================================================================
// Infrastructure endpoints
// ============================================================================

func TestRouter_HealthEndpoints(t *testing.T) {
	router, _ := setupRouter(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := doRequest(t, router, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouter_ShopperResponsesNotCached(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/shopper", "s1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Values("Vary"), middleware.SessionIDHeader)
}

func TestRouter_Pprof(t *testing.T) {
	svc := service.NewShopperService(memory.New(), new(mockCatalog), nil, logger.Discard())

	disabled := NewRouter(svc, health.NewHandler(), RouterOptions{CORS: middleware.DefaultCORSConfig()}, logger.Discard())
	rec := doRequest(t, disabled, http.MethodGet, "/debug/pprof/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	enabled := NewRouter(svc, health.NewHandler(), RouterOptions{
		CORS:           middleware.DefaultCORSConfig(),
		PprofAllowlist: []string{"10.0.0.0/8"},
	}, logger.Discard())
	rec = doRequest(t, enabled, http.MethodGet, "/debug/pprof/", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "httptest remote 192.0.2.1 is outside the allowlist")
}
