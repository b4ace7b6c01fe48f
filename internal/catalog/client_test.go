package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/templamart/pkg/errors"
	"github.com/utafrali/templamart/pkg/httpclient"
	"github.com/utafrali/templamart/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 2 * time.Second

	cbCfg := httpclient.DefaultCircuitBreakerConfig("catalog-" + t.Name())
	cb := httpclient.NewCircuitBreakerClient(httpclient.New(cfg), cbCfg, logger.Discard())

	return NewClient(srv.URL+"/", cb, logger.Discard()), srv
}

func TestGetItem_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/templates/t-1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"t-1","title":"Portfolio Pro","category":"portfolio",` +
			`"price":29.99,"image":"https://cdn.example.com/t-1.png","author":{"id":"a1","name":"Ada"},` +
			`"rating":4.8,"sales":120}}`))
	})

	got, err := client.GetItem(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Portfolio Pro", got.Title)
	assert.Equal(t, "29.99", got.Price.String())
	assert.Equal(t, "Ada", got.Author.Name)
	assert.Equal(t, 120, got.Sales)
}

func TestGetItem_EmptyID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.GetItem(context.Background(), " ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGetItem_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"template not found"}}`))
	})

	_, err := client.GetItem(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "template not found")
}

func TestGetItem_ServerErrorIsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.GetItem(context.Background(), "t-1")
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestGetItem_AccessDeniedIsUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"code":"FORBIDDEN","message":"api key revoked"}}`))
			})

			_, err := client.GetItem(context.Background(), "t-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
			assert.False(t, errors.Is(err, apperrors.ErrUnauthorized))
		})
	}
}

func TestGetItem_BadPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"no data", `{"data":null}`},
		{"wrong item", `{"data":{"id":"other"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.GetItem(context.Background(), "t-1")
			require.Error(t, err)
			assert.False(t, errors.Is(err, apperrors.ErrNotFound))
		})
	}
}

func TestGetItem_CanceledContext(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"t-1"}}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetItem(ctx, "t-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetItem_EscapesID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/templates/a%2Fb", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"data":{"id":"a/b"}}`))
	})

	got, err := client.GetItem(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", got.ID)
}
