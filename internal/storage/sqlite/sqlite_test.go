package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/templamart/pkg/errors"
)

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slots.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTempStore(t)

	_, err := s.Get(ctx, "sess-1:cart")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, s.Set(ctx, "sess-1:cart", []byte(`[{"id":"t1","quantity":1}]`)))
	require.NoError(t, s.Set(ctx, "sess-1:cart", []byte(`[{"id":"t1","quantity":2}]`)))

	got, err := s.Get(ctx, "sess-1:cart")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"t1","quantity":2}]`, string(got))

	require.NoError(t, s.Delete(ctx, "sess-1:cart"))
	_, err = s.Get(ctx, "sess-1:cart")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTempStore(t)

	require.NoError(t, s.Set(ctx, "wishlist", []byte(`[{"id":"w1"}]`)))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(ctx, "wishlist")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"w1"}]`, string(got))
}

func TestStore_Ping(t *testing.T) {
	s, _ := openTempStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
