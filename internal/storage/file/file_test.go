package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/utafrali/templamart/pkg/errors"
)

func TestNew_RequiresDir(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "slots"))
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))

	_, err = s.Get(ctx, "sess-1:cart")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, s.Set(ctx, "sess-1:cart", []byte(`[{"id":"t1","quantity":1}]`)))
	require.NoError(t, s.Set(ctx, "sess-1:cart", []byte(`[]`)))

	got, err := s.Get(ctx, "sess-1:cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	// A reopened store sees the same data.
	reopened, err := New(s.dir)
	require.NoError(t, err)
	got, err = reopened.Get(ctx, "sess-1:cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	require.NoError(t, s.Delete(ctx, "sess-1:cart"))
	require.NoError(t, s.Delete(ctx, "sess-1:cart"))
	_, err = s.Get(ctx, "sess-1:cart")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, "wishlist", []byte(`[]`)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "wishlist.json", entries[0].Name())
}

func TestStore_KeysAreEscaped(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "../escape/cart", []byte(`[]`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, err := s.Get(ctx, "../escape/cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}

func TestStore_CanceledContext(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Set(ctx, "cart", []byte(`[]`)), context.Canceled)
	_, err = s.Get(ctx, "cart")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_PingMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	s, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	assert.Error(t, s.Ping(context.Background()))
}

func TestStore_OperationsAreTraced(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "sess-1:cart", []byte(`[]`)))
	_, err = s.Get(ctx, "sess-1:cart")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "sess-1:cart"))
	_, err = s.Get(ctx, "sess-1:cart")
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 4)
	var names []string
	for _, sp := range spans {
		names = append(names, sp.Name)
	}
	assert.Equal(t, []string{"file.SetSlot", "file.GetSlot", "file.DeleteSlot", "file.GetSlot"}, names)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[3].Status.Code)
}
