package knowledge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildownai/buddy/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Skip("sqlite not available:", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewStore(s.DB())
}

func TestUpsertIsIdempotentPerFile(t *testing.T) {
	ks := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ks.Upsert(ctx, "p1", "/a.go", "", "first description", []float32{1, 0}))
	require.NoError(t, ks.Upsert(ctx, "p1", "/a.go", "", "second description", []float32{0, 1}))

	e, err := ks.Get(ctx, "p1", "/a.go", "")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "second description", e.PageContent)
	require.Equal(t, []float32{0, 1}, e.Embedding)

	// re-indexing replaced the row instead of adding one
	hits, err := ks.Search(ctx, "p1", []float32{0, 1}, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestUpsertSeparatesBranches(t *testing.T) {
	ks := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ks.Upsert(ctx, "p1", "/a.go", "main", "on main", []float32{1, 0}))
	require.NoError(t, ks.Upsert(ctx, "p1", "/a.go", "dev", "on dev", []float32{1, 0}))

	e, err := ks.Get(ctx, "p1", "/a.go", "dev")
	require.NoError(t, err)
	require.Equal(t, "on dev", e.PageContent)

	hits, err := ks.Search(ctx, "p1", []float32{1, 0}, "main", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "on main", hits[0].PageContent)
}

func TestSearchThresholdAndOrder(t *testing.T) {
	ks := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ks.Upsert(ctx, "p1", "/close.go", "", "close match", []float32{1, 0.1}))
	require.NoError(t, ks.Upsert(ctx, "p1", "/far.go", "", "far match", []float32{0, 1}))
	require.NoError(t, ks.Upsert(ctx, "p1", "/exact.go", "", "exact match", []float32{1, 0}))

	hits, err := ks.Search(ctx, "p1", []float32{1, 0}, "", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 2, "the orthogonal vector must fall below the threshold")
	require.Equal(t, "/exact.go", hits[0].File)
	require.Equal(t, "/close.go", hits[1].File)
	require.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchCapsResults(t *testing.T) {
	ks := newTestStore(t)
	ctx := context.Background()

	for _, f := range []string{"/a", "/b", "/c"} {
		require.NoError(t, ks.Upsert(ctx, "p1", f, "", f, []float32{1, 0}))
	}
	hits, err := ks.Search(ctx, "p1", []float32{1, 0}, "", 2, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestDeleteRemovesEntry(t *testing.T) {
	ks := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ks.Upsert(ctx, "p1", "/a.go", "", "desc", []float32{1}))
	require.NoError(t, ks.Delete(ctx, "p1", "/a.go", ""))

	e, err := ks.Get(ctx, "p1", "/a.go", "")
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestCosine(t *testing.T) {
	require.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	require.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 0}))
}
