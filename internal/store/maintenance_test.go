package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryweave/internal/config"
)

func TestDeleteBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []Memory{
		sampleMemory("a", "sess-1", time.Now(), []float32{1, 0}),
		sampleMemory("b", "sess-1", time.Now(), []float32{0, 1}),
	}
	require.NoError(t, s.PutBatch(ctx, batch))

	require.NoError(t, s.DeleteBatch(ctx, []string{"a", "b"}))

	n, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeleteBatch_Empty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.DeleteBatch(context.Background(), nil))
}

func TestSetClusterID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, sampleMemory("mem-1", "sess-1", time.Now(), []float32{1, 0, 0})))

	require.NoError(t, s.SetClusterID(ctx, "mem-1", "cluster-a"))

	got, err := s.Get(ctx, "mem-1")
	require.NoError(t, err)
	assert.Equal(t, "cluster-a", got.ClusterID)
}

func TestGCOrphanedEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, sampleMemory("mem-1", "sess-1", time.Now(), []float32{1, 0, 0})))

	require.NoError(t, s.IncrementLink("FILE\x00auth.go", "co-occurs", "FILE\x00other.go", 1.0))

	require.NoError(t, s.Delete(ctx, "mem-1"))

	n, err := s.GCOrphanedEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	links, err := s.AllLinks()
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestIncrementLink_Accumulates(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.IncrementLink("FILE\x00a.go", "co-occurs", "FILE\x00b.go", 1.0))
	require.NoError(t, s.IncrementLink("FILE\x00a.go", "co-occurs", "FILE\x00b.go", 1.0))

	links, err := s.QueryLinks("FILE\x00a.go", "both")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 2.0, links[0].Weight)
}

func TestPutBatch_RejectsWrongDimension(t *testing.T) {
	cfg := config.StoreConfig{DatabasePath: filepath.Join(t.TempDir(), "memory.db"), Dimensions: 3}
	resetVecTables()
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	err = s.PutBatch(context.Background(), []Memory{
		sampleMemory("bad", "sess-1", time.Now(), []float32{1, 0}),
	})
	assert.Error(t, err)
}
