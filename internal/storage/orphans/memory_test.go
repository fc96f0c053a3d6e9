package orphans

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewInMemory()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, reg.Record(ctx, Orphan{Path: "b", RecordedAt: t0.Add(time.Minute)}))
	require.NoError(t, reg.Record(ctx, Orphan{Path: "a", RecordedAt: t0}))

	t.Run("oldest first", func(t *testing.T) {
		list, err := reg.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].Path)
	})

	t.Run("re-record keeps first timestamp", func(t *testing.T) {
		require.NoError(t, reg.Record(ctx, Orphan{Path: "a", RecordedAt: t0.Add(time.Hour), Attempts: 2}))
		list, err := reg.List(ctx, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, t0, list[0].RecordedAt)
		assert.Equal(t, 2, list[0].Attempts)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, reg.Remove(ctx, "a"))
		list, err := reg.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "b", list[0].Path)
	})
}
