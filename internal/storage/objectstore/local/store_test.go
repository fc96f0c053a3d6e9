package local

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycvault/internal/storage/objectstore"
	"kycvault/pkg/platform/sentinel"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	require.NoError(t, err)

	body := []byte("ciphertext bytes")
	key := "documents/2026/01/02/national_id/owner/doc.pdf"

	t.Run("put then get", func(t *testing.T) {
		obj, err := store.Put(ctx, key, body, objectstore.PutOptions{ContentType: "application/octet-stream"})
		require.NoError(t, err)
		sum := md5.Sum(body)
		assert.Equal(t, hex.EncodeToString(sum[:]), obj.ETag)
		assert.Equal(t, int64(len(body)), obj.Size)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	})

	t.Run("list by prefix", func(t *testing.T) {
		objs, err := store.List(ctx, "documents/2026")
		require.NoError(t, err)
		require.Len(t, objs, 1)
		assert.Equal(t, key, objs[0].Key)

		objs, err = store.List(ctx, "backups")
		require.NoError(t, err)
		assert.Empty(t, objs)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, key))
		require.NoError(t, store.Delete(ctx, key))
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = store.Stat(ctx, key)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("rejects traversal", func(t *testing.T) {
		_, err := store.Put(ctx, "../escape", body, objectstore.PutOptions{})
		assert.Error(t, err)
		_, err = store.Get(ctx, "/etc/passwd")
		assert.Error(t, err)
	})
}

func TestWrapClassifiesErrors(t *testing.T) {
	busy := wrap("rename", &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EBUSY})
	assert.ErrorIs(t, busy, sentinel.ErrUnavailable)
	assert.ErrorIs(t, busy, syscall.EBUSY)

	denied := wrap("read file", &fs.PathError{Op: "open", Path: "a", Err: fs.ErrPermission})
	assert.NotErrorIs(t, denied, sentinel.ErrUnavailable)
	assert.ErrorIs(t, denied, fs.ErrPermission)
}
