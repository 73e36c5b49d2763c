package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/openhqm/openhqm/pkg/errors"
	"github.com/openhqm/openhqm/pkg/statestore/adapters/memory"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "cid-1", map[string]string{"status": "pending"}, time.Minute))

		var got map[string]string
		require.NoError(t, store.Get(ctx, "cid-1", &got))
		require.Equal(t, "pending", got["status"])
	})

	t.Run("get missing key", func(t *testing.T) {
		var got string
		err := store.Get(ctx, "does-not-exist", &got)
		require.Error(t, err)

		var appErr *errors.AppError
		require.True(t, errors.As(err, &appErr))
		require.Equal(t, errors.CodeNotFound, appErr.Code)
	})

	t.Run("expired key is not found", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "cid-expiring", "v", time.Millisecond))
		time.Sleep(5 * time.Millisecond)

		var got string
		err := store.Get(ctx, "cid-expiring", &got)
		require.Error(t, err)
	})

	t.Run("incr preserves ttl on existing key", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "counter", 1, 50*time.Millisecond))

		val, err := store.Incr(ctx, "counter", 4)
		require.NoError(t, err)
		require.Equal(t, int64(5), val)

		time.Sleep(100 * time.Millisecond)
		var got int64
		require.Error(t, store.Get(ctx, "counter", &got))
	})

	t.Run("incr on new key", func(t *testing.T) {
		val, err := store.Incr(ctx, "new-counter", 1)
		require.NoError(t, err)
		require.Equal(t, int64(1), val)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "cid-2", "v", time.Minute))
		require.NoError(t, store.Delete(ctx, "cid-2"))

		var got string
		require.Error(t, store.Get(ctx, "cid-2", &got))
	})
}
