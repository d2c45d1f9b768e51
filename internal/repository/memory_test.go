package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryKVStore(t *testing.T) {
	store := NewMemoryKVStore()
	ctx := context.Background()

	t.Run("PutAndGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, map[string][]byte{"a": []byte("1")}))
		val, ok, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", string(val))
	})

	t.Run("ValuesAreCopied", func(t *testing.T) {
		buf := []byte("orig")
		require.NoError(t, store.Put(ctx, map[string][]byte{"b": buf}))
		buf[0] = 'X'

		val, _, _ := store.Get(ctx, "b")
		assert.Equal(t, "orig", string(val))
		val[0] = 'Y'

		again, _, _ := store.Get(ctx, "b")
		assert.Equal(t, "orig", string(again))
	})

	t.Run("FailWrites", func(t *testing.T) {
		boom := errors.New("disk full")
		store.FailWrites(boom)
		err := store.Put(ctx, map[string][]byte{"a": []byte("2")})
		assert.ErrorIs(t, err, boom)

		val, _, _ := store.Get(ctx, "a")
		assert.Equal(t, "1", string(val))

		store.FailWrites(nil)
		assert.NoError(t, store.Put(ctx, map[string][]byte{"a": []byte("2")}))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "a"))
		_, ok, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
