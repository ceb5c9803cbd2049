package ttlkv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("set if absent wins only once per window", func(t *testing.T) {
		s := NewMemory()

		set, err := s.SetIfAbsent(ctx, "k", []byte("1"), time.Minute)
		require.NoError(t, err)
		assert.True(t, set)

		set, err = s.SetIfAbsent(ctx, "k", []byte("2"), time.Minute)
		require.NoError(t, err)
		assert.False(t, set)

		value, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), value)
	})

	t.Run("expired keys behave as absent", func(t *testing.T) {
		s := NewMemory()

		set, err := s.SetIfAbsent(ctx, "k", []byte("1"), 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, set)

		time.Sleep(20 * time.Millisecond)

		_, err = s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)

		set, err = s.SetIfAbsent(ctx, "k", []byte("2"), time.Minute)
		require.NoError(t, err)
		assert.True(t, set)
	})

	t.Run("delete removes the key", func(t *testing.T) {
		s := NewMemory()

		_, err := s.SetIfAbsent(ctx, "k", []byte("1"), time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "k"))

		_, err = s.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, s.Delete(ctx, "missing"))
	})
}
