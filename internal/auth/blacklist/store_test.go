package blacklist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_MemoryKV(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV())

	ok, err := s.IsRevoked(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Revoke(ctx, "j1", time.Now().Add(time.Hour)))
	// повторный отзыв не ошибка
	require.NoError(t, s.Revoke(ctx, "j1", time.Now().Add(time.Hour)))

	ok, err = s.IsRevoked(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsRevoked(ctx, "j2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryKV_Expiry(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	set, err := kv.SetNX(ctx, "k", []byte("1"), 1)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = kv.SetNX(ctx, "k", []byte("2"), 1)
	require.NoError(t, err)
	assert.False(t, set)

	require.Eventually(t, func() bool {
		ok, _ := kv.Exists(ctx, "k")
		return !ok
	}, 3*time.Second, 50*time.Millisecond)
}
