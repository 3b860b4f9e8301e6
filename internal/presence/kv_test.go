package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hashStub struct {
	data    map[string]map[string]string
	expires map[string]time.Duration
	err     error
}

func newHashStub() *hashStub {
	return &hashStub{data: map[string]map[string]string{}, expires: map[string]time.Duration{}}
}

func (h *hashStub) HSet(_ context.Context, key, field string, val []byte) error {
	if h.err != nil {
		return h.err
	}
	if h.data[key] == nil {
		h.data[key] = map[string]string{}
	}
	h.data[key][field] = string(val)
	return nil
}

func (h *hashStub) HDel(_ context.Context, key, field string) error {
	if h.err != nil {
		return h.err
	}
	delete(h.data[key], field)
	return nil
}

func (h *hashStub) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if h.err != nil {
		return nil, h.err
	}
	out := map[string]string{}
	for k, v := range h.data[key] {
		out[k] = v
	}
	return out, nil
}

func (h *hashStub) Expire(_ context.Context, key string, ttl time.Duration) error {
	h.expires[key] = ttl
	return nil
}

func TestKVRegistry_UsesNoteHashAndTTL(t *testing.T) {
	kv := newHashStub()
	r := NewKVRegistry(kv, 0)
	ctx := context.Background()

	require.NoError(t, r.Join(ctx, 7, entry(3, "alice")))
	require.Contains(t, kv.data, "note:7:users")
	assert.Contains(t, kv.data["note:7:users"], "3")
	assert.Equal(t, DefaultTTL, kv.expires["note:7:users"])

	require.NoError(t, r.Join(ctx, 7, entry(1, "bob")))
	got, err := r.Roster(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].Name)

	require.NoError(t, r.Leave(ctx, 7, 3))
	got, err = r.Roster(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestKVRegistry_SkipsBrokenEntries(t *testing.T) {
	kv := newHashStub()
	kv.data["note:1:users"] = map[string]string{"5": "{broken", "6": `{"name":"x"}`}
	r := NewKVRegistry(kv, time.Minute)

	got, err := r.Roster(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 6, got[0].ID)
}

func TestKVRegistry_PropagatesErrors(t *testing.T) {
	kv := newHashStub()
	kv.err = errors.New("down")
	r := NewKVRegistry(kv, time.Minute)

	assert.Error(t, r.Join(context.Background(), 1, entry(1, "a")))
	assert.Error(t, r.Leave(context.Background(), 1, 1))
	_, err := r.Roster(context.Background(), 1)
	assert.ErrorIs(t, err, kv.err)
}
