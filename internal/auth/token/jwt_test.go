package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgorLis/collab-notes/internal/domain"
)

func TestManager_IssueParse(t *testing.T) {
	m := New("s3cr3t", "collab-notes", time.Hour)

	tok, cl, err := m.Issue(context.Background(), 42, "a@b.io")
	require.NoError(t, err)
	assert.NotEmpty(t, cl.JTI)
	assert.WithinDuration(t, cl.IssuedAt.Add(time.Hour), cl.ExpiresAt, time.Second)

	got, err := m.Parse(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, cl.JTI, got.JTI)
	assert.EqualValues(t, 42, got.UserID)
	assert.Equal(t, "a@b.io", got.Email)
}

func TestManager_Rejects(t *testing.T) {
	m := New("s3cr3t", "collab-notes", time.Hour)
	tok, _, err := m.Issue(context.Background(), 1, "a@b.io")
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		_, err := New("other", "collab-notes", time.Hour).Parse(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauth)
	})
	t.Run("other issuer", func(t *testing.T) {
		_, err := New("s3cr3t", "someone", time.Hour).Parse(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauth)
	})
	t.Run("expired", func(t *testing.T) {
		late := New("s3cr3t", "collab-notes", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Parse(context.Background(), tok)
		assert.ErrorIs(t, err, domain.ErrUnauth)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := m.Parse(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, domain.ErrUnauth)
	})
}
