package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, s *Subscription) []byte {
	t.Helper()
	select {
	case m := <-s.C():
		return m
	case <-time.After(time.Second):
		t.Fatalf("no message on %s", s.Topic())
		return nil
	}
}

func assertEmpty(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case m := <-s.C():
		t.Fatalf("unexpected message %q", m)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_DeliversOnlyToTopic(t *testing.T) {
	h := NewHub(8)
	ctx := context.Background()

	a, err := h.Subscribe(ctx, "note:1:events")
	require.NoError(t, err)
	b, err := h.Subscribe(ctx, "note:2:events")
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, "note:1:events", []byte("x")))
	assert.Equal(t, "x", string(recv(t, a)))
	assertEmpty(t, b)
}

func TestHub_NoReplayBeforeSubscribe(t *testing.T) {
	h := NewHub(8)
	ctx := context.Background()

	require.NoError(t, h.Publish(ctx, "t", []byte("early")))
	s, err := h.Subscribe(ctx, "t")
	require.NoError(t, err)
	assertEmpty(t, s)
}

func TestHub_PreservesOrder(t *testing.T) {
	h := NewHub(100)
	ctx := context.Background()
	s1, _ := h.Subscribe(ctx, "t")
	s2, _ := h.Subscribe(ctx, "t")

	for i := 0; i < 50; i++ {
		require.NoError(t, h.Publish(ctx, "t", []byte(fmt.Sprint(i))))
	}
	for i := 0; i < 50; i++ {
		assert.Equal(t, fmt.Sprint(i), string(recv(t, s1)))
		assert.Equal(t, fmt.Sprint(i), string(recv(t, s2)))
	}
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	h := NewHub(2)
	ctx := context.Background()
	slow, _ := h.Subscribe(ctx, "t")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_ = h.Publish(ctx, "t", []byte(fmt.Sprint(i)))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	assert.Equal(t, "3", string(recv(t, slow)))
	assert.Equal(t, "4", string(recv(t, slow)))
	assert.EqualValues(t, 3, slow.Dropped())
}

func TestHub_CloseUnsubscribesSynchronously(t *testing.T) {
	h := NewHub(8)
	ctx := context.Background()
	s, _ := h.Subscribe(ctx, "t")
	require.Equal(t, 1, h.Subscribers("t"))

	s.Close()
	s.Close()
	assert.Equal(t, 0, h.Subscribers("t"))

	require.NoError(t, h.Publish(ctx, "t", []byte("late")))
	assertEmpty(t, s)
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub(8)
	ctx := context.Background()
	s, _ := h.Subscribe(ctx, "t")

	h.Close()
	<-s.Done()
	assert.ErrorIs(t, h.Publish(ctx, "t", nil), ErrClosed)
	_, err := h.Subscribe(ctx, "t")
	assert.ErrorIs(t, err, ErrClosed)
}
