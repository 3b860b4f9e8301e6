package bus

import (
	"context"
	"sync"
)

// Hub: шина в памяти процесса.
type Hub struct {
	mu        sync.Mutex
	queueSize int
	topics    map[string]map[*Subscription]struct{}
	closed    bool
}

var _ Bus = (*Hub)(nil)

func NewHub(queueSize int) *Hub {
	return &Hub{
		queueSize: queueSize,
		topics:    make(map[string]map[*Subscription]struct{}),
	}
}

// Publish раздаёт сообщение всем текущим подписчикам топика.
// Под одной блокировкой, чтобы все подписчики видели один и тот же порядок.
func (h *Hub) Publish(_ context.Context, topic string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for s := range h.topics[topic] {
		s.deliver(payload)
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, topic string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	s := newSubscription(topic, h.queueSize)
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	s.onClose(func() { h.remove(s) })
	return s, nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[s.topic]
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.topics, s.topic)
	}
}

// Subscribers — число активных подписчиков топика.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Close закрывает все подписки; дальнейшие Publish/Subscribe возвращают ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	var all []*Subscription
	for _, subs := range h.topics {
		for s := range subs {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
