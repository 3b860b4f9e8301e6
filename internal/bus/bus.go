// Package bus: топиковая рассылка событий по заметкам.
// Топик соответствует заметке (note:<id>:events); подписчик получает
// сообщения, опубликованные после подписки, в порядке публикации.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize: ёмкость очереди одного подписчика
const DefaultQueueSize = 256

var ErrClosed = errors.New("bus closed")

type Bus interface {
	// Publish не блокируется на медленных подписчиках.
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
}

// Subscription — ограниченная очередь одного подписчика.
// При переполнении выбрасывается самое старое сообщение.
// Payload общий для всех подписчиков, менять его нельзя.
type Subscription struct {
	topic string
	q     chan []byte
	done  chan struct{}

	deliverMu sync.Mutex
	dropped   atomic.Int64

	closeOnce sync.Once
	hooksMu   sync.Mutex
	hooks     []func()
}

func newSubscription(topic string, size int) *Subscription {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Subscription{
		topic: topic,
		q:     make(chan []byte, size),
		done:  make(chan struct{}),
	}
}

func (s *Subscription) Topic() string { return s.topic }

// C отдаёт входящие сообщения. Канал не закрывается, конец подписки ловится через Done().
func (s *Subscription) C() <-chan []byte { return s.q }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped: сколько сообщений потеряно из-за переполнения очереди.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close отписывает и синхронно снимает подписку с топика. Повторный вызов: no-op.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hooksMu.Lock()
		hooks := s.hooks
		s.hooks = nil
		s.hooksMu.Unlock()
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i]()
		}
	})
}

func (s *Subscription) onClose(f func()) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, f)
	s.hooksMu.Unlock()
}

func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// deliver кладёт сообщение в очередь, вытесняя старые при переполнении.
func (s *Subscription) deliver(msg []byte) {
	if s.closed() {
		return
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	for {
		select {
		case s.q <- msg:
			return
		default:
		}
		select {
		case <-s.q:
			s.dropped.Add(1)
		default:
		}
	}
}
