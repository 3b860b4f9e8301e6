package bus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Remote — внешний pub/sub (Redis), через который процессы обмениваются событиями.
type Remote interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe возвращает поток после подтверждения подписки.
	Subscribe(ctx context.Context, channel string) (RemoteStream, error)
}

type RemoteStream interface {
	// Messages закрывается после Close.
	Messages() <-chan []byte
	Close() error
}

// Bridged держит одну удалённую подписку на топик на процесс
// и раздаёт её сообщения локальным подписчикам через Hub.
type Bridged struct {
	log            *log.Logger
	remote         Remote
	local          *Hub
	publishTimeout time.Duration

	mu     sync.Mutex
	relays map[string]*relay
}

type relay struct {
	stream RemoteStream
	refs   int
	done   chan struct{}
}

var _ Bus = (*Bridged)(nil)

func NewBridged(l *log.Logger, remote Remote, queueSize int, publishTimeout time.Duration) *Bridged {
	return &Bridged{
		log:            l,
		remote:         remote,
		local:          NewHub(queueSize),
		publishTimeout: publishTimeout,
		relays:         make(map[string]*relay),
	}
}

// Publish уходит только в Remote; локальные подписчики получат сообщение обратно через relay.
func (b *Bridged) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.publishTimeout)
		defer cancel()
	}
	if err := b.remote.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("bus publish %s: %w", topic, err)
	}
	return nil
}

func (b *Bridged) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	r, err := b.acquire(ctx, topic)
	if err != nil {
		return nil, err
	}
	sub, err := b.local.Subscribe(ctx, topic)
	if err != nil {
		b.release(topic, r)
		return nil, err
	}
	sub.onClose(func() { b.release(topic, r) })
	return sub, nil
}

// acquire возвращает relay топика с уже учтённой ссылкой.
// SUBSCRIBE к Remote идёт без b.mu: медленный брокер на одном топике не держит остальные.
func (b *Bridged) acquire(ctx context.Context, topic string) (*relay, error) {
	b.mu.Lock()
	if r := b.relays[topic]; r != nil {
		r.refs++
		b.mu.Unlock()
		return r, nil
	}
	b.mu.Unlock()

	stream, err := b.remote.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("bus subscribe %s: %w", topic, err)
	}

	b.mu.Lock()
	if r := b.relays[topic]; r != nil {
		// параллельный Subscribe успел первым: наш поток лишний
		r.refs++
		b.mu.Unlock()
		b.discard(topic, stream)
		return r, nil
	}
	r := &relay{stream: stream, refs: 1, done: make(chan struct{})}
	b.relays[topic] = r
	b.mu.Unlock()

	go b.pump(topic, r)
	b.log.Printf("relay started topic=%s", topic)
	return r, nil
}

func (b *Bridged) current(topic string, r *relay) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.relays[topic] == r
}

// pump не пускает хвост остановленного relay в новые подписки того же топика.
func (b *Bridged) pump(topic string, r *relay) {
	defer close(r.done)
	for msg := range r.stream.Messages() {
		if !b.current(topic, r) {
			continue
		}
		_ = b.local.Publish(context.Background(), topic, msg)
	}
}

func (b *Bridged) release(topic string, r *relay) {
	b.mu.Lock()
	r.refs--
	last := r.refs <= 0 && b.relays[topic] == r
	if last {
		delete(b.relays, topic)
	}
	b.mu.Unlock()

	if last {
		b.stop(topic, r)
	}
}

func (b *Bridged) stop(topic string, r *relay) {
	if err := r.stream.Close(); err != nil {
		b.log.Printf("relay close topic=%s err=%v", topic, err)
	}
	<-r.done
	b.log.Printf("relay stopped topic=%s", topic)
}

func (b *Bridged) discard(topic string, stream RemoteStream) {
	if err := stream.Close(); err != nil {
		b.log.Printf("relay discard topic=%s err=%v", topic, err)
	}
	go func() {
		for range stream.Messages() {
		}
	}()
}

// Close закрывает локальные подписки (а с ними и удалённые).
func (b *Bridged) Close() {
	b.local.Close()
}
