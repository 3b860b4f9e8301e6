package redisx

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/EgorLis/collab-notes/internal/bus"
)

const streamBuffer = 64

func (c *Cache) Publish(ctx context.Context, channel string, payload []byte) error {
	n, err := c.rdb.Publish(ctx, channel, payload).Result()
	c.logCmd("PUBLISH", channel, err, "receivers=%d %d bytes", n, len(payload))
	return err
}

// Subscribe ждёт подтверждения SUBSCRIBE, чтобы не потерять сообщения,
// опубликованные сразу после возврата.
func (c *Cache) Subscribe(ctx context.Context, channel string) (bus.RemoteStream, error) {
	ps := c.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		c.logger.Printf("SUBSCRIBE %q failed: %v", channel, err)
		_ = ps.Close()
		return nil, err
	}
	c.logger.Printf("SUBSCRIBE %q ok", channel)

	s := &stream{ps: ps, out: make(chan []byte, streamBuffer), logger: c.logger, channel: channel}
	go s.run()
	return s, nil
}

type stream struct {
	ps      *redis.PubSub
	out     chan []byte
	once    sync.Once
	logger  *log.Logger
	channel string
}

func (s *stream) run() {
	defer close(s.out)
	for m := range s.ps.Channel() {
		s.out <- []byte(m.Payload)
	}
}

func (s *stream) Messages() <-chan []byte { return s.out }

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
		s.logger.Printf("UNSUBSCRIBE %q", s.channel)
	})
	return err
}
