package redisx

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache оборачивает go-redis для трёх потребителей: чёрный список токенов,
// реестр присутствия (хеши) и межпроцессный мост шины (pub/sub).
type Cache struct {
	rdb    *redis.Client
	logger *log.Logger
}

type Config struct {
	Addr     string
	DB       int
	Password string
}

func New(cfg Config, logger *log.Logger) *Cache {
	return &Cache{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			DB:       cfg.DB,
			Password: cfg.Password,
		}),
		logger: logger,
	}
}

// logCmd пишет одну строку на команду: "CMD key: result" либо "CMD key failed: err"
func (c *Cache) logCmd(cmd, key string, err error, format string, args ...any) {
	if err != nil {
		c.logger.Printf("%s %q failed: %v", cmd, key, err)
		return
	}
	c.logger.Printf("%s %q: %s", cmd, key, fmt.Sprintf(format, args...))
}

func (c *Cache) Ping(ctx context.Context) error {
	err := c.rdb.Ping(ctx).Err()
	if err != nil {
		c.logger.Printf("PING failed: %v", err)
	}
	return err
}

func (c *Cache) Close() {
	if err := c.rdb.Close(); err != nil {
		c.logger.Printf("close: %v", err)
		return
	}
	c.logger.Println("closed")
}

// SetNX ставит ключ, только если его ещё нет; ttlSeconds <= 0: без срока.
func (c *Cache) SetNX(ctx context.Context, key string, val []byte, ttlSeconds int) (bool, error) {
	ttl := time.Duration(max(ttlSeconds, 0)) * time.Second
	ok, err := c.rdb.SetNX(ctx, key, val, ttl).Result()
	c.logCmd("SETNX", key, err, "set=%t ttl=%s", ok, ttl)
	return ok, err
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	c.logCmd("EXISTS", key, err, "%t", n == 1)
	return err == nil && n == 1, err
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	err := c.rdb.Expire(ctx, key, ttl).Err()
	c.logCmd("EXPIRE", key, err, "ttl=%s", ttl)
	return err
}
