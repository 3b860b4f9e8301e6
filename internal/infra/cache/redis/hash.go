package redisx

import "context"

// Хеши: note:<id>:users → {user_id: json}

func (c *Cache) HSet(ctx context.Context, key, field string, val []byte) error {
	err := c.rdb.HSet(ctx, key, field, val).Err()
	c.logCmd("HSET", key, err, "field=%s %d bytes", field, len(val))
	return err
}

func (c *Cache) HDel(ctx context.Context, key, field string) error {
	n, err := c.rdb.HDel(ctx, key, field).Result()
	c.logCmd("HDEL", key, err, "field=%s deleted=%d", field, n)
	return err
}

func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.rdb.HGetAll(ctx, key).Result()
	c.logCmd("HGETALL", key, err, "%d fields", len(m))
	if err != nil {
		return nil, err
	}
	return m, nil
}
