package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/EgorLis/collab-notes/internal/domain"
)

// HashStore — минимум, который нужен от общего k/v хранилища (Redis HSET/HDEL/HGETALL/EXPIRE).
type HashStore interface {
	HSet(ctx context.Context, key, field string, val []byte) error
	HDel(ctx context.Context, key, field string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// KVRegistry хранит присутствие в хеше note:<id>:users, поле: id пользователя.
type KVRegistry struct {
	kv  HashStore
	ttl time.Duration
}

var _ Registry = (*KVRegistry)(nil)

func NewKVRegistry(kv HashStore, ttl time.Duration) *KVRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &KVRegistry{kv: kv, ttl: ttl}
}

func field(user domain.UserID) string { return strconv.FormatInt(user, 10) }

func (r *KVRegistry) Join(ctx context.Context, note domain.NoteID, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("presence marshal: %w", err)
	}
	key := domain.CacheKeyPresence(note)
	if err := r.kv.HSet(ctx, key, field(e.ID), payload); err != nil {
		return fmt.Errorf("presence join: %w", err)
	}
	if err := r.kv.Expire(ctx, key, r.ttl); err != nil {
		return fmt.Errorf("presence expire: %w", err)
	}
	return nil
}

func (r *KVRegistry) Leave(ctx context.Context, note domain.NoteID, user domain.UserID) error {
	if err := r.kv.HDel(ctx, domain.CacheKeyPresence(note), field(user)); err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	return nil
}

func (r *KVRegistry) Roster(ctx context.Context, note domain.NoteID) ([]Entry, error) {
	all, err := r.kv.HGetAll(ctx, domain.CacheKeyPresence(note))
	if err != nil {
		return nil, fmt.Errorf("presence roster: %w", err)
	}
	out := make([]Entry, 0, len(all))
	for f, raw := range all {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			// битая запись не должна ломать весь ростер
			continue
		}
		if e.ID == 0 {
			if id, err := strconv.ParseInt(f, 10, 64); err == nil {
				e.ID = id
			}
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}
