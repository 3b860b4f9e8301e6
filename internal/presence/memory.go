package presence

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/EgorLis/collab-notes/internal/domain"
)

type roster map[domain.UserID]Entry

// Memory — реестр в памяти процесса для однопроцессных развёртываний.
// TTL заметки продлевается только на Join; чтение и Leave его не трогают.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	cache *ttlcache.Cache[domain.NoteID, roster]
}

var _ Registry = (*Memory)(nil)

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := ttlcache.New[domain.NoteID, roster](
		ttlcache.WithTTL[domain.NoteID, roster](ttl),
		ttlcache.WithDisableTouchOnHit[domain.NoteID, roster](),
	)
	go c.Start()
	return &Memory{ttl: ttl, cache: c}
}

func (m *Memory) Join(_ context.Context, note domain.NoteID, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := roster{}
	if item := m.cache.Get(note); item != nil {
		for id, v := range item.Value() {
			next[id] = v
		}
	}
	next[e.ID] = e
	m.cache.Set(note, next, m.ttl)
	return nil
}

func (m *Memory) Leave(_ context.Context, note domain.NoteID, user domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.cache.Get(note)
	if item == nil {
		return nil
	}
	r := item.Value()
	delete(r, user)
	if len(r) == 0 {
		m.cache.Delete(note)
	}
	return nil
}

func (m *Memory) Roster(_ context.Context, note domain.NoteID) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.cache.Get(note)
	if item == nil {
		return []Entry{}, nil
	}
	out := make([]Entry, 0, len(item.Value()))
	for _, e := range item.Value() {
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// Close останавливает фоновую очистку просроченных заметок.
func (m *Memory) Close() {
	m.cache.Stop()
}
