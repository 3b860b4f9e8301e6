package collab

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/EgorLis/collab-notes/internal/access"
	"github.com/EgorLis/collab-notes/internal/bus"
	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/presence"
)

// store: заметки, гранты и лог операций в памяти.
type store struct {
	mu     sync.Mutex
	notes  map[domain.NoteID]domain.Note
	grants map[[2]int64]domain.Collaboration
	ops    []domain.Operation
	names  map[domain.UserID]string
}

func newStore() *store {
	return &store{
		notes:  map[domain.NoteID]domain.Note{},
		grants: map[[2]int64]domain.Collaboration{},
		names:  map[domain.UserID]string{},
	}
}

func (s *store) NoteByID(_ context.Context, id domain.NoteID) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return domain.Note{}, domain.ErrNotFound
	}
	return n, nil
}

func (s *store) GrantFor(_ context.Context, note domain.NoteID, user domain.UserID) (domain.Collaboration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[[2]int64{note, user}]
	if !ok {
		return domain.Collaboration{}, domain.ErrNotFound
	}
	return g, nil
}

func (s *store) AppendOperation(_ context.Context, in domain.OperationInput) (domain.Operation, domain.DocumentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[in.NoteID]
	if !ok {
		return domain.Operation{}, domain.DocumentState{}, domain.ErrNotFound
	}
	op := domain.Operation{
		ID:        int64(len(s.ops) + 1),
		NoteID:    in.NoteID,
		UserID:    in.UserID,
		UserName:  s.names[in.UserID],
		Type:      in.Type,
		Position:  in.Position,
		Content:   in.Content,
		Timestamp: in.Timestamp,
	}
	s.ops = append(s.ops, op)
	n.DocumentState = n.DocumentState.Apply(in.Type, in.Position, in.Content, in.Timestamp)
	s.notes[in.NoteID] = n
	return op, n.DocumentState, nil
}

func (s *store) addNote(id domain.NoteID, owner domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[id] = domain.Note{ID: id, OwnerID: owner, Title: "n", DocumentState: domain.NewDocumentState()}
}

func (s *store) grant(note domain.NoteID, user domain.UserID, role domain.GrantRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[[2]int64{note, user}] = domain.Collaboration{ID: int64(len(s.grants) + 1), NoteID: note, UserID: user, Role: role}
}

func (s *store) revoke(note domain.NoteID, user domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, [2]int64{note, user})
}

func (s *store) version(note domain.NoteID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes[note].DocumentState.Version
}

func (s *store) opCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

type env struct {
	st    *store
	hub   *bus.Hub
	pres  *presence.Memory
	deps  Deps
	clock time.Time
	mu    sync.Mutex
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		st:    newStore(),
		hub:   bus.NewHub(64),
		pres:  presence.NewMemory(time.Hour),
		clock: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	t.Cleanup(e.pres.Close)
	e.deps = Deps{
		Log:      log.New(io.Discard, "", 0),
		Notes:    e.st,
		Policy:   access.NewChecker(e.st),
		Ops:      e.st,
		Presence: e.pres,
		Bus:      e.hub,
		Now:      e.now,
	}
	return e
}

func (e *env) now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = e.clock.Add(1500 * time.Microsecond)
	return e.clock
}

func (e *env) user(id domain.UserID, name string) domain.PublicUser {
	e.st.mu.Lock()
	e.st.names[id] = name
	e.st.mu.Unlock()
	return domain.PublicUser{ID: id, Name: name, Email: name + "@example.com"}
}

func (e *env) open(t *testing.T, u domain.PublicUser, note domain.NoteID) *Session {
	t.Helper()
	s := NewSession(e.deps, u, note)
	out, err := s.Open(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSubscribed, out)
	return s
}

// spy — посторонний подписчик топика, видит все события.
func (e *env) spy(t *testing.T, note domain.NoteID) *bus.Subscription {
	t.Helper()
	sub, err := e.hub.Subscribe(context.Background(), domain.CacheKeyNoteTopic(note))
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return sub
}

type anyEvent struct {
	Type        string           `json:"type"`
	User        EventUser        `json:"user"`
	UserID      domain.UserID    `json:"user_id"`
	UserName    string           `json:"user_name"`
	ActiveUsers []presence.Entry `json:"active_users"`
	Operation   *OperationRecord `json:"operation"`
	Position    int              `json:"position"`
	Selection   *Selection       `json:"selection"`
	IsTyping    bool             `json:"is_typing"`
}

func next(t *testing.T, sub *bus.Subscription) anyEvent {
	t.Helper()
	select {
	case raw := <-sub.C():
		var ev anyEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return anyEvent{}
	}
}

// nextVisible: как next, но с фильтром своих эхо, как это делает транспорт.
func nextVisible(t *testing.T, s *Session) (anyEvent, bool) {
	t.Helper()
	sub := s.Subscription()
	for {
		select {
		case raw := <-sub.C():
			if IsEcho(raw, s.ID()) {
				continue
			}
			var ev anyEvent
			require.NoError(t, json.Unmarshal(raw, &ev))
			return ev, true
		case <-time.After(30 * time.Millisecond):
			return anyEvent{}, false
		}
	}
}

func quiet(t *testing.T, sub *bus.Subscription) {
	t.Helper()
	select {
	case raw := <-sub.C():
		t.Fatalf("unexpected event %s", raw)
	case <-time.After(20 * time.Millisecond):
	}
}

func ids(es []presence.Entry) []domain.UserID {
	out := make([]domain.UserID, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}
