package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgorLis/collab-notes/internal/access"
	"github.com/EgorLis/collab-notes/internal/bus"
	"github.com/EgorLis/collab-notes/internal/collab"
	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/presence"
)

type memStore struct {
	mu     sync.Mutex
	users  map[domain.UserID]domain.User
	notes  map[domain.NoteID]domain.Note
	grants map[[2]int64]domain.Collaboration
	nextOp int64
}

func (s *memStore) UserByID(_ context.Context, id domain.UserID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *memStore) NoteByID(_ context.Context, id domain.NoteID) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return domain.Note{}, domain.ErrNotFound
	}
	return n, nil
}

func (s *memStore) GrantFor(_ context.Context, note domain.NoteID, user domain.UserID) (domain.Collaboration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[[2]int64{note, user}]
	if !ok {
		return domain.Collaboration{}, domain.ErrNotFound
	}
	return g, nil
}

func (s *memStore) AppendOperation(_ context.Context, in domain.OperationInput) (domain.Operation, domain.DocumentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.notes[in.NoteID]
	s.nextOp++
	n.DocumentState = n.DocumentState.Apply(in.Type, in.Position, in.Content, in.Timestamp)
	s.notes[in.NoteID] = n
	return domain.Operation{
		ID: s.nextOp, NoteID: in.NoteID, UserID: in.UserID, UserName: s.users[in.UserID].Name,
		Type: in.Type, Position: in.Position, Content: in.Content, Timestamp: in.Timestamp,
	}, n.DocumentState, nil
}

const (
	owner  domain.UserID = 1
	editor domain.UserID = 2
	viewer domain.UserID = 3
	guest  domain.UserID = 4
	noteID domain.NoteID = 10
)

type env struct {
	h   *Handler
	st  *memStore
	reg presence.Registry
}

func newEnv(t *testing.T, wrap func(presence.Registry) presence.Registry) env {
	t.Helper()
	st := &memStore{
		users: map[domain.UserID]domain.User{
			owner:  {ID: owner, Name: "Olga", Email: "olga@x.io"},
			editor: {ID: editor, Name: "Egor", Email: "egor@x.io"},
			viewer: {ID: viewer, Name: "Vera", Email: "vera@x.io"},
			guest:  {ID: guest, Name: "Gena", Email: "gena@x.io"},
		},
		notes: map[domain.NoteID]domain.Note{
			noteID: {ID: noteID, OwnerID: owner, Title: "plan", DocumentState: domain.NewDocumentState()},
		},
		grants: map[[2]int64]domain.Collaboration{
			{noteID, editor}: {ID: 1, NoteID: noteID, UserID: editor, Role: domain.GrantEditor},
			{noteID, viewer}: {ID: 2, NoteID: noteID, UserID: viewer, Role: domain.GrantViewer},
		},
	}
	mem := presence.NewMemory(time.Hour)
	hub := bus.NewHub(16)
	t.Cleanup(func() {
		mem.Close()
		hub.Close()
	})
	var reg presence.Registry = mem
	if wrap != nil {
		reg = wrap(mem)
	}

	quiet := log.New(io.Discard, "", 0)
	h := New(quiet, collab.Deps{
		Log:      quiet,
		Notes:    st,
		Policy:   access.NewChecker(st),
		Ops:      st,
		Presence: reg,
		Bus:      hub,
		Now:      time.Now,
	}, st, Config{PongTimeout: 5 * time.Second, WriteTimeout: time.Second})
	return env{h: h, st: st, reg: reg}
}

// routes подменяет аутентификацию: ?as=<user id>
func (e env) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/notes/{id}/channel", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.URL.Query().Get("as"), 10, 64)
		ctx := domain.WithPrincipal(r.Context(), domain.Principal{UserID: id})
		e.h.Channel(w, r.WithContext(ctx))
	})
	return mux
}

func newServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.routes())
	t.Cleanup(srv.Close)
	return srv, e.st
}

func dial(t *testing.T, srv *httptest.Server, note domain.NoteID, as domain.UserID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/api/v1/notes/" + strconv.FormatInt(note, 10) + "/channel?as=" + strconv.FormatInt(as, 10)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := c.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, c.WriteJSON(v))
}

// join подключается и вычитывает confirm + собственный user_joined.
func join(t *testing.T, srv *httptest.Server, as domain.UserID) *websocket.Conn {
	t.Helper()
	c := dial(t, srv, noteID, as)
	assert.Equal(t, FrameConfirm, read(t, c)["type"])
	ev := read(t, c)
	require.Equal(t, collab.TypeUserJoined, ev["type"])
	return c
}

func TestChannel_NotFound(t *testing.T) {
	srv, _ := newServer(t)
	c := dial(t, srv, 999, owner)

	m := read(t, c)
	assert.Equal(t, FrameError, m["type"])
	assert.Equal(t, "not_found", m["error"])

	_, _, err := c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestChannel_Rejected(t *testing.T) {
	srv, _ := newServer(t)
	watcher := join(t, srv, owner)

	c := dial(t, srv, noteID, guest)
	assert.Equal(t, FrameReject, read(t, c)["type"])

	// отклонённый гость не попадает в присутствие и ничего не рассылает
	require.NoError(t, watcher.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := watcher.ReadMessage()
	assert.Error(t, err)
}

func TestChannel_Collaboration(t *testing.T) {
	srv, st := newServer(t)

	a := join(t, srv, owner)

	b := dial(t, srv, noteID, editor)
	assert.Equal(t, FrameConfirm, read(t, b)["type"])
	joined := read(t, b)
	assert.Equal(t, collab.TypeUserJoined, joined["type"])
	assert.Len(t, joined["active_users"], 2)

	seen := read(t, a)
	assert.Equal(t, collab.TypeUserJoined, seen["type"])
	assert.Equal(t, "Egor", seen["user"].(map[string]any)["name"])

	// cursor редактора видит владелец, но не сам редактор
	send(t, b, map[string]any{"type": "cursor", "position": 4, "selection": map[string]int{"start": 1, "end": 4}})
	cur := read(t, a)
	assert.Equal(t, collab.TypeCursor, cur["type"])
	assert.EqualValues(t, editor, cur["user_id"])
	assert.EqualValues(t, 4, cur["position"])

	send(t, a, map[string]any{"type": "operation", "operation": map[string]any{"type": "insert", "position": 0, "content": "hi"}})
	for _, c := range []*websocket.Conn{b, a} {
		ev := read(t, c)
		require.Equal(t, collab.TypeOperation, ev["type"])
		rec := ev["operation"].(map[string]any)
		assert.Equal(t, "insert", rec["type"])
		assert.Equal(t, "hi", rec["content"])
		assert.Equal(t, "Olga", rec["user_name"])
	}

	st.mu.Lock()
	assert.EqualValues(t, 1, st.notes[noteID].DocumentState.Version)
	st.mu.Unlock()

	// мусор не рвёт сессию
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("{not json")))
	send(t, b, map[string]any{"type": "typing", "is_typing": true})
	typing := read(t, a)
	assert.Equal(t, collab.TypeTyping, typing["type"])
	assert.Equal(t, true, typing["is_typing"])

	// редактор ушёл: владелец получает user_left с актуальным составом
	require.NoError(t, b.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second)))
	left := read(t, a)
	assert.Equal(t, collab.TypeUserLeft, left["type"])
	assert.EqualValues(t, editor, left["user_id"])
	assert.Len(t, left["active_users"], 1)
}

func TestChannel_ViewerOperationDropped(t *testing.T) {
	srv, st := newServer(t)
	a := join(t, srv, owner)
	v := join(t, srv, viewer)
	assert.Equal(t, collab.TypeUserJoined, read(t, a)["type"])

	send(t, v, map[string]any{"type": "operation", "operation": map[string]any{"type": "insert", "position": 0, "content": "x"}})
	send(t, v, map[string]any{"type": "typing", "is_typing": false})

	// первое, что видит владелец, это typing: операция зрителя отброшена
	assert.Equal(t, collab.TypeTyping, read(t, a)["type"])
	st.mu.Lock()
	assert.EqualValues(t, 0, st.notes[noteID].DocumentState.Version)
	st.mu.Unlock()
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker(nil))

	wildcard := originChecker([]string{"*"})
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example")
	assert.True(t, wildcard(r))

	only := originChecker([]string{"https://notes.example"})
	assert.False(t, only(r))
	r.Header.Set("Origin", "https://notes.example")
	assert.True(t, only(r))
}

// slowLeave имитирует сетевую задержку Redis на уходе из присутствия.
type slowLeave struct {
	presence.Registry
}

func (s slowLeave) Leave(ctx context.Context, note domain.NoteID, user domain.UserID) error {
	time.Sleep(50 * time.Millisecond)
	return s.Registry.Leave(ctx, note, user)
}

func TestChannel_ShutdownWaitsForClose(t *testing.T) {
	e := newEnv(t, func(r presence.Registry) presence.Registry { return slowLeave{r} })

	base, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewUnstartedServer(e.routes())
	srv.Config.BaseContext = func(net.Listener) context.Context { return base }
	srv.Start()
	t.Cleanup(srv.Close)

	join(t, srv, owner)
	join(t, srv, editor)
	roster, err := e.reg.Roster(context.Background(), noteID)
	require.NoError(t, err)
	require.Len(t, roster, 2)

	// порядок остановки приложения: отмена базового контекста, затем ожидание сессий
	cancel()
	waitCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
	defer stop()
	require.NoError(t, e.h.Wait(waitCtx))

	roster, err = e.reg.Roster(context.Background(), noteID)
	require.NoError(t, err)
	assert.Empty(t, roster)
}

func TestHandler_WaitTimesOut(t *testing.T) {
	e := newEnv(t, nil)
	e.h.live.Add(1)
	defer e.h.live.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.h.Wait(ctx), context.DeadlineExceeded)
}
