// Package collab реализует канал заметки; одна сессия на пару (пользователь, заметка).
// Сессия проверяет доступ, пишет операции, ведёт присутствие и рассылает события
// всем подписчикам топика заметки.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/EgorLis/collab-notes/internal/bus"
	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/presence"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthorizing
	StateSubscribed
	StateRejected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizing:
		return "authorizing"
	case StateSubscribed:
		return "subscribed"
	case StateRejected:
		return "rejected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome — результат успешного Open. NotFound возвращается ошибкой, а не исходом.
type Outcome int

const (
	OutcomeSubscribed Outcome = iota + 1
	OutcomeRejected
)

var ErrNotSubscribed = errors.New("session not subscribed")

type NoteFinder interface {
	NoteByID(ctx context.Context, id domain.NoteID) (domain.Note, error)
}

type Policy interface {
	RoleOf(ctx context.Context, note domain.Note, user domain.UserID) (domain.Role, error)
}

type OperationAppender interface {
	AppendOperation(ctx context.Context, in domain.OperationInput) (domain.Operation, domain.DocumentState, error)
}

// Deps: общие для всех сессий зависимости.
type Deps struct {
	Log      *log.Logger
	Notes    NoteFinder
	Policy   Policy
	Ops      OperationAppender
	Presence presence.Registry
	Bus      bus.Bus
	Now      func() time.Time
}

type Session struct {
	id   string
	deps Deps
	user domain.PublicUser
	note domain.NoteID

	mu     sync.Mutex
	state  State
	doc    domain.Note
	sub    *bus.Subscription
	lastTS time.Time
}

func NewSession(d Deps, user domain.PublicUser, note domain.NoteID) *Session {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Session{
		id:    ulid.Make().String(),
		deps:  d,
		user:  user,
		note:  note,
		state: StateUnauthenticated,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) User() domain.PublicUser { return s.user }

func (s *Session) NoteID() domain.NoteID { return s.note }

func (s *Session) Topic() string { return domain.CacheKeyNoteTopic(s.note) }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscription — поток событий топика; nil, пока сессия не подписана.
func (s *Session) Subscription() *bus.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

func (s *Session) logf(format string, args ...any) {
	if s.deps.Log == nil {
		return
	}
	prefix := fmt.Sprintf("session=%s note=%d user=%d ", s.id, s.note, s.user.ID)
	s.deps.Log.Printf(prefix+format, args...)
}

// Open авторизует сессию и подписывает её на топик заметки.
func (s *Session) Open(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnauthenticated {
		return 0, fmt.Errorf("open in state %s: %w", s.state, domain.ErrUnexpected)
	}
	s.state = StateAuthorizing

	note, err := s.deps.Notes.NoteByID(ctx, s.note)
	if err != nil {
		s.state = StateUnauthenticated
		return 0, fmt.Errorf("open note %d: %w", s.note, err)
	}
	role, err := s.deps.Policy.RoleOf(ctx, note, s.user.ID)
	if err != nil {
		s.state = StateUnauthenticated
		return 0, fmt.Errorf("open role: %w", err)
	}
	if !role.CanView() {
		s.state = StateRejected
		s.logf("rejected")
		return OutcomeRejected, nil
	}
	s.doc = note

	sub, err := s.deps.Bus.Subscribe(ctx, s.Topic())
	if err != nil {
		s.state = StateClosed
		return 0, fmt.Errorf("open subscribe: %w", err)
	}

	entry := presence.NewEntry(s.user, s.deps.Now())
	if err := s.deps.Presence.Join(ctx, s.note, entry); err != nil {
		sub.Close()
		s.state = StateClosed
		return 0, fmt.Errorf("open presence: %w", err)
	}
	s.sub = sub
	s.state = StateSubscribed

	roster, err := s.deps.Presence.Roster(ctx, s.note)
	if err != nil {
		s.logf("roster after join: %v", err)
		roster = []presence.Entry{entry}
	}
	s.publish(ctx, UserJoinedEvent{
		Type:        TypeUserJoined,
		User:        EventUser{ID: s.user.ID, Name: s.user.Name, Email: s.user.Email},
		ActiveUsers: roster,
	})
	s.logf("subscribed role=%s", role)
	return OutcomeSubscribed, nil
}

// Receive обрабатывает одно сообщение клиента. Ошибка сессию не рвёт:
// вызывающий её логирует и продолжает читать.
func (s *Session) Receive(ctx context.Context, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSubscribed {
		return ErrNotSubscribed
	}

	role, err := s.deps.Policy.RoleOf(ctx, s.doc, s.user.ID)
	if err != nil {
		return fmt.Errorf("receive role: %w", err)
	}
	if !role.CanView() {
		return fmt.Errorf("view revoked: %w", domain.ErrForbidden)
	}

	msg, err := DecodeInbound(raw)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *OperationMsg:
		if !role.CanEdit() {
			return fmt.Errorf("operation by %s: %w", role, domain.ErrForbidden)
		}
		return s.handleOperation(ctx, m)
	case *CursorMsg:
		s.publish(ctx, CursorEvent{
			Type:      TypeCursor,
			SessionID: s.id,
			UserID:    s.user.ID,
			UserName:  s.user.Name,
			Position:  m.Position,
			Selection: m.Selection,
		})
	case *TypingMsg:
		s.publish(ctx, TypingEvent{
			Type:      TypeTyping,
			SessionID: s.id,
			UserID:    s.user.ID,
			UserName:  s.user.Name,
			IsTyping:  m.IsTyping,
		})
	default:
		return fmt.Errorf("variant %T: %w", msg, domain.ErrMalformed)
	}
	return nil
}

func (s *Session) handleOperation(ctx context.Context, m *OperationMsg) error {
	in := domain.OperationInput{
		NoteID:    s.note,
		UserID:    s.user.ID,
		Type:      m.Type,
		Position:  m.Position,
		Content:   m.Content,
		Timestamp: s.nextTimestamp(),
	}
	if err := in.Validate(); err != nil {
		return err
	}
	op, st, err := s.deps.Ops.AppendOperation(ctx, in)
	if err != nil {
		return fmt.Errorf("append operation: %w", err)
	}
	if op.UserName == "" {
		op.UserName = s.user.Name
	}
	s.publish(ctx, newOperationEvent(op))
	s.logf("operation id=%d type=%s version=%d", op.ID, op.Type, st.Version)
	return nil
}

// nextTimestamp не даёт времени операций сессии идти назад при скачке часов.
func (s *Session) nextTimestamp() time.Time {
	now := s.deps.Now().UTC().Truncate(time.Millisecond)
	if now.Before(s.lastTS) {
		now = s.lastTS
	}
	s.lastTS = now
	return now
}

// Close снимает присутствие, рассылает user_left и отписывается от топика.
// Повторный вызов и вызов для неподписанной сессии: no-op.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateSubscribed:
	case StateClosed, StateRejected:
		return
	default:
		s.state = StateClosed
		return
	}
	s.state = StateClosed

	if err := s.deps.Presence.Leave(ctx, s.note, s.user.ID); err != nil {
		s.logf("presence leave: %v", err)
	}
	roster, err := s.deps.Presence.Roster(ctx, s.note)
	if err != nil {
		s.logf("roster after leave: %v", err)
		roster = []presence.Entry{}
	}
	s.publish(ctx, UserLeftEvent{Type: TypeUserLeft, UserID: s.user.ID, ActiveUsers: roster})

	s.sub.Close()
	s.logf("closed")
}

// publish без ожидания результата; ошибка шины только логируется.
func (s *Session) publish(ctx context.Context, ev any) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logf("marshal event: %v", err)
		return
	}
	if err := s.deps.Bus.Publish(ctx, s.Topic(), payload); err != nil {
		s.logf("publish: %v", err)
	}
}
