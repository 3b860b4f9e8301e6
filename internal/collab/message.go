package collab

import (
	"encoding/json"
	"fmt"

	"github.com/EgorLis/collab-notes/internal/domain"
	"github.com/EgorLis/collab-notes/internal/presence"
)

// Дискриминаторы сообщений канала
const (
	TypeOperation  = "operation"
	TypeCursor     = "cursor"
	TypeTyping     = "typing"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
)

// Inbound это входящее сообщение клиента. Варианты: *OperationMsg, *CursorMsg, *TypingMsg.
type Inbound interface {
	inbound()
}

type OperationMsg struct {
	Type     domain.OperationType
	Position int
	Content  *string
}

type CursorMsg struct {
	Position  int
	Selection *Selection
}

type TypingMsg struct {
	IsTyping bool
}

func (*OperationMsg) inbound() {}
func (*CursorMsg) inbound()    {}
func (*TypingMsg) inbound()    {}

type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type rawInbound struct {
	Type      string        `json:"type"`
	Operation *rawOperation `json:"operation"`
	Position  *int          `json:"position"`
	Selection *Selection    `json:"selection"`
	IsTyping  *bool         `json:"is_typing"`
}

type rawOperation struct {
	Type     string  `json:"type"`
	Position *int    `json:"position"`
	Content  *string `json:"content"`
}

// DecodeInbound разбирает сообщение один раз на границе.
// Неизвестный type или битый JSON дают ErrMalformed, кривые поля операции ErrBadParams.
func DecodeInbound(raw []byte) (Inbound, error) {
	var m rawInbound
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode: %w", domain.ErrMalformed)
	}
	switch m.Type {
	case TypeOperation:
		if m.Operation == nil {
			return nil, fmt.Errorf("operation payload missing: %w", domain.ErrBadParams)
		}
		t, err := domain.ParseOperationType(m.Operation.Type)
		if err != nil {
			return nil, err
		}
		if m.Operation.Position == nil || *m.Operation.Position < 0 {
			return nil, fmt.Errorf("operation position: %w", domain.ErrBadParams)
		}
		return &OperationMsg{Type: t, Position: *m.Operation.Position, Content: m.Operation.Content}, nil
	case TypeCursor:
		c := &CursorMsg{Selection: m.Selection}
		if m.Position != nil {
			c.Position = *m.Position
		}
		return c, nil
	case TypeTyping:
		return &TypingMsg{IsTyping: m.IsTyping != nil && *m.IsTyping}, nil
	}
	return nil, fmt.Errorf("type %q: %w", m.Type, domain.ErrMalformed)
}

// EventUser — профиль в user_joined
type EventUser struct {
	ID    domain.UserID `json:"id"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
}

type UserJoinedEvent struct {
	Type        string           `json:"type"`
	User        EventUser        `json:"user"`
	ActiveUsers []presence.Entry `json:"active_users"`
}

type UserLeftEvent struct {
	Type        string           `json:"type"`
	UserID      domain.UserID    `json:"user_id"`
	ActiveUsers []presence.Entry `json:"active_users"`
}

type OperationEvent struct {
	Type      string          `json:"type"`
	Operation OperationRecord `json:"operation"`
}

type OperationRecord struct {
	ID        domain.OperationID `json:"id"`
	Type      string             `json:"type"`
	Position  int                `json:"position"`
	Content   *string            `json:"content"`
	UserID    domain.UserID      `json:"user_id"`
	UserName  string             `json:"user_name"`
	Timestamp string             `json:"timestamp"`
}

// SessionID отличает вкладки одного пользователя: свою вкладку фильтрует IsEcho,
// остальные вкладки того же пользователя курсор видят.
type CursorEvent struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	UserID    domain.UserID `json:"user_id"`
	UserName  string        `json:"user_name"`
	Position  int           `json:"position"`
	Selection *Selection    `json:"selection"`
}

type TypingEvent struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	UserID    domain.UserID `json:"user_id"`
	UserName  string        `json:"user_name"`
	IsTyping  bool          `json:"is_typing"`
}

func newOperationEvent(op domain.Operation) OperationEvent {
	return OperationEvent{
		Type: TypeOperation,
		Operation: OperationRecord{
			ID:        op.ID,
			Type:      op.Type.String(),
			Position:  op.Position,
			Content:   op.Content,
			UserID:    op.UserID,
			UserName:  op.UserName,
			Timestamp: domain.FormatTimestamp(op.Timestamp),
		},
	}
}

type eventHeader struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// IsEcho сообщает, что событие — cursor/typing, отправленный этой же сессией.
// Операции не фильтруются: автор тоже получает подтверждение с id операции.
func IsEcho(raw []byte, session string) bool {
	var h eventHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return false
	}
	if h.Type != TypeCursor && h.Type != TypeTyping {
		return false
	}
	return session != "" && h.SessionID == session
}
