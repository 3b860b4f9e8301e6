package domain

import (
	"encoding/json"
	"time"
)

// Базовые идентификаторы
type UserID = int64
type NoteID = int64
type OperationID = int64
type CollaborationID = int64

// Пользователь
type User struct {
	ID        UserID    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	PassHash  []byte    `json:"-"` // никогда не отдаём наружу
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicUser — то, что видят другие участники документа
type PublicUser struct {
	ID        UserID `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL}
}

// Заметка (документ совместного редактирования)
type Note struct {
	ID            NoteID          `json:"id"`
	OwnerID       UserID          `json:"owner_id"`
	Title         string          `json:"title"`
	Content       json.RawMessage `json:"content"`
	DocumentState DocumentState   `json:"document_state"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NoteSummary: элемент списка заметок
type NoteSummary struct {
	Note
	Owner              PublicUser `json:"owner"`
	CollaboratorsCount int        `json:"collaborators_count"`
	UserRole           Role       `json:"user_role"`
}

// Пустой документ редактора: {"type":"doc","content":[]}
var DefaultContent = json.RawMessage(`{"type":"doc","content":[]}`)

// ApplyDefaults заполняет content/document_state только если они не заданы.
func (n *Note) ApplyDefaults() {
	if isBlankJSON(n.Content) {
		n.Content = append(json.RawMessage(nil), DefaultContent...)
	}
	if n.DocumentState.Operations == nil {
		n.DocumentState.Operations = []OperationSummary{}
	}
}

func isBlankJSON(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	switch string(raw) {
	case "null", "{}", `""`:
		return true
	}
	return false
}

// Грант доступа к заметке для не-владельца
type Collaboration struct {
	ID        CollaborationID `json:"id"`
	NoteID    NoteID          `json:"note_id"`
	UserID    UserID          `json:"user_id"`
	Role      GrantRole       `json:"role"`
	User      PublicUser      `json:"user"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Операция редактирования (лог)
type Operation struct {
	ID        OperationID   `json:"id"`
	NoteID    NoteID        `json:"note_id"`
	UserID    UserID        `json:"user_id"`
	UserName  string        `json:"user_name,omitempty"`
	Type      OperationType `json:"type"`
	Position  int           `json:"position"`
	Content   *string       `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Applied   bool          `json:"applied"`
}

// OperationInput — то, что прислал клиент (WS или REST)
type OperationInput struct {
	NoteID    NoteID
	UserID    UserID
	Type      OperationType
	Position  int
	Content   *string
	Timestamp time.Time
}

// Validate проверяет поля операции перед записью.
func (in OperationInput) Validate() error {
	if !in.Type.Valid() {
		return ErrBadParams
	}
	if in.Position < 0 {
		return ErrBadParams
	}
	return nil
}

// Формат времени наружу: ISO-8601 с миллисекундами
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func FormatTimestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }
