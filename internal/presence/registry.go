// Package presence отслеживает, кто сейчас подключён к каналу заметки.
// Записи эфемерные: живут, пока жива сессия, плюс TTL на случай переподключения.
package presence

import (
	"context"
	"sort"
	"time"

	"github.com/EgorLis/collab-notes/internal/domain"
)

// DefaultTTL: сколько живёт ключ заметки после последнего Join
const DefaultTTL = time.Hour

// Entry — запись присутствия пользователя в заметке
type Entry struct {
	ID       domain.UserID `json:"id"`
	Name     string        `json:"name"`
	Email    string        `json:"email"`
	JoinedAt string        `json:"joined_at"`
}

func NewEntry(u domain.PublicUser, at time.Time) Entry {
	return Entry{ID: u.ID, Name: u.Name, Email: u.Email, JoinedAt: at.UTC().Format(time.RFC3339)}
}

// Registry: узкий интерфейс, за которым может быть Redis или память процесса.
type Registry interface {
	// Join перезаписывает запись пользователя (last-write-wins) и продлевает TTL заметки.
	Join(ctx context.Context, note domain.NoteID, e Entry) error
	// Leave удаляет только запись вызывающего; повторный вызов безопасен.
	Leave(ctx context.Context, note domain.NoteID, user domain.UserID) error
	// Roster: снимок текущих участников.
	Roster(ctx context.Context, note domain.NoteID) ([]Entry, error)
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
}
