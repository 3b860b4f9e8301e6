package domain

import (
	"context"
	"time"
)

type UsersRepo interface {
	Close()
	Ping(context.Context) error
	CreateUser(ctx context.Context, u User) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id UserID) (User, error)
	UpdateUser(ctx context.Context, id UserID, upd UserUpdate) (User, error)
	SearchUsers(ctx context.Context, query string, exclude UserID, limit int) ([]User, error)
	// Есть ли заметка, доступная обоим пользователям
	UsersShareNote(ctx context.Context, a, b UserID) (bool, error)
}

// UserUpdate: nil-поля не меняются
type UserUpdate struct {
	Name      *string
	AvatarURL *string
	PassHash  []byte
}

type NotesRepo interface {
	CreateNote(ctx context.Context, n Note) (Note, error)
	NoteByID(ctx context.Context, id NoteID) (Note, error)
	UpdateNote(ctx context.Context, id NoteID, upd NoteUpdate) (Note, error)
	DeleteNote(ctx context.Context, id NoteID) error
	// Свои + расшаренные
	NotesAccessibleBy(ctx context.Context, user UserID) ([]NoteSummary, error)
}

type NoteUpdate struct {
	Title         *string
	Content       []byte
	DocumentState *DocumentState
}

type CollaborationsRepo interface {
	// GrantFor возвращает ErrNotFound, если гранта нет
	GrantFor(ctx context.Context, note NoteID, user UserID) (Collaboration, error)
	ListCollaborations(ctx context.Context, note NoteID) ([]Collaboration, error)
	// ErrConflict при повторном гранте той же паре (note, user)
	CreateCollaboration(ctx context.Context, note NoteID, user UserID, role GrantRole) (Collaboration, error)
	UpdateCollaborationRole(ctx context.Context, note NoteID, id CollaborationID, role GrantRole) (Collaboration, error)
	DeleteCollaboration(ctx context.Context, note NoteID, id CollaborationID) error
}

type OperationsRepo interface {
	// AppendOperation в одной транзакции вставляет операцию и применяет её к document_state.
	// Конкурентные вызовы для одной заметки сериализуются.
	AppendOperation(ctx context.Context, in OperationInput) (Operation, DocumentState, error)
	// CreateOperation только пишет в лог (REST-путь), document_state не трогает.
	CreateOperation(ctx context.Context, in OperationInput) (Operation, error)
	// ListOperations упорядочены по timestamp; since: строго после.
	ListOperations(ctx context.Context, note NoteID, since *time.Time) ([]Operation, error)
	// MarkApplied переводит applied false→true; обратного перехода нет.
	MarkApplied(ctx context.Context, note NoteID, id OperationID) (Operation, error)
}
