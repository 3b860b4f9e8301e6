package v1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/EgorLis/collab-notes/internal/domain"
)

type RoleResolver interface {
	RoleOf(ctx context.Context, note domain.Note, user domain.UserID) (domain.Role, error)
}

// NoteAccess загружает заметку и роль пользователя в ней.
type NoteAccess struct {
	Notes  domain.NotesRepo
	Policy RoleResolver
}

// Load: нет заметки → ErrNotFound, нет доступа → ErrForbidden.
func (a NoteAccess) Load(ctx context.Context, id domain.NoteID, user domain.UserID) (domain.Note, domain.Role, error) {
	n, err := a.Notes.NoteByID(ctx, id)
	if err != nil {
		return domain.Note{}, domain.RoleNone, err
	}
	role, err := a.Policy.RoleOf(ctx, n, user)
	if err != nil {
		return domain.Note{}, domain.RoleNone, err
	}
	if !role.CanView() {
		return domain.Note{}, domain.RoleNone, fmt.Errorf("note %d user %d: %w", id, user, domain.ErrForbidden)
	}
	return n, role, nil
}

func RequireEdit(role domain.Role) error {
	if !role.CanEdit() {
		return fmt.Errorf("role %q cannot edit: %w", role, domain.ErrForbidden)
	}
	return nil
}

func RequireOwner(role domain.Role) error {
	if role != domain.RoleOwner {
		return fmt.Errorf("role %q is not owner: %w", role, domain.ErrForbidden)
	}
	return nil
}

// FromRequest — principal, {id} из пути, заметка и роль.
func (a NoteAccess) FromRequest(r *http.Request) (domain.Principal, domain.Note, domain.Role, error) {
	p, err := Principal(r)
	if err != nil {
		return domain.Principal{}, domain.Note{}, domain.RoleNone, err
	}
	id, err := PathID(r, "id")
	if err != nil {
		return p, domain.Note{}, domain.RoleNone, err
	}
	n, role, err := a.Load(r.Context(), id, p.UserID)
	return p, n, role, err
}
