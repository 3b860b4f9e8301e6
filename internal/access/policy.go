// Package access решает, какую роль пользователь имеет в заметке.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/EgorLis/collab-notes/internal/domain"
)

// RoleOf чистая: владелец, иначе роль из гранта, иначе none.
// grant == nil означает «гранта нет».
func RoleOf(note domain.Note, user domain.UserID, grant *domain.Collaboration) domain.Role {
	if note.OwnerID == user {
		return domain.RoleOwner
	}
	if grant != nil && grant.NoteID == note.ID && grant.UserID == user {
		return grant.Role.Role()
	}
	return domain.RoleNone
}

type GrantLookup interface {
	GrantFor(ctx context.Context, note domain.NoteID, user domain.UserID) (domain.Collaboration, error)
}

// Checker подтягивает грант из хранилища; вызывается на каждое сообщение канала,
// поэтому отзыв роли посреди сессии виден сразу.
type Checker struct {
	Grants GrantLookup
}

func NewChecker(g GrantLookup) *Checker { return &Checker{Grants: g} }

func (c *Checker) RoleOf(ctx context.Context, note domain.Note, user domain.UserID) (domain.Role, error) {
	if note.OwnerID == user {
		return domain.RoleOwner, nil
	}
	g, err := c.Grants.GrantFor(ctx, note.ID, user)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RoleNone, nil
	}
	if err != nil {
		return domain.RoleNone, fmt.Errorf("grant lookup note=%d user=%d: %w", note.ID, user, err)
	}
	return RoleOf(note, user, &g), nil
}

func (c *Checker) CanView(ctx context.Context, note domain.Note, user domain.UserID) (bool, error) {
	r, err := c.RoleOf(ctx, note, user)
	return r.CanView(), err
}

func (c *Checker) CanEdit(ctx context.Context, note domain.Note, user domain.UserID) (bool, error) {
	r, err := c.RoleOf(ctx, note, user)
	return r.CanEdit(), err
}
