package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgorLis/collab-notes/internal/domain"
)

type grantsStub struct {
	grants map[[2]int64]domain.Collaboration
	err    error
	calls  int
}

func (g *grantsStub) GrantFor(_ context.Context, note domain.NoteID, user domain.UserID) (domain.Collaboration, error) {
	g.calls++
	if g.err != nil {
		return domain.Collaboration{}, g.err
	}
	c, ok := g.grants[[2]int64{note, user}]
	if !ok {
		return domain.Collaboration{}, domain.ErrNotFound
	}
	return c, nil
}

func TestRoleOf(t *testing.T) {
	note := domain.Note{ID: 1, OwnerID: 10}
	editor := &domain.Collaboration{NoteID: 1, UserID: 20, Role: domain.GrantEditor}
	viewer := &domain.Collaboration{NoteID: 1, UserID: 30, Role: domain.GrantViewer}
	foreign := &domain.Collaboration{NoteID: 2, UserID: 40, Role: domain.GrantEditor}

	cases := []struct {
		name  string
		user  domain.UserID
		grant *domain.Collaboration
		want  domain.Role
	}{
		{"owner", 10, nil, domain.RoleOwner},
		{"owner ignores grant", 10, viewer, domain.RoleOwner},
		{"editor", 20, editor, domain.RoleEditor},
		{"viewer", 30, viewer, domain.RoleViewer},
		{"no grant", 50, nil, domain.RoleNone},
		{"grant for other note", 40, foreign, domain.RoleNone},
		{"grant for other user", 50, editor, domain.RoleNone},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, RoleOf(note, c.user, c.grant))
		})
	}
}

func TestCheckerRoleOf(t *testing.T) {
	stub := &grantsStub{grants: map[[2]int64]domain.Collaboration{
		{1, 20}: {NoteID: 1, UserID: 20, Role: domain.GrantEditor},
		{1, 30}: {NoteID: 1, UserID: 30, Role: domain.GrantViewer},
	}}
	ch := NewChecker(stub)
	ctx := context.Background()
	note := domain.Note{ID: 1, OwnerID: 10}

	r, err := ch.RoleOf(ctx, note, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, r)
	assert.Equal(t, 0, stub.calls, "owner check must not hit the store")

	canEdit, err := ch.CanEdit(ctx, note, 20)
	require.NoError(t, err)
	assert.True(t, canEdit)

	canView, err := ch.CanView(ctx, note, 30)
	require.NoError(t, err)
	assert.True(t, canView)
	canEdit, err = ch.CanEdit(ctx, note, 30)
	require.NoError(t, err)
	assert.False(t, canEdit)

	r, err = ch.RoleOf(ctx, note, 99)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleNone, r)
}

func TestCheckerPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	ch := NewChecker(&grantsStub{err: boom})
	r, err := ch.RoleOf(context.Background(), domain.Note{ID: 1, OwnerID: 10}, 20)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.RoleNone, r)
}
