package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/EgorLis/collab-notes/internal/domain"
)

var collabColumns = []string{
	"c.id", "c.note_id", "c.user_id", "c.role", "c.created_at", "c.updated_at",
	"u.id", "u.name", "u.email", "COALESCE(u.avatar_url, '')",
}

func scanCollab(row interface{ Scan(...any) error }) (domain.Collaboration, error) {
	var c domain.Collaboration
	err := row.Scan(
		&c.ID, &c.NoteID, &c.UserID, &c.Role, &c.CreatedAt, &c.UpdatedAt,
		&c.User.ID, &c.User.Name, &c.User.Email, &c.User.AvatarURL,
	)
	return c, err
}

func (r *PGRepo) collabSelect() sq.SelectBuilder {
	return r.qb().Select(collabColumns...).
		From(r.table("collaborations") + " c").
		Join(r.table("users") + " u ON u.id = c.user_id")
}

func (r *PGRepo) GrantFor(ctx context.Context, note domain.NoteID, user domain.UserID) (domain.Collaboration, error) {
	q := r.collabSelect().Where(sq.Eq{"c.note_id": note, "c.user_id": user})

	sqlStr, args, _ := q.ToSql()
	r.logSQL("GrantFor", sqlStr, args)

	start := time.Now()
	c, err := scanCollab(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		r.logger.Printf("GrantFor scan after %s: %v", time.Since(start), err)
		return domain.Collaboration{}, mapErr("GrantFor", err)
	}
	r.logger.Printf("GrantFor ok in %s note=%d user=%d role=%s", time.Since(start), note, user, c.Role)
	return c, nil
}

func (r *PGRepo) collabByID(ctx context.Context, note domain.NoteID, id domain.CollaborationID) (domain.Collaboration, error) {
	q := r.collabSelect().Where(sq.Eq{"c.note_id": note, "c.id": id})

	sqlStr, args, _ := q.ToSql()
	r.logSQL("collabByID", sqlStr, args)

	c, err := scanCollab(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		return domain.Collaboration{}, mapErr("collabByID", err)
	}
	return c, nil
}

func (r *PGRepo) ListCollaborations(ctx context.Context, note domain.NoteID) ([]domain.Collaboration, error) {
	q := r.collabSelect().
		Where(sq.Eq{"c.note_id": note}).
		OrderBy("c.created_at ASC", "c.id ASC")

	sqlStr, args, _ := q.ToSql()
	r.logSQL("ListCollaborations", sqlStr, args)

	start := time.Now()
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		r.logger.Printf("ListCollaborations query error after %s: %v", time.Since(start), err)
		return nil, mapErr("ListCollaborations", err)
	}
	defer rows.Close()

	out := make([]domain.Collaboration, 0)
	for rows.Next() {
		c, err := scanCollab(rows)
		if err != nil {
			return nil, mapErr("ListCollaborations.scan", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("ListCollaborations.rows", err)
	}
	r.logger.Printf("ListCollaborations ok in %s note=%d count=%d", time.Since(start), note, len(out))
	return out, nil
}

// CreateCollaboration — повторный грант той же паре упирается в уникальный индекс → ErrConflict.
func (r *PGRepo) CreateCollaboration(ctx context.Context, note domain.NoteID, user domain.UserID, role domain.GrantRole) (domain.Collaboration, error) {
	if !role.Valid() {
		return domain.Collaboration{}, fmt.Errorf("CreateCollaboration role=%d: %w", role, domain.ErrBadParams)
	}
	q := r.qb().Insert(r.table("collaborations")).
		Columns("note_id", "user_id", "role").
		Values(note, user, int16(role)).
		Suffix("RETURNING id")

	sqlStr, args, _ := q.ToSql()
	r.logSQL("CreateCollaboration", sqlStr, args)

	start := time.Now()
	var id domain.CollaborationID
	if err := r.pool.QueryRow(ctx, sqlStr, args...).Scan(&id); err != nil {
		r.logger.Printf("CreateCollaboration error after %s: %v", time.Since(start), err)
		return domain.Collaboration{}, mapErr("CreateCollaboration", err)
	}
	r.logger.Printf("CreateCollaboration ok in %s id=%d note=%d user=%d", time.Since(start), id, note, user)
	return r.collabByID(ctx, note, id)
}

func (r *PGRepo) UpdateCollaborationRole(ctx context.Context, note domain.NoteID, id domain.CollaborationID, role domain.GrantRole) (domain.Collaboration, error) {
	if !role.Valid() {
		return domain.Collaboration{}, fmt.Errorf("UpdateCollaborationRole role=%d: %w", role, domain.ErrBadParams)
	}
	q := r.qb().Update(r.table("collaborations")).
		Set("role", int16(role)).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id, "note_id": note})

	sqlStr, args, _ := q.ToSql()
	r.logSQL("UpdateCollaborationRole", sqlStr, args)

	start := time.Now()
	tag, err := r.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		r.logger.Printf("UpdateCollaborationRole exec error after %s: %v", time.Since(start), err)
		return domain.Collaboration{}, mapErr("UpdateCollaborationRole", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Collaboration{}, fmt.Errorf("UpdateCollaborationRole id=%d: %w", id, domain.ErrNotFound)
	}
	r.logger.Printf("UpdateCollaborationRole ok in %s id=%d role=%s", time.Since(start), id, role)
	return r.collabByID(ctx, note, id)
}

func (r *PGRepo) DeleteCollaboration(ctx context.Context, note domain.NoteID, id domain.CollaborationID) error {
	q := r.qb().Delete(r.table("collaborations")).Where(sq.Eq{"id": id, "note_id": note})

	sqlStr, args, _ := q.ToSql()
	r.logSQL("DeleteCollaboration", sqlStr, args)

	start := time.Now()
	tag, err := r.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		r.logger.Printf("DeleteCollaboration exec error after %s: %v", time.Since(start), err)
		return mapErr("DeleteCollaboration", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeleteCollaboration id=%d: %w", id, domain.ErrNotFound)
	}
	r.logger.Printf("DeleteCollaboration ok in %s id=%d", time.Since(start), id)
	return nil
}
