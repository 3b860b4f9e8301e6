package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/EgorLis/collab-notes/internal/domain"
)

var noteColumns = []string{"n.id", "n.owner_id", "n.title", "n.content", "n.document_state", "n.created_at", "n.updated_at"}

func scanNote(row interface{ Scan(...any) error }, extra ...any) (domain.Note, error) {
	var (
		n        domain.Note
		content  []byte
		stateRaw []byte
	)
	dest := append([]any{&n.ID, &n.OwnerID, &n.Title, &content, &stateRaw, &n.CreatedAt, &n.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Note{}, err
	}
	st, err := domain.DecodeDocumentState(stateRaw)
	if err != nil {
		return domain.Note{}, fmt.Errorf("decode document_state: %w", err)
	}
	n.Content = content
	n.DocumentState = st
	n.ApplyDefaults()
	return n, nil
}

func (r *PGRepo) CreateNote(ctx context.Context, n domain.Note) (domain.Note, error) {
	n.ApplyDefaults()
	state, err := n.DocumentState.Encode()
	if err != nil {
		return domain.Note{}, mapErr("CreateNote.encode", err)
	}
	q := r.qb().Insert(r.table("notes")+" AS n").
		Columns("owner_id", "title", "content", "document_state").
		Values(n.OwnerID, n.Title, []byte(n.Content), state).
		Suffix("RETURNING n.id, n.owner_id, n.title, n.content, n.document_state, n.created_at, n.updated_at")

	sqlStr, args, _ := q.ToSql()
	r.logSQL("CreateNote", sqlStr, args)

	start := time.Now()
	out, err := scanNote(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		r.logger.Printf("CreateNote scan error after %s: %v", time.Since(start), err)
		return domain.Note{}, mapErr("CreateNote", err)
	}
	r.logger.Printf("CreateNote ok in %s id=%d title=%q", time.Since(start), out.ID, out.Title)
	return out, nil
}

func (r *PGRepo) NoteByID(ctx context.Context, id domain.NoteID) (domain.Note, error) {
	q := r.qb().Select(noteColumns...).
		From(r.table("notes") + " n").
		Where(sq.Eq{"n.id": id})

	sqlStr, args, _ := q.ToSql()
	r.logSQL("NoteByID", sqlStr, args)

	start := time.Now()
	n, err := scanNote(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		r.logger.Printf("NoteByID scan error after %s: %v", time.Since(start), err)
		return domain.Note{}, mapErr("NoteByID", err)
	}
	r.logger.Printf("NoteByID ok in %s id=%d", time.Since(start), n.ID)
	return n, nil
}

func (r *PGRepo) UpdateNote(ctx context.Context, id domain.NoteID, upd domain.NoteUpdate) (domain.Note, error) {
	q := r.qb().Update(r.table("notes")+" AS n").
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"n.id": id}).
		Suffix("RETURNING n.id, n.owner_id, n.title, n.content, n.document_state, n.created_at, n.updated_at")
	if upd.Title != nil {
		q = q.Set("title", *upd.Title)
	}
	if upd.Content != nil {
		q = q.Set("content", upd.Content)
	}
	if upd.DocumentState != nil {
		raw, err := upd.DocumentState.Encode()
		if err != nil {
			return domain.Note{}, mapErr("UpdateNote.encode", err)
		}
		q = q.Set("document_state", raw)
	}

	sqlStr, args, _ := q.ToSql()
	r.logSQL("UpdateNote", sqlStr, args)

	start := time.Now()
	n, err := scanNote(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		r.logger.Printf("UpdateNote scan error after %s: %v", time.Since(start), err)
		return domain.Note{}, mapErr("UpdateNote", err)
	}
	r.logger.Printf("UpdateNote ok in %s id=%d", time.Since(start), n.ID)
	return n, nil
}

// DeleteNote удаляет заметку; гранты и операции уходят каскадом.
func (r *PGRepo) DeleteNote(ctx context.Context, id domain.NoteID) error {
	q := r.qb().Delete(r.table("notes")).Where(sq.Eq{"id": id})
	sqlStr, args, _ := q.ToSql()
	r.logSQL("DeleteNote", sqlStr, args)

	start := time.Now()
	tag, err := r.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		r.logger.Printf("DeleteNote exec error after %s: %v", time.Since(start), err)
		return mapErr("DeleteNote", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Printf("DeleteNote no rows affected in %s", time.Since(start))
		return fmt.Errorf("DeleteNote id=%d: %w", id, domain.ErrNotFound)
	}
	r.logger.Printf("DeleteNote ok in %s id=%d", time.Since(start), id)
	return nil
}

// NotesAccessibleBy: свои заметки и расшаренные, свежие сверху.
func (r *PGRepo) NotesAccessibleBy(ctx context.Context, user domain.UserID) ([]domain.NoteSummary, error) {
	collabs := r.table("collaborations")
	cols := append(append([]string{}, noteColumns...),
		"u.id", "u.name", "u.email", "COALESCE(u.avatar_url, '')",
		"(SELECT COUNT(*) FROM "+collabs+" cc WHERE cc.note_id = n.id)",
		"mc.role",
	)
	q := r.qb().Select(cols...).
		From(r.table("notes")+" n").
		Join(r.table("users")+" u ON u.id = n.owner_id").
		LeftJoin(collabs+" mc ON mc.note_id = n.id AND mc.user_id = ?", user).
		Where(sq.Or{
			sq.Eq{"n.owner_id": user},
			sq.Expr("mc.id IS NOT NULL"),
		}).
		OrderBy("n.updated_at DESC", "n.id DESC")

	sqlStr, args, _ := q.ToSql()
	r.logSQL("NotesAccessibleBy", sqlStr, args)

	start := time.Now()
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		r.logger.Printf("NotesAccessibleBy query error after %s: %v", time.Since(start), err)
		return nil, mapErr("NotesAccessibleBy", err)
	}
	defer rows.Close()

	out := make([]domain.NoteSummary, 0)
	for rows.Next() {
		var (
			s     domain.NoteSummary
			count int
			grant *int16
		)
		n, err := scanNote(rows, &s.Owner.ID, &s.Owner.Name, &s.Owner.Email, &s.Owner.AvatarURL, &count, &grant)
		if err != nil {
			return nil, mapErr("NotesAccessibleBy.scan", err)
		}
		s.Note = n
		s.CollaboratorsCount = count
		s.UserRole = domain.RoleOwner
		if n.OwnerID != user && grant != nil {
			s.UserRole = domain.GrantRole(*grant).Role()
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("NotesAccessibleBy.rows", err)
	}
	r.logger.Printf("NotesAccessibleBy ok in %s user=%d count=%d", time.Since(start), user, len(out))
	return out, nil
}
