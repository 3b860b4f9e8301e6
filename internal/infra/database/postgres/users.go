package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/EgorLis/collab-notes/internal/domain"
)

var userColumns = []string{"id", "email", "name", "COALESCE(avatar_url, '')", "password_digest", "created_at", "updated_at"}

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u      domain.User
		digest string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &digest, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, err
	}
	u.PassHash = []byte(digest)
	return u, nil
}

func (r *PGRepo) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	var avatar any
	if u.AvatarURL != "" {
		avatar = u.AvatarURL
	}
	q := r.qb().Insert(r.table("users")).
		Columns("email", "name", "avatar_url", "password_digest").
		Values(u.Email, u.Name, avatar, string(u.PassHash)).
		Suffix("RETURNING id, email, name, COALESCE(avatar_url, ''), password_digest, created_at, updated_at")

	sqlStr, args, _ := q.ToSql()
	r.logSQL("CreateUser", sqlStr, args)

	start := time.Now()
	out, err := scanUser(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		r.logger.Printf("CreateUser scan error after %s: %v", time.Since(start), err)
		return domain.User{}, mapErr("CreateUser", err)
	}
	r.logger.Printf("CreateUser ok in %s id=%d email=%s", time.Since(start), out.ID, out.Email)
	return out, nil
}

func (r *PGRepo) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	q := r.qb().Select(userColumns...).
		From(r.table("users")).
		Where(sq.Eq{"email": email})

	sqlStr, args, _ := q.ToSql()
	r.logSQL("UserByEmail", sqlStr, args)

	start := time.Now()
	u, err := scanUser(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		r.logger.Printf("UserByEmail scan error after %s: %v", time.Since(start), err)
		return domain.User{}, mapErr("UserByEmail", err)
	}
	r.logger.Printf("UserByEmail ok in %s id=%d", time.Since(start), u.ID)
	return u, nil
}

func (r *PGRepo) UserByID(ctx context.Context, id domain.UserID) (domain.User, error) {
	q := r.qb().Select(userColumns...).
		From(r.table("users")).
		Where(sq.Eq{"id": id})

	sqlStr, args, _ := q.ToSql()
	r.logSQL("UserByID", sqlStr, args)

	start := time.Now()
	u, err := scanUser(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		r.logger.Printf("UserByID scan error after %s: %v", time.Since(start), err)
		return domain.User{}, mapErr("UserByID", err)
	}
	r.logger.Printf("UserByID ok in %s id=%d", time.Since(start), u.ID)
	return u, nil
}

func (r *PGRepo) UpdateUser(ctx context.Context, id domain.UserID, upd domain.UserUpdate) (domain.User, error) {
	q := r.qb().Update(r.table("users")).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING id, email, name, COALESCE(avatar_url, ''), password_digest, created_at, updated_at")
	if upd.Name != nil {
		q = q.Set("name", *upd.Name)
	}
	if upd.AvatarURL != nil {
		q = q.Set("avatar_url", *upd.AvatarURL)
	}
	if upd.PassHash != nil {
		q = q.Set("password_digest", string(upd.PassHash))
	}

	sqlStr, args, _ := q.ToSql()
	r.logSQL("UpdateUser", sqlStr, args)

	start := time.Now()
	u, err := scanUser(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		r.logger.Printf("UpdateUser scan error after %s: %v", time.Since(start), err)
		return domain.User{}, mapErr("UpdateUser", err)
	}
	r.logger.Printf("UpdateUser ok in %s id=%d", time.Since(start), u.ID)
	return u, nil
}

// SearchUsers ищет по подстроке в имени или email, исключая самого ищущего.
func (r *PGRepo) SearchUsers(ctx context.Context, query string, exclude domain.UserID, limit int) ([]domain.User, error) {
	pattern := containsPattern(query)
	q := r.qb().Select(userColumns...).
		From(r.table("users")).
		Where(sq.NotEq{"id": exclude}).
		Where(sq.Or{sq.ILike{"name": pattern}, sq.ILike{"email": pattern}}).
		OrderBy("name ASC", "id ASC").
		Limit(uint64(limit))

	sqlStr, args, _ := q.ToSql()
	r.logSQL("SearchUsers", sqlStr, args)

	start := time.Now()
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		r.logger.Printf("SearchUsers query error after %s: %v", time.Since(start), err)
		return nil, mapErr("SearchUsers", err)
	}
	defer rows.Close()

	out := make([]domain.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapErr("SearchUsers.scan", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("SearchUsers.rows", err)
	}
	r.logger.Printf("SearchUsers ok in %s found=%d", time.Since(start), len(out))
	return out, nil
}

// UsersShareNote — есть ли заметка, к которой имеют доступ оба пользователя.
func (r *PGRepo) UsersShareNote(ctx context.Context, a, b domain.UserID) (bool, error) {
	member := func(user domain.UserID) sq.Sqlizer {
		return sq.Or{
			sq.Eq{"n.owner_id": user},
			sq.Expr("EXISTS (SELECT 1 FROM "+r.table("collaborations")+" c WHERE c.note_id = n.id AND c.user_id = ?)", user),
		}
	}
	sub := r.qb().Select("1").
		From(r.table("notes") + " n").
		Where(member(a)).
		Where(member(b)).
		Limit(1)
	q := r.qb().Select().Column(sq.Expr("EXISTS (?)", sub))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, mapErr("UsersShareNote.build", err)
	}
	r.logSQL("UsersShareNote", sqlStr, args)

	start := time.Now()
	var ok bool
	if err := r.pool.QueryRow(ctx, sqlStr, args...).Scan(&ok); err != nil {
		r.logger.Printf("UsersShareNote scan error after %s: %v", time.Since(start), err)
		return false, mapErr("UsersShareNote", err)
	}
	r.logger.Printf("UsersShareNote ok in %s a=%d b=%d shared=%t", time.Since(start), a, b, ok)
	return ok, nil
}
