package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/EgorLis/collab-notes/internal/domain"
)

const opReturning = "RETURNING id, note_id, user_id, operation_type, position, content, \"timestamp\", applied"

var opColumns = []string{
	"o.id", "o.note_id", "o.user_id", "o.operation_type", "o.position", "o.content", "o.\"timestamp\"", "o.applied", "u.name",
}

func scanOperation(row interface{ Scan(...any) error }, extra ...any) (domain.Operation, error) {
	var op domain.Operation
	dest := append([]any{&op.ID, &op.NoteID, &op.UserID, &op.Type, &op.Position, &op.Content, &op.Timestamp, &op.Applied}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Operation{}, err
	}
	op.Timestamp = op.Timestamp.UTC()
	return op, nil
}

func (r *PGRepo) insertOperation(ctx context.Context, q queryRower, op string, in domain.OperationInput) (domain.Operation, error) {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	ins := r.qb().Insert(r.table("operations")).
		Columns("note_id", "user_id", "operation_type", "position", "content", "\"timestamp\"").
		Values(in.NoteID, in.UserID, int16(in.Type), in.Position, in.Content, in.Timestamp.UTC()).
		Suffix(opReturning)

	sqlStr, args, _ := ins.ToSql()
	r.logSQL(op, sqlStr, args)

	out, err := scanOperation(q.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		return domain.Operation{}, mapErr(op, err)
	}

	nameQ := r.qb().Select("name").From(r.table("users")).Where(sq.Eq{"id": in.UserID})
	sqlStr, args, _ = nameQ.ToSql()
	if err := q.QueryRow(ctx, sqlStr, args...).Scan(&out.UserName); err != nil {
		return domain.Operation{}, mapErr(op+".author", err)
	}
	return out, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AppendOperation пишет операцию и обновляет document_state в одной транзакции.
// Строка заметки блокируется FOR UPDATE, поэтому инкремент версии сериализуется по заметке.
func (r *PGRepo) AppendOperation(ctx context.Context, in domain.OperationInput) (domain.Operation, domain.DocumentState, error) {
	if err := in.Validate(); err != nil {
		return domain.Operation{}, domain.DocumentState{}, err
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}

	start := time.Now()
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Operation{}, domain.DocumentState{}, mapErr("AppendOperation.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lock := r.qb().Select("document_state").
		From(r.table("notes")).
		Where(sq.Eq{"id": in.NoteID}).
		Suffix("FOR UPDATE")
	sqlStr, args, _ := lock.ToSql()
	r.logSQL("AppendOperation.lock", sqlStr, args)

	var stateRaw []byte
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&stateRaw); err != nil {
		r.logger.Printf("AppendOperation lock error after %s: %v", time.Since(start), err)
		return domain.Operation{}, domain.DocumentState{}, mapErr("AppendOperation.lock", err)
	}
	state, err := domain.DecodeDocumentState(stateRaw)
	if err != nil {
		return domain.Operation{}, domain.DocumentState{}, fmt.Errorf("AppendOperation decode state: %v: %w", err, domain.ErrUnexpected)
	}

	op, err := r.insertOperation(ctx, tx, "AppendOperation.insert", in)
	if err != nil {
		r.logger.Printf("AppendOperation insert error after %s: %v", time.Since(start), err)
		return domain.Operation{}, domain.DocumentState{}, err
	}

	next := state.Apply(op.Type, op.Position, op.Content, op.Timestamp)
	encoded, err := next.Encode()
	if err != nil {
		return domain.Operation{}, domain.DocumentState{}, mapErr("AppendOperation.encode", err)
	}
	upd := r.qb().Update(r.table("notes")).
		Set("document_state", encoded).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": in.NoteID})
	sqlStr, args, _ = upd.ToSql()
	r.logSQL("AppendOperation.state", sqlStr, args)
	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		r.logger.Printf("AppendOperation state error after %s: %v", time.Since(start), err)
		return domain.Operation{}, domain.DocumentState{}, mapErr("AppendOperation.state", err)
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.Printf("AppendOperation commit error after %s: %v", time.Since(start), err)
		return domain.Operation{}, domain.DocumentState{}, mapErr("AppendOperation.commit", err)
	}
	r.logger.Printf("AppendOperation ok in %s id=%d note=%d version=%d", time.Since(start), op.ID, op.NoteID, next.Version)
	return op, next, nil
}

// CreateOperation только пишет в лог; document_state не меняется.
func (r *PGRepo) CreateOperation(ctx context.Context, in domain.OperationInput) (domain.Operation, error) {
	if err := in.Validate(); err != nil {
		return domain.Operation{}, err
	}
	start := time.Now()
	op, err := r.insertOperation(ctx, r.pool, "CreateOperation", in)
	if err != nil {
		r.logger.Printf("CreateOperation error after %s: %v", time.Since(start), err)
		return domain.Operation{}, err
	}
	r.logger.Printf("CreateOperation ok in %s id=%d note=%d", time.Since(start), op.ID, op.NoteID)
	return op, nil
}

func (r *PGRepo) ListOperations(ctx context.Context, note domain.NoteID, since *time.Time) ([]domain.Operation, error) {
	q := r.qb().Select(opColumns...).
		From(r.table("operations") + " o").
		Join(r.table("users") + " u ON u.id = o.user_id").
		Where(sq.Eq{"o.note_id": note}).
		OrderBy("o.\"timestamp\" ASC", "o.id ASC")
	if since != nil {
		q = q.Where(sq.Gt{"o.\"timestamp\"": since.UTC()})
	}

	sqlStr, args, _ := q.ToSql()
	r.logSQL("ListOperations", sqlStr, args)

	start := time.Now()
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		r.logger.Printf("ListOperations query error after %s: %v", time.Since(start), err)
		return nil, mapErr("ListOperations", err)
	}
	defer rows.Close()

	out := make([]domain.Operation, 0)
	for rows.Next() {
		var name string
		op, err := scanOperation(rows, &name)
		if err != nil {
			return nil, mapErr("ListOperations.scan", err)
		}
		op.UserName = name
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("ListOperations.rows", err)
	}
	r.logger.Printf("ListOperations ok in %s note=%d count=%d", time.Since(start), note, len(out))
	return out, nil
}

// MarkApplied переводит applied в true; повторный вызов ничего не меняет.
func (r *PGRepo) MarkApplied(ctx context.Context, note domain.NoteID, id domain.OperationID) (domain.Operation, error) {
	q := r.qb().Update(r.table("operations")).
		Set("applied", true).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id, "note_id": note}).
		Suffix(opReturning)

	sqlStr, args, _ := q.ToSql()
	r.logSQL("MarkApplied", sqlStr, args)

	start := time.Now()
	op, err := scanOperation(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		r.logger.Printf("MarkApplied error after %s: %v", time.Since(start), err)
		return domain.Operation{}, mapErr("MarkApplied", err)
	}
	u, err := r.UserByID(ctx, op.UserID)
	if err == nil {
		op.UserName = u.Name
	}
	r.logger.Printf("MarkApplied ok in %s id=%d", time.Since(start), op.ID)
	return op, nil
}
