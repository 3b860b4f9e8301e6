package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/EgorLis/collab-notes/internal/domain"
)

// PGRepo реализует UsersRepo, NotesRepo, CollaborationsRepo и OperationsRepo
// поверх pgxpool; схема поднимается golang-migrate из встроенных файлов.
type PGRepo struct {
	logger *log.Logger
	pool   *pgxpool.Pool
	schema string
}

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Пул держит по соединению на активную сессию канала плюс REST
const (
	poolMaxConns    = 32
	poolMaxIdleTime = 5 * time.Minute
)

func NewPGRepo(ctx context.Context, logger *log.Logger, dsn, schema string) (*PGRepo, error) {
	if schema == "" {
		schema = "public"
	}
	if err := migrateUp(dsn, schema, logger); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns < poolMaxConns {
		cfg.MaxConns = poolMaxConns
	}
	cfg.MaxConnIdleTime = poolMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	logger.Printf("pgxpool ready: max_conns=%d schema=%s", cfg.MaxConns, schema)
	return &PGRepo{pool: pool, schema: schema, logger: logger}, nil
}

func (r *PGRepo) Close() {
	r.pool.Close()
	r.logger.Println("pgxpool closed")
}

// migrateUp применяет миграции через отдельный *sql.DB (pgx/stdlib), не через пул.
func migrateUp(dsn, schema string, logger *log.Logger) error {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("sql.Open pgx: %w", err)
	}
	defer sqldb.Close()

	driver, err := postgres.WithInstance(sqldb, &postgres.Config{SchemaName: schema})
	if err != nil {
		return fmt.Errorf("postgres driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Println("schema up to date")
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	default:
		v, _, _ := m.Version()
		logger.Printf("schema migrated to version %d", v)
	}
	return nil
}

// Ping для /readyz
func (r *PGRepo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		r.logger.Printf("ping failed: %v", err)
		return err
	}
	return nil
}

var (
	_ domain.UsersRepo          = (*PGRepo)(nil)
	_ domain.NotesRepo          = (*PGRepo)(nil)
	_ domain.CollaborationsRepo = (*PGRepo)(nil)
	_ domain.OperationsRepo     = (*PGRepo)(nil)
)

func (r *PGRepo) qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (r *PGRepo) table(name string) string {
	return fmt.Sprintf("%s.%s", r.schema, name)
}

func (r *PGRepo) logSQL(op, sqlStr string, args []any) {
	r.logger.Printf("%s SQL: %s args=%v", op, sqlStr, args)
}

// Коды ошибок Postgres, которые мапятся на доменные
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// mapErr переводит ошибки драйвера в доменные sentinel-ошибки.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, domain.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, domain.ErrNotFound)
		case pgCheckViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, domain.ErrBadParams)
		}
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrUnexpected)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}
