package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JonMunkholm/userimport/internal/config"
	"github.com/JonMunkholm/userimport/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         BIGSERIAL PRIMARY KEY,
		full_name  TEXT        NOT NULL,
		username   TEXT        NOT NULL,
		email      TEXT        NOT NULL,
		password   TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT users_username_key UNIQUE (username),
		CONSTRAINT users_email_key UNIQUE (email)
	)`,
	`CREATE INDEX IF NOT EXISTS users_created_at_idx ON users (created_at, id)`,
}

const postgresInsertUser = `
	INSERT INTO users (full_name, username, email, password, created_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at`

const postgresListUsers = `
	SELECT id, full_name, username, email, password, created_at
	FROM users
	ORDER BY created_at, id`

// PostgresStore is a UserStore backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool using cfg and ensures the users table.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	store := NewPostgresStore(pool)
	if err := store.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the users table and its indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Exists reports whether a user with value in field is stored.
func (s *PostgresStore) Exists(ctx context.Context, field core.UniqueField, value string) (bool, error) {
	col, err := column(field)
	if err != nil {
		return false, err
	}

	var exists bool
	query := "SELECT EXISTS (SELECT 1 FROM users WHERE " + col + " = $1)"
	if err := s.pool.QueryRow(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("query %s: %w", col, err)
	}
	return exists, nil
}

// InsertUsers writes users in one transaction using a pipelined batch.
func (s *PostgresStore) InsertUsers(ctx context.Context, users []core.User) ([]core.User, error) {
	if len(users) == 0 {
		return []core.User{}, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit

	batch := &pgx.Batch{}
	for _, u := range users {
		batch.Queue(postgresInsertUser, u.FullName, u.Username, u.Email, u.Password, u.CreatedAt)
	}

	saved := make([]core.User, len(users))
	results := tx.SendBatch(ctx, batch)
	for i, u := range users {
		// created_at is read back since the column keeps only microseconds
		if err := results.QueryRow().Scan(&u.ID, &u.CreatedAt); err != nil {
			_ = results.Close()
			return nil, mapPostgresError(err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		saved[i] = u
	}
	if err := results.Close(); err != nil {
		return nil, mapPostgresError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// ListUsers returns all users oldest first.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.pool.Query(ctx, postgresListUsers)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.User, error) {
		var u core.User
		err := row.Scan(&u.ID, &u.FullName, &u.Username, &u.Email, &u.Password, &u.CreatedAt)
		u.CreatedAt = u.CreatedAt.UTC()
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

// Ping verifies a connection can be acquired.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Name returns the database name for startup logs, without credentials.
func (s *PostgresStore) Name() string {
	return DatabaseName(s.pool.Config().ConnString())
}

// DatabaseName extracts the database name from a connection URL.
func DatabaseName(connString string) string {
	u, err := url.Parse(connString)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func mapPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w (%s)", ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("insert user: %w", err)
}

var _ Store = (*PostgresStore)(nil)
