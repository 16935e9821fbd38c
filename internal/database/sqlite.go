package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/userimport/internal/core"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name  TEXT    NOT NULL,
		username   TEXT    NOT NULL UNIQUE,
		email      TEXT    NOT NULL UNIQUE,
		password   TEXT    NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users (created_at, id)`,
}

// SQLiteStore is a UserStore backed by a SQLite file. Timestamps are stored
// as UTC Unix milliseconds.
type SQLiteStore struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens (creating if needed) the database at path and ensures
// the users table.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Exists reports whether a user with value in field is stored.
func (s *SQLiteStore) Exists(ctx context.Context, field core.UniqueField, value string) (bool, error) {
	col, err := column(field)
	if err != nil {
		return false, err
	}

	var exists bool
	query := "SELECT EXISTS (SELECT 1 FROM users WHERE " + col + " = ?)"
	if err := s.sqlDB.QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("query %s: %w", col, err)
	}
	return exists, nil
}

// InsertUsers writes users in one transaction.
func (s *SQLiteStore) InsertUsers(ctx context.Context, users []core.User) ([]core.User, error) {
	if len(users) == 0 {
		return []core.User{}, nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO users (full_name, username, email, password, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	saved := make([]core.User, len(users))
	for i, u := range users {
		res, err := stmt.ExecContext(ctx, u.FullName, u.Username, u.Email, u.Password, toMillis(u.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w (%s)", ErrDuplicate, u.Username)
			}
			return nil, fmt.Errorf("insert user: %w", err)
		}
		if u.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("read user id: %w", err)
		}
		u.CreatedAt = fromMillis(toMillis(u.CreatedAt))
		saved[i] = u
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// ListUsers returns all users oldest first.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, full_name, username, email, password, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]core.User, 0)
	for rows.Next() {
		var (
			u         core.User
			createdAt int64
		)
		if err := rows.Scan(&u.ID, &u.FullName, &u.Username, &u.Email, &u.Password, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = fromMillis(createdAt)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Ping verifies the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ Store = (*SQLiteStore)(nil)
