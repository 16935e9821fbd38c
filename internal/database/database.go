// Package database provides the user stores behind core.UserStore.
//
// Three drivers are available, selected by DB_DRIVER:
//
//   - postgres: pgxpool, the production store
//   - sqlite: modernc.org/sqlite, a single-file store for small deployments
//     and the importer CLI
//   - memory: process-local, for tests and dry runs
//
// Every store enforces unique usernames and emails and reports a violation
// at write time as ErrDuplicate. InsertUsers is all-or-nothing.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/userimport/internal/config"
	"github.com/JonMunkholm/userimport/internal/core"
)

// ErrDuplicate is returned when a write would violate username or email
// uniqueness. The message is matched by core.MapError.
var ErrDuplicate = errors.New("duplicate user: username or email already stored")

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown database driver")

// Store is a core.UserStore with a lifecycle.
type Store interface {
	core.UserStore

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// Open creates the store selected by cfg.Driver and ensures its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := OpenPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// column maps a unique field to its column name. Only these two columns may
// ever be interpolated into a query.
func column(field core.UniqueField) (string, error) {
	switch field {
	case core.FieldUsername:
		return "username", nil
	case core.FieldEmail:
		return "email", nil
	default:
		return "", fmt.Errorf("unsupported unique field %q", field)
	}
}
