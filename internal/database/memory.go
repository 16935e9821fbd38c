package database

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JonMunkholm/userimport/internal/core"
)

// MemoryStore is a process-local UserStore. It is safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	users     []core.User
	usernames map[string]struct{}
	emails    map[string]struct{}
	nextID    int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usernames: make(map[string]struct{}),
		emails:    make(map[string]struct{}),
		nextID:    1,
	}
}

// Exists reports whether a user with value in field is stored.
func (s *MemoryStore) Exists(ctx context.Context, field core.UniqueField, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	switch field {
	case core.FieldUsername:
		_, ok := s.usernames[value]
		return ok, nil
	case core.FieldEmail:
		_, ok := s.emails[value]
		return ok, nil
	default:
		return false, fmt.Errorf("unsupported unique field %q", field)
	}
}

// InsertUsers stores users after checking the whole batch for conflicts.
func (s *MemoryStore) InsertUsers(ctx context.Context, users []core.User) ([]core.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchUsernames := make(map[string]struct{}, len(users))
	batchEmails := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, ok := s.usernames[u.Username]; ok {
			return nil, fmt.Errorf("%w (%s)", ErrDuplicate, u.Username)
		}
		if _, ok := s.emails[u.Email]; ok {
			return nil, fmt.Errorf("%w (%s)", ErrDuplicate, u.Email)
		}
		if _, ok := batchUsernames[u.Username]; ok {
			return nil, fmt.Errorf("%w (%s)", ErrDuplicate, u.Username)
		}
		if _, ok := batchEmails[u.Email]; ok {
			return nil, fmt.Errorf("%w (%s)", ErrDuplicate, u.Email)
		}
		batchUsernames[u.Username] = struct{}{}
		batchEmails[u.Email] = struct{}{}
	}

	saved := make([]core.User, len(users))
	for i, u := range users {
		u.ID = s.nextID
		s.nextID++
		s.users = append(s.users, u)
		s.usernames[u.Username] = struct{}{}
		s.emails[u.Email] = struct{}{}
		saved[i] = u
	}
	return saved, nil
}

// ListUsers returns a copy of all users oldest first.
func (s *MemoryStore) ListUsers(ctx context.Context) ([]core.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	users := slices.Clone(s.users)
	s.mu.RUnlock()

	if users == nil {
		users = []core.User{}
	}
	slices.SortStableFunc(users, func(a, b core.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return users, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
