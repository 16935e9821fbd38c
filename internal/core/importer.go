package core

// importer.go persists validated CSV users.
//
// The flow for one import call is strictly sequential:
//
//  1. Drop rows with validation errors (order is preserved)
//  2. For each remaining row, check the store for an existing username and
//     email, and skip the row on a match
//  3. Skip rows that reuse a username or email accepted earlier in the call
//  4. Hash the password of every surviving row
//  5. Write all survivors in a single batch
//
// The store's unique constraints remain the final guard against concurrent
// importers: a conflict at write time fails the whole batch.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/userimport/internal/logging"
	"github.com/google/uuid"
)

// Skip reasons reported in ImportReport.DuplicateRows.
const (
	ReasonUsernameExists  = "username already exists"
	ReasonEmailExists     = "email already exists"
	ReasonDuplicateInFile = "duplicate within file"
)

// Importer coordinates duplicate detection, hashing and persistence.
type Importer struct {
	store  UserStore
	hasher PasswordHasher
	now    func() time.Time
	logger *slog.Logger
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) ImporterOption {
	return func(i *Importer) {
		i.now = now
	}
}

// WithLogger sets the logger used when no request logger is available.
func WithLogger(logger *slog.Logger) ImporterOption {
	return func(i *Importer) {
		i.logger = logger
	}
}

// NewImporter creates an Importer backed by store and hasher.
func NewImporter(store UserStore, hasher PasswordHasher, opts ...ImporterOption) *Importer {
	imp := &Importer{
		store:  store,
		hasher: hasher,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// ImportUsers persists the valid, non-duplicate rows and returns how many
// were saved. An empty input returns 0 without touching the store.
func (i *Importer) ImportUsers(ctx context.Context, rows []CandidateUser) (int, error) {
	report, err := i.ImportUsersReport(ctx, rows)
	if err != nil {
		return 0, err
	}
	return report.Saved, nil
}

// ImportUsersReport behaves like ImportUsers and also reports which rows
// were rejected and why.
func (i *Importer) ImportUsersReport(ctx context.Context, rows []CandidateUser) (ImportReport, error) {
	start := time.Now()
	report := ImportReport{
		ID:            uuid.New().String(),
		TotalRows:     len(rows),
		DuplicateRows: make([]SkippedRow, 0),
		Users:         make([]User, 0),
	}

	if len(rows) == 0 {
		return report, nil
	}

	logger := i.log(ctx).With("import_id", report.ID).With(contextLogAttrs(ctx)...)
	logger.Info("import started", "rows", len(rows))

	seenUsernames := make(map[string]struct{})
	seenEmails := make(map[string]struct{})
	var pending []User

	for _, row := range rows {
		if !row.IsValid() {
			report.InvalidRows++
			continue
		}

		reason, err := i.duplicateReason(ctx, row, seenUsernames, seenEmails)
		if err != nil {
			return report, err
		}
		if reason != "" {
			logger.Debug("skipping duplicate", "row", describeRow(row), "reason", reason)
			report.DuplicateRows = append(report.DuplicateRows, SkippedRow{
				RowNumber: row.RowNumber,
				Username:  row.Username,
				Email:     row.Email,
				Reason:    reason,
			})
			continue
		}

		hash, err := i.hasher.Hash(row.Password)
		if err != nil {
			return report, fmt.Errorf("hash password for row %d: %w", row.RowNumber, err)
		}

		seenUsernames[row.Username] = struct{}{}
		seenEmails[row.Email] = struct{}{}

		pending = append(pending, User{
			FullName:  row.FullName,
			Username:  row.Username,
			Email:     row.Email,
			Password:  hash,
			CreatedAt: i.now().UTC(),
		})
	}

	if len(pending) > 0 {
		saved, err := i.store.InsertUsers(ctx, pending)
		if err != nil {
			logger.Error("import failed", "error", err, "batch", len(pending))
			return report, fmt.Errorf("insert users: %w", err)
		}
		report.Users = saved
		report.Saved = len(saved)
	}

	report.Duration = time.Since(start)
	logger.Info("import completed",
		"saved", report.Saved,
		"invalid", report.InvalidRows,
		"duplicates", len(report.DuplicateRows),
		"duration_ms", report.Duration.Milliseconds(),
	)

	return report, nil
}

// duplicateReason checks a row against the store and against rows accepted
// earlier in the same call. It returns "" when the row may be saved.
func (i *Importer) duplicateReason(ctx context.Context, row CandidateUser, seenUsernames, seenEmails map[string]struct{}) (string, error) {
	usernameExists, err := i.UsernameExists(ctx, row.Username)
	if err != nil {
		return "", err
	}
	emailExists, err := i.EmailExists(ctx, row.Email)
	if err != nil {
		return "", err
	}

	switch {
	case usernameExists:
		return ReasonUsernameExists, nil
	case emailExists:
		return ReasonEmailExists, nil
	}

	if _, ok := seenUsernames[row.Username]; ok {
		return ReasonDuplicateInFile, nil
	}
	if _, ok := seenEmails[row.Email]; ok {
		return ReasonDuplicateInFile, nil
	}
	return "", nil
}

// UsernameExists reports whether a stored user has the given username.
func (i *Importer) UsernameExists(ctx context.Context, username string) (bool, error) {
	exists, err := i.store.Exists(ctx, FieldUsername, username)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}

// EmailExists reports whether a stored user has the given email.
func (i *Importer) EmailExists(ctx context.Context, email string) (bool, error) {
	exists, err := i.store.Exists(ctx, FieldEmail, email)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// ListUsers returns every stored user, oldest first.
func (i *Importer) ListUsers(ctx context.Context) ([]User, error) {
	users, err := i.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (i *Importer) log(ctx context.Context) *slog.Logger {
	if i.logger != nil {
		return i.logger
	}
	return logging.FromContext(ctx)
}
