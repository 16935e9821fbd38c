package core

import (
	"context"
	"time"
)

// CandidateUser is a user row read from a CSV file.
// It is produced by the mapper and carried through validation and import.
type CandidateUser struct {
	FullName         string   `json:"fullName"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Password         string   `json:"password,omitempty"`
	RowNumber        int      `json:"rowNumber"`        // 1-based data row; 0 marks a parse failure
	ValidationErrors []string `json:"validationErrors"` // Empty when the row is acceptable
}

// IsValid reports whether the row has no validation errors.
func (u CandidateUser) IsValid() bool {
	return len(u.ValidationErrors) == 0
}

// IsParseFailure reports whether the row is the synthetic row describing a
// structural failure of the whole file rather than a data row.
func (u CandidateUser) IsParseFailure() bool {
	return u.RowNumber == 0
}

// User is a persisted user record.
type User struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"fullName"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // Hash, never the plaintext
	CreatedAt time.Time `json:"createdAt"`
}

// UniqueField names a user column that is unique across the store.
type UniqueField string

const (
	FieldUsername UniqueField = "username"
	FieldEmail    UniqueField = "email"
)

// UserStore is the persistence boundary for imported users.
// Implementations must enforce uniqueness of username and email.
type UserStore interface {
	// Exists reports whether any stored user has value in field.
	Exists(ctx context.Context, field UniqueField, value string) (bool, error)

	// InsertUsers stores all users in one atomic write and returns them
	// with store-assigned IDs. Either every user is stored or none is.
	InsertUsers(ctx context.Context, users []User) ([]User, error)

	// ListUsers returns every user ordered by creation time, oldest first.
	ListUsers(ctx context.Context) ([]User, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) bool
}

// SkippedRow describes a valid row that was not persisted.
type SkippedRow struct {
	RowNumber int    `json:"rowNumber"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Reason    string `json:"reason"`
}

// ImportReport contains the outcome of an import operation.
type ImportReport struct {
	ID            string        `json:"importId"`
	TotalRows     int           `json:"totalRows"`
	InvalidRows   int           `json:"invalidRows"`
	DuplicateRows []SkippedRow  `json:"duplicateRows"`
	Saved         int           `json:"saved"`
	Users         []User        `json:"users"`
	Duration      time.Duration `json:"durationNs"`
}
