package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "duplicate user from store",
			err:      fmt.Errorf("insert users: %w", errors.New("duplicate user: username or email already stored")),
			wantCode: "DB001",
		},
		{
			name:     "postgres unique violation",
			err:      errors.New("ERROR: duplicate key value violates unique constraint \"users_email_key\""),
			wantCode: "DB001",
		},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 127.0.0.1:5432: connection refused"),
			wantCode: "DB002",
		},
		{
			name:     "deadline wins over generic timeout",
			err:      errors.New("query timeout: context deadline exceeded"),
			wantCode: "IMP003",
		},
		{
			name:     "plain timeout",
			err:      errors.New("i/o timeout"),
			wantCode: "DB004",
		},
		{
			name:     "hash failure",
			err:      errors.New("hash password for row 3: hash: crypto/rand: read failed"),
			wantCode: "DB005",
		},
		{
			name:     "encoding error from parser",
			err:      ErrInvalidEncoding,
			wantCode: "FILE003",
		},
		{
			name:     "missing header",
			err:      ErrMissingHeader,
			wantCode: "FILE005",
		},
		{
			name:     "other parse failure",
			err:      errors.New(ParseErrorPrefix + "read: connection reset by peer"),
			wantCode: "DB003",
		},
		{
			name:     "malformed csv row",
			err:      errors.New(ParseErrorPrefix + "record on line 2: wrong number of fields"),
			wantCode: "FILE002",
		},
		{
			name:     "limiter saturation",
			err:      ErrTooManyImports,
			wantCode: "IMP001",
		},
		{
			name:     "case insensitive",
			err:      errors.New("FILE TOO LARGE"),
			wantCode: "FILE001",
		},
		{
			name:     "unknown error falls back",
			err:      errors.New("something odd"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Errorf("MapError(%v).Message is empty", tt.err)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}

	got := FormatUserError(ErrTooManyImports)
	want := "System is busy processing other imports (Code: IMP001). Please wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
}
