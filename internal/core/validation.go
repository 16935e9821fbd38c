package core

// validation.go provides row-level validation for mapped CSV users.
//
// Every rule runs on every row and errors accumulate, so a preview can show
// all problems with a row at once. Validation never mutates its input: it
// returns a copy whose error list is rebuilt from the four field values.

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFieldLength is the maximum length, in characters, of a name or username.
const MaxFieldLength = 100

// MinPasswordLength is the minimum password length, in characters.
const MinPasswordLength = 8

// Validation messages. Callers match on these strings, so they are part of
// the contract.
const (
	MsgFullNameRequired = "Full name is required"
	MsgFullNameTooLong  = "Full name must be 100 characters or less"
	MsgUsernameRequired = "Username is required"
	MsgUsernameTooLong  = "Username must be 100 characters or less"
	MsgEmailRequired    = "Email is required"
	MsgEmailInvalid     = "Email must be in valid format (e.g., user@example.com)"
	MsgPasswordRequired = "Password is required"
	MsgPasswordWeak     = "Password must be longer than 8 characters and contain at least one uppercase letter, one lowercase letter, one digit, and one special character"
)

// ValidateUser returns a copy of u with ValidationErrors recomputed.
// Running it twice yields the same errors.
func ValidateUser(u CandidateUser) CandidateUser {
	errs := make([]string, 0)

	if isBlank(u.FullName) {
		errs = append(errs, MsgFullNameRequired)
	}
	if charCount(u.FullName) > MaxFieldLength {
		errs = append(errs, MsgFullNameTooLong)
	}

	if isBlank(u.Username) {
		errs = append(errs, MsgUsernameRequired)
	}
	if charCount(u.Username) > MaxFieldLength {
		errs = append(errs, MsgUsernameTooLong)
	}

	// Format checks only apply to values that are present
	if isBlank(u.Email) {
		errs = append(errs, MsgEmailRequired)
	} else if !IsValidEmail(u.Email) {
		errs = append(errs, MsgEmailInvalid)
	}

	if isBlank(u.Password) {
		errs = append(errs, MsgPasswordRequired)
	} else if !IsStrongPassword(u.Password) {
		errs = append(errs, MsgPasswordWeak)
	}

	u.ValidationErrors = errs
	return u
}

// ValidateUsers validates each row. The parse-failure row is passed through
// unchanged since it carries no field values to check.
func ValidateUsers(users []CandidateUser) []CandidateUser {
	out := make([]CandidateUser, len(users))
	for i, u := range users {
		if u.IsParseFailure() {
			out[i] = u
			continue
		}
		out[i] = ValidateUser(u)
	}
	return out
}

// IsValidEmail reports whether s is a bare mailbox address such as
// user@example.com. Display names, angle brackets and surrounding text are
// rejected because the parsed address must equal the input exactly.
func IsValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s
}

// IsStrongPassword reports whether s has at least MinPasswordLength
// characters including an upper-case letter, a lower-case letter, a digit
// and a character that is neither a letter nor a digit.
func IsStrongPassword(s string) bool {
	if charCount(s) < MinPasswordLength {
		return false
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSpecial = true
		}
	}

	return hasUpper && hasLower && hasDigit && hasSpecial
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func charCount(s string) int {
	return utf8.RuneCountInString(s)
}
