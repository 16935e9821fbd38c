package core

// parse.go turns a CSV stream into CandidateUser rows.
//
// Columns are located by name, not position. Each canonical field accepts a
// small alias set and headers are compared after lower-casing and removing
// spaces and underscores, so "Full Name", "full_name" and "FullName" all map
// to the same field.
//
// Structural failures never escape as errors. They are reported as a single
// synthetic row with RowNumber 0 appended after the rows read so far.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMissingHeader is reported when the stream has no header line.
var ErrMissingHeader = errors.New("CSV file must have headers")

// ParseErrorPrefix starts the message of the synthetic parse-failure row.
const ParseErrorPrefix = "CSV parsing error: "

// columnAliases lists accepted header spellings per canonical field.
var (
	fullNameAliases = []string{"fullname", "full_name"}
	usernameAliases = []string{"username", "user_name"}
	emailAliases    = []string{"email", "email_address"}
	passwordAliases = []string{"password", "pwd"}
)

// absentColumn marks a field with no matching header.
const absentColumn = -1

// columnIndex holds the resolved position of each canonical field.
type columnIndex struct {
	fullName int
	username int
	email    int
	password int
}

// ParseUsers reads a CSV stream and returns one validated CandidateUser per
// data row. See MapUsers for the mapping rules.
func ParseUsers(r io.Reader) []CandidateUser {
	return ValidateUsers(MapUsers(r))
}

// MapUsers reads a CSV stream and returns one unvalidated CandidateUser per
// data row, numbered from 1 in stream order.
//
// If the stream has no header, or reading fails part way, the result ends
// with a single row whose RowNumber is 0 and whose only validation error
// describes the failure. Rows read before the failure are kept.
func MapUsers(r io.Reader) []CandidateUser {
	reader := newCSVReader(WrapForParsing(r))

	header, err := reader.Read()
	if err == io.EOF {
		return []CandidateUser{parseFailure(ErrMissingHeader)}
	}
	if err != nil {
		return []CandidateUser{parseFailure(err)}
	}

	cols := resolveColumns(header)
	users := make([]CandidateUser, 0)
	rowNumber := 0

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			users = append(users, parseFailure(err))
			break
		}

		rowNumber++
		users = append(users, CandidateUser{
			FullName:  fieldValue(row, cols.fullName),
			Username:  fieldValue(row, cols.username),
			Email:     fieldValue(row, cols.email),
			Password:  fieldValue(row, cols.password),
			RowNumber: rowNumber,
		})
	}

	return users
}

// newCSVReader configures a reader that tolerates ragged rows.
func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true
	return reader
}

// parseFailure builds the synthetic row reporting a structural failure.
func parseFailure(err error) CandidateUser {
	return CandidateUser{
		RowNumber:        0,
		ValidationErrors: []string{ParseErrorPrefix + err.Error()},
	}
}

// resolveColumns finds each canonical field in the header row.
func resolveColumns(header []string) columnIndex {
	return columnIndex{
		fullName: findColumn(header, fullNameAliases),
		username: findColumn(header, usernameAliases),
		email:    findColumn(header, emailAliases),
		password: findColumn(header, passwordAliases),
	}
}

// findColumn returns the index of the first header matching any alias,
// or absentColumn.
func findColumn(header []string, aliases []string) int {
	for i, h := range header {
		key := NormalizeHeader(h)
		for _, alias := range aliases {
			if key == NormalizeHeader(alias) {
				return i
			}
		}
	}
	return absentColumn
}

// NormalizeHeader lower-cases a header and strips spaces and underscores.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "").Replace(h)
}

// fieldValue returns the trimmed value at pos, or "" when the column is
// absent or the row is too short.
func fieldValue(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

// ParseError returns the message of the parse-failure row, if any.
func ParseError(users []CandidateUser) (string, bool) {
	for _, u := range users {
		if u.IsParseFailure() && len(u.ValidationErrors) > 0 {
			return u.ValidationErrors[0], true
		}
	}
	return "", false
}

// describeRow is used in log lines for skipped rows.
func describeRow(u CandidateUser) string {
	return fmt.Sprintf("row %d (%s, %s)", u.RowNumber, u.Username, u.Email)
}
