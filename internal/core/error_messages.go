package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Users quote the code; support looks it up here.
//
//	DB001   Duplicate user (unique constraint at write time)
//	DB002   Cannot connect to database
//	DB003   Database connection interrupted
//	DB004   Database timeout
//	DB005   Password hashing failed
//	FILE001 File too large
//	FILE002 Invalid CSV
//	FILE003 Encoding error
//	FILE004 No file provided
//	FILE005 Missing header row
//	IMP001  Too many imports running
//	IMP002  Request cancelled
//	IMP003  Request timed out
//	IMP004  Invalid import request
//	RATE001 Rate limited
//	ERR000  Anything else
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is user-facing error information.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Store
	{"duplicate user", UserMessage{"A user with this username or email already exists", "Remove the duplicate rows and import again", "DB001"}},
	{"unique constraint", UserMessage{"A user with this username or email already exists", "Remove the duplicate rows and import again", "DB001"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB002"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"hash password", UserMessage{"A password could not be secured", "Please try again", "DB005"}},

	// Request lifecycle; checked before the generic "timeout" pattern
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "IMP002"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try importing a smaller file", "IMP003"}},
	{"timeout", UserMessage{"Database operation timed out", "Try importing a smaller file or try again later", "DB004"}},

	// File
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Ensure the file is comma-separated", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the file with UTF-8 encoding", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to import", "FILE004"}},
	{"must have headers", UserMessage{"The file has no header row", "Add a header row: FullName,Username,Email,Password", "FILE005"}},
	{"csv parsing error", UserMessage{"File is not a valid CSV", "Ensure the file is comma-separated", "FILE002"}},

	// Import
	{"too many concurrent imports", UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "IMP001"}},
	{"invalid request", UserMessage{"The import request could not be read", "Check the request body and try again", "IMP004"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
