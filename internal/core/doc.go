// Package core provides the business logic for CSV user imports.
//
// This package holds all domain logic independent of any transport or
// storage. It is used by the HTTP API, the importer CLI and tests without
// modification; persistence and hashing are reached through the [UserStore]
// and [PasswordHasher] interfaces.
//
// # Pipeline
//
// An import runs in three stages:
//
//  1. [MapUsers] reads a CSV with a header row and maps each record onto a
//     [CandidateUser] by header name. Case, spaces and underscores in
//     headers are ignored ("Full Name", "full_name", "FullName").
//  2. [ValidateUser] checks each row and records human-readable messages in
//     ValidationErrors. [ParseUsers] runs both stages.
//  3. [Importer.ImportUsers] skips invalid rows and rows whose username or
//     email is already taken, hashes passwords and writes the rest in one
//     batch.
//
// # Parse Failures
//
// A file that cannot be read as CSV does not produce an error value.
// Instead the returned slice ends with a synthetic row whose RowNumber is 0
// and whose single validation error starts with [ParseErrorPrefix]. Rows read
// before the failure are kept. Use [ParseError] to detect it.
//
// # Streaming
//
// Input is read through [WrapForParsing], which drops a UTF-8 byte order mark
// and stops with [ErrInvalidEncoding] at the first byte that is not valid
// UTF-8. The file is never loaded whole; only the mapped rows are kept.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - DB001-DB005: Store errors (duplicates, connections, hashing, timeouts)
//   - FILE001-FILE005: File errors (size, format, encoding, missing header)
//   - IMP001-IMP004: Import request errors (busy, cancelled, timed out, bad body)
//   - RATE001: Rate limiting
//
// # Concurrency
//
// [ImportLimiter] caps how many imports run at once. An Importer is safe for
// concurrent use if its store and hasher are; uniqueness across concurrent
// imports is finally enforced by the store's constraints.
package core
