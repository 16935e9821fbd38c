package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/JonMunkholm/userimport/internal/core"
	"github.com/JonMunkholm/userimport/internal/logging"
)

// importSource tags imports that arrive over HTTP.
const importSource = "api"

// PreviewResponse is returned by POST /api/users/preview.
type PreviewResponse struct {
	Rows        []core.CandidateUser `json:"rows"`
	TotalRows   int                  `json:"totalRows"`
	ValidRows   int                  `json:"validRows"`
	InvalidRows int                  `json:"invalidRows"`
	ParseError  string               `json:"parseError,omitempty"`
}

// ImportRowsRequest is the body of POST /api/users/import/rows.
type ImportRowsRequest struct {
	Users []core.CandidateUser `json:"users"`
}

// UsersResponse is returned by GET /api/users.
type UsersResponse struct {
	Users []core.User `json:"users"`
	Count int         `json:"count"`
}

// ImportResponse is returned by the import endpoints: the import report plus
// the validation errors of every rejected row.
type ImportResponse struct {
	core.ImportReport
	RowErrors []RowErrors `json:"rowErrors"`
}

// RowErrors lists why one row failed validation.
type RowErrors struct {
	RowNumber int      `json:"rowNumber"`
	Errors    []string `json:"errors"`
}

// ExistsResponse is returned by GET /api/users/exists.
type ExistsResponse struct {
	Field  core.UniqueField `json:"field"`
	Value  string           `json:"value"`
	Exists bool             `json:"exists"`
}

// handlePreview parses an uploaded CSV and returns every row with its
// validation errors. Passwords are omitted and nothing is written.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer file.Close()

	rows := core.ParseUsers(file)

	resp := PreviewResponse{Rows: make([]core.CandidateUser, len(rows))}
	for i, row := range rows {
		// The client keeps its own copy of the file; never echo passwords back
		row.Password = ""
		resp.Rows[i] = row

		switch {
		case row.IsParseFailure():
			resp.ParseError = row.ValidationErrors[0]
		case row.IsValid():
			resp.TotalRows++
			resp.ValidRows++
		default:
			resp.TotalRows++
			resp.InvalidRows++
		}
	}

	logging.FromContext(r.Context()).Info("preview parsed",
		"file", header.Filename,
		"rows", resp.TotalRows,
		"valid", resp.ValidRows,
		"invalid", resp.InvalidRows,
	)

	writeJSON(w, r, resp)
}

// handleImport parses an uploaded CSV and imports its valid rows. A file
// that fails to parse is rejected as a whole.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer file.Close()

	rows := core.ParseUsers(file)
	if msg, failed := core.ParseError(rows); failed {
		respondError(w, r, errors.New(msg), http.StatusBadRequest)
		return
	}

	ctx := withImportMetadata(r.Context(), r, header.Filename)
	s.runImport(w, r.WithContext(ctx), rows)
}

// handleImportRows imports rows a client previewed and possibly edited.
// Client-supplied validation errors are discarded and every row is
// validated again. Rows without a row number are numbered by position.
func (s *Server) handleImportRows(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	var req ImportRowsRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		err = requestBodyError(err)
		respondError(w, r, err, statusFor(err))
		return
	}

	rows := make([]core.CandidateUser, len(req.Users))
	for i, u := range req.Users {
		if u.RowNumber <= 0 {
			u.RowNumber = i + 1
		}
		rows[i] = core.ValidateUser(u)
	}

	ctx := withImportMetadata(r.Context(), r, "rows")
	s.runImport(w, r.WithContext(ctx), rows)
}

// runImport holds an import slot while rows are persisted.
func (s *Server) runImport(w http.ResponseWriter, r *http.Request, rows []core.CandidateUser) {
	ctx := r.Context()

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer release()

	report, err := s.importer.ImportUsersReport(ctx, rows)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	resp := ImportResponse{ImportReport: report, RowErrors: make([]RowErrors, 0, report.InvalidRows)}
	for _, row := range rows {
		if !row.IsValid() {
			resp.RowErrors = append(resp.RowErrors, RowErrors{RowNumber: row.RowNumber, Errors: row.ValidationErrors})
		}
	}
	writeJSON(w, r, resp)
}

// handleListUsers returns every stored user, oldest first.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.importer.ListUsers(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, UsersResponse{Users: users, Count: len(users)})
}

// handleExists checks a single username or email. Exactly one of the two
// query parameters must be given.
func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username, email := q.Get("username"), q.Get("email")

	var (
		field  core.UniqueField
		value  string
		exists bool
		err    error
	)
	switch {
	case username != "" && email == "":
		field, value = core.FieldUsername, username
		exists, err = s.importer.UsernameExists(r.Context(), username)
	case email != "" && username == "":
		field, value = core.FieldEmail, email
		exists, err = s.importer.EmailExists(r.Context(), email)
	default:
		err = fmt.Errorf("%w: exactly one of username or email is required", errInvalidRequest)
	}
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, r, ExistsResponse{Field: field, Value: value, Exists: exists})
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Database string                   `json:"database"`
	Imports  core.ImportLimiterStatus `json:"imports"`
}

// handleHealth reports store reachability and import slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Imports: s.limiter.Status()}
	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		logging.FromContext(r.Context()).Error("health check failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	writeJSONStatus(w, r, status, resp)
}

// readUpload limits the request body and returns the "file" form part.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		return nil, nil, requestBodyError(err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errNoFile
	}
	return file, header, nil
}
