// Command importer imports user CSV files matched by a glob pattern.
//
//	importer -glob 'imports/**/*.csv' [-dry-run] [-json]
//
// Each file is parsed, validated and imported on its own. Rejected rows are
// printed to stdout; logs go to stderr. With -dry-run nothing is written to
// the configured store: rows are imported into a throwaway in-memory store so
// duplicates within a file are still reported.
//
// Exit status is 1 when any file failed to parse or import, 2 on bad usage.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/JonMunkholm/userimport/internal/config"
	"github.com/JonMunkholm/userimport/internal/core"
	"github.com/JonMunkholm/userimport/internal/database"
	"github.com/JonMunkholm/userimport/internal/logging"
	"github.com/JonMunkholm/userimport/internal/password"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	sourceLabel = "cli"
)

var errNoMatches = errors.New("no files match pattern")

type options struct {
	glob      string
	dryRun    bool
	jsonOut   bool
	logLevel  string
	logFormat string
}

func main() {
	// Missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return exitUsage
	}

	files, err := matchFiles(opts.glob)
	if err != nil {
		fmt.Fprintf(stderr, "importer: %v\n", err)
		return exitUsage
	}

	logger := logging.New(stderr, opts.logLevel, opts.logFormat)

	store, cost, err := openStore(ctx, opts)
	if err != nil {
		logger.Error("failed to open user store", "error", err)
		return exitFailed
	}
	defer store.Close()

	importer := core.NewImporter(store, password.NewBcryptHasher(cost), core.WithLogger(logger))

	failed := 0
	for i, path := range files {
		if err := importFile(ctx, importer, path, opts, stdout, logger); err != nil {
			failed++
			fmt.Fprintf(stdout, "%s: failed: %s\n", path, core.FormatUserError(err))
			logger.Error("file failed", "file", path, "error", err, "code", core.MapError(err).Code)
		}
		if ctx.Err() != nil {
			logger.Warn("interrupted", "remaining", len(files)-i-1)
			return exitFailed
		}
	}

	logger.Info("done", "files", len(files), "failed", failed, "dry_run", opts.dryRun)
	if failed > 0 {
		return exitFailed
	}
	return exitOK
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("importer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.glob, "glob", "", "files to import, doublestar syntax (e.g. 'imports/**/*.csv')")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "parse and check files without writing to the store")
	fs.BoolVar(&opts.jsonOut, "json", false, "print one JSON import report per file")
	fs.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&opts.logFormat, "log-format", envOr("LOG_FORMAT", "text"), "text or json")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.glob == "" {
		fmt.Fprintln(stderr, "importer: -glob is required")
		fs.Usage()
		return opts, errors.New("missing -glob")
	}
	return opts, nil
}

// matchFiles expands pattern and returns the matches in lexical order.
func matchFiles(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	files, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %q", errNoMatches, pattern)
	}
	slices.Sort(files)
	return files, nil
}

// openStore returns the configured store, or an in-memory one for dry runs.
// Dry runs hash with the minimum bcrypt cost since nothing is kept.
func openStore(ctx context.Context, opts options) (database.Store, int, error) {
	if opts.dryRun {
		return database.NewMemoryStore(), bcrypt.MinCost, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, 0, err
	}
	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, 0, err
	}
	return store, cfg.Password.BcryptCost, nil
}

// importFile parses and imports one file. A parse failure rejects the whole
// file before anything is written.
func importFile(ctx context.Context, importer *core.Importer, path string, opts options, stdout io.Writer, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows := core.ParseUsers(f)
	for _, row := range rows {
		if !row.IsValid() && !row.IsParseFailure() {
			fmt.Fprintf(stdout, "%s: row %d: %s\n", path, row.RowNumber, strings.Join(row.ValidationErrors, "; "))
		}
	}
	if msg, failed := core.ParseError(rows); failed {
		fmt.Fprintf(stdout, "%s: %s\n", path, msg)
		return errors.New(msg)
	}

	ctx = core.ContextWithSource(ctx, sourceLabel+":"+path)
	report, err := importer.ImportUsersReport(ctx, rows)
	if err != nil {
		return err
	}

	for _, skipped := range report.DuplicateRows {
		fmt.Fprintf(stdout, "%s: row %d: skipped %s: %s\n", path, skipped.RowNumber, skipped.Username, skipped.Reason)
	}
	if opts.jsonOut {
		if err := json.NewEncoder(stdout).Encode(fileReport{File: path, DryRun: opts.dryRun, ImportReport: report}); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	logger.Info("file imported",
		"file", path,
		"rows", report.TotalRows,
		"saved", report.Saved,
		"invalid", report.InvalidRows,
		"duplicates", len(report.DuplicateRows),
	)
	return nil
}

// fileReport is the -json output for one file.
type fileReport struct {
	File   string `json:"file"`
	DryRun bool   `json:"dryRun"`
	core.ImportReport
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
