// Package sqlite opens a SQL property graph backed by modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/multihop/internal/storage/sqlgraph"
)

// NewGraphStore opens (or creates) a SQLite graph database at dsn. When the
// first open fails on WAL sidecars left behind by a crashed process, they
// are cleared and the open is retried once.
func NewGraphStore(ctx context.Context, dsn string, opts ...sqlgraph.Option) (*sqlgraph.Store, error) {
	store, err := openGraphStore(ctx, dsn, opts...)
	if err == nil {
		return store, nil
	}

	if rerr := recoverGraphWAL(dsn, err); rerr != nil {
		return nil, rerr
	}

	store, err = openGraphStore(ctx, dsn, opts...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s after clearing stale WAL: %w", dsn, err)
	}
	return store, nil
}

// openGraphStore opens the database, configures WAL mode and applies the schema.
func openGraphStore(ctx context.Context, dsn string, opts ...sqlgraph.Option) (*sqlgraph.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// One connection serialises writes and keeps an in-memory database
	// shared across callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	store, err := sqlgraph.New(ctx, db, sqlgraph.DialectSQLite, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// ErrWALInUse is returned when a graph database cannot be opened and its
// WAL sidecars are held by another process.
var ErrWALInUse = errors.New("sqlite: WAL files are in use by another process")

// recoverGraphWAL decides whether openErr came from orphaned -wal/-shm files
// next to the graph database and removes them if so. A nil return means the
// open may be retried; otherwise the returned error explains why not.
func recoverGraphWAL(dsn string, openErr error) error {
	msg := openErr.Error()
	if !strings.Contains(msg, "disk I/O error") && !strings.Contains(msg, "database is locked") {
		return openErr
	}

	path := graphFilePath(dsn)
	if path == "" {
		return openErr
	}

	var present []string
	for _, sidecar := range []string{path + "-wal", path + "-shm"} {
		if _, err := os.Stat(sidecar); err == nil {
			present = append(present, sidecar)
		}
	}
	if len(present) == 0 {
		return openErr
	}

	// Without lsof nobody can tell whether the files are orphaned.
	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return openErr
	}
	// lsof exits non-zero when any listed file is not open, so only its
	// output is meaningful.
	out, _ := exec.Command(lsof, append([]string{"-t", path}, present...)...).Output()
	if pids := strings.Fields(string(out)); len(pids) > 0 {
		return fmt.Errorf("%w: %s (pids %s): %w", ErrWALInUse, path, strings.Join(pids, ","), openErr)
	}

	var rmErrs []error
	for _, sidecar := range present {
		if err := os.Remove(sidecar); err != nil && !errors.Is(err, fs.ErrNotExist) {
			rmErrs = append(rmErrs, err)
		}
	}
	if len(rmErrs) > 0 {
		return fmt.Errorf("sqlite: clear stale WAL for %s: %w", path, errors.Join(rmErrs...))
	}

	slog.Warn("sqlite: cleared stale graph WAL files", "path", path, "files", present)
	return nil
}

// graphFilePath returns the database file behind dsn, or "" for in-memory
// databases.
func graphFilePath(dsn string) string {
	path := dsn
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path = u.Path
		if path == "" {
			path = u.Opaque
		}
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}
