package probecache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; stale caches are cheap to rebuild, so a mismatch just needs the
// database file deleted.
const schemaVersion = 2

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Entry is a remembered decision for one exact (path, size, mtime) identity.
// PolicyFingerprint records the classification policy the decision was made
// under; an entry whose fingerprint no longer matches is stale.
type Entry struct {
	Path              string
	SizeBytes         int64
	MtimeNs           int64
	Action            string
	Reason            string
	PolicyFingerprint string
	CreatedAt         time.Time
}

// Store persists probe decisions in SQLite so unchanged files can skip
// ffprobe on later passes. Any change to a file's size or mtime misses the
// cache and forces a fresh probe.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Get returns the cached entry for the exact file identity, or nil on a miss.
func (s *Store) Get(ctx context.Context, path string, sizeBytes, mtimeNs int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT path, size_bytes, mtime_ns, action, reason, policy_fp, created_at
         FROM probe_results WHERE path = ? AND size_bytes = ? AND mtime_ns = ?`,
		path, sizeBytes, mtimeNs,
	)

	var (
		entry      Entry
		reason     sql.NullString
		createdRaw string
	)
	err := row.Scan(&entry.Path, &entry.SizeBytes, &entry.MtimeNs, &entry.Action, &reason, &entry.PolicyFingerprint, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached result: %w", err)
	}
	entry.Reason = reason.String
	if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
		entry.CreatedAt = created
	}
	return &entry, nil
}

// Put records a decision for the file identity, replacing any previous entry
// for the same path so a file only ever has one live row. policyFP ties the
// entry to the policy that produced the decision.
func (s *Store) Put(ctx context.Context, path string, sizeBytes, mtimeNs int64, action, reason, policyFP string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM probe_results WHERE path = ?`, path); err != nil {
		return fmt.Errorf("evict stale entries: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO probe_results (path, size_bytes, mtime_ns, action, reason, policy_fp, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		path, sizeBytes, mtimeNs, action, nullableString(reason), policyFP,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert cached result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}
	return nil
}

// Forget drops all entries for a path, e.g. after the file was rewritten.
func (s *Store) Forget(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM probe_results WHERE path = ?`, path); err != nil {
		return fmt.Errorf("forget path: %w", err)
	}
	return nil
}

// PruneOlderThan removes entries created before cutoff and returns the count.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM probe_results WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of live entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM probe_results`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
