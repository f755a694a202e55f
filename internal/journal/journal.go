// Package journal keeps a SQLite history of finished algorithm runs.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/algomgr/internal/cachemanager"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/manager"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

const defaultCacheTTL = time.Minute

// Entry is one persisted run.
type Entry struct {
	RunID      string    `json:"run_id"`
	HandleID   uint64    `json:"handle_id"`
	Name       string    `json:"name"`
	Version    int       `json:"version"`
	Kind       string    `json:"kind"`
	Mode       string    `json:"mode"`
	Outcome    string    `json:"outcome"`
	Executed   bool      `json:"executed"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is FinishedAt - StartedAt.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// EntryFromRecord converts a manager run record.
func EntryFromRecord(rec manager.RunRecord) Entry {
	return Entry{
		RunID:      rec.RunID,
		HandleID:   uint64(rec.HandleID),
		Name:       rec.Name,
		Version:    rec.Version,
		Kind:       rec.Kind.String(),
		Mode:       string(rec.Mode),
		Outcome:    rec.Outcome,
		Executed:   rec.Executed,
		Error:      rec.Error,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
}

type handleKey string

// Journal is safe for concurrent use.
type Journal struct {
	db       *sql.DB
	path     string
	cacheTTL time.Duration
	byHandle *cachemanager.ReadThroughCache[handleKey, []Entry, uint64]
}

var _ manager.RunRecorder = (*Journal)(nil)

// Option configures a Journal.
type Option func(*Journal)

// WithCacheTTL sets how long ForHandle results are cached. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(j *Journal) {
		j.cacheTTL = ttl
	}
}

// Open opens (creating if needed) the journal at path and applies pending
// migrations.
func Open(path string, opts ...Option) (*Journal, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	if path == MemoryPath {
		dsn = "file::memory:"
	}

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	log.Debug(log.CatJournal, "Opening journal", "path", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.ErrorErr(log.CatJournal, "Failed to open journal", err, "path", path)
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if path != MemoryPath {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		log.ErrorErr(log.CatJournal, "Journal migration failed", err, "path", path)
		return nil, err
	}

	j := &Journal{db: db, path: path, cacheTTL: defaultCacheTTL}
	for _, opt := range opts {
		opt(j)
	}
	j.byHandle = cachemanager.NewReadThroughCache(
		cachemanager.NewInMemoryCacheManager[handleKey, []Entry]("journal_by_handle", j.cacheTTL, cachemanager.DefaultCleanupInterval),
		j.queryHandle,
		j.cacheTTL <= 0,
	)

	log.Info(log.CatJournal, "Journal opened", "path", path)
	return j, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	// m.Close would close db as well; only the source is released here.
	defer func() { _ = src.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the path the journal was opened with.
func (j *Journal) Path() string { return j.path }

// Record stores e. Recording the same run id twice keeps the first entry.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (
			run_id, handle_id, name, version, kind, mode,
			outcome, executed, error, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, int64(e.HandleID), e.Name, e.Version, e.Kind, e.Mode, //nolint:gosec // handle ids stay far below MaxInt64
		e.Outcome, e.Executed, e.Error, e.StartedAt.UTC(), e.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if err := j.byHandle.Invalidate(ctx); err != nil {
		log.Warn(log.CatJournal, "Cache invalidation failed", "error", err)
	}
	return nil
}

// RecordRun stores a finished run reported by the manager. Failures are
// logged, not returned.
func (j *Journal) RecordRun(ctx context.Context, rec manager.RunRecord) {
	if err := j.Record(ctx, EntryFromRecord(rec)); err != nil {
		log.ErrorErr(log.CatJournal, "Failed to record run", err, "run", rec.RunID, "name", rec.Name)
	}
}

// Recent returns up to limit runs, most recently recorded first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return j.query(ctx, `SELECT `+entryColumns+` FROM runs ORDER BY rowid DESC LIMIT ?`, limit)
}

// ForHandle returns every run of handle id in recording order.
func (j *Journal) ForHandle(ctx context.Context, id uint64) ([]Entry, error) {
	return j.byHandle.Get(ctx, handleKey(fmt.Sprintf("handle:%d", id)), id, j.cacheTTL)
}

// Count returns the number of stored runs.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (j *Journal) queryHandle(ctx context.Context, id uint64) ([]Entry, error) {
	return j.query(ctx, `SELECT `+entryColumns+` FROM runs WHERE handle_id = ? ORDER BY rowid`,
		int64(id)) //nolint:gosec // handle ids stay far below MaxInt64
}

const entryColumns = `run_id, handle_id, name, version, kind, mode, outcome, executed, error, started_at, finished_at`

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			handleID int64
		)
		if err := rows.Scan(
			&e.RunID, &handleID, &e.Name, &e.Version, &e.Kind, &e.Mode,
			&e.Outcome, &e.Executed, &e.Error, &e.StartedAt, &e.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.HandleID = uint64(handleID) //nolint:gosec // stored from a uint64
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return entries, nil
}
