package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/prometheus-agent/prometheus/core"
	"github.com/prometheus-agent/prometheus/logging"
)

// Options configures a SQLiteStore.
type Options struct {
	// Compress enables gzip compression of stored payloads. Reads handle
	// both shapes regardless.
	Compress bool
	// CompactThresholdBytes triggers automatic compaction during checkpoints
	// once the database file grows past it. Zero disables compaction.
	CompactThresholdBytes int64
	// AlertThresholdBytes triggers OnAlert once the file grows past it.
	// Zero disables alerting.
	AlertThresholdBytes int64
	// OnAlert is invoked when the file size crosses AlertThresholdBytes.
	// Wired to a storage.alert event by the facade.
	OnAlert func(reason string, sizeBytes int64)
	// Logger receives storage diagnostics.
	Logger logging.Logger
}

// SQLiteStore is the durable Store backed by a single SQLite database file in
// WAL mode. WAL is the write-ahead mechanism required for outbox replay: a
// commit is durable before the bus dispatches the event it recorded.
//
// Concurrency: the connection pool is limited to one open connection and a
// mutex serializes writes, so concurrent task completion cannot interleave
// physical writes.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	opts Options

	recoveredDirty bool
}

// Compile-time interface assertion.
var _ core.Store = (*SQLiteStore)(nil)

// Open initializes the SQLite database at the given path, creating the schema
// on first use and detecting whether the previous shutdown was clean.
func Open(path string, optFns ...func(o *Options)) (*SQLiteStore, error) {
	opts := Options{
		Compress: true,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &core.StorageError{Op: "create directory", Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &core.StorageError{Op: "open database", Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		// synchronous=NORMAL is safe under WAL and much faster than FULL.
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			opts.Logger.Debug("pragma failed", "pragma", pragma, "error", err)
		}
	}

	s := &SQLiteStore{db: db, path: path, opts: opts}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.markOpen(); err != nil {
		db.Close()
		return nil, err
	}

	opts.Logger.Info("store opened", "path", path, "recovered_dirty", s.recoveredDirty)

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_kind ON memory_entries(kind)`,
		`CREATE TABLE IF NOT EXISTS skills (
			name TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS skill_invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			skill_name TEXT NOT NULL,
			success INTEGER NOT NULL,
			at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_skill ON skill_invocations(skill_name)`,
		`CREATE TABLE IF NOT EXISTS traces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_fingerprint ON traces(fingerprint)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL DEFAULT '',
			delivered INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			payload BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_delivered ON outbox(delivered)`,
		`CREATE TABLE IF NOT EXISTS orchestrator_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload BLOB NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return &core.StorageError{Op: "migrate schema", Err: err}
		}
	}
	return nil
}

// markOpen records that the store is in use. A pre-existing in-use marker
// means the previous process died without a clean shutdown.
func (s *SQLiteStore) markOpen() error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'clean_shutdown'`).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		// first open of a fresh database
	case err != nil:
		return &core.StorageError{Op: "read shutdown marker", Err: err}
	case value != "1":
		s.recoveredDirty = true
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('clean_shutdown', '0')`); err != nil {
		return &core.StorageError{Op: "write shutdown marker", Err: err}
	}
	return nil
}

// Recover completes crash recovery: WAL replay already happened on open, so
// what remains is truncating the log and reporting state. Partially written
// entities cannot survive because each entity commits in one transaction.
func (s *SQLiteStore) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return &core.StorageError{Op: "wal checkpoint", Err: err}
	}
	if s.recoveredDirty {
		s.opts.Logger.Warn("recovered from unclean shutdown", "path", s.path)
	}
	return nil
}

// Checkpoint flushes the WAL and runs size monitoring: compaction past the
// soft threshold, an alert callback past the hard one.
func (s *SQLiteStore) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return &core.StorageError{Op: "wal checkpoint", Err: err}
	}

	size := s.fileSizeLocked()
	if s.opts.CompactThresholdBytes > 0 && size > s.opts.CompactThresholdBytes {
		if err := s.compactLocked(); err != nil {
			return err
		}
		size = s.fileSizeLocked()
	}
	if s.opts.AlertThresholdBytes > 0 && size > s.opts.AlertThresholdBytes && s.opts.OnAlert != nil {
		s.opts.OnAlert("database size exceeds critical threshold", size)
	}

	s.opts.Logger.Debug("checkpoint complete", "duration", time.Since(start), "size_bytes", size)
	return nil
}

func (s *SQLiteStore) compactLocked() error {
	s.opts.Logger.Info("compacting store", "path", s.path)
	if _, err := s.db.Exec(`DELETE FROM outbox WHERE delivered = 1`); err != nil {
		return &core.StorageError{Op: "prune delivered events", Err: err}
	}
	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return &core.StorageError{Op: "vacuum", Err: err}
	}
	if _, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('compactions', '1')
		 ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)`); err != nil {
		return &core.StorageError{Op: "record compaction", Err: err}
	}
	return nil
}

func (s *SQLiteStore) fileSizeLocked() int64 {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal"} {
		if fi, err := os.Stat(p); err == nil {
			total += fi.Size()
		}
	}
	return total
}

// Stats returns a health snapshot of the durable medium.
func (s *SQLiteStore) Stats() (core.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := core.StoreStats{
		SizeBytes:      s.fileSizeLocked(),
		RecoveredDirty: s.recoveredDirty,
	}
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM memory_entries`, &stats.MemoryEntries},
		{`SELECT COUNT(*) FROM skills`, &stats.Skills},
		{`SELECT COUNT(*) FROM outbox WHERE delivered = 0`, &stats.PendingEvents},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return stats, &core.StorageError{Op: "count entities", Err: err}
		}
	}
	var compactions string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'compactions'`).Scan(&compactions); err == nil {
		fmt.Sscanf(compactions, "%d", &stats.Compactions)
	}
	return stats, nil
}

// Close marks the shutdown clean and releases the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('clean_shutdown', '1')`); err != nil {
		s.opts.Logger.Warn("failed to mark clean shutdown", "error", err)
	}
	return s.db.Close()
}
