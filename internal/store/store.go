// Package store persists the durable engine state (session records, the
// shared display slot, and the streak counters) in a SQLite database under
// the pixelpet home directory. WAL mode plus a busy timeout lets many
// short-lived hook processes and one watching consumer share the file
// without explicit locking; concurrent writers race and last-write-wins,
// which is acceptable for a cosmetic display that self-heals on the next
// event.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"

	"github.com/avelinecho/pixelpet/internal/activity"
	"github.com/avelinecho/pixelpet/internal/registry"
	"github.com/avelinecho/pixelpet/internal/streak"
)

// SchemaVersion tracks the database schema. Bump when adding migrations.
const SchemaVersion = 1

// Store wraps the SQLite state database. Safe for concurrent use within a
// process; cross-process sharing goes through WAL mode.
type Store struct {
	db    *sql.DB
	path  string
	loads singleflight.Group
}

// Open creates or opens the state database with WAL mode and a busy timeout.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// WAL allows concurrent readers while a hook process writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal mode: %w", err)
	}

	// Wait up to 5s if another hook process holds the write lock.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: busy timeout: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id                TEXT PRIMARY KEY,
			created_at        INTEGER NOT NULL,
			last_update_at    INTEGER NOT NULL,
			state             TEXT NOT NULL DEFAULT 'idle',
			detail            TEXT NOT NULL DEFAULT '',
			stopped           INTEGER NOT NULL DEFAULT 0,
			stopped_at        INTEGER NOT NULL DEFAULT 0,
			cwd               TEXT NOT NULL DEFAULT '',
			parent_session_id TEXT NOT NULL DEFAULT '',
			label             TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("store: create sessions: %w", err)
	}

	// Single-row slot table. The shared display slot is claimed with a
	// compare-and-set UPDATE on owner id + freshness rather than timestamp
	// comparisons scattered across call sites.
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS slot (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			owner_id   TEXT NOT NULL DEFAULT '',
			claimed_at INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("store: create slot: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO slot (id, owner_id, claimed_at) VALUES (1, '', 0)`); err != nil {
		return fmt.Errorf("store: seed slot: %w", err)
	}

	// Counters live in a single JSON blob row; the shape evolves with the
	// streak package without schema churn.
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS counters (
			id   INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL DEFAULT '{}'
		)
	`); err != nil {
		return fmt.Errorf("store: create counters: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("store: set schema version: %w", err)
	}

	return tx.Commit()
}

// --- Session CRUD ---

// SaveSessions replaces the whole session set in one transaction, removing
// rows absent from the list so evicted sessions do not resurrect on reload.
func (s *Store) SaveSessions(sessions []*registry.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM sessions"); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sessions (
			id, created_at, last_update_at, state, detail,
			stopped, stopped_at, cwd, parent_session_id, label
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sess := range sessions {
		if _, err := stmt.Exec(
			sess.ID, sess.CreatedAt.Unix(), sess.LastUpdateAt.Unix(),
			string(sess.State), sess.Detail,
			boolToInt(sess.Stopped), timeToUnix(sess.StoppedAt),
			sess.Cwd, sess.ParentSessionID, sess.Label,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSessions returns all persisted sessions ordered by creation time.
func (s *Store) LoadSessions() ([]*registry.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, last_update_at, state, detail,
			stopped, stopped_at, cwd, parent_session_id, label
		FROM sessions ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*registry.Session
	for rows.Next() {
		sess := &registry.Session{}
		var createdUnix, updateUnix, stoppedUnix int64
		var stopped int
		var state string
		if err := rows.Scan(
			&sess.ID, &createdUnix, &updateUnix, &state, &sess.Detail,
			&stopped, &stoppedUnix, &sess.Cwd, &sess.ParentSessionID, &sess.Label,
		); err != nil {
			return nil, err
		}
		sess.CreatedAt = time.Unix(createdUnix, 0)
		sess.LastUpdateAt = time.Unix(updateUnix, 0)
		sess.State = activity.State(state)
		sess.Stopped = stopped != 0
		if stoppedUnix > 0 {
			sess.StoppedAt = time.Unix(stoppedUnix, 0)
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

// DeleteSession removes a session row by ID.
func (s *Store) DeleteSession(id string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	return err
}

// --- Shared slot ---

// ClaimSlot attempts to take the shared display slot for sessionID. The
// single UPDATE succeeds when the slot is vacant, already ours, owned by a
// session that no longer exists or stopped, or owned by a session whose last
// update is older than the freshness window.
func (s *Store) ClaimSlot(sessionID string, now time.Time, freshness time.Duration) (bool, error) {
	cutoff := now.Add(-freshness).Unix()
	res, err := s.db.Exec(`
		UPDATE slot SET owner_id = ?1, claimed_at = ?2
		WHERE id = 1 AND (
			owner_id = ''
			OR owner_id = ?1
			OR NOT EXISTS (SELECT 1 FROM sessions WHERE id = slot.owner_id)
			OR EXISTS (
				SELECT 1 FROM sessions o
				WHERE o.id = slot.owner_id
				  AND (o.stopped = 1 OR o.last_update_at < ?3)
			)
		)
	`, sessionID, now.Unix(), cutoff)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SlotOwner returns the current slot owner's session ID, or "".
func (s *Store) SlotOwner() (string, error) {
	var owner string
	err := s.db.QueryRow("SELECT owner_id FROM slot WHERE id = 1").Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return owner, err
}

// ReleaseSlot vacates the slot if sessionID currently owns it.
func (s *Store) ReleaseSlot(sessionID string) error {
	_, err := s.db.Exec("UPDATE slot SET owner_id = '', claimed_at = 0 WHERE id = 1 AND owner_id = ?", sessionID)
	return err
}

// --- Counters ---

// LoadCounters reads the streak counters. A missing row or unreadable blob
// yields zero-valued counters and ok=false so the caller can observe the
// fallback without the event failing. Concurrent loads within one process
// are collapsed via singleflight.
func (s *Store) LoadCounters() (streak.Counters, bool) {
	v, _, _ := s.loads.Do("counters", func() (any, error) {
		var data string
		if err := s.db.QueryRow("SELECT data FROM counters WHERE id = 1").Scan(&data); err != nil {
			return counterLoad{}, nil
		}
		var c streak.Counters
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return counterLoad{}, nil
		}
		return counterLoad{c: c, ok: true}, nil
	})
	load := v.(counterLoad)
	return load.c, load.ok
}

type counterLoad struct {
	c  streak.Counters
	ok bool
}

// SaveCounters writes the streak counters blob.
func (s *Store) SaveCounters(c *streak.Counters) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO counters (id, data) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, string(data))
	return err
}

// Touch records the last modification time in metadata for cheap change
// detection by polling consumers.
func (s *Store) Touch(now time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('updated_at', ?)
	`, fmt.Sprintf("%d", now.UnixNano()))
	return err
}

// LastModified returns the metadata modification timestamp, or zero.
func (s *Store) LastModified() (time.Time, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'updated_at'").Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	var nanos int64
	if _, err := fmt.Sscanf(value, "%d", &nanos); err != nil {
		return time.Time{}, nil
	}
	return time.Unix(0, nanos), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
