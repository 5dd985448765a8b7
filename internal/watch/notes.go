package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avelinecho/pixelpet/internal/config"
)

// StatusNote is the small JSON file a hook invocation drops into the events
// directory so the watch loop reacts without polling the database.
type StatusNote struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Detail    string `json:"detail"`
	Ts        int64  `json:"ts"`
}

// EventsDir returns the directory status notes are written to.
func EventsDir() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "events"), nil
}

// WriteNote writes a status note atomically (temp file then rename) so the
// watcher never observes a partial file. Filenames carry the session ID and
// a nanosecond timestamp, so concurrent hooks never clobber each other.
func WriteNote(note StatusNote) error {
	dir, err := EventsDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create events directory: %w", err)
	}

	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("encode status note: %w", err)
	}

	name := fmt.Sprintf("%s-%d.json", note.SessionID, time.Now().UnixNano())
	final := filepath.Join(dir, name)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write status note: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize status note: %w", err)
	}
	return nil
}

// CleanupStale removes note files older than maxAge. Consumed notes are
// normally deleted by the watcher; this catches files left behind when no
// watcher was running.
func CleanupStale(dir string, maxAge time.Duration, now time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
