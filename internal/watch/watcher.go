// Package watch feeds status notes from the events directory to the watch
// loop. Hook invocations drop one small JSON file per event; the watcher
// coalesces bursts with a short debounce, decodes each note, deletes the
// file, and hands the note to a callback.
package watch

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/avelinecho/pixelpet/internal/logging"
)

var log = logging.ForComponent(logging.CompWatch)

const debounceWindow = 100 * time.Millisecond

// Watcher watches the events directory and delivers decoded status notes.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	onNote  func(StatusNote)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for dir. Call Run to begin watching.
func NewWatcher(dir string, onNote func(StatusNote)) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:     dir,
		watcher: fsw,
		onNote:  onNote,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Run watches the directory until Stop is called. Must run in its own
// goroutine. Notes already present at startup are consumed first, oldest
// first, so state written while no watcher was running is not lost.
func (w *Watcher) Run() {
	if err := w.watcher.Add(w.dir); err != nil {
		log.Warn("watch_add_failed", slog.String("dir", w.dir), slog.String("error", err.Error()))
		return
	}

	w.consumeExisting()

	var debounce *time.Timer
	pending := make(map[string]bool)
	var pendingMu sync.Mutex

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// The writer renames .tmp to .json, so wait for the final name.
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			pendingMu.Lock()
			pending[event.Name] = true
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				pendingMu.Lock()
				files := make([]string, 0, len(pending))
				for f := range pending {
					files = append(files, f)
				}
				pending = make(map[string]bool)
				pendingMu.Unlock()

				sort.Strings(files)
				for _, f := range files {
					w.consume(f)
				}
			})
			pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()
}

func (w *Watcher) consumeExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	// Filenames embed a nanosecond timestamp; lexical order is arrival order
	// within a session and close enough across sessions.
	sort.Strings(names)
	for _, name := range names {
		w.consume(filepath.Join(w.dir, name))
	}
}

// consume reads, deletes, and delivers one note file. A file that vanished
// or does not parse is dropped silently; a duplicate delivery is harmless
// because notes carry absolute state.
func (w *Watcher) consume(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	os.Remove(path)

	var note StatusNote
	if err := json.Unmarshal(data, &note); err != nil {
		log.Debug("note_decode_failed", slog.String("file", filepath.Base(path)), slog.String("error", err.Error()))
		return
	}
	if note.SessionID == "" {
		return
	}

	log.Debug("note_consumed",
		slog.String("session", note.SessionID),
		slog.String("state", note.State),
	)

	if w.onNote != nil {
		w.onNote(note)
	}
}
