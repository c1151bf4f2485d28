package credstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// changeChannelBuffer is the size of the change event channel.
	changeChannelBuffer = 64

	// defaultDebounce is how long to wait for more file events before
	// re-reading the store.
	defaultDebounce = 500 * time.Millisecond
)

// Change is a storage change notification: the key that changed and its new
// value, or nil when the key was removed. This is the only cross-process
// signal the agent consumes; a sibling process writing the credential file
// shows up here as one Change per affected key.
type Change struct {
	Key      string
	NewValue *string
}

// Watcher watches the credential database file and emits per-key changes.
// It diffs store snapshots rather than interpreting raw file events, so WAL
// checkpoints and atomic-rename writers all collapse into key-level changes.
type Watcher struct {
	store    Store
	dbPath   string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	last    map[string]string
	changes chan Change
	dirty   atomic.Bool

	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher for the store backed by the file at dbPath.
func NewWatcher(store Store, dbPath string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		store:    store,
		dbPath:   dbPath,
		debounce: defaultDebounce,
		watcher:  fsw,
		logger:   logger.With("component", "credwatch"),
		last:     make(map[string]string),
		changes:  make(chan Change, changeChannelBuffer),
	}, nil
}

// Changes returns the channel of storage change notifications.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start snapshots the current store contents and begins watching. The
// containing directory is watched because SQLite in WAL mode touches
// sidecar files next to the database.
func (w *Watcher) Start(ctx context.Context) error {
	snap, err := w.snapshot(ctx)
	if err != nil {
		return err
	}
	w.last = snap

	if err := w.watcher.Add(filepath.Dir(w.dbPath)); err != nil {
		return err
	}

	go w.run(ctx)

	w.logger.Info("credential watcher started", "path", w.dbPath)
	return nil
}

// Stop stops the watcher. The changes channel is closed by the run loop.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// DroppedChanges returns the number of notifications dropped due to a full
// channel.
func (w *Watcher) DroppedChanges() int64 {
	return w.droppedEvents.Load()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.changes)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	base := filepath.Base(w.dbPath)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// WAL mode writes land in <db>-wal before checkpointing.
			if strings.HasPrefix(filepath.Base(event.Name), base) {
				w.dirty.Store(true)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)

		case <-ticker.C:
			if w.dirty.Swap(false) {
				w.diff(ctx)
			}
		}
	}
}

// snapshot reads the current values of the three credential keys.
func (w *Watcher) snapshot(ctx context.Context) (map[string]string, error) {
	snap := make(map[string]string, 3)
	for _, key := range []string{KeyUser, KeyToken, KeyRefreshToken} {
		v, ok, err := w.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			snap[key] = v
		}
	}
	return snap, nil
}

// diff re-reads the store and emits one Change per key whose value differs
// from the last snapshot.
func (w *Watcher) diff(ctx context.Context) {
	current, err := w.snapshot(ctx)
	if err != nil {
		w.logger.Warn("snapshot after change failed", "error", err)
		return
	}

	for _, key := range []string{KeyUser, KeyToken, KeyRefreshToken} {
		oldV, hadOld := w.last[key]
		newV, hasNew := current[key]
		switch {
		case hasNew && (!hadOld || oldV != newV):
			v := newV
			w.send(Change{Key: key, NewValue: &v})
		case !hasNew && hadOld:
			w.send(Change{Key: key, NewValue: nil})
		}
	}
	w.last = current
}

func (w *Watcher) send(c Change) {
	select {
	case w.changes <- c:
		w.logger.Debug("credential change", "key", c.Key, "removed", c.NewValue == nil)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("change channel full, dropping notification",
			"key", c.Key, "total_dropped", dropped)
	}
}
