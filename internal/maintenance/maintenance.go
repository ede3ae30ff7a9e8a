// Package maintenance gates the service behind a marker file. While the
// marker exists every API request is refused with a maintenance response;
// dropping the file re-opens the service without a restart. The state is
// kept current by a filesystem watcher, with the event stream doing the
// work and a periodic stat covering missed events.
package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultMarkerName is the marker file name under the data directory.
const DefaultMarkerName = "maintenance.on"

// Watcher tracks the presence of the maintenance marker.
type Watcher struct {
	markerPath string
	active     atomic.Bool
	watcher    *fsnotify.Watcher
	log        *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the marker at markerPath. The initial
// state is read immediately so Active is correct before Start.
func NewWatcher(markerPath string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		markerPath: markerPath,
		watcher:    fsw,
		log:        log,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	w.refresh()
	return w, nil
}

// Active reports whether maintenance mode is on.
func (w *Watcher) Active() bool {
	return w.active.Load()
}

// Start begins watching the marker's directory. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.markerPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.log.Info("watching maintenance marker", zap.String("path", w.markerPath))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.log.Warn("close maintenance watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	// The periodic stat reconciles state after dropped or coalesced
	// events; the marker check is cheap.
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == filepath.Clean(w.markerPath) {
				w.refresh()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("maintenance watcher error", zap.Error(err))
		case <-ticker.C:
			w.refresh()
		}
	}
}

func (w *Watcher) refresh() {
	_, err := os.Stat(w.markerPath)
	active := err == nil
	if w.active.Swap(active) != active {
		w.log.Info("maintenance mode changed", zap.Bool("active", active))
	}
}
