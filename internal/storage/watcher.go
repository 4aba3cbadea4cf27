package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultWatchDebounce = 250 * time.Millisecond

// SnapshotWatcher reloads a CapabilityStore when its snapshot file is changed
// by another process. It watches the containing directory because snapshots
// are replaced by rename.
type SnapshotWatcher struct {
	store    CapabilityStore
	path     string
	logger   *zap.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.Mutex
	started bool
	reloads int
}

// NewSnapshotWatcher creates a watcher for the snapshot file at path.
func NewSnapshotWatcher(store CapabilityStore, path string, logger *zap.Logger) (*SnapshotWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating snapshot watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	return &SnapshotWatcher{
		store:    store,
		path:     filepath.Clean(path),
		logger:   logger.Named("watcher"),
		debounce: defaultWatchDebounce,
		watcher:  w,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the event loop in a goroutine until ctx is cancelled or Close is
// called.
func (sw *SnapshotWatcher) Start(ctx context.Context) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.started {
		return
	}
	sw.started = true
	go sw.run(ctx)
}

func (sw *SnapshotWatcher) run(ctx context.Context) {
	defer close(sw.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != sw.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(sw.debounce)
			} else {
				timer.Reset(sw.debounce)
			}
			fire = timer.C
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			sw.reload()
		}
	}
}

// changeReloader is implemented by stores that can skip reloading a snapshot
// they wrote themselves.
type changeReloader interface {
	reloadIfChanged() (bool, error)
}

func (sw *SnapshotWatcher) reload() {
	changed := true
	var err error
	if r, ok := sw.store.(changeReloader); ok {
		changed, err = r.reloadIfChanged()
	} else {
		err = sw.store.Load()
	}
	switch {
	case err == nil && !changed:
		sw.logger.Debug("snapshot unchanged since last write", zap.String("path", sw.path))
	case err == nil:
		sw.mu.Lock()
		sw.reloads++
		sw.mu.Unlock()
		sw.logger.Info("registry reloaded", zap.String("path", sw.path), zap.Int("capabilities", sw.store.Count()))
	case errors.Is(err, ErrSnapshotMissing):
		sw.logger.Debug("snapshot removed, keeping in-memory registry", zap.String("path", sw.path))
	default:
		sw.logger.Warn("snapshot reload failed, keeping in-memory registry", zap.String("path", sw.path), zap.Error(err))
	}
}

// Reloads reports how many successful reloads have happened.
func (sw *SnapshotWatcher) Reloads() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.reloads
}

// Close stops the watcher and waits for the event loop to exit.
func (sw *SnapshotWatcher) Close() error {
	err := sw.watcher.Close()
	sw.mu.Lock()
	started := sw.started
	sw.mu.Unlock()
	if started {
		<-sw.done
	}
	return err
}
