package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// Backend persists capability records on behalf of a CapabilityStore.
type Backend interface {
	// Load returns the persisted snapshot, ErrSnapshotMissing when nothing has
	// been written yet, or an error wrapping ErrStoreCorrupt.
	Load() (*Snapshot, error)
	// SaveAll replaces everything persisted with snap.
	SaveAll(snap *Snapshot) error
	// SaveRecord persists a single record. seq is the record's position in
	// its variant and snap is the full current state, for backends that can
	// only write whole snapshots.
	SaveRecord(variant models.Variant, name string, seq int, record any, snap *Snapshot) error
	Close() error
}

// Backend names accepted by NewBackend.
const (
	BackendJSON   = "json"
	BackendBadger = "badger"
)

// NewBackend opens the named backend at path. An empty name selects the
// JSON snapshot file.
func NewBackend(name, path string) (Backend, error) {
	switch name {
	case "", BackendJSON:
		return NewJSONBackend(path), nil
	case BackendBadger:
		return NewBadgerBackend(path)
	default:
		return nil, fmt.Errorf("unknown registry backend %q (want %s or %s)", name, BackendJSON, BackendBadger)
	}
}

// jsonBackend writes the whole registry to a single pretty-printed JSON file.
// Writers in different processes are serialized through a sibling lock file;
// the last writer's snapshot wins.
type jsonBackend struct {
	path string
}

// NewJSONBackend creates a Backend backed by the snapshot file at path.
func NewJSONBackend(path string) Backend {
	return &jsonBackend{path: path}
}

func (b *jsonBackend) Load() (*Snapshot, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSnapshotMissing
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", b.path, err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", b.path, err)
	}
	return snap, nil
}

func (b *jsonBackend) SaveAll(snap *Snapshot) error {
	snap.Metadata.Version = SnapshotVersion
	snap.Metadata.LastUpdated = time.Now().UTC()

	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("saving snapshot: creating directory: %w", err)
	}
	unlock, err := lockFile(b.path + ".lock")
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	defer func() { _ = unlock() }()

	// Write to a sibling temp file and rename so readers never observe a
	// half-written document.
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".registry-*.json")
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("saving snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("saving snapshot: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (b *jsonBackend) SaveRecord(_ models.Variant, _ string, _ int, _ any, snap *Snapshot) error {
	return b.SaveAll(snap)
}

func (b *jsonBackend) Close() error { return nil }

// Path returns the snapshot file location.
func (b *jsonBackend) Path() string { return b.path }
