package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

func TestJSONBackend_ConcurrentWritersLeaveValidSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Separate backends stand in for separate processes.
			b := NewJSONBackend(path)
			snap := &Snapshot{Nodes: []models.Node{{Name: fmt.Sprintf("N%d", i), Status: models.NodeAvailable}}}
			if err := b.SaveAll(snap); err != nil {
				t.Errorf("SaveAll: %v", err)
			}
		}(i)
	}
	wg.Wait()

	snap, err := NewJSONBackend(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Nodes) != 1 {
		t.Errorf("expected one writer's snapshot, got %d nodes", len(snap.Nodes))
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Errorf("expected lock file: %v", err)
	}
}

func TestLockFile_ReleaseAllowsRelock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	unlock, err := lockFile(path)
	if err != nil {
		t.Fatalf("lockFile: %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	unlock, err = lockFile(path)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	_ = unlock()
}
