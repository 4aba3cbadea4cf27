package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

func TestSnapshotWatcher_ReloadsOnExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	s := NewCapabilityStore(NewJSONBackend(path))
	seedStore(t, s)

	w, err := NewSnapshotWatcher(s, path, nil)
	if err != nil {
		t.Fatalf("NewSnapshotWatcher: %v", err)
	}
	w.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	// Another process adds a node by rewriting the snapshot.
	other := NewCapabilityStore(NewJSONBackend(path))
	if err := other.Load(); err != nil {
		t.Fatal(err)
	}
	if err := other.PutNode(models.Node{Name: "ATLAS", Role: "librarian"}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.Node("ATLAS"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("store did not pick up external change")
}

func TestSnapshotWatcher_SkipsOwnWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	s := NewCapabilityStore(NewJSONBackend(path))
	seedStore(t, s)

	w, err := NewSnapshotWatcher(s, path, nil)
	if err != nil {
		t.Fatalf("NewSnapshotWatcher: %v", err)
	}
	w.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	for i := 0; i < 3; i++ {
		if err := s.UpdateNodeStatus("LENS", models.NodeActive, fmt.Sprintf("2026-03-02T09:0%d:00Z", i)); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(200 * time.Millisecond)
	if got := w.Reloads(); got != 0 {
		t.Errorf("expected no reloads from own writes, got %d", got)
	}
	if n, _ := s.Node("LENS"); n.LastInvoked != "2026-03-02T09:02:00Z" {
		t.Errorf("expected latest in-memory update kept, got %q", n.LastInvoked)
	}

	other := NewCapabilityStore(NewJSONBackend(path))
	if err := other.Load(); err != nil {
		t.Fatal(err)
	}
	if err := other.PutNode(models.Node{Name: "ATLAS", Role: "librarian"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && w.Reloads() == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	if _, ok := s.Node("ATLAS"); !ok {
		t.Fatal("store did not pick up external change")
	}
}

func TestSnapshotWatcher_CloseWithoutStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	w, err := NewSnapshotWatcher(NewCapabilityStore(NewJSONBackend(path)), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
