package storage

import (
	"errors"
	"testing"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

func openBadger(t *testing.T, dir string) Backend {
	t.Helper()
	b, err := NewBadgerBackend(dir)
	if err != nil {
		t.Fatalf("NewBadgerBackend: %v", err)
	}
	return b
}

func TestBadgerBackend_EmptyIsMissing(t *testing.T) {
	b := openBadger(t, t.TempDir())
	defer b.Close()

	if _, err := b.Load(); !errors.Is(err, ErrSnapshotMissing) {
		t.Fatalf("Load() error = %v, want ErrSnapshotMissing", err)
	}
}

func TestBadgerBackend_PerRecordUpdateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s := NewCapabilityStore(openBadger(t, dir))
	seedStore(t, s)

	if err := s.UpdateServiceStatus("redis", models.ServiceHealthy); err != nil {
		t.Fatalf("UpdateServiceStatus: %v", err)
	}
	if err := s.PutTool(models.Tool{Name: "zz_last", Category: "general"}); err != nil {
		t.Fatalf("PutTool: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := NewCapabilityStore(openBadger(t, dir))
	defer reopened.Close()
	if err := reopened.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	svc, ok := reopened.Service("redis")
	if !ok || svc.Status != models.ServiceHealthy {
		t.Errorf("redis = %+v, want healthy", svc)
	}
	nodes := reopened.Nodes()
	if len(nodes) != 2 || nodes[0].Name != "LENS" || nodes[1].Name != "BRIDGE" {
		t.Errorf("node order = %+v", nodes)
	}
	tools := reopened.Tools()
	if len(tools) != 2 || tools[1].Name != "zz_last" {
		t.Errorf("tools = %+v, want appended tool last", tools)
	}
}

func TestNewBackend_UnknownName(t *testing.T) {
	if _, err := NewBackend("etcd", t.TempDir()); err == nil {
		t.Error("expected error for unknown backend")
	}
}
