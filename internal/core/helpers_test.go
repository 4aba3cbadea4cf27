package core

import (
	"path/filepath"
	"testing"

	"github.com/valter-silva-au/heady-conductor/internal/storage"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// newStoreWith returns a JSON-backed store in a temp dir holding snap.
func newStoreWith(t testing.TB, snap *storage.Snapshot) storage.CapabilityStore {
	t.Helper()
	s := storage.NewCapabilityStore(storage.NewJSONBackend(filepath.Join(t.TempDir(), "registry.json")))
	if err := s.Replace(snap); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	return s
}

// sampleSnapshot is a small registry shaped like a discovered one.
func sampleSnapshot() *storage.Snapshot {
	return &storage.Snapshot{
		Nodes: []models.Node{
			{Name: "LENS", Role: "monitor", PrimaryTool: "heady_monitor", Triggers: []string{"monitor", "health"}, Status: models.NodeAvailable},
			{Name: "MUSE", Role: "writer", PrimaryTool: "content_gen", Triggers: []string{"write", "draft"}, Status: models.NodeAvailable},
			{Name: "GHOST", Role: "phantom", PrimaryTool: "missing_tool", Triggers: []string{"haunt"}, Status: models.NodeAvailable},
		},
		Workflows: []models.Workflow{
			{Name: "deploy-system", Description: "Deploy", SlashCommand: "/deploy", Status: models.NodeAvailable},
			{Name: "audit", Description: "Audit", SlashCommand: "/audit", Status: models.NodeAvailable},
		},
		Skills: storage.BuiltinSkills(),
		Services: []models.Service{
			{Name: "heady-manager", Type: "api", Endpoint: "http://localhost:3300", HealthCheckURL: "http://localhost:3300/api/health", Status: models.ServiceUnknown},
			{Name: "heady-frontend", Type: "web", Endpoint: "http://localhost:3000", Port: 3000, Status: models.ServiceUnknown},
			{Name: "postgres", Type: "database", Port: 5432, Status: models.ServiceUnknown},
			{Name: "redis", Type: "cache", Port: 6379, Status: models.ServiceUnknown},
		},
		Tools: []models.Tool{
			{Name: "heady_monitor", Category: "ops", Status: models.NodeAvailable},
			{Name: "content_gen", Category: "content", Status: models.NodeAvailable},
		},
	}
}
