package mcp

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/internal/observability"
	"github.com/valter-silva-au/heady-conductor/internal/storage"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// --- Fake implementations ---

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
}

func (f *fakeMetricsCalculator) Calculate(_ time.Time) (*observability.Metrics, error) {
	return f.metrics, nil
}

type fakeAlertEngine struct {
	alerts []observability.Alert
}

func (f *fakeAlertEngine) Evaluate() ([]observability.Alert, error) {
	return f.alerts, nil
}

// --- Test helpers ---

func newTestServer(t *testing.T, mc observability.MetricsCalculator, ae observability.AlertEngine) (*Server, storage.CapabilityStore) {
	t.Helper()
	store := storage.NewCapabilityStore(storage.NewJSONBackend(filepath.Join(t.TempDir(), "registry.json")))
	snap := &storage.Snapshot{
		Nodes: []models.Node{
			{Name: "LENS", Role: "monitor", PrimaryTool: "heady_monitor", Triggers: []string{"monitor"}, Status: models.NodeAvailable},
		},
		Workflows: []models.Workflow{
			{Name: "deploy-system", Description: "Deploy everything", SlashCommand: "/deploy-system", Status: models.NodeAvailable},
		},
		Skills:   storage.BuiltinSkills(),
		Services: storage.BuiltinServices(),
		Tools: []models.Tool{
			{Name: "heady_monitor", Category: "ops", Status: models.NodeAvailable},
		},
	}
	if err := store.Replace(snap); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	planner := core.NewPlanner(store)
	srv := NewServer(Deps{
		Store:       store,
		Planner:     planner,
		Dispatcher:  core.NewDispatcher(store, planner),
		MetricsCalc: mc,
		AlertEngine: ae,
	}, "test")
	return srv, store
}

// callTool connects a client to the server over in-memory transports and
// calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

// decode reads the structured content of a result, falling back to the text
// content.
func decode(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	var data []byte
	if result.StructuredContent != nil {
		var err error
		data, err = json.Marshal(result.StructuredContent)
		if err != nil {
			t.Fatalf("marshalling structured content: %v", err)
		}
	} else {
		data = []byte(extractText(result))
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decoding tool output: %v (raw: %s)", err, data)
	}
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Planner and dispatcher tools ---

func TestAnalyzeRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	result := callTool(t, srv, "analyze_request", map[string]any{"request": "please /deploy-system and monitor things"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var plan models.ExecutionPlan
	decode(t, result, &plan)
	if len(plan.Workflows) != 1 || plan.Workflows[0].Name != "deploy-system" {
		t.Errorf("expected deploy-system workflow, got %+v", plan.Workflows)
	}
	if len(plan.Nodes) != 1 || plan.Nodes[0].Name != "LENS" {
		t.Errorf("expected LENS node, got %+v", plan.Nodes)
	}
	if plan.Confidence != core.ConfidenceWorkflow {
		t.Errorf("expected confidence %v, got %v", core.ConfidenceWorkflow, plan.Confidence)
	}
}

func TestAnalyzeRequestEmpty(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	result := callTool(t, srv, "analyze_request", map[string]any{"request": "  "})
	if !result.IsError {
		t.Fatal("expected error result for empty request")
	}
}

func TestOrchestrate(t *testing.T) {
	srv, store := newTestServer(t, nil, nil)

	result := callTool(t, srv, "orchestrate", map[string]any{"request": "monitor the system"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out models.OrchestrationResult
	decode(t, result, &out)
	if !out.Success {
		t.Error("expected envelope success")
	}
	if len(out.Results.Nodes) != 1 || !out.Results.Nodes[0].Success {
		t.Errorf("expected one successful node result, got %+v", out.Results.Nodes)
	}
	n, _ := store.Node("LENS")
	if n.Status != models.NodeAvailable {
		t.Errorf("expected LENS to be released, got %s", n.Status)
	}
}

// --- Registry tools ---

func TestQueryCapabilities(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	result := callTool(t, srv, "query_capabilities", map[string]any{"query": "heady", "category": "services"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out models.CapabilityQuery
	decode(t, result, &out)
	if out.Category != models.VariantServices {
		t.Errorf("expected category services, got %s", out.Category)
	}
	if out.TotalResults != len(out.Results.Services) || out.TotalResults == 0 {
		t.Errorf("expected service matches, got %+v", out)
	}
	if len(out.Results.Nodes) != 0 {
		t.Errorf("expected no nodes for services category, got %d", len(out.Results.Nodes))
	}
}

func TestQueryCapabilitiesInvalidCategory(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	result := callTool(t, srv, "query_capabilities", map[string]any{"query": "x", "category": "widgets"})
	if !result.IsError {
		t.Fatal("expected error result for invalid category")
	}
	if !strings.Contains(extractText(result), "widgets") {
		t.Errorf("expected error to name the category, got %q", extractText(result))
	}
}

func TestCheckServiceHealth(t *testing.T) {
	srv, store := newTestServer(t, nil, nil)

	result := callTool(t, srv, "check_service_health", map[string]any{"service": "heady-manager"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var report models.HealthReport
	decode(t, result, &report)
	if len(report.Services) != 1 || report.Services[0].Status != models.ServiceHealthy {
		t.Errorf("expected heady-manager healthy, got %+v", report.Services)
	}
	svc, _ := store.Service("heady-manager")
	if svc.Status != models.ServiceHealthy {
		t.Errorf("expected persisted status healthy, got %s", svc.Status)
	}
}

func TestCheckServiceHealthNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	result := callTool(t, srv, "check_service_health", map[string]any{"service": "nope"})
	if !result.IsError {
		t.Fatal("expected error result for unknown service")
	}
}

func TestGetSummary(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	result := callTool(t, srv, "get_summary", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out models.RegistrySummary
	decode(t, result, &out)
	if out.Nodes != 1 || out.Workflows != 1 || out.Tools != 1 {
		t.Errorf("unexpected counts %+v", out)
	}
	if out.TotalCapabilities != out.Nodes+out.Workflows+out.Skills+out.Services+out.Tools {
		t.Errorf("total %d does not add up", out.TotalCapabilities)
	}
}

// --- Observability tools ---

func TestGetMetrics(t *testing.T) {
	oldest := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	mc := &fakeMetricsCalculator{metrics: &observability.Metrics{
		Orchestrations:   3,
		NodesInvoked:     5,
		TasksCompleted:   8,
		TasksFailed:      2,
		TaskErrorRate:    0.2,
		ServicesByStatus: map[string]int{"healthy": 4},
		TasksByType:      map[string]int{"health_check": 10},
		EventCount:       30,
		OldestEvent:      &oldest,
	}}
	srv, _ := newTestServer(t, mc, nil)

	result := callTool(t, srv, "get_metrics", map[string]any{"since": "30d"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out metricsOutput
	decode(t, result, &out)
	if out.Orchestrations != 3 || out.NodesInvoked != 5 || out.TasksFailed != 2 {
		t.Errorf("unexpected metrics %+v", out)
	}
	if out.OldestEvent != "2025-01-10T00:00:00Z" {
		t.Errorf("expected oldest event timestamp, got %q", out.OldestEvent)
	}
}

func TestGetMetricsDisabled(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	result := callTool(t, srv, "get_metrics", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error result when metrics are disabled")
	}
}

func TestGetAlerts(t *testing.T) {
	ae := &fakeAlertEngine{alerts: []observability.Alert{{
		ID:          "services-unhealthy",
		Condition:   "services_unhealthy",
		Severity:    observability.SeverityHigh,
		Message:     "1 service(s) unhealthy: [redis]",
		TriggeredAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}}}
	srv, _ := newTestServer(t, nil, ae)

	result := callTool(t, srv, "get_alerts", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}

	var out getAlertsOutput
	decode(t, result, &out)
	if out.Count != 1 || out.Alerts[0].Severity != "high" {
		t.Errorf("unexpected alerts %+v", out)
	}
}

// --- ParseSince ---

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"7d", now.AddDate(0, 0, -7), false},
		{"24h", now.Add(-24 * time.Hour), false},
		{"5m", time.Time{}, true},
		{"d", time.Time{}, true},
		{"xd", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSince(tt.in, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSince(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseSince(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
