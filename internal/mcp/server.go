// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the capability registry, planner and dispatcher as MCP tools for AI coding
// assistants.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/internal/observability"
	"github.com/valter-silva-au/heady-conductor/internal/storage"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// Server wraps the conductor services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	store       storage.CapabilityStore
	planner     core.Planner
	dispatcher  core.Dispatcher
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// Deps are the services the MCP tools call. MetricsCalc and AlertEngine may
// be nil if the event log is unavailable.
type Deps struct {
	Store       storage.CapabilityStore
	Planner     core.Planner
	Dispatcher  core.Dispatcher
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
}

// NewServer creates a new MCP server over deps.
func NewServer(deps Deps, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		store:       deps.Store,
		planner:     deps.Planner,
		dispatcher:  deps.Dispatcher,
		metricsCalc: deps.MetricsCalc,
		alertEngine: deps.AlertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "heady", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type requestInput struct {
	Request string `json:"request" jsonschema:"free-text request, e.g. 'deploy the frontend and check api health'"`
}

type queryInput struct {
	Query    string `json:"query" jsonschema:"substring to match against names, roles, triggers and descriptions"`
	Category string `json:"category,omitempty" jsonschema:"restrict to one of nodes, workflows, skills, services, tools"`
}

type healthInput struct {
	Service string `json:"service,omitempty" jsonschema:"service name; all services when empty"`
}

type emptyInput struct{}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	Orchestrations    int            `json:"orchestrations"`
	WorkflowsExecuted int            `json:"workflows_executed"`
	NodesInvoked      int            `json:"nodes_invoked"`
	ToolsExecuted     int            `json:"tools_executed"`
	HealthChecks      int            `json:"health_checks"`
	ServicesByStatus  map[string]int `json:"services_by_status"`
	TasksCompleted    int            `json:"tasks_completed"`
	TasksFailed       int            `json:"tasks_failed"`
	TasksByType       map[string]int `json:"tasks_by_type"`
	TaskErrorRate     float64        `json:"task_error_rate"`
	EventCount        int            `json:"event_count"`
	OldestEvent       string         `json:"oldest_event,omitempty"`
	NewestEvent       string         `json:"newest_event,omitempty"`
}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "analyze_request",
		Description: "Plan a free-text request: the workflows, nodes, tools and services it matches, with a confidence score. Nothing is executed.",
	}, s.handleAnalyze)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "orchestrate",
		Description: "Plan and execute a request: workflows, then nodes, then tools. Per-item failures are reported in the results.",
	}, s.handleOrchestrate)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "query_capabilities",
		Description: "Search the capability registry by substring, optionally within one category.",
	}, s.handleQuery)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "check_service_health",
		Description: "Check the health of one service or all services and persist the computed status.",
	}, s.handleHealth)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_summary",
		Description: "Summarize the registry: counts per category, names and tool categories.",
	}, s.handleSummary)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated metrics from the event log: orchestrations, node invocations, health checks and worker task outcomes.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (unhealthy services, nodes stuck active, task error rate).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleAnalyze(_ context.Context, _ *gomcp.CallToolRequest, input requestInput) (*gomcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Request) == "" {
		return errorResult("request is required"), nil, nil
	}
	return nil, s.planner.Analyze(input.Request), nil
}

func (s *Server) handleOrchestrate(ctx context.Context, _ *gomcp.CallToolRequest, input requestInput) (*gomcp.CallToolResult, any, error) {
	if strings.TrimSpace(input.Request) == "" {
		return errorResult("request is required"), nil, nil
	}
	return nil, s.dispatcher.Orchestrate(ctx, input.Request), nil
}

func (s *Server) handleQuery(_ context.Context, _ *gomcp.CallToolRequest, input queryInput) (*gomcp.CallToolResult, any, error) {
	variant := models.Variant(input.Category)
	if variant != "" && !variant.Valid() {
		return errorResult(fmt.Sprintf("invalid category %q: must be one of nodes, workflows, skills, services, tools", input.Category)), nil, nil
	}
	res := s.store.Query(input.Query, variant)
	return nil, models.CapabilityQuery{
		Query:        input.Query,
		Category:     variant,
		TotalResults: res.Total(),
		Results:      res,
	}, nil
}

func (s *Server) handleHealth(ctx context.Context, _ *gomcp.CallToolRequest, input healthInput) (*gomcp.CallToolResult, any, error) {
	report := s.dispatcher.CheckServiceHealth(ctx, input.Service)
	if !report.Success {
		return errorResult(report.Error), nil, nil
	}
	return nil, report, nil
}

func (s *Server) handleSummary(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, models.RegistrySummary, error) {
	return nil, s.store.Summary(), nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := ParseSince(sinceStr, time.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		Orchestrations:    metrics.Orchestrations,
		WorkflowsExecuted: metrics.WorkflowsExecuted,
		NodesInvoked:      metrics.NodesInvoked,
		ToolsExecuted:     metrics.ToolsExecuted,
		HealthChecks:      metrics.HealthChecks,
		ServicesByStatus:  metrics.ServicesByStatus,
		TasksCompleted:    metrics.TasksCompleted,
		TasksFailed:       metrics.TasksFailed,
		TasksByType:       metrics.TasksByType,
		TaskErrorRate:     metrics.TaskErrorRate,
		EventCount:        metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ emptyInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available"), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{Alerts: []alertOutput{}}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		ServicesByStatus: make(map[string]int),
		TasksByType:      make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or
// "24h" into the corresponding time before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	now = now.UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
