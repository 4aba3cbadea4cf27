package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valter-silva-au/heady-conductor/internal/storage"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// ErrNetworkUnavailable marks failures to reach a remote endpoint: the
// coordinator or a service health URL.
var ErrNetworkUnavailable = errors.New("network unavailable")

// Execution log entry types.
const (
	EntryWorkflow = "workflow"
	EntryNode     = "node"
	EntryTool     = "tool"
	EntryHealth   = "health"
)

// Dispatcher executes plans and individual capabilities against the registry.
// Every operation returns a structured result; a missing capability or a
// failing handler is reported inside the result, never as a Go error.
type Dispatcher interface {
	ExecuteWorkflow(ctx context.Context, name string, params map[string]any) models.WorkflowResult
	InvokeNode(ctx context.Context, name string, input map[string]any) models.NodeResult
	ExecuteTool(ctx context.Context, name string, input map[string]any) models.ToolResult
	// CheckServiceHealth checks one service, or all when name is empty.
	CheckServiceHealth(ctx context.Context, name string) models.HealthReport
	// Orchestrate analyzes request and runs the plan: workflows, then nodes,
	// then tools. Per-item failures do not stop the run and the envelope
	// always reports success.
	Orchestrate(ctx context.Context, request string) *models.OrchestrationResult
	ExecutionLog() []models.ExecutionLogEntry
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcher)

// WithHandlers sets the handler registry.
func WithHandlers(h *HandlerRegistry) DispatcherOption {
	return func(d *dispatcher) { d.handlers = h }
}

// WithHealthChecker sets the service health checker.
func WithHealthChecker(h HealthChecker) DispatcherOption {
	return func(d *dispatcher) { d.health = h }
}

// WithEventLogger records dispatcher events to the given event log.
func WithEventLogger(l EventLogger) DispatcherOption {
	return func(d *dispatcher) { d.events = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *dispatcher) { d.logger = l }
}

// WithExecutionLogSize sets the execution log capacity.
func WithExecutionLogSize(n int) DispatcherOption {
	return func(d *dispatcher) { d.log = NewExecutionLog(n) }
}

type dispatcher struct {
	store    storage.CapabilityStore
	planner  Planner
	handlers *HandlerRegistry
	health   HealthChecker
	events   EventLogger
	logger   *zap.Logger
	log      *ExecutionLog
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher over store. Without options it uses the
// stub handlers, the static health rule and no event log.
func NewDispatcher(store storage.CapabilityStore, planner Planner, opts ...DispatcherOption) Dispatcher {
	d := &dispatcher{
		store:    store,
		planner:  planner,
		handlers: NewHandlerRegistry(),
		health:   StaticHealthChecker{},
		logger:   zap.NewNop(),
		log:      NewExecutionLog(DefaultExecutionLogSize),
		now:      time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.Named("dispatcher")
	return d
}

func notFound(kind, name string) string {
	return fmt.Errorf("%s %q: %w", kind, name, storage.ErrNotFound).Error()
}

func (d *dispatcher) ExecuteWorkflow(ctx context.Context, name string, params map[string]any) models.WorkflowResult {
	res := models.WorkflowResult{Workflow: name, StartedAt: d.now().UTC()}
	defer func() { d.record(EntryWorkflow, name, res.Success, res) }()

	wf, ok := d.store.Workflow(name)
	if !ok {
		res.Error = notFound("workflow", name)
		return res
	}

	out, err := d.handlers.runWorkflow(ctx, wf, params)
	if err != nil {
		d.logger.Warn("workflow handler failed", zap.String("workflow", name), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.StepsExecuted = out.Steps
	res.Output = out.Output
	d.emit(models.EventWorkflowExecuted, map[string]any{"workflow": name})
	return res
}

func (d *dispatcher) InvokeNode(ctx context.Context, name string, input map[string]any) models.NodeResult {
	res := models.NodeResult{Node: name, InvokedAt: d.now().UTC()}
	defer func() { d.record(EntryNode, name, res.Success, res) }()

	node, ok := d.store.Node(name)
	if !ok {
		res.Error = notFound("node", name)
		return res
	}
	res.Role = node.Role
	res.ToolUsed = node.PrimaryTool

	if err := d.store.UpdateNodeStatus(name, models.NodeActive, res.InvokedAt.Format(time.RFC3339)); err != nil {
		d.logger.Warn("marking node active", zap.String("node", name), zap.Error(err))
	}
	defer func() {
		if err := d.store.UpdateNodeStatus(name, models.NodeAvailable, ""); err != nil {
			d.logger.Warn("releasing node", zap.String("node", name), zap.Error(err))
		}
	}()

	tr := d.executeTool(ctx, node.PrimaryTool, input)
	res.ToolResult = &tr
	if !tr.Success {
		res.Error = "primary tool: " + tr.Error
		return res
	}
	res.Success = true
	d.emit(models.EventNodeInvoked, map[string]any{"node": name, "tool": node.PrimaryTool})
	return res
}

func (d *dispatcher) ExecuteTool(ctx context.Context, name string, input map[string]any) models.ToolResult {
	res := d.executeTool(ctx, name, input)
	d.record(EntryTool, name, res.Success, res)
	return res
}

// executeTool runs a tool without recording it, so that a node invocation
// produces a single log entry.
func (d *dispatcher) executeTool(ctx context.Context, name string, input map[string]any) models.ToolResult {
	res := models.ToolResult{Tool: name, ExecutedAt: d.now().UTC()}
	tool, ok := d.store.Tool(name)
	if !ok {
		res.Error = notFound("tool", name)
		return res
	}
	res.FilePath = tool.FilePath
	res.Category = tool.Category

	out, err := d.handlers.runTool(ctx, tool, input)
	if err != nil {
		d.logger.Warn("tool handler failed", zap.String("tool", name), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Output = out
	d.emit(models.EventToolExecuted, map[string]any{"tool": name, "category": tool.Category})
	return res
}

func (d *dispatcher) CheckServiceHealth(ctx context.Context, name string) models.HealthReport {
	report := models.HealthReport{Timestamp: d.now().UTC(), Services: []models.HealthResult{}}
	defer func() { d.record(EntryHealth, name, report.Success, report) }()

	var targets []models.Service
	if name != "" {
		svc, ok := d.store.Service(name)
		if !ok {
			report.Error = notFound("service", name)
			return report
		}
		targets = []models.Service{svc}
	} else {
		targets = d.store.Services()
	}

	for _, svc := range targets {
		status, detail := d.health.Check(ctx, svc)
		if err := d.store.UpdateServiceStatus(svc.Name, status); err != nil {
			d.logger.Warn("persisting service status", zap.String("service", svc.Name), zap.Error(err))
		}
		report.Services = append(report.Services, models.HealthResult{
			Name:     svc.Name,
			Type:     svc.Type,
			Status:   status,
			Endpoint: svc.Endpoint,
			Detail:   detail,
		})
		d.emit(models.EventServiceHealthChecked, map[string]any{"service": svc.Name, "status": status})
	}
	report.Success = true
	return report
}

func (d *dispatcher) Orchestrate(ctx context.Context, request string) *models.OrchestrationResult {
	plan := d.planner.Analyze(request)
	out := &models.OrchestrationResult{
		ID:      uuid.NewString(),
		Request: request,
		Plan:    plan,
		Results: models.OrchestrationResults{
			Workflows: []models.WorkflowResult{},
			Nodes:     []models.NodeResult{},
			Tools:     []models.ToolResult{},
		},
		Success:   true,
		Timestamp: d.now().UTC(),
	}

	for _, w := range plan.Workflows {
		out.Results.Workflows = append(out.Results.Workflows, d.ExecuteWorkflow(ctx, w.Name, nil))
	}
	for _, n := range plan.Nodes {
		out.Results.Nodes = append(out.Results.Nodes, d.InvokeNode(ctx, n.Name, map[string]any{"request": request}))
	}
	for _, t := range plan.Tools {
		out.Results.Tools = append(out.Results.Tools, d.ExecuteTool(ctx, t.Name, map[string]any{"request": request}))
	}

	failed := out.Results.Failed()
	d.logger.Info("orchestration complete",
		zap.String("id", out.ID),
		zap.Float64("confidence", plan.Confidence),
		zap.Int("workflows", len(plan.Workflows)),
		zap.Int("nodes", len(plan.Nodes)),
		zap.Int("tools", len(plan.Tools)),
		zap.Int("failed", failed),
	)
	d.emit(models.EventOrchestrationCompleted, map[string]any{
		"id":         out.ID,
		"confidence": plan.Confidence,
		"workflows":  len(plan.Workflows),
		"nodes":      len(plan.Nodes),
		"tools":      len(plan.Tools),
		"failed":     failed,
	})
	return out
}

func (d *dispatcher) ExecutionLog() []models.ExecutionLogEntry {
	return d.log.Entries()
}

func (d *dispatcher) record(kind, name string, success bool, result any) {
	d.log.Append(models.ExecutionLogEntry{
		Type:      kind,
		Name:      name,
		Timestamp: d.now().UTC(),
		Success:   success,
		Result:    result,
	})
}

// emit writes an event when an event logger is configured. Event log failures
// are non-fatal.
func (d *dispatcher) emit(eventType string, data map[string]any) {
	if d.events == nil {
		return
	}
	if err := d.events.LogEvent(eventType, data); err != nil {
		d.logger.Debug("event log write failed", zap.String("type", eventType), zap.Error(err))
	}
}
