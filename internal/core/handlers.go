package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// WorkflowHandler runs a workflow. The default handler reports the workflow
// as ready without executing anything.
type WorkflowHandler func(ctx context.Context, wf models.Workflow, params map[string]any) (WorkflowOutput, error)

// ToolHandler runs a tool. The default handler reports success with the
// tool's metadata.
type ToolHandler func(ctx context.Context, tool models.Tool, input map[string]any) (map[string]any, error)

// WorkflowOutput is what a WorkflowHandler reports back.
type WorkflowOutput struct {
	Steps  []string
	Output string
}

// HandlerError wraps a failure raised by a workflow or tool handler, including
// a recovered panic.
type HandlerError struct {
	Kind  string // "workflow" or "tool"
	Name  string
	Err   error
	Panic any
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s handler %q panicked: %v", e.Kind, e.Name, e.Panic)
	}
	return fmt.Sprintf("%s handler %q: %v", e.Kind, e.Name, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// HandlerRegistry holds per-name handlers with a fallback default for each
// kind. It is safe for concurrent use.
type HandlerRegistry struct {
	mu              sync.RWMutex
	workflows       map[string]WorkflowHandler
	tools           map[string]ToolHandler
	defaultWorkflow WorkflowHandler
	defaultTool     ToolHandler
}

// NewHandlerRegistry returns a registry using the stub default handlers.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		workflows:       make(map[string]WorkflowHandler),
		tools:           make(map[string]ToolHandler),
		defaultWorkflow: stubWorkflowHandler,
		defaultTool:     stubToolHandler,
	}
}

// RegisterWorkflow sets the handler for the named workflow.
func (r *HandlerRegistry) RegisterWorkflow(name string, h WorkflowHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[name] = h
}

// RegisterTool sets the handler for the named tool.
func (r *HandlerRegistry) RegisterTool(name string, h ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = h
}

// SetDefaultTool replaces the fallback tool handler.
func (r *HandlerRegistry) SetDefaultTool(h ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultTool = h
}

// SetDefaultWorkflow replaces the fallback workflow handler.
func (r *HandlerRegistry) SetDefaultWorkflow(h WorkflowHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultWorkflow = h
}

func (r *HandlerRegistry) workflowHandler(name string) WorkflowHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.workflows[name]; ok {
		return h
	}
	return r.defaultWorkflow
}

func (r *HandlerRegistry) toolHandler(name string) ToolHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.tools[name]; ok {
		return h
	}
	return r.defaultTool
}

// runWorkflow calls the handler for wf, converting errors and panics into a
// *HandlerError.
func (r *HandlerRegistry) runWorkflow(ctx context.Context, wf models.Workflow, params map[string]any) (out WorkflowOutput, err error) {
	h := r.workflowHandler(wf.Name)
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{Kind: "workflow", Name: wf.Name, Panic: p}
		}
	}()
	out, err = h(ctx, wf, params)
	if err != nil {
		return out, &HandlerError{Kind: "workflow", Name: wf.Name, Err: err}
	}
	return out, nil
}

func (r *HandlerRegistry) runTool(ctx context.Context, tool models.Tool, input map[string]any) (out map[string]any, err error) {
	h := r.toolHandler(tool.Name)
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{Kind: "tool", Name: tool.Name, Panic: p}
		}
	}()
	out, err = h(ctx, tool, input)
	if err != nil {
		return out, &HandlerError{Kind: "tool", Name: tool.Name, Err: err}
	}
	return out, nil
}

func stubWorkflowHandler(_ context.Context, wf models.Workflow, _ map[string]any) (WorkflowOutput, error) {
	return WorkflowOutput{
		Steps:  []string{},
		Output: fmt.Sprintf("Workflow '%s' ready for execution", wf.Name),
	}, nil
}

func stubToolHandler(_ context.Context, tool models.Tool, _ map[string]any) (map[string]any, error) {
	return map[string]any{
		"tool":     tool.Name,
		"category": tool.Category,
	}, nil
}
