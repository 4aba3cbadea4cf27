package models

import "time"

// WorkflowRef is a workflow selected by the planner.
type WorkflowRef struct {
	Name         string `json:"name"`
	SlashCommand string `json:"slash_command"`
	FilePath     string `json:"file_path,omitempty"`
	TurboEnabled bool   `json:"turbo_enabled"`
}

// NodeRef is a node selected by the planner together with the trigger keyword
// that selected it.
type NodeRef struct {
	Name           string `json:"name"`
	Role           string `json:"role"`
	PrimaryTool    string `json:"primary_tool"`
	TriggerMatched string `json:"trigger_matched"`
}

// ToolRef is a tool mentioned directly in the request.
type ToolRef struct {
	Name     string `json:"name"`
	FilePath string `json:"file_path,omitempty"`
	Category string `json:"category"`
}

// ServiceRef is a service the request is expected to depend on.
type ServiceRef struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ExecutionPlan is the planner's output for a single request. It is built
// fresh on every call and never stored in the registry.
type ExecutionPlan struct {
	Request    string        `json:"request"`
	Timestamp  time.Time     `json:"timestamp"`
	Workflows  []WorkflowRef `json:"workflows_to_execute"`
	Nodes      []NodeRef     `json:"nodes_to_invoke"`
	Tools      []ToolRef     `json:"tools_to_use"`
	Services   []ServiceRef  `json:"services_required"`
	Confidence float64       `json:"confidence"`
}

// Empty reports whether the plan matched nothing.
func (p *ExecutionPlan) Empty() bool {
	return len(p.Workflows) == 0 && len(p.Nodes) == 0 && len(p.Tools) == 0 && len(p.Services) == 0
}
