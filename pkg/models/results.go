package models

import "time"

// WorkflowResult is the outcome of executing one workflow.
type WorkflowResult struct {
	Success       bool      `json:"success"`
	Workflow      string    `json:"workflow"`
	StartedAt     time.Time `json:"started_at"`
	StepsExecuted []string  `json:"steps_executed,omitempty"`
	Output        string    `json:"output,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// ToolResult is the outcome of executing one tool.
type ToolResult struct {
	Success    bool           `json:"success"`
	Tool       string         `json:"tool"`
	FilePath   string         `json:"file_path,omitempty"`
	Category   string         `json:"category,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NodeResult is the outcome of invoking one node.
type NodeResult struct {
	Success    bool        `json:"success"`
	Node       string      `json:"node"`
	Role       string      `json:"role,omitempty"`
	ToolUsed   string      `json:"tool_used,omitempty"`
	InvokedAt  time.Time   `json:"invoked_at"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// HealthResult is the computed health of a single service.
type HealthResult struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Endpoint string `json:"endpoint,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// HealthReport is the outcome of a service health check over one or all
// services. Services preserves registry order.
type HealthReport struct {
	Success   bool           `json:"success"`
	Timestamp time.Time      `json:"timestamp"`
	Services  []HealthResult `json:"services"`
	Error     string         `json:"error,omitempty"`
}

// OrchestrationResults holds per-category results in execution order.
type OrchestrationResults struct {
	Workflows []WorkflowResult `json:"workflows"`
	Nodes     []NodeResult     `json:"nodes"`
	Tools     []ToolResult     `json:"tools"`
}

// Failed counts the failed entries across all categories.
func (r OrchestrationResults) Failed() int {
	n := 0
	for _, w := range r.Workflows {
		if !w.Success {
			n++
		}
	}
	for _, nr := range r.Nodes {
		if !nr.Success {
			n++
		}
	}
	for _, t := range r.Tools {
		if !t.Success {
			n++
		}
	}
	return n
}

// OrchestrationResult is the envelope returned for a full request. Success is
// true whenever the request was processed; per-item failures are only
// visible inside Results.
type OrchestrationResult struct {
	ID        string               `json:"id"`
	Request   string               `json:"request"`
	Plan      *ExecutionPlan       `json:"execution_plan"`
	Results   OrchestrationResults `json:"results"`
	Success   bool                 `json:"success"`
	Timestamp time.Time            `json:"timestamp"`
}

// CapabilityQuery is the envelope printed for --query.
type CapabilityQuery struct {
	Query        string      `json:"query"`
	Category     Variant     `json:"category,omitempty"`
	TotalResults int         `json:"total_results"`
	Results      QueryResult `json:"results"`
}

// ExecutionLogEntry is one audit record in the dispatcher's execution log.
type ExecutionLogEntry struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Result    any       `json:"result"`
}
