package models

import "time"

// Task status values reported back to the coordinator.
const (
	TaskCompleted       = "completed"
	TaskError           = "error"
	TaskUnknownTaskType = "unknown_task_type"
)

// Task is a unit of work queued by the coordinator for a worker.
type Task struct {
	ID       string         `json:"id"`
	TaskType string         `json:"task_type"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// TaskResult is the completion report a worker posts for a task. A task is
// reported exactly once and never retried by the worker.
type TaskResult struct {
	TaskID          string         `json:"task_id"`
	WorkerID        string         `json:"worker_id"`
	TaskType        string         `json:"task_type,omitempty"`
	Status          string         `json:"status"`
	Output          map[string]any `json:"output,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
	CompletedAt     time.Time      `json:"completed_at"`
}

// Registration announces a worker and its capabilities to the coordinator.
type Registration struct {
	WorkerID     string         `json:"workerId"`
	Role         string         `json:"role"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	Triggers     []string       `json:"triggers"`
	PrimaryTool  string         `json:"primary_tool,omitempty"`
}

// TaskList is the response body of GET /tasks.
type TaskList struct {
	Tasks []Task `json:"tasks"`
}

// RegisterResponse is the response body of POST /register.
type RegisterResponse struct {
	RegisteredWorkers []string `json:"registeredWorkers"`
}
