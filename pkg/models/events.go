package models

// Event types written to the audit trail.
const (
	EventOrchestrationCompleted = "orchestration.completed"
	EventWorkflowExecuted       = "workflow.executed"
	EventNodeInvoked            = "node.invoked"
	EventToolExecuted           = "tool.executed"
	EventServiceHealthChecked   = "service.health_checked"
	EventTaskCompleted          = "task.completed"
	EventTaskFailed             = "task.failed"
	EventTaskReported           = "coordinator.task_reported"
)
