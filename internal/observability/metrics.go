package observability

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
	Orchestrations    int            `json:"orchestrations"`
	WorkflowsExecuted int            `json:"workflows_executed"`
	NodesInvoked      int            `json:"nodes_invoked"`
	ToolsExecuted     int            `json:"tools_executed"`
	HealthChecks      int            `json:"health_checks"`
	ServicesByStatus  map[string]int `json:"services_by_status"`
	NodesByName       map[string]int `json:"nodes_by_name"`
	TasksCompleted    int            `json:"tasks_completed"`
	TasksFailed       int            `json:"tasks_failed"`
	TasksByType       map[string]int `json:"tasks_by_type"`
	TasksByWorker     map[string]int `json:"tasks_by_worker"`
	TaskErrorRate     float64        `json:"task_error_rate"`
	AvgTaskMS         float64        `json:"avg_task_ms"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		ServicesByStatus: make(map[string]int),
		NodesByName:      make(map[string]int),
		TasksByType:      make(map[string]int),
		TasksByWorker:    make(map[string]int),
	}
	m.EventCount = len(events)

	var totalMS float64
	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case models.EventOrchestrationCompleted:
			m.Orchestrations++
		case models.EventWorkflowExecuted:
			m.WorkflowsExecuted++
		case models.EventNodeInvoked:
			m.NodesInvoked++
			if name, ok := event.Data["node"].(string); ok {
				m.NodesByName[name]++
			}
		case models.EventToolExecuted:
			m.ToolsExecuted++
		case models.EventServiceHealthChecked:
			m.HealthChecks++
			if status, ok := event.Data["status"].(string); ok {
				m.ServicesByStatus[status]++
			}
		case models.EventTaskCompleted, models.EventTaskFailed:
			if event.Type == models.EventTaskCompleted {
				m.TasksCompleted++
			} else {
				m.TasksFailed++
			}
			if tt, ok := event.Data["task_type"].(string); ok {
				m.TasksByType[tt]++
			}
			if w, ok := event.Data["worker_id"].(string); ok {
				m.TasksByWorker[w]++
			}
			if ms, ok := event.Data["execution_time_ms"].(float64); ok {
				totalMS += ms
			}
		}
	}

	if tasks := m.TasksCompleted + m.TasksFailed; tasks > 0 {
		m.TaskErrorRate = float64(m.TasksFailed) / float64(tasks)
		m.AvgTaskMS = totalMS / float64(tasks)
	}
	return m, nil
}
