package observability

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// MinTasksForErrorRate is the smallest task sample the error-rate alert
// considers.
const MinTasksForErrorRate = 5

// ErrorRateWindow is how far back task outcomes count toward the error rate.
const ErrorRateWindow = 24 * time.Hour

// CapabilitySource is the registry state the alert engine inspects.
type CapabilitySource interface {
	Nodes() []models.Node
	Services() []models.Service
}

// AlertEngine evaluates alert conditions against registry state and the
// event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine.
type alertEngine struct {
	eventLog   EventLog
	source     CapabilitySource
	thresholds models.AlertConfig
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine. eventLog may be nil, in which case
// the task error rate is not checked.
func NewAlertEngine(source CapabilitySource, eventLog EventLog, thresholds models.AlertConfig) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		source:     source,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Evaluate checks all alert conditions, returning any triggered alerts.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now().UTC()
	var alerts []Alert

	alerts = append(alerts, ae.checkServices(now)...)
	alerts = append(alerts, ae.checkStuckNodes(now)...)

	rateAlerts, err := ae.checkErrorRate(now)
	if err != nil {
		return nil, fmt.Errorf("checking task error rate: %w", err)
	}
	alerts = append(alerts, rateAlerts...)

	return alerts, nil
}

// checkServices fires when the number of unhealthy services reaches the
// threshold. Services never checked are reported at low severity.
func (ae *alertEngine) checkServices(now time.Time) []Alert {
	var unhealthy, unknown []string
	for _, svc := range ae.source.Services() {
		switch svc.Status {
		case models.ServiceUnhealthy:
			unhealthy = append(unhealthy, svc.Name)
		case models.ServiceUnknown, "":
			unknown = append(unknown, svc.Name)
		}
	}

	var alerts []Alert
	if ae.thresholds.UnhealthyServices > 0 && len(unhealthy) >= ae.thresholds.UnhealthyServices {
		alerts = append(alerts, Alert{
			ID:          "services-unhealthy",
			Condition:   "services_unhealthy",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("%d service(s) unhealthy: %v", len(unhealthy), unhealthy),
			TriggeredAt: now,
		})
	}
	if len(unknown) > 0 {
		alerts = append(alerts, Alert{
			ID:          "services-unknown",
			Condition:   "services_unknown",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("%d service(s) with unknown health: %v", len(unknown), unknown),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkStuckNodes looks for nodes left active longer than the threshold.
func (ae *alertEngine) checkStuckNodes(now time.Time) []Alert {
	if ae.thresholds.ActiveNodeMinutes <= 0 {
		return nil
	}
	threshold := time.Duration(ae.thresholds.ActiveNodeMinutes) * time.Minute

	var alerts []Alert
	for _, n := range ae.source.Nodes() {
		if n.Status != models.NodeActive {
			continue
		}
		since, err := time.Parse(time.RFC3339, n.LastInvoked)
		if err != nil || now.Sub(since) <= threshold {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("node-stuck-%s", n.Name),
			Condition:   "node_stuck_active",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("node %s has been active for more than %d minutes", n.Name, ae.thresholds.ActiveNodeMinutes),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkErrorRate compares failed to total task outcomes in the last window.
func (ae *alertEngine) checkErrorRate(now time.Time) ([]Alert, error) {
	if ae.eventLog == nil || ae.thresholds.ErrorRate <= 0 {
		return nil, nil
	}
	since := now.Add(-ErrorRateWindow)
	events, err := ae.eventLog.Read(EventFilter{TypePrefix: "task.", Since: &since})
	if err != nil {
		return nil, err
	}
	var done, failed int
	for _, e := range events {
		switch e.Type {
		case models.EventTaskCompleted:
			done++
		case models.EventTaskFailed:
			failed++
		}
	}

	total := done + failed
	if total < MinTasksForErrorRate {
		return nil, nil
	}
	rate := float64(failed) / float64(total)
	if rate <= ae.thresholds.ErrorRate {
		return nil, nil
	}
	return []Alert{{
		ID:          "task-error-rate",
		Condition:   "task_error_rate",
		Severity:    SeverityHigh,
		Message:     fmt.Sprintf("task error rate %.0f%% over %d tasks exceeds %.0f%%", rate*100, total, ae.thresholds.ErrorRate*100),
		TriggeredAt: now,
	}}, nil
}
