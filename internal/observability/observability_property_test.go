package observability

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// =============================================================================
// Generators
// =============================================================================

var eventTypes = []string{
	"orchestration.completed",
	"workflow.executed",
	"node.invoked",
	"tool.executed",
	"service.health_checked",
	"task.completed",
	"task.failed",
}

func genEvents(t *rapid.T, base time.Time) []Event {
	n := rapid.IntRange(0, 30).Draw(t, "numEvents")
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		typ := rapid.SampledFrom(eventTypes).Draw(t, fmt.Sprintf("type_%d", i))
		events = append(events, Event{
			Time:  base.Add(time.Duration(i) * time.Minute),
			Level: "INFO",
			Type:  typ,
			Data:  map[string]any{"worker_id": "w", "task_type": "health_check"},
		})
	}
	return events
}

// =============================================================================
// Property 1: Metrics counts match the events written
// =============================================================================

// Feature: observability, Property 1: Metrics counts match events
// *For any* sequence of events, each per-type counter equals the number of
// events of that type and EventCount equals the total.
func TestProperty_MetricsCountsMatchEvents(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		el, err := NewJSONLEventLog(filepath.Join(dir, fmt.Sprintf("events-%d.jsonl", time.Now().UnixNano())))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer el.Close()

		base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		events := genEvents(rt, base)
		counts := map[string]int{}
		for _, e := range events {
			if err := el.Write(e); err != nil {
				rt.Fatalf("writing event: %v", err)
			}
			counts[e.Type]++
		}

		m, err := NewMetricsCalculator(el).Calculate(base)
		if err != nil {
			rt.Fatalf("Calculate: %v", err)
		}
		if m.EventCount != len(events) {
			rt.Fatalf("EventCount = %d, want %d", m.EventCount, len(events))
		}
		if m.NodesInvoked != counts["node.invoked"] || m.TasksFailed != counts["task.failed"] || m.Orchestrations != counts["orchestration.completed"] {
			rt.Fatalf("counts mismatch: %+v vs %v", m, counts)
		}
		if m.TaskErrorRate < 0 || m.TaskErrorRate > 1 {
			rt.Fatalf("TaskErrorRate %v out of range", m.TaskErrorRate)
		}
	})
}

// =============================================================================
// Property 2: Raising the unhealthy threshold never adds alerts
// =============================================================================

// Feature: observability, Property 2: Service alert threshold monotonicity
// *For any* set of service statuses, a higher UnhealthyServices threshold
// SHALL produce fewer or equal alerts.
func TestProperty_ServiceAlertThresholdMonotonicity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(rt, "numServices")
		var services []models.Service
		for i := 0; i < n; i++ {
			status := rapid.SampledFrom([]string{models.ServiceHealthy, models.ServiceUnhealthy, models.ServiceUnknown}).Draw(rt, fmt.Sprintf("status_%d", i))
			services = append(services, models.Service{Name: fmt.Sprintf("svc-%d", i), Status: status})
		}
		low := rapid.IntRange(1, 5).Draw(rt, "low")
		high := low + rapid.IntRange(0, 5).Draw(rt, "delta")

		src := staticSource{services: services}
		a1, err := newTestEngine(src, nil, models.AlertConfig{UnhealthyServices: low}).Evaluate()
		if err != nil {
			rt.Fatalf("Evaluate: %v", err)
		}
		a2, err := newTestEngine(src, nil, models.AlertConfig{UnhealthyServices: high}).Evaluate()
		if err != nil {
			rt.Fatalf("Evaluate: %v", err)
		}
		if len(a2) > len(a1) {
			rt.Fatalf("threshold %d gave %d alerts, threshold %d gave %d", high, len(a2), low, len(a1))
		}
	})
}

// =============================================================================
// Property 3: Event filter time range
// =============================================================================

// Feature: observability, Property 3: Event filter time range
// *For any* Since/Until window, every event returned lies inside it.
func TestProperty_EventFilterTimeRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		el, err := NewJSONLEventLog(filepath.Join(dir, fmt.Sprintf("range-%d.jsonl", time.Now().UnixNano())))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer el.Close()

		base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		for _, e := range genEvents(rt, base) {
			if err := el.Write(e); err != nil {
				rt.Fatalf("writing event: %v", err)
			}
		}
		from := rapid.IntRange(0, 30).Draw(rt, "from")
		span := rapid.IntRange(0, 30).Draw(rt, "span")
		since := base.Add(time.Duration(from) * time.Minute)
		until := since.Add(time.Duration(span) * time.Minute)

		got, err := el.Read(EventFilter{Since: &since, Until: &until})
		if err != nil {
			rt.Fatalf("Read: %v", err)
		}
		for _, e := range got {
			if e.Time.Before(since) || e.Time.After(until) {
				rt.Fatalf("event at %v outside [%v, %v]", e.Time, since, until)
			}
		}
	})
}
