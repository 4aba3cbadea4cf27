package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

// webhookRecorder captures the last request posted to it.
type webhookRecorder struct {
	calls       int
	body        []byte
	contentType string
	status      int
}

func (rec *webhookRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.calls++
		rec.contentType = r.Header.Get("Content-Type")
		rec.body, _ = io.ReadAll(r.Body)
		if rec.status != 0 {
			w.WriteHeader(rec.status)
			_, _ = w.Write([]byte("no_service"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sampleAlerts() []Alert {
	at := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	return []Alert{
		{ID: "node-stuck-LENS", Condition: "node_stuck_active", Severity: SeverityMedium, Message: "node LENS stuck active", TriggeredAt: at},
		{ID: "services-unhealthy", Condition: "services_unhealthy", Severity: SeverityHigh, Message: "1 service(s) unhealthy: [heady-manager]", TriggeredAt: at},
	}
}

// --- Notify ---

func TestSlackNotifier_EmptyAlertsSendNothing(t *testing.T) {
	rec := &webhookRecorder{}
	n := NewSlackNotifier(rec.server(t).URL)

	for _, alerts := range [][]Alert{nil, {}} {
		if err := n.Notify(context.Background(), alerts); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	if rec.calls != 0 {
		t.Errorf("expected no webhook calls, got %d", rec.calls)
	}
}

func TestSlackNotifier_PayloadOrdersBySeverity(t *testing.T) {
	rec := &webhookRecorder{}
	n := NewSlackNotifier(rec.server(t).URL)

	if err := n.Notify(context.Background(), sampleAlerts()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if rec.contentType != "application/json" {
		t.Errorf("Content-Type = %q", rec.contentType)
	}

	var p slackPayload
	if err := json.Unmarshal(rec.body, &p); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if p.Text != "Heady Conductor: 2 active alert(s)" {
		t.Errorf("fallback text = %q", p.Text)
	}
	// header, 2 x (section + context), footer
	if len(p.Blocks) != 6 {
		t.Fatalf("expected 6 blocks, got %d", len(p.Blocks))
	}
	first := p.Blocks[1]
	if first.Type != "section" || !strings.Contains(first.Text.Text, "heady-manager") {
		t.Errorf("expected the high severity alert first, got %+v", first)
	}
	if len(first.Fields) != 2 || !strings.Contains(first.Fields[0].Text, "HIGH") {
		t.Errorf("unexpected fields %+v", first.Fields)
	}
	if !strings.Contains(p.Blocks[2].Elements[0].Text, "2026-03-02T09:15:00Z") {
		t.Errorf("expected triggered time in context block, got %+v", p.Blocks[2])
	}
	if !strings.Contains(string(rec.body), ":red_circle:") || !strings.Contains(string(rec.body), ":large_yellow_circle:") {
		t.Error("expected severity emoji codes in payload")
	}
}

func TestSlackNotifier_Non2xxIncludesBody(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusNotFound}
	n := NewSlackNotifier(rec.server(t).URL)

	err := n.Notify(context.Background(), sampleAlerts())
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "no_service") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestSlackNotifier_AcceptsAny2xx(t *testing.T) {
	rec := &webhookRecorder{status: http.StatusNoContent}
	n := NewSlackNotifier(rec.server(t).URL)

	if err := n.Notify(context.Background(), sampleAlerts()[:1]); err != nil {
		t.Fatalf("expected no error for 204, got %v", err)
	}
}

func TestSlackNotifier_RespectsContext(t *testing.T) {
	rec := &webhookRecorder{}
	n := NewSlackNotifier(rec.server(t).URL, WithSlackClient(&http.Client{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Notify(ctx, sampleAlerts()); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if rec.calls != 0 {
		t.Errorf("expected no webhook call, got %d", rec.calls)
	}
}
