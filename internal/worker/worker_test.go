package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// fakeCoordinator is an httptest coordinator that hands out queued tasks once
// and records completions and registrations.
type fakeCoordinator struct {
	mu            sync.Mutex
	queue         []models.Task
	completed     []models.TaskResult
	registrations []models.Registration
	failRegister  int
	failFetch     bool
	srv           *httptest.Server
}

func newFakeCoordinator(t *testing.T, tasks ...models.Task) *fakeCoordinator {
	t.Helper()
	fc := &fakeCoordinator{queue: tasks}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		if fc.failFetch {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		out := models.TaskList{Tasks: fc.queue}
		if out.Tasks == nil {
			out.Tasks = []models.Task{}
		}
		fc.queue = nil
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("POST /task/complete", func(w http.ResponseWriter, r *http.Request) {
		var res models.TaskResult
		if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fc.mu.Lock()
		fc.completed = append(fc.completed, res)
		fc.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		var reg models.Registration
		_ = json.NewDecoder(r.Body).Decode(&reg)
		fc.mu.Lock()
		defer fc.mu.Unlock()
		if fc.failRegister > 0 {
			fc.failRegister--
			http.Error(w, "not yet", http.StatusInternalServerError)
			return
		}
		fc.registrations = append(fc.registrations, reg)
		_ = json.NewEncoder(w).Encode(models.RegisterResponse{RegisteredWorkers: []string{reg.WorkerID}})
	})
	fc.srv = httptest.NewServer(mux)
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeCoordinator) results() []models.TaskResult {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]models.TaskResult(nil), fc.completed...)
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) LogEvent(eventType string, _ map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

func newTestPoller(t *testing.T, roleName string, fc *fakeCoordinator, opts ...PollerOption) *Poller {
	t.Helper()
	role, err := NewRole(roleName, RoleDeps{WorkerID: roleName + "-1"})
	require.NoError(t, err)
	client := NewCoordinatorClient(fc.srv.URL, time.Second)
	return NewPoller(Config{WorkerID: roleName + "-1", PollInterval: 10 * time.Millisecond}, role, client, opts...)
}

// --- Client tests ---

func TestClient_NetworkUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewCoordinatorClient(url, 200*time.Millisecond)
	_, err := c.FetchTasks(context.Background(), "w1")
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
}

func TestClient_Non2xxIsNetworkUnavailable(t *testing.T) {
	fc := newFakeCoordinator(t)
	fc.failFetch = true
	c := NewCoordinatorClient(fc.srv.URL, time.Second)

	_, err := c.FetchTasks(context.Background(), "w1")
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
}

// --- Poller tests ---

func TestPoller_RunOnceReportsEveryTask(t *testing.T) {
	fc := newFakeCoordinator(t,
		models.Task{ID: "t1", TaskType: "text_generation", Payload: map[string]any{"prompt": "hello"}},
		models.Task{ID: "t2", TaskType: "unknown_x"},
		models.Task{ID: "t3", TaskType: "text_analysis", Payload: map[string]any{"text": "great work"}},
	)
	events := &recordingEvents{}
	p := newTestPoller(t, RoleJules, fc, WithPollerEvents(events))

	n := p.RunOnce(context.Background())
	require.Equal(t, 3, n)

	got := fc.results()
	require.Len(t, got, 3)
	assert.Equal(t, "t1", got[0].TaskID)
	assert.Equal(t, models.TaskCompleted, got[0].Status)
	assert.Equal(t, "You said: hello", got[0].Output["response"])

	assert.Equal(t, models.TaskUnknownTaskType, got[1].Status)
	assert.Contains(t, got[1].Error, "unknown_x")

	assert.Equal(t, models.TaskCompleted, got[2].Status)
	for _, r := range got {
		assert.Equal(t, "jules-1", r.WorkerID)
	}

	stats := p.Stats()
	assert.Equal(t, PollerStats{Polls: 1, Completed: 2, Unknown: 1}, stats)
	assert.Equal(t, []string{"task.completed", "task.failed", "task.completed"}, events.types)
}

func TestPoller_HandlerErrorBecomesErrorResult(t *testing.T) {
	fc := newFakeCoordinator(t, models.Task{ID: "t1", TaskType: "knowledge_add"})
	p := newTestPoller(t, RoleAtlas, fc)

	p.RunOnce(context.Background())

	got := fc.results()
	require.Len(t, got, 1)
	assert.Equal(t, models.TaskError, got[0].Status)
	assert.Contains(t, got[0].Error, "content is required")
}

func TestPoller_PanicIsRecovered(t *testing.T) {
	role := &Role{Name: "test", handlers: map[string]TaskHandler{}}
	role.add("boom", func(context.Context, map[string]any) (map[string]any, error) {
		panic("kaboom")
	})
	p := NewPoller(Config{WorkerID: "w"}, role, nil)

	res := p.Execute(context.Background(), models.Task{ID: "t", TaskType: "boom"})
	assert.Equal(t, models.TaskError, res.Status)
	assert.Contains(t, res.Error, "kaboom")
}

func TestPoller_PollFailureYieldsNoTasks(t *testing.T) {
	fc := newFakeCoordinator(t, models.Task{ID: "t1", TaskType: "conversation"})
	fc.failFetch = true
	p := newTestPoller(t, RoleJules, fc)

	assert.Empty(t, p.Poll(context.Background()))
	assert.Empty(t, fc.results())
}

func TestPoller_RegisterRetries(t *testing.T) {
	fc := newFakeCoordinator(t)
	fc.failRegister = 2
	p := newTestPoller(t, RoleObserver, fc)

	require.NoError(t, p.Register(context.Background()))
	require.Len(t, fc.registrations, 1)
	reg := fc.registrations[0]
	assert.Equal(t, "observer-1", reg.WorkerID)
	assert.Equal(t, RoleObserver, reg.Role)
	assert.Equal(t, []string{"health_check", "system_metrics", "trend_analysis"}, reg.Triggers)
}

func TestPoller_RegisterGivesUp(t *testing.T) {
	fc := newFakeCoordinator(t)
	fc.failRegister = 5
	p := newTestPoller(t, RoleObserver, fc)

	err := p.Register(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkUnavailable)
}

func TestPoller_RunStopsCleanlyOnCancel(t *testing.T) {
	fc := newFakeCoordinator(t, models.Task{ID: "t1", TaskType: "system_coordination"})
	p := newTestPoller(t, RoleManager, fc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(fc.results()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, p.State())
}

// --- Supervisor tests ---

func TestSupervisor_RunsAllRoles(t *testing.T) {
	fc := newFakeCoordinator(t)
	var pollers []*Poller
	for _, name := range RoleNames() {
		pollers = append(pollers, newTestPoller(t, name, fc))
	}
	s := NewSupervisor(nil, pollers...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.registrations) == 4
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestSupervisor_PollsAfterFailedRegistration(t *testing.T) {
	fc := newFakeCoordinator(t, models.Task{ID: "t1", TaskType: "text_analysis", Payload: map[string]any{"text": "all good"}})
	fc.failRegister = 100
	p := newTestPoller(t, RoleJules, fc)
	s := NewSupervisor(nil, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return len(fc.completed) == 1
	}, 2*time.Second, 5*time.Millisecond, "poller must run despite registration failure")
	assert.Positive(t, p.Stats().Polls)

	select {
	case err := <-done:
		t.Fatalf("supervisor stopped before cancellation: %v", err)
	default:
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestSupervisor_Empty(t *testing.T) {
	err := NewSupervisor(nil).Run(context.Background())
	assert.Error(t, err)
}

// --- Role tests ---

type fakeDispatcher struct {
	core.Dispatcher
	report models.HealthReport
}

func (f *fakeDispatcher) CheckServiceHealth(context.Context, string) models.HealthReport {
	return f.report
}

func TestNewRole_Unknown(t *testing.T) {
	_, err := NewRole("nope", RoleDeps{})
	assert.Error(t, err)
}

func TestObserver_HealthCheckAndTrend(t *testing.T) {
	fd := &fakeDispatcher{report: models.HealthReport{Success: true, Services: []models.HealthResult{
		{Name: "a", Status: models.ServiceHealthy},
		{Name: "b", Status: models.ServiceUnhealthy},
	}}}
	role, err := NewRole(RoleObserver, RoleDeps{Dispatcher: fd})
	require.NoError(t, err)

	hc, _ := role.Handler("health_check")
	out, err := hc(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, out["health_percentage"])
	assert.Equal(t, true, out["alert"])

	trend, _ := role.Handler("trend_analysis")
	out, err = trend(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "insufficient_data", out["trend"])
}

func TestObserver_HealthCheckWithoutRegistry(t *testing.T) {
	role, err := NewRole(RoleObserver, RoleDeps{})
	require.NoError(t, err)
	hc, _ := role.Handler("health_check")
	_, err = hc(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestAnalyzeTrend(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   string
	}{
		{"empty", nil, "insufficient_data"},
		{"one", []float64{90}, "insufficient_data"},
		{"critical", []float64{100, 50}, "critical"},
		{"improving", []float64{80, 90, 100}, "improving"},
		{"degrading", []float64{100, 90, 80}, "degrading"},
		{"constant", []float64{100, 100, 100}, "stable"},
		{"mixed", []float64{80, 100, 90}, "stable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeTrend(tt.scores)["trend"])
		})
	}
}

func TestAnalyzeText(t *testing.T) {
	got := AnalyzeText("a great and excellent day")
	assert.Equal(t, "positive", got["sentiment"])
	assert.Equal(t, 5, got["word_count"])

	assert.Equal(t, "neutral", AnalyzeText("")["sentiment"])
}

func TestJules_ConversationKeepsHistory(t *testing.T) {
	role, err := NewRole(RoleJules, RoleDeps{})
	require.NoError(t, err)
	conv, _ := role.Handler("conversation")

	_, err = conv(context.Background(), map[string]any{"user_id": "u", "message": "hi"})
	require.NoError(t, err)
	out, err := conv(context.Background(), map[string]any{"user_id": "u", "message": "again"})
	require.NoError(t, err)
	assert.Equal(t, "You said: again", out["response"])
	assert.Equal(t, 4, out["context_length"])
}

func TestManager_OrchestrationRequiresRequest(t *testing.T) {
	role, err := NewRole(RoleManager, RoleDeps{})
	require.NoError(t, err)
	h, _ := role.Handler("api_orchestration")

	_, err = h(context.Background(), map[string]any{})
	assert.Error(t, err)

	out, err := h(context.Background(), map[string]any{"request": "deploy"})
	require.NoError(t, err)
	assert.Equal(t, true, out["accepted"])
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleep(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))
}
