package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// State is the poller's position in its loop.
type State string

// Poller states.
const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateExecuting State = "executing"
	StateReporting State = "reporting"
	StateSleeping  State = "sleeping"
	StateStopped   State = "stopped"
)

// DefaultRegisterAttempts is how many times Register tries before giving up.
const DefaultRegisterAttempts = 3

// Config configures a Poller.
type Config struct {
	WorkerID         string
	PollInterval     time.Duration
	RegisterAttempts int
}

// Poller runs one role's loop: fetch tasks, execute each, report each, sleep.
type Poller struct {
	cfg    Config
	role   *Role
	client CoordinatorClient
	events core.EventLogger
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	state State
	stats PollerStats
}

// PollerStats counts what a poller has done since it started.
type PollerStats struct {
	Polls     int `json:"polls"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Unknown   int `json:"unknown"`
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerLogger sets the structured logger.
func WithPollerLogger(l *zap.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// WithPollerEvents records task events to the given event log.
func WithPollerEvents(e core.EventLogger) PollerOption {
	return func(p *Poller) { p.events = e }
}

// WithClock overrides the poller's time source.
func WithClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// NewPoller creates a poller for role talking to client.
func NewPoller(cfg Config, role *Role, client CoordinatorClient, opts ...PollerOption) *Poller {
	if cfg.WorkerID == "" {
		cfg.WorkerID = role.Name
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RegisterAttempts <= 0 {
		cfg.RegisterAttempts = DefaultRegisterAttempts
	}
	p := &Poller{
		cfg:    cfg,
		role:   role,
		client: client,
		logger: zap.NewNop(),
		now:    time.Now,
		state:  StateIdle,
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.Named("worker").With(zap.String("worker_id", cfg.WorkerID), zap.String("role", role.Name))
	return p
}

// WorkerID returns the id this poller reports as.
func (p *Poller) WorkerID() string { return p.cfg.WorkerID }

// State returns the current loop state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a copy of the poller counters.
func (p *Poller) Stats() PollerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Register announces the worker to the coordinator, retrying up to the
// configured number of attempts with the poll interval between them.
func (p *Poller) Register(ctx context.Context) error {
	reg := models.Registration{
		WorkerID:     p.cfg.WorkerID,
		Role:         p.role.Name,
		Capabilities: p.role.Capabilities,
		Triggers:     p.role.TaskTypes(),
		PrimaryTool:  p.role.PrimaryTool,
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.RegisterAttempts; attempt++ {
		resp, err := p.client.Register(ctx, reg)
		if err == nil {
			p.logger.Info("registered with coordinator", zap.Strings("workers", resp.RegisteredWorkers))
			return nil
		}
		lastErr = err
		p.logger.Warn("registration failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == p.cfg.RegisterAttempts {
			break
		}
		if err := sleep(ctx, p.cfg.PollInterval); err != nil {
			return err
		}
	}
	return fmt.Errorf("registering after %d attempts: %w", p.cfg.RegisterAttempts, lastErr)
}

// Poll fetches pending tasks. Fetch failures are logged and yield no tasks.
func (p *Poller) Poll(ctx context.Context) []models.Task {
	p.setState(StatePolling)
	p.mu.Lock()
	p.stats.Polls++
	p.mu.Unlock()

	tasks, err := p.client.FetchTasks(ctx, p.cfg.WorkerID)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("polling coordinator", zap.Error(err))
		}
		return nil
	}
	return tasks
}

// Execute runs one task through the role's task table. It never fails: a
// handler error or panic becomes an error result and an unknown task type
// becomes an unknown_task_type result.
func (p *Poller) Execute(ctx context.Context, task models.Task) models.TaskResult {
	p.setState(StateExecuting)
	start := p.now()
	res := models.TaskResult{
		TaskID:   task.ID,
		WorkerID: p.cfg.WorkerID,
		TaskType: task.TaskType,
	}

	h, ok := p.role.Handler(task.TaskType)
	if !ok {
		res.Status = models.TaskUnknownTaskType
		res.Error = fmt.Sprintf("unknown task type %q for role %s", task.TaskType, p.role.Name)
	} else {
		out, err := runHandler(ctx, h, task.Payload)
		if err != nil {
			res.Status = models.TaskError
			res.Error = err.Error()
		} else {
			res.Status = models.TaskCompleted
			res.Output = out
		}
	}

	end := p.now()
	res.ExecutionTimeMS = end.Sub(start).Milliseconds()
	res.CompletedAt = end.UTC()

	p.mu.Lock()
	switch res.Status {
	case models.TaskCompleted:
		p.stats.Completed++
	case models.TaskUnknownTaskType:
		p.stats.Unknown++
	default:
		p.stats.Failed++
	}
	p.mu.Unlock()

	fields := []zap.Field{zap.String("task_id", task.ID), zap.String("task_type", task.TaskType), zap.Int64("ms", res.ExecutionTimeMS)}
	if res.Status == models.TaskCompleted {
		p.logger.Info("task completed", fields...)
		p.emit(models.EventTaskCompleted, res)
	} else {
		p.logger.Warn("task failed", append(fields, zap.String("status", res.Status), zap.String("error", res.Error))...)
		p.emit(models.EventTaskFailed, res)
	}
	return res
}

func runHandler(ctx context.Context, h TaskHandler, payload map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	if payload == nil {
		payload = map[string]any{}
	}
	return h(ctx, payload)
}

// Report posts a result once. Failures are returned but not retried.
func (p *Poller) Report(ctx context.Context, result models.TaskResult) error {
	p.setState(StateReporting)
	if err := p.client.CompleteTask(ctx, result); err != nil {
		p.logger.Warn("reporting task", zap.String("task_id", result.TaskID), zap.Error(err))
		return err
	}
	return nil
}

// RunOnce performs one poll-execute-report pass and returns the number of
// tasks handled. A task that started is always executed and reported, even
// if ctx is cancelled meanwhile.
func (p *Poller) RunOnce(ctx context.Context) int {
	tasks := p.Poll(ctx)
	detached := context.WithoutCancel(ctx)
	for _, t := range tasks {
		res := p.Execute(detached, t)
		_ = p.Report(detached, res)
	}
	return len(tasks)
}

// Run loops until ctx is cancelled, sleeping for the poll interval after
// every empty poll. Cancellation is a clean stop and returns nil.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("worker started", zap.Duration("poll_interval", p.cfg.PollInterval))
	defer func() {
		p.setState(StateStopped)
		p.logger.Info("worker stopped")
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if p.RunOnce(ctx) > 0 {
			continue
		}
		p.setState(StateSleeping)
		if err := sleep(ctx, p.cfg.PollInterval); err != nil {
			return nil
		}
	}
}

func (p *Poller) emit(eventType string, res models.TaskResult) {
	if p.events == nil {
		return
	}
	data := map[string]any{
		"task_id":           res.TaskID,
		"task_type":         res.TaskType,
		"worker_id":         res.WorkerID,
		"role":              p.role.Name,
		"status":            res.Status,
		"execution_time_ms": res.ExecutionTimeMS,
	}
	if res.Error != "" {
		data["error"] = res.Error
	}
	if err := p.events.LogEvent(eventType, data); err != nil {
		p.logger.Debug("event log write failed", zap.String("type", eventType), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
