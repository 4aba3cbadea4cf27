package worker

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// TaskHandler executes one task payload and returns its output.
type TaskHandler func(ctx context.Context, payload map[string]any) (map[string]any, error)

// Role is a worker role: the task types it accepts and how it runs them.
// The task table is fixed at construction.
type Role struct {
	Name         string
	PrimaryTool  string
	Capabilities map[string]any
	taskTypes    []string
	handlers     map[string]TaskHandler
}

// TaskTypes lists the task types the role accepts, in table order.
func (r *Role) TaskTypes() []string {
	out := make([]string, len(r.taskTypes))
	copy(out, r.taskTypes)
	return out
}

// Handler returns the handler for taskType.
func (r *Role) Handler(taskType string) (TaskHandler, bool) {
	h, ok := r.handlers[taskType]
	return h, ok
}

func (r *Role) add(taskType string, h TaskHandler) {
	r.taskTypes = append(r.taskTypes, taskType)
	r.handlers[taskType] = h
}

// RoleDeps are the collaborators role handlers may use. A nil Dispatcher
// makes handlers that would use it answer from local state only.
type RoleDeps struct {
	Dispatcher core.Dispatcher
	WorkerID   string
	Now        func() time.Time
}

// Role names.
const (
	RoleManager  = "manager"
	RoleJules    = "jules"
	RoleObserver = "observer"
	RoleAtlas    = "atlas"
)

// RoleNames lists the known roles.
func RoleNames() []string {
	return []string{RoleManager, RoleJules, RoleObserver, RoleAtlas}
}

// NewRole builds the task table for the named role.
func NewRole(name string, deps RoleDeps) (*Role, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	r := &Role{Name: name, handlers: make(map[string]TaskHandler)}
	switch name {
	case RoleManager:
		newManager(r, deps)
	case RoleJules:
		newJules(r, deps)
	case RoleObserver:
		newObserver(r, deps)
	case RoleAtlas:
		newAtlas(r, deps)
	default:
		return nil, fmt.Errorf("unknown worker role %q (want one of %s)", name, strings.Join(RoleNames(), ", "))
	}
	return r, nil
}

func stringArg(payload map[string]any, key, def string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return def
}

func intArg(payload map[string]any, key string, def int) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

// --- manager ---

func newManager(r *Role, deps RoleDeps) {
	r.PrimaryTool = "heady_manager"
	r.Capabilities = map[string]any{"orchestration": true, "coordination": true}

	r.add("api_orchestration", func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		request := stringArg(payload, "request", "")
		if request == "" {
			return nil, fmt.Errorf("api_orchestration: payload.request is required")
		}
		if deps.Dispatcher == nil {
			return map[string]any{"request": request, "accepted": true}, nil
		}
		res := deps.Dispatcher.Orchestrate(ctx, request)
		return map[string]any{
			"orchestration_id": res.ID,
			"confidence":       res.Plan.Confidence,
			"workflows":        len(res.Results.Workflows),
			"nodes":            len(res.Results.Nodes),
			"tools":            len(res.Results.Tools),
			"failed":           res.Results.Failed(),
		}, nil
	})

	r.add("system_coordination", func(_ context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{
			"action":      stringArg(payload, "action", "sync"),
			"coordinated": true,
			"roles":       RoleNames(),
			"at":          deps.Now().UTC().Format(time.RFC3339),
		}, nil
	})

	r.add("health_check", func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		out := map[string]any{"status": "healthy", "worker_id": deps.WorkerID}
		if deps.Dispatcher != nil {
			report := deps.Dispatcher.CheckServiceHealth(ctx, "")
			out["services"] = report.Services
		}
		return out, nil
	})
}

// --- jules ---

var sentimentWords = map[string][]string{
	"positive": {"good", "great", "excellent", "amazing", "wonderful", "fantastic"},
	"negative": {"bad", "terrible", "awful", "horrible", "disaster", "failure"},
	"neutral":  {"okay", "fine", "average", "normal", "standard"},
}

// AnalyzeText scores text against small sentiment word lists.
func AnalyzeText(text string) map[string]any {
	words := strings.Fields(strings.ToLower(text))
	scores := map[string]float64{}
	dominant, best := "neutral", -1.0
	for _, label := range []string{"positive", "negative", "neutral"} {
		matches := 0
		for _, w := range words {
			for _, s := range sentimentWords[label] {
				if w == s {
					matches++
				}
			}
		}
		score := 0.0
		if len(words) > 0 {
			score = float64(matches) / float64(len(words))
		}
		scores[label] = score
		if score > best {
			dominant, best = label, score
		}
	}

	unique := map[string]struct{}{}
	for _, w := range words {
		unique[w] = struct{}{}
	}
	complexity := 0.0
	if len(words) > 0 {
		complexity = float64(len(unique)) / float64(len(words))
	}
	return map[string]any{
		"sentiment":        dominant,
		"sentiment_scores": scores,
		"word_count":       len(words),
		"complexity":       complexity,
	}
}

const conversationWindow = 10

func newJules(r *Role, _ RoleDeps) {
	r.PrimaryTool = "text_generation"
	r.Capabilities = map[string]any{"text_generation": true, "conversation": true}

	var mu sync.Mutex
	history := map[string][]string{}

	r.add("text_generation", func(_ context.Context, payload map[string]any) (map[string]any, error) {
		prompt := stringArg(payload, "prompt", "")
		return map[string]any{"response": generate(prompt)}, nil
	})

	r.add("text_analysis", func(_ context.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{"analysis": AnalyzeText(stringArg(payload, "text", ""))}, nil
	})

	r.add("conversation", func(_ context.Context, payload map[string]any) (map[string]any, error) {
		user := stringArg(payload, "user_id", "default")
		msg := stringArg(payload, "message", "")

		mu.Lock()
		defer mu.Unlock()
		history[user] = append(history[user], "User: "+msg)
		start := max(0, len(history[user])-conversationWindow)
		window := strings.Join(history[user][start:], "\n")
		reply := generate(window)
		history[user] = append(history[user], "AI: "+reply)
		return map[string]any{"response": reply, "context_length": len(history[user])}, nil
	})
}

// generate is the deterministic stand-in for the text model: it answers with
// the last line of the prompt.
func generate(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	last = strings.TrimPrefix(last, "User: ")
	if last == "" {
		return "I'm listening."
	}
	return "You said: " + last
}

// --- observer ---

const (
	healthHistoryLimit  = 100
	healthAlertPercent  = 75.0
	trendWindow         = 10
	trendMinimumSamples = 3
)

// healthSample is one health_check observation.
type healthSample struct {
	At      time.Time
	Percent float64
}

// AnalyzeTrend classifies a series of health percentages, oldest first.
func AnalyzeTrend(scores []float64) map[string]any {
	if len(scores) < 2 {
		return map[string]any{"trend": "insufficient_data"}
	}
	if len(scores) > trendWindow {
		scores = scores[len(scores)-trendWindow:]
	}
	current := scores[len(scores)-1]
	if current < healthAlertPercent {
		return map[string]any{"trend": "critical", "current_score": current}
	}
	if len(scores) >= trendMinimumSamples {
		rising, falling := true, true
		for i := 0; i+1 < len(scores); i++ {
			if scores[i] > scores[i+1] {
				rising = false
			}
			if scores[i] < scores[i+1] {
				falling = false
			}
		}
		switch {
		case rising && !falling:
			return map[string]any{"trend": "improving", "current_score": current}
		case falling && !rising:
			return map[string]any{"trend": "degrading", "current_score": current}
		}
	}
	return map[string]any{"trend": "stable", "current_score": current}
}

func newObserver(r *Role, deps RoleDeps) {
	r.PrimaryTool = "heady_monitor"
	r.Capabilities = map[string]any{"monitoring": true, "alerting": true}

	var mu sync.Mutex
	var samples []healthSample

	r.add("health_check", func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		if deps.Dispatcher == nil {
			return nil, fmt.Errorf("health_check: no registry available")
		}
		report := deps.Dispatcher.CheckServiceHealth(ctx, "")
		healthy := 0
		for _, s := range report.Services {
			if s.Status == models.ServiceHealthy {
				healthy++
			}
		}
		pct := 0.0
		if len(report.Services) > 0 {
			pct = float64(healthy) / float64(len(report.Services)) * 100
		}

		mu.Lock()
		samples = append(samples, healthSample{At: deps.Now(), Percent: pct})
		if len(samples) > healthHistoryLimit {
			samples = samples[len(samples)-healthHistoryLimit:]
		}
		mu.Unlock()

		return map[string]any{
			"health_percentage": pct,
			"healthy":           healthy,
			"total":             len(report.Services),
			"services":          report.Services,
			"alert":             pct < healthAlertPercent,
		}, nil
	})

	r.add("system_metrics", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return map[string]any{
			"goroutines":     runtime.NumGoroutine(),
			"num_cpu":        runtime.NumCPU(),
			"heap_alloc":     ms.HeapAlloc,
			"heap_sys":       ms.HeapSys,
			"gc_cycles":      ms.NumGC,
			"timestamp":      deps.Now().UTC().Format(time.RFC3339),
			"health_samples": sampleCount(&mu, &samples),
		}, nil
	})

	r.add("trend_analysis", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		mu.Lock()
		scores := make([]float64, len(samples))
		for i, s := range samples {
			scores[i] = s.Percent
		}
		mu.Unlock()
		return AnalyzeTrend(scores), nil
	})
}

func sampleCount(mu *sync.Mutex, samples *[]healthSample) int {
	mu.Lock()
	defer mu.Unlock()
	return len(*samples)
}

// --- atlas ---

func newAtlas(r *Role, deps RoleDeps) {
	r.PrimaryTool = "knowledge_graph"
	r.Capabilities = map[string]any{"knowledge_graph": true, "search": "substring"}

	kg := NewKnowledgeGraph(deps.Now)

	r.add("knowledge_query", func(_ context.Context, payload map[string]any) (map[string]any, error) {
		q := stringArg(payload, "query", "")
		results := kg.Query(q, intArg(payload, "max_results", 5))
		return map[string]any{"query": q, "results": results}, nil
	})

	r.add("knowledge_add", func(_ context.Context, payload map[string]any) (map[string]any, error) {
		content := stringArg(payload, "content", "")
		if content == "" {
			return nil, fmt.Errorf("knowledge_add: payload.content is required")
		}
		id := stringArg(payload, "doc_id", fmt.Sprintf("doc_%d", deps.Now().Unix()))
		meta, _ := payload["metadata"].(map[string]any)
		kg.AddDocument(id, content, meta)
		return map[string]any{"doc_id": id}, nil
	})

	r.add("graph_analysis", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"statistics": kg.Stats()}, nil
	})

	r.add("related_concepts", func(_ context.Context, payload map[string]any) (map[string]any, error) {
		concept := stringArg(payload, "concept", "")
		return map[string]any{
			"concept":          concept,
			"related_concepts": kg.Related(concept, intArg(payload, "max_depth", 2)),
		}, nil
	})
}
