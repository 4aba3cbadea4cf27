package core

import (
	"strings"
	"time"

	"github.com/valter-silva-au/heady-conductor/internal/storage"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// Confidence levels assigned per match category.
const (
	ConfidenceWorkflow = 0.9
	ConfidenceNode     = 0.8
	ConfidenceTool     = 0.7
)

// serviceKeywords maps a service type to the request keywords that imply a
// service is needed.
var serviceKeywords = map[string][]string{
	"api":      {"api", "endpoint", "request"},
	"database": {"database", "postgres", "db", "query"},
	"cache":    {"cache", "redis"},
	"mcp":      {"mcp", "protocol", "connect"},
	"frontend": {"ui", "interface", "web", "frontend"},
}

// Planner turns free-text requests into execution plans by matching them
// against the capability registry.
type Planner interface {
	Analyze(request string) *models.ExecutionPlan
}

type planner struct {
	store storage.CapabilityStore
	now   func() time.Time
}

// NewPlanner creates a Planner that reads capabilities from store.
func NewPlanner(store storage.CapabilityStore) Planner {
	return &planner{store: store, now: time.Now}
}

// Analyze scans workflows, nodes, tools and services in registry order and
// returns the matches. Confidence is the highest category level reached, or
// 0 when nothing matched. Analyze never fails; an empty request yields an
// empty plan.
func (p *planner) Analyze(request string) *models.ExecutionPlan {
	plan := &models.ExecutionPlan{
		Request:   request,
		Timestamp: p.now().UTC(),
		Workflows: []models.WorkflowRef{},
		Nodes:     []models.NodeRef{},
		Tools:     []models.ToolRef{},
		Services:  []models.ServiceRef{},
	}
	if strings.TrimSpace(request) == "" {
		return plan
	}
	text := strings.ToLower(request)

	for _, w := range p.store.Workflows() {
		if matchesWorkflow(text, w) {
			plan.Workflows = append(plan.Workflows, models.WorkflowRef{
				Name:         w.Name,
				SlashCommand: w.SlashCommand,
				FilePath:     w.FilePath,
				TurboEnabled: w.TurboEnabled,
			})
			plan.Confidence = max(plan.Confidence, ConfidenceWorkflow)
		}
	}

	for _, n := range p.store.Nodes() {
		if trigger, ok := firstTrigger(text, n.Triggers); ok {
			plan.Nodes = append(plan.Nodes, models.NodeRef{
				Name:           n.Name,
				Role:           n.Role,
				PrimaryTool:    n.PrimaryTool,
				TriggerMatched: trigger,
			})
			plan.Confidence = max(plan.Confidence, ConfidenceNode)
		}
	}

	for _, t := range p.store.Tools() {
		phrase := strings.ToLower(strings.ReplaceAll(t.Name, "_", " "))
		if phrase != "" && strings.Contains(text, phrase) {
			plan.Tools = append(plan.Tools, models.ToolRef{
				Name:     t.Name,
				FilePath: t.FilePath,
				Category: t.Category,
			})
			plan.Confidence = max(plan.Confidence, ConfidenceTool)
		}
	}

	plan.Services = matchServices(text, p.store.Services())
	return plan
}

func matchesWorkflow(text string, w models.Workflow) bool {
	if w.SlashCommand != "" && strings.Contains(text, strings.ToLower(w.SlashCommand)) {
		return true
	}
	if w.Name != "" && strings.Contains(text, strings.ToLower(w.Name)) {
		return true
	}
	return false
}

// firstTrigger returns the first trigger of a node found in text.
func firstTrigger(text string, triggers []string) (string, bool) {
	for _, trig := range triggers {
		kw := strings.ToLower(trig)
		if kw != "" && strings.Contains(text, kw) {
			return trig, true
		}
	}
	return "", false
}

// matchServices scans services in registry order. Once any category keyword
// appears in text, every service whose type is a category key is required,
// at most once per name.
func matchServices(text string, services []models.Service) []models.ServiceRef {
	out := []models.ServiceRef{}
	if !anyCategoryHit(text) {
		return out
	}
	seen := make(map[string]bool)
	for _, s := range services {
		if _, ok := serviceKeywords[s.Type]; !ok || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		out = append(out, models.ServiceRef{Name: s.Name, Type: s.Type, Endpoint: s.Endpoint})
	}
	return out
}

func anyCategoryHit(text string) bool {
	for _, kws := range serviceKeywords {
		if containsAny(text, kws) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
