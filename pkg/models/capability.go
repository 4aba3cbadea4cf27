package models

// Variant identifies one of the five capability collections held by the
// registry. The string value is also the top-level key in the snapshot file.
type Variant string

const (
	VariantNodes     Variant = "nodes"
	VariantWorkflows Variant = "workflows"
	VariantSkills    Variant = "skills"
	VariantServices  Variant = "services"
	VariantTools     Variant = "tools"
)

// AllVariants lists the variants in the order they are matched, persisted and
// reported.
var AllVariants = []Variant{
	VariantNodes,
	VariantWorkflows,
	VariantSkills,
	VariantServices,
	VariantTools,
}

// Valid reports whether v names a known capability collection.
func (v Variant) Valid() bool {
	for _, known := range AllVariants {
		if v == known {
			return true
		}
	}
	return false
}

// Node status values.
const (
	NodeAvailable = "available"
	NodeActive    = "active"
)

// Service status values.
const (
	ServiceHealthy   = "healthy"
	ServiceUnhealthy = "unhealthy"
	ServiceUnknown   = "unknown"
)

// Node is a named agent role that is invoked when one of its trigger keywords
// appears in a request.
type Node struct {
	Name            string   `json:"name" yaml:"name"`
	Role            string   `json:"role" yaml:"role"`
	PrimaryTool     string   `json:"primary_tool" yaml:"primary_tool"`
	BehaviorProfile string   `json:"behavior_profile,omitempty" yaml:"behavior_profile,omitempty"`
	Triggers        []string `json:"trigger_on,omitempty" yaml:"trigger_on,omitempty"`
	Status          string   `json:"status" yaml:"status"`
	LastInvoked     string   `json:"last_invoked,omitempty" yaml:"last_invoked,omitempty"`
}

// Workflow is a documented procedure addressable by slash command.
type Workflow struct {
	Name           string `json:"name" yaml:"name"`
	Description    string `json:"description" yaml:"description"`
	FilePath       string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	SlashCommand   string `json:"slash_command" yaml:"slash_command"`
	TriggerKeyword string `json:"trigger_keyword,omitempty" yaml:"trigger_keyword,omitempty"`
	TurboEnabled   bool   `json:"turbo_enabled" yaml:"turbo_enabled"`
	Status         string `json:"status" yaml:"status"`
}

// Skill is an assistant skill. Skills are listed and queried but never
// dispatched.
type Skill struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
	Status      string `json:"status" yaml:"status"`
}

// Service is a long-running process the system depends on.
type Service struct {
	Name           string `json:"name" yaml:"name"`
	Type           string `json:"type" yaml:"type"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Port           int    `json:"port,omitempty" yaml:"port,omitempty"`
	HealthCheckURL string `json:"health_check_url,omitempty" yaml:"health_check_url,omitempty"`
	Status         string `json:"status" yaml:"status"`
}

// Tool is an executable helper script.
type Tool struct {
	Name         string   `json:"name" yaml:"name"`
	Category     string   `json:"category" yaml:"category"`
	FilePath     string   `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Status       string   `json:"status" yaml:"status"`
}

// QueryResult groups capability records matched by a registry query.
// Every list is non-nil so that empty results serialise as [].
type QueryResult struct {
	Nodes     []Node     `json:"nodes"`
	Workflows []Workflow `json:"workflows"`
	Skills    []Skill    `json:"skills"`
	Services  []Service  `json:"services"`
	Tools     []Tool     `json:"tools"`
}

// NewQueryResult returns a QueryResult with empty, non-nil lists.
func NewQueryResult() QueryResult {
	return QueryResult{
		Nodes:     []Node{},
		Workflows: []Workflow{},
		Skills:    []Skill{},
		Services:  []Service{},
		Tools:     []Tool{},
	}
}

// Total returns the number of records across all groups.
func (q QueryResult) Total() int {
	return len(q.Nodes) + len(q.Workflows) + len(q.Skills) + len(q.Services) + len(q.Tools)
}

// RegistrySummary is the overview printed by --summary.
type RegistrySummary struct {
	TotalCapabilities int      `json:"total_capabilities"`
	Nodes             int      `json:"nodes"`
	Workflows         int      `json:"workflows"`
	Skills            int      `json:"skills"`
	Services          int      `json:"services"`
	Tools             int      `json:"tools"`
	NodeList          []string `json:"node_list"`
	WorkflowList      []string `json:"workflow_list"`
	SkillList         []string `json:"skill_list"`
	ServiceList       []string `json:"service_list"`
	ToolCategories    []string `json:"tool_categories"`
}
