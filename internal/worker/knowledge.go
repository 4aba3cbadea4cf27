package worker

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Concept is a vertex of the knowledge graph.
type Concept struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// KnowledgeHit is one knowledge_query result.
type KnowledgeHit struct {
	ID      string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Content string  `json:"content"`
	Type    string  `json:"type"`
}

// RelatedConcept is one related_concepts result.
type RelatedConcept struct {
	Concept  string `json:"concept"`
	Depth    int    `json:"depth"`
	Relation string `json:"relation"`
}

type edge struct {
	to       string
	relation string
}

// KnowledgeGraph is a small directed concept graph with documents attached
// as vertices. Queries use term overlap instead of embeddings.
type KnowledgeGraph struct {
	mu         sync.RWMutex
	concepts   map[string]Concept
	order      []string
	edges      map[string][]edge
	documents  int
	queries    int
	lastUpdate time.Time
	now        func() time.Time
}

// seedConcepts is the core knowledge every graph starts with.
var seedConcepts = []struct {
	name, typ, desc string
	connections     []string
}{
	{"HeadySoul", "governance", "Ultimate governor with mission, values, ethics", []string{"Intelligence Engine", "HCFullPipeline", "HCBrain"}},
	{"Intelligence Protocol", "protocol", "DAG scheduler, priority queue, critical path optimization", []string{"Task Scheduler", "Parallel Allocator", "Speed Controller"}},
	{"SoulOrchestrator", "orchestrator", "Proactive global orchestrator with goal decomposition", []string{"Goal Decomposer", "Value Engine", "Parallel Engine"}},
	{"Builder Worker", "coordination", "Coordinator dispatching tasks to the manager, jules, observer and atlas workers", []string{"HeadyManager-Core", "JULES-AI", "OBSERVER", "ATLAS"}},
	{"Sacred Geometry", "philosophy", "Organic, breathing, deterministic, self-correcting architecture", []string{"HeadySoul", "System Design", "User Experience"}},
}

// NewKnowledgeGraph returns a graph seeded with the core concepts. Edges are
// only added between seeded concepts.
func NewKnowledgeGraph(now func() time.Time) *KnowledgeGraph {
	if now == nil {
		now = time.Now
	}
	kg := &KnowledgeGraph{
		concepts:   make(map[string]Concept),
		edges:      make(map[string][]edge),
		now:        now,
		lastUpdate: now(),
	}
	for _, c := range seedConcepts {
		kg.addConcept(Concept{Name: c.name, Type: c.typ, Description: c.desc})
	}
	for _, c := range seedConcepts {
		for _, to := range c.connections {
			if _, ok := kg.concepts[to]; ok {
				kg.edges[c.name] = append(kg.edges[c.name], edge{to: to, relation: "informs"})
			}
		}
	}
	return kg
}

func (kg *KnowledgeGraph) addConcept(c Concept) {
	if _, ok := kg.concepts[c.Name]; !ok {
		kg.order = append(kg.order, c.Name)
	}
	kg.concepts[c.Name] = c
}

// AddDocument stores content as a document vertex.
func (kg *KnowledgeGraph) AddDocument(id, content string, metadata map[string]any) {
	kg.mu.Lock()
	defer kg.mu.Unlock()

	typ := "document"
	if t, ok := metadata["type"].(string); ok && t != "" {
		typ = t
	}
	desc := content
	if len(desc) > 500 {
		desc = desc[:500]
	}
	if _, exists := kg.concepts[id]; !exists {
		kg.documents++
	}
	kg.addConcept(Concept{Name: id, Type: typ, Description: desc, Metadata: metadata})
	kg.lastUpdate = kg.now()
}

// Query scores every vertex by the fraction of query terms found in its name
// or description and returns the best limit hits. Ties keep insertion order.
func (kg *KnowledgeGraph) Query(query string, limit int) []KnowledgeHit {
	kg.mu.Lock()
	kg.queries++
	kg.mu.Unlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || limit <= 0 {
		return []KnowledgeHit{}
	}

	kg.mu.RLock()
	defer kg.mu.RUnlock()

	hits := []KnowledgeHit{}
	for _, name := range kg.order {
		c := kg.concepts[name]
		text := strings.ToLower(c.Name + " " + c.Description)
		matched := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, KnowledgeHit{
			ID:      c.Name,
			Score:   float64(matched) / float64(len(terms)),
			Content: c.Description,
			Type:    c.Type,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Related walks outgoing edges depth-first from concept, up to maxDepth.
func (kg *KnowledgeGraph) Related(concept string, maxDepth int) []RelatedConcept {
	kg.mu.RLock()
	defer kg.mu.RUnlock()

	out := []RelatedConcept{}
	if _, ok := kg.concepts[concept]; !ok {
		return out
	}
	visited := map[string]bool{}
	var walk func(name string, depth int)
	walk = func(name string, depth int) {
		if depth > maxDepth || visited[name] {
			return
		}
		visited[name] = true
		for _, e := range kg.edges[name] {
			if visited[e.to] {
				continue
			}
			out = append(out, RelatedConcept{Concept: e.to, Depth: depth, Relation: e.relation})
			walk(e.to, depth+1)
		}
	}
	walk(concept, 0)
	return out
}

// Stats summarizes the graph.
func (kg *KnowledgeGraph) Stats() map[string]any {
	kg.mu.RLock()
	defer kg.mu.RUnlock()

	edges := 0
	for _, es := range kg.edges {
		edges += len(es)
	}
	return map[string]any{
		"total_nodes":    len(kg.concepts),
		"total_edges":    edges,
		"document_count": kg.documents,
		"last_update":    kg.lastUpdate.UTC().Format(time.RFC3339),
		"query_count":    kg.queries,
	}
}
