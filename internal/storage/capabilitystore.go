package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// CapabilityStore holds the registry of nodes, workflows, skills, services and
// tools. Records keep their insertion order, which is the order the planner
// scans them in. Every mutation is applied to a single record and persisted
// before it becomes visible; a failed write leaves the record unchanged.
type CapabilityStore interface {
	// Load replaces the in-memory records with the persisted snapshot. It
	// returns ErrSnapshotMissing or an error wrapping ErrStoreCorrupt when
	// the caller must rediscover instead.
	Load() error
	// Save persists every record.
	Save() error
	// Replace swaps in a complete snapshot and persists it.
	Replace(snap *Snapshot) error
	// Snapshot returns a copy of all records.
	Snapshot() *Snapshot

	Node(name string) (models.Node, bool)
	Workflow(name string) (models.Workflow, bool)
	Skill(name string) (models.Skill, bool)
	Service(name string) (models.Service, bool)
	Tool(name string) (models.Tool, bool)

	Nodes() []models.Node
	Workflows() []models.Workflow
	Skills() []models.Skill
	Services() []models.Service
	Tools() []models.Tool

	PutNode(n models.Node) error
	PutWorkflow(w models.Workflow) error
	PutSkill(s models.Skill) error
	PutService(s models.Service) error
	PutTool(t models.Tool) error

	// Query performs a case-insensitive substring search. An empty variant
	// searches every collection. It never fails; no match yields empty lists.
	Query(query string, variant models.Variant) models.QueryResult

	// UpdateStatus sets a record's status (and, for nodes, lastInvoked when
	// non-empty) and persists it. An absent name is a no-op.
	UpdateStatus(variant models.Variant, name, status, lastInvoked string) error
	UpdateNodeStatus(name, status, lastInvoked string) error
	UpdateServiceStatus(name, status string) error

	Summary() models.RegistrySummary
	Count() int
	Close() error
}

// collection is an insertion-ordered, name-keyed set of records.
type collection[T any] struct {
	order []string
	items map[string]T
}

func newCollection[T any]() collection[T] {
	return collection[T]{items: make(map[string]T)}
}

func collectionOf[T any](records []T, name func(T) string) collection[T] {
	c := newCollection[T]()
	for _, r := range records {
		c.put(name(r), r)
	}
	return c
}

// put inserts or replaces a record and returns its position.
func (c *collection[T]) put(name string, r T) int {
	if _, ok := c.items[name]; !ok {
		c.order = append(c.order, name)
	}
	c.items[name] = r
	return c.index(name)
}

func (c *collection[T]) get(name string) (T, bool) {
	r, ok := c.items[name]
	return r, ok
}

func (c *collection[T]) index(name string) int {
	for i, n := range c.order {
		if n == name {
			return i
		}
	}
	return -1
}

func (c *collection[T]) list() []T {
	out := make([]T, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.items[n])
	}
	return out
}

func (c *collection[T]) names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

type capabilityStore struct {
	mu      sync.RWMutex
	backend Backend

	nodes     collection[models.Node]
	workflows collection[models.Workflow]
	skills    collection[models.Skill]
	services  collection[models.Service]
	tools     collection[models.Tool]

	// written is the metadata timestamp of the last snapshot this store
	// wrote or loaded.
	written time.Time
}

// NewCapabilityStore creates an empty store that persists through backend.
func NewCapabilityStore(backend Backend) CapabilityStore {
	return &capabilityStore{
		backend:   backend,
		nodes:     newCollection[models.Node](),
		workflows: newCollection[models.Workflow](),
		skills:    newCollection[models.Skill](),
		services:  newCollection[models.Service](),
		tools:     newCollection[models.Tool](),
	}
}

func (s *capabilityStore) Load() error {
	_, err := s.load(false)
	return err
}

// reloadIfChanged loads the persisted snapshot unless it is the one this store
// last wrote or loaded. It reports whether the records were replaced.
func (s *capabilityStore) reloadIfChanged() (bool, error) {
	return s.load(true)
}

// load reads the backend under the write lock so a concurrent mutation cannot
// be overwritten by an older snapshot read before it.
func (s *capabilityStore) load(skipUnchanged bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.backend.Load()
	if err != nil {
		return false, err
	}
	stamp := snap.Metadata.LastUpdated
	if skipUnchanged && !stamp.IsZero() && stamp.Equal(s.written) {
		return false, nil
	}
	s.setLocked(snap)
	s.written = stamp
	return true, nil
}

func (s *capabilityStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAllLocked(s.snapshotLocked())
}

func (s *capabilityStore) saveAllLocked(snap *Snapshot) error {
	if err := s.backend.SaveAll(snap); err != nil {
		return err
	}
	s.written = snap.Metadata.LastUpdated
	return nil
}

func (s *capabilityStore) Replace(snap *Snapshot) error {
	if snap == nil {
		return errors.New("replacing registry: snapshot is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveAllLocked(cloneSnapshot(snap)); err != nil {
		return fmt.Errorf("replacing registry: %w", err)
	}
	s.setLocked(cloneSnapshot(snap))
	return nil
}

func (s *capabilityStore) setLocked(snap *Snapshot) {
	s.nodes = collectionOf(snap.Nodes, func(n models.Node) string { return n.Name })
	s.workflows = collectionOf(snap.Workflows, func(w models.Workflow) string { return w.Name })
	s.skills = collectionOf(snap.Skills, func(sk models.Skill) string { return sk.Name })
	s.services = collectionOf(snap.Services, func(sv models.Service) string { return sv.Name })
	s.tools = collectionOf(snap.Tools, func(t models.Tool) string { return t.Name })
}

func (s *capabilityStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *capabilityStore) snapshotLocked() *Snapshot {
	return &Snapshot{
		Nodes:     cloneNodes(s.nodes.list()),
		Workflows: s.workflows.list(),
		Skills:    s.skills.list(),
		Services:  s.services.list(),
		Tools:     cloneTools(s.tools.list()),
	}
}

func (s *capabilityStore) Node(name string) (models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes.get(name)
	if ok {
		n.Triggers = cloneStrings(n.Triggers)
	}
	return n, ok
}

func (s *capabilityStore) Workflow(name string) (models.Workflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workflows.get(name)
}

func (s *capabilityStore) Skill(name string) (models.Skill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skills.get(name)
}

func (s *capabilityStore) Service(name string) (models.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services.get(name)
}

func (s *capabilityStore) Tool(name string) (models.Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools.get(name)
	if ok {
		t.Dependencies = cloneStrings(t.Dependencies)
	}
	return t, ok
}

func (s *capabilityStore) Nodes() []models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNodes(s.nodes.list())
}

func (s *capabilityStore) Workflows() []models.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workflows.list()
}

func (s *capabilityStore) Skills() []models.Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skills.list()
}

func (s *capabilityStore) Services() []models.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services.list()
}

func (s *capabilityStore) Tools() []models.Tool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTools(s.tools.list())
}

func (s *capabilityStore) PutNode(n models.Node) error {
	if n.Name == "" {
		return errors.New("adding node: name must not be empty")
	}
	if n.Status == "" {
		n.Status = models.NodeAvailable
	}
	n.Triggers = cloneStrings(n.Triggers)
	return putRecord(s, &s.nodes, models.VariantNodes, n.Name, n)
}

func (s *capabilityStore) PutWorkflow(w models.Workflow) error {
	if w.Name == "" {
		return errors.New("adding workflow: name must not be empty")
	}
	if w.SlashCommand == "" {
		w.SlashCommand = "/" + w.Name
	}
	if w.Status == "" {
		w.Status = models.NodeAvailable
	}
	return putRecord(s, &s.workflows, models.VariantWorkflows, w.Name, w)
}

func (s *capabilityStore) PutSkill(sk models.Skill) error {
	if sk.Name == "" {
		return errors.New("adding skill: name must not be empty")
	}
	if sk.Status == "" {
		sk.Status = models.NodeAvailable
	}
	return putRecord(s, &s.skills, models.VariantSkills, sk.Name, sk)
}

func (s *capabilityStore) PutService(sv models.Service) error {
	if sv.Name == "" {
		return errors.New("adding service: name must not be empty")
	}
	if sv.Status == "" {
		sv.Status = models.ServiceUnknown
	}
	return putRecord(s, &s.services, models.VariantServices, sv.Name, sv)
}

func (s *capabilityStore) PutTool(t models.Tool) error {
	if t.Name == "" {
		return errors.New("adding tool: name must not be empty")
	}
	if t.Status == "" {
		t.Status = models.NodeAvailable
	}
	t.Dependencies = cloneStrings(t.Dependencies)
	return putRecord(s, &s.tools, models.VariantTools, t.Name, t)
}

// saveRecordLocked persists one record along with the snapshot it belongs to.
func (s *capabilityStore) saveRecordLocked(variant models.Variant, name string, seq int, r any) error {
	snap := s.snapshotLocked()
	if err := s.backend.SaveRecord(variant, name, seq, r, snap); err != nil {
		return err
	}
	if !snap.Metadata.LastUpdated.IsZero() {
		s.written = snap.Metadata.LastUpdated
	}
	return nil
}

// putRecord inserts or replaces one record and persists it, restoring the
// previous state if the write fails.
func putRecord[T any](s *capabilityStore, c *collection[T], variant models.Variant, name string, r T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := c.get(name)
	prevOrder := c.names()
	seq := c.put(name, r)

	if err := s.saveRecordLocked(variant, name, seq, r); err != nil {
		if existed {
			c.items[name] = prev
		} else {
			delete(c.items, name)
			c.order = prevOrder
		}
		return fmt.Errorf("saving %s %q: %w", strings.TrimSuffix(string(variant), "s"), name, err)
	}
	return nil
}

func (s *capabilityStore) UpdateStatus(variant models.Variant, name, status, lastInvoked string) error {
	switch variant {
	case models.VariantNodes:
		return updateRecord(s, &s.nodes, variant, name, func(n *models.Node) {
			n.Status = status
			if lastInvoked != "" {
				n.LastInvoked = lastInvoked
			}
		})
	case models.VariantWorkflows:
		return updateRecord(s, &s.workflows, variant, name, func(w *models.Workflow) { w.Status = status })
	case models.VariantSkills:
		return updateRecord(s, &s.skills, variant, name, func(sk *models.Skill) { sk.Status = status })
	case models.VariantServices:
		return updateRecord(s, &s.services, variant, name, func(sv *models.Service) { sv.Status = status })
	case models.VariantTools:
		return updateRecord(s, &s.tools, variant, name, func(t *models.Tool) { t.Status = status })
	default:
		return fmt.Errorf("updating status: unknown variant %q", variant)
	}
}

func (s *capabilityStore) UpdateNodeStatus(name, status, lastInvoked string) error {
	return s.UpdateStatus(models.VariantNodes, name, status, lastInvoked)
}

func (s *capabilityStore) UpdateServiceStatus(name, status string) error {
	return s.UpdateStatus(models.VariantServices, name, status, "")
}

// updateRecord mutates a copy of the named record, persists it, and only then
// commits it to the collection.
func updateRecord[T any](s *capabilityStore, c *collection[T], variant models.Variant, name string, mutate func(*T)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := c.get(name)
	if !ok {
		return nil
	}
	next := prev
	mutate(&next)
	c.items[name] = next

	if err := s.saveRecordLocked(variant, name, c.index(name), next); err != nil {
		c.items[name] = prev
		return fmt.Errorf("persisting status of %q: %w", name, err)
	}
	return nil
}

func (s *capabilityStore) Query(query string, variant models.Variant) models.QueryResult {
	res := models.NewQueryResult()
	q := strings.ToLower(query)
	all := variant == ""

	s.mu.RLock()
	defer s.mu.RUnlock()

	if all || variant == models.VariantNodes {
		for _, n := range s.nodes.list() {
			if containsFold(q, n.Name, n.Role) || anyContainsFold(q, n.Triggers) {
				n.Triggers = cloneStrings(n.Triggers)
				res.Nodes = append(res.Nodes, n)
			}
		}
	}
	if all || variant == models.VariantWorkflows {
		for _, w := range s.workflows.list() {
			if containsFold(q, w.Name, w.Description, w.SlashCommand, w.TriggerKeyword) {
				res.Workflows = append(res.Workflows, w)
			}
		}
	}
	if all || variant == models.VariantSkills {
		for _, sk := range s.skills.list() {
			if containsFold(q, sk.Name, sk.Description, sk.Category) {
				res.Skills = append(res.Skills, sk)
			}
		}
	}
	if all || variant == models.VariantServices {
		for _, sv := range s.services.list() {
			if containsFold(q, sv.Name, sv.Type) {
				res.Services = append(res.Services, sv)
			}
		}
	}
	if all || variant == models.VariantTools {
		for _, t := range s.tools.list() {
			if containsFold(q, t.Name, t.Category, t.Description) {
				t.Dependencies = cloneStrings(t.Dependencies)
				res.Tools = append(res.Tools, t)
			}
		}
	}
	return res
}

func containsFold(lowerQuery string, fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), lowerQuery) {
			return true
		}
	}
	return false
}

func anyContainsFold(lowerQuery string, fields []string) bool {
	return containsFold(lowerQuery, fields...)
}

func (s *capabilityStore) Summary() models.RegistrySummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	catSet := make(map[string]struct{})
	for _, t := range s.tools.list() {
		catSet[t.Category] = struct{}{}
	}
	categories := make([]string, 0, len(catSet))
	for c := range catSet {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	return models.RegistrySummary{
		TotalCapabilities: s.countLocked(),
		Nodes:             len(s.nodes.order),
		Workflows:         len(s.workflows.order),
		Skills:            len(s.skills.order),
		Services:          len(s.services.order),
		Tools:             len(s.tools.order),
		NodeList:          s.nodes.names(),
		WorkflowList:      s.workflows.names(),
		SkillList:         s.skills.names(),
		ServiceList:       s.services.names(),
		ToolCategories:    categories,
	}
}

func (s *capabilityStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked()
}

func (s *capabilityStore) countLocked() int {
	return len(s.nodes.order) + len(s.workflows.order) + len(s.skills.order) +
		len(s.services.order) + len(s.tools.order)
}

func (s *capabilityStore) Close() error {
	return s.backend.Close()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneNodes(in []models.Node) []models.Node {
	for i := range in {
		in[i].Triggers = cloneStrings(in[i].Triggers)
	}
	return in
}

func cloneTools(in []models.Tool) []models.Tool {
	for i := range in {
		in[i].Dependencies = cloneStrings(in[i].Dependencies)
	}
	return in
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	cp := &Snapshot{
		Metadata:  s.Metadata,
		Nodes:     cloneNodes(append([]models.Node(nil), s.Nodes...)),
		Workflows: append([]models.Workflow(nil), s.Workflows...),
		Skills:    append([]models.Skill(nil), s.Skills...),
		Services:  append([]models.Service(nil), s.Services...),
		Tools:     cloneTools(append([]models.Tool(nil), s.Tools...)),
	}
	return cp
}
