package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// Locations scanned by the Discoverer, relative to the root path.
const (
	NodeRegistryFile = "HeadyAcademy/Node_Registry.yaml"
	WorkflowsDir     = ".windsurf/workflows"
	ToolsDir         = "HeadyAcademy/Tools"
)

const turboMarker = "// turbo"

// Discoverer builds a registry snapshot by scanning configuration files under
// a root directory. A missing or unreadable source is logged and skipped; it
// never fails discovery as a whole.
type Discoverer struct {
	root   string
	logger *zap.Logger
}

// NewDiscoverer creates a Discoverer rooted at root. A nil logger discards
// output.
func NewDiscoverer(root string, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{root: root, logger: logger.Named("discovery")}
}

// Discover scans every source and returns the resulting snapshot. Records
// appear in the order their sources are scanned: sorted file names within
// each directory.
func (d *Discoverer) Discover() *Snapshot {
	snap := &Snapshot{
		Nodes:     d.DiscoverNodes(),
		Workflows: d.DiscoverWorkflows(),
		Skills:    BuiltinSkills(),
		Services:  BuiltinServices(),
		Tools:     d.DiscoverTools(),
	}
	d.logger.Info("discovery complete",
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("workflows", len(snap.Workflows)),
		zap.Int("skills", len(snap.Skills)),
		zap.Int("services", len(snap.Services)),
		zap.Int("tools", len(snap.Tools)),
	)
	return snap
}

// nodeRegistryFile is the layout of Node_Registry.yaml.
type nodeRegistryFile struct {
	Nodes []struct {
		Name            string   `yaml:"name"`
		Role            string   `yaml:"role"`
		PrimaryTool     string   `yaml:"primary_tool"`
		BehaviorProfile string   `yaml:"behavior_profile"`
		TriggerOn       []string `yaml:"trigger_on"`
	} `yaml:"nodes"`
}

// DiscoverNodes reads node definitions from Node_Registry.yaml. Later entries
// with a duplicate name replace earlier ones in place.
func (d *Discoverer) DiscoverNodes() []models.Node {
	path := filepath.Join(d.root, filepath.FromSlash(NodeRegistryFile))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			d.logger.Warn("node registry not found", zap.String("path", path))
		} else {
			d.logger.Warn("reading node registry", zap.String("path", path), zap.Error(err))
		}
		return nil
	}

	var doc nodeRegistryFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		d.logger.Warn("parsing node registry", zap.String("path", path), zap.Error(err))
		return nil
	}

	c := newCollection[models.Node]()
	for _, n := range doc.Nodes {
		if n.Name == "" {
			continue
		}
		c.put(n.Name, models.Node{
			Name:            n.Name,
			Role:            n.Role,
			PrimaryTool:     n.PrimaryTool,
			BehaviorProfile: n.BehaviorProfile,
			Triggers:        n.TriggerOn,
			Status:          models.NodeAvailable,
		})
	}
	return c.list()
}

// workflowFrontMatter is the optional YAML header of a workflow document.
type workflowFrontMatter struct {
	Description string `yaml:"description"`
	Trigger     string `yaml:"trigger"`
}

// DiscoverWorkflows reads every *.md file in the workflows directory.
func (d *Discoverer) DiscoverWorkflows() []models.Workflow {
	dir := filepath.Join(d.root, filepath.FromSlash(WorkflowsDir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		d.logger.Warn("workflows directory not readable", zap.String("path", dir), zap.Error(err))
		return nil
	}

	var out []models.Workflow
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		wf, err := parseWorkflow(path)
		if err != nil {
			d.logger.Warn("skipping workflow", zap.String("path", path), zap.Error(err))
			continue
		}
		out = append(out, wf)
	}
	return out
}

func parseWorkflow(path string) (models.Workflow, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.Workflow{}, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	fm, err := parseFrontMatter(content)
	if err != nil {
		return models.Workflow{}, fmt.Errorf("parsing front matter: %w", err)
	}
	desc := fm.Description
	if desc == "" {
		desc = "No description"
	}

	return models.Workflow{
		Name:           name,
		Description:    desc,
		FilePath:       path,
		SlashCommand:   "/" + name,
		TriggerKeyword: fm.Trigger,
		TurboEnabled:   bytes.Contains(content, []byte(turboMarker)),
		Status:         models.NodeAvailable,
	}, nil
}

// parseFrontMatter decodes a leading "---" delimited YAML block. Content
// without one yields an empty front matter.
func parseFrontMatter(content []byte) (workflowFrontMatter, error) {
	var fm workflowFrontMatter
	if !bytes.HasPrefix(content, []byte("---")) {
		return fm, nil
	}
	parts := bytes.SplitN(content, []byte("---"), 3)
	if len(parts) < 3 {
		return fm, nil
	}
	if err := yaml.Unmarshal(parts[1], &fm); err != nil {
		return fm, err
	}
	return fm, nil
}

// DiscoverTools walks the tools directory for Python scripts. The first
// sub-directory under the tools root is the category; scripts directly under
// it are "general". Files starting with "__" are skipped.
func (d *Discoverer) DiscoverTools() []models.Tool {
	dir := filepath.Join(d.root, filepath.FromSlash(ToolsDir))
	if _, err := os.Stat(dir); err != nil {
		d.logger.Warn("tools directory not readable", zap.String("path", dir), zap.Error(err))
		return nil
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || filepath.Ext(path) != ".py" || strings.HasPrefix(e.Name(), "__") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		d.logger.Warn("walking tools directory", zap.String("path", dir), zap.Error(err))
	}
	sort.Strings(paths)

	c := newCollection[models.Tool]()
	for _, path := range paths {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			continue
		}
		category := "general"
		if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
			category = parts[0]
		}
		name := strings.TrimSuffix(filepath.Base(path), ".py")
		c.put(name, models.Tool{
			Name:     name,
			Category: category,
			FilePath: path,
			Status:   models.NodeAvailable,
		})
	}
	return c.list()
}

// BuiltinSkills returns the skills every registry carries.
func BuiltinSkills() []models.Skill {
	return []models.Skill{
		{Name: "hc", Description: "Heady Conductor orchestration", Category: "orchestration", Status: models.NodeAvailable},
	}
}

// BuiltinServices returns the services the system is known to depend on.
func BuiltinServices() []models.Service {
	return []models.Service{
		{Name: "heady-manager", Type: "api", Endpoint: "http://localhost:3300", Port: 3300, HealthCheckURL: "http://localhost:3300/api/health", Status: models.ServiceUnknown},
		{Name: "heady-frontend", Type: "web", Endpoint: "http://localhost:3000", Port: 3000, Status: models.ServiceUnknown},
		{Name: "python-worker", Type: "worker", Endpoint: "http://localhost:5000", Port: 5000, Status: models.ServiceUnknown},
		{Name: "mcp-server", Type: "mcp", Endpoint: "stdio", Status: models.ServiceUnknown},
		{Name: "postgres", Type: "database", Port: 5432, Status: models.ServiceUnknown},
		{Name: "redis", Type: "cache", Port: 6379, Status: models.ServiceUnknown},
	}
}
