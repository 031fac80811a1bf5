package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vulntor/conductor/pkg/plugin"
)

// Schedule is the resolved execution plan of a session. It is computed once
// before execution and read-only afterwards.
type Schedule struct {
	// Ordered respects the dependency partial order; ties are broken by
	// ascending priority, then registration order.
	Ordered []plugin.Descriptor
	Graph   *Graph
}

// NewSchedule builds the graph for descs and resolves its order.
func NewSchedule(descs []plugin.Descriptor) (*Schedule, error) {
	g, err := BuildGraph(descs)
	if err != nil {
		return nil, err
	}
	return &Schedule{
		Ordered: g.ResolveOrder(),
		Graph:   g,
	}, nil
}

// Names returns plugin names in execution order.
func (s *Schedule) Names() []string {
	names := make([]string, 0, len(s.Ordered))
	for _, d := range s.Ordered {
		names = append(names, d.Name)
	}
	return names
}

// Len returns the number of scheduled plugins.
func (s *Schedule) Len() int { return len(s.Ordered) }

// Layers groups plugins by dependency depth: layer 0 has no present
// dependencies, layer n depends on something in layer n-1. Within a layer
// plugins keep execution order.
func (s *Schedule) Layers() [][]string {
	depth := s.depths()
	var layers [][]string
	for _, d := range s.Ordered {
		l := depth[d.Name]
		for len(layers) <= l {
			layers = append(layers, nil)
		}
		layers[l] = append(layers[l], d.Name)
	}
	return layers
}

func (s *Schedule) depths() map[string]int {
	depth := make(map[string]int, len(s.Ordered))
	for _, d := range s.Ordered {
		level := 0
		for _, dep := range s.Graph.DependenciesOf(d.Name) {
			if depth[dep]+1 > level {
				level = depth[dep] + 1
			}
		}
		depth[d.Name] = level
	}
	return depth
}

// PlanEdge is one dependency in an exported plan.
type PlanEdge struct {
	Plugin    string `json:"plugin" yaml:"plugin"`
	Condition string `json:"condition" yaml:"condition"`
	Optional  bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	Missing   bool   `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// PlanNode is one plugin in an exported plan.
type PlanNode struct {
	Name      string     `json:"name" yaml:"name"`
	Category  string     `json:"category" yaml:"category"`
	Priority  int        `json:"priority" yaml:"priority"`
	Layer     int        `json:"layer" yaml:"layer"`
	Timeout   string     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	DependsOn []PlanEdge `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Dependents are the scheduled plugins that wait on this one.
	Dependents []string `json:"dependents,omitempty" yaml:"dependents,omitempty"`
}

// Plan is a serializable view of a Schedule.
type Plan struct {
	Order  []string   `json:"order" yaml:"order"`
	Layers [][]string `json:"layers" yaml:"layers"`
	Nodes  []PlanNode `json:"nodes" yaml:"nodes"`
}

// Plan returns the serializable view of s.
func (s *Schedule) Plan() Plan {
	depth := s.depths()
	plan := Plan{
		Order:  s.Names(),
		Layers: s.Layers(),
		Nodes:  make([]PlanNode, 0, len(s.Ordered)),
	}

	for _, d := range s.Ordered {
		node := PlanNode{
			Name:     d.Name,
			Category: string(d.Category),
			Priority: d.Priority,
			Layer:    depth[d.Name],
		}
		if d.Timeout > 0 {
			node.Timeout = d.Timeout.String()
		}
		if dependents := s.Graph.DependentsOf(d.Name); len(dependents) > 0 {
			node.Dependents = dependents
		}
		missing := make(map[string]bool)
		for _, dep := range s.Graph.MissingOf(d.Name) {
			missing[dep.Plugin] = true
		}
		for _, dep := range d.Dependencies {
			node.DependsOn = append(node.DependsOn, PlanEdge{
				Plugin:    dep.Plugin,
				Condition: dep.Describe(),
				Optional:  dep.Optional,
				Missing:   missing[dep.Plugin],
			})
		}
		plan.Nodes = append(plan.Nodes, node)
	}
	return plan
}

// WritePlan encodes plan as "json" or "yaml".
func WritePlan(w io.Writer, plan Plan, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plan); err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(plan); err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported plan format: %s (use yaml or json)", format)
	}
}

// SavePlanToFile writes plan to path; the format follows the extension.
func SavePlanToFile(plan Plan, path string) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext != "yaml" && ext != "yml" && ext != "json" {
		return fmt.Errorf("unsupported file format: .%s (use .yaml, .yml, or .json)", ext)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := WritePlan(f, plan, ext); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
