// Package scenarios runs scripted fleet scenarios described in YAML and
// checks their outcome.
package scenarios

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/robofleet/core/model"
	"github.com/kilianp07/robofleet/core/navgraph"
)

// TaskDef is a task submitted at a given simulation time.
type TaskDef struct {
	At       float64 `yaml:"at"`
	Robot    *int    `yaml:"robot,omitempty"`
	Target   int     `yaml:"target"`
	Priority float64 `yaml:"priority,omitempty"`
}

// Expected holds the checks applied after the run.
type Expected struct {
	Completed    int  `yaml:"completed"`
	MaxDeadlocks *int `yaml:"max_deadlocks,omitempty"`
	AllIdle      bool `yaml:"all_idle,omitempty"`
	EmptyQueue   bool `yaml:"empty_queue,omitempty"`
}

// Scenario describes a fleet run.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Graph is an inline graph document; GraphFile points to one relative
	// to the scenario file.
	Graph     map[string]any   `yaml:"graph,omitempty"`
	GraphFile string           `yaml:"graph_file,omitempty"`
	Robots    []model.VertexID `yaml:"robots"`
	Tasks     []TaskDef        `yaml:"tasks"`
	Duration  float64          `yaml:"duration"`
	Tick      float64          `yaml:"tick,omitempty"`
	Optimize  bool             `yaml:"optimize,omitempty"`
	Expected  Expected         `yaml:"expected"`

	dir string
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = filepath.Base(path)
	}
	sc.dir = filepath.Dir(path)
	return &sc, nil
}

// LoadGraph builds the navigation graph of the scenario.
func (sc *Scenario) LoadGraph() (*navgraph.Graph, error) {
	switch {
	case sc.GraphFile != "":
		p := sc.GraphFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(sc.dir, p)
		}
		return navgraph.Load(p)
	case sc.Graph != nil:
		b, err := yaml.Marshal(sc.Graph)
		if err != nil {
			return nil, err
		}
		return navgraph.Parse(b, navgraph.FormatYAML)
	default:
		return nil, fmt.Errorf("scenario %s: no graph", sc.Name)
	}
}
