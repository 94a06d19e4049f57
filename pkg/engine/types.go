package engine

import (
	"slices"
	"time"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// PlanUnit is one node of a workspace document: an area, goal, project,
// task or subtask.
type PlanUnit struct {
	// ID is unique within a plan, for example "goal:health/run".
	ID string `json:"id"`

	// Entity is the table the node maps to. Subtasks are tasks.
	Entity domain.EntityType `json:"entity"`

	// Key is the path of document keys leading to the node.
	Key string `json:"key"`

	Name string `json:"name"`

	Operation OperationType `json:"operation"`

	// EntityID is the matched row for update and noop units, and the new
	// row once a create unit has been applied.
	EntityID string `json:"entity_id,omitempty"`

	// Parent is the ID of the unit this node is created under.
	Parent string `json:"parent,omitempty"`

	Changes      []Change     `json:"changes,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`

	// ExecutionOrder is the DAG level; parents always precede children.
	ExecutionOrder int `json:"execution_order"`

	Status PlanStatus `json:"status"`
	Error  string     `json:"error,omitempty"`

	// Spec is the config.*Spec value the unit was planned from.
	Spec interface{} `json:"-"`
}

// Dependency is an edge of the execution graph.
type Dependency struct {
	TargetID string         `json:"target_id"`
	Type     DependencyType `json:"type"`
}

// Change is a field that differs between the document and the database.
type Change struct {
	Field  string `json:"field"`
	Before string `json:"before,omitempty"`
	After  string `json:"after"`
}

// Plan is the ordered set of units needed to make the database match a
// workspace document.
type Plan struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Sources   []string        `json:"sources,omitempty"`
	Units     []PlanUnit      `json:"units"`
	Summary   PlanSummary     `json:"summary"`
	Graph     *ExecutionGraph `json:"graph,omitempty"`
}

// PlanSummary counts units per operation.
type PlanSummary struct {
	Total    int `json:"total"`
	ToCreate int `json:"to_create"`
	ToUpdate int `json:"to_update"`
	NoChange int `json:"no_change"`
}

// HasChanges reports whether applying the plan would write anything.
func (p *Plan) HasChanges() bool {
	return p.Summary.ToCreate > 0 || p.Summary.ToUpdate > 0
}

// Unit returns the unit with the given ID.
func (p *Plan) Unit(id string) (*PlanUnit, bool) {
	for i := range p.Units {
		if p.Units[i].ID == id {
			return &p.Units[i], true
		}
	}
	return nil, false
}

func (p *Plan) summarize() {
	p.Summary = PlanSummary{Total: len(p.Units)}
	for _, unit := range p.Units {
		switch unit.Operation {
		case OperationCreate:
			p.Summary.ToCreate++
		case OperationUpdate:
			p.Summary.ToUpdate++
		case OperationNoop:
			p.Summary.NoChange++
		}
	}
}

// ExecutionGraph is the DAG computed from a plan's dependencies.
type ExecutionGraph struct {
	Nodes map[string]*GraphNode `json:"nodes"`
	Edges []GraphEdge           `json:"edges"`

	// Roots are the units with no dependencies.
	Roots []string `json:"roots"`

	// Depth is the number of levels.
	Depth int `json:"depth"`
}

// Levels groups node IDs by level, each level sorted.
func (g *ExecutionGraph) Levels() [][]string {
	levels := make([][]string, g.Depth)
	for id, node := range g.Nodes {
		levels[node.Level] = append(levels[node.Level], id)
	}
	for _, level := range levels {
		slices.Sort(level)
	}
	return levels
}

type GraphNode struct {
	ID           string   `json:"id"`
	Level        int      `json:"level"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

type GraphEdge struct {
	From string         `json:"from"`
	To   string         `json:"to"`
	Type DependencyType `json:"type"`
}

// ApplyResult reports what Apply did. Units carry their final status.
type ApplyResult struct {
	PlanID      string        `json:"plan_id"`
	Status      RunStatus     `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	Summary     RunSummary    `json:"summary"`
	Units       []PlanUnit    `json:"units"`

	// FailedUnit is the unit that stopped the run.
	FailedUnit string `json:"failed_unit,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RunSummary counts units per outcome. Noop units count as succeeded.
type RunSummary struct {
	Total     int `json:"total"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
