package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/evorbrain/evorbrain/pkg/domain"
)

// DAGBuilder builds the execution graph of a plan. It rejects unknown and
// circular dependencies and assigns each unit a level; a unit's level is
// one more than the deepest unit it depends on.
type DAGBuilder struct {
	units map[string]*PlanUnit

	// adjacencyList maps a unit to the units that depend on it.
	adjacencyList map[string][]string

	// reverseAdjacencyList maps a unit to the units it depends on.
	reverseAdjacencyList map[string][]string

	inDegree map[string]int
	levels   [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		units:                make(map[string]*PlanUnit),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]string),
		inDegree:             make(map[string]int),
		levels:               make([][]string, 0),
	}
}

// BuildGraph constructs the execution graph and writes each unit's level
// into its ExecutionOrder.
func (b *DAGBuilder) BuildGraph(units []PlanUnit) (*ExecutionGraph, error) {
	if len(units) == 0 {
		return &ExecutionGraph{
			Nodes: make(map[string]*GraphNode),
			Edges: make([]GraphEdge, 0),
			Roots: make([]string, 0),
			Depth: 0,
		}, nil
	}

	if err := b.initialize(units); err != nil {
		return nil, err
	}
	if err := b.detectCycles(); err != nil {
		return nil, err
	}
	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.buildExecutionGraph(), nil
}

func (b *DAGBuilder) initialize(units []PlanUnit) error {
	for i := range units {
		unit := &units[i]
		if unit.ID == "" {
			return graphError("plan unit has empty ID")
		}
		if _, exists := b.units[unit.ID]; exists {
			return graphError(fmt.Sprintf("duplicate plan unit ID: %s", unit.ID))
		}

		b.units[unit.ID] = unit
		b.adjacencyList[unit.ID] = make([]string, 0)
		b.reverseAdjacencyList[unit.ID] = make([]string, 0)
		b.inDegree[unit.ID] = 0
	}

	for _, id := range b.sortedIDs() {
		unit := b.units[id]
		for _, dep := range unit.Dependencies {
			if _, exists := b.units[dep.TargetID]; !exists {
				return graphError(fmt.Sprintf("plan unit %s depends on non-existent unit %s", unit.ID, dep.TargetID))
			}

			b.adjacencyList[dep.TargetID] = append(b.adjacencyList[dep.TargetID], unit.ID)
			b.reverseAdjacencyList[unit.ID] = append(b.reverseAdjacencyList[unit.ID], dep.TargetID)
			b.inDegree[unit.ID]++
		}
	}

	return nil
}

func (b *DAGBuilder) sortedIDs() []string {
	ids := make([]string, 0, len(b.units))
	for id := range b.units {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// detectCycles runs a depth-first search from every unvisited unit.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range b.sortedIDs() {
		if visited[id] {
			continue
		}
		if cycle := b.detectCyclesUtil(id, visited, recStack, nil); cycle != nil {
			return graphError(fmt.Sprintf("circular dependency detected: %s", formatCycle(cycle)))
		}
	}

	return nil
}

func (b *DAGBuilder) detectCyclesUtil(nodeID string, visited, recStack map[string]bool, path []string) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle := b.detectCyclesUtil(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			start := slices.Index(path, dependent)
			if start >= 0 {
				return append(slices.Clone(path[start:]), dependent)
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// computeLevels is Kahn's algorithm with level tracking.
func (b *DAGBuilder) computeLevels() error {
	inDegree := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegree[id] = degree
	}

	current := make([]string, 0)
	for _, id := range b.sortedIDs() {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}
	if len(current) == 0 {
		return graphError("no root units found: every unit has a dependency")
	}

	processed := 0
	for len(current) > 0 {
		b.levels = append(b.levels, current)
		processed += len(current)

		next := make([]string, 0)
		for _, id := range current {
			for _, dependent := range b.adjacencyList[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		slices.Sort(next)
		current = next
	}

	if processed != len(b.units) {
		return graphError("failed to order all plan units")
	}
	return nil
}

func (b *DAGBuilder) buildExecutionGraph() *ExecutionGraph {
	graph := &ExecutionGraph{
		Nodes: make(map[string]*GraphNode),
		Edges: make([]GraphEdge, 0),
		Roots: make([]string, 0),
		Depth: len(b.levels),
	}

	for level, ids := range b.levels {
		for _, id := range ids {
			graph.Nodes[id] = &GraphNode{
				ID:           id,
				Level:        level,
				Dependencies: b.reverseAdjacencyList[id],
				Dependents:   b.adjacencyList[id],
			}
			b.units[id].ExecutionOrder = level

			if level == 0 {
				graph.Roots = append(graph.Roots, id)
			}
		}
	}

	for _, id := range b.sortedIDs() {
		for _, dep := range b.units[id].Dependencies {
			graph.Edges = append(graph.Edges, GraphEdge{From: dep.TargetID, To: id, Type: dep.Type})
		}
	}

	return graph
}

// GetLevels returns the unit IDs of each level, in order.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// ToDOT renders the graph in Graphviz DOT format, one cluster per level.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Workspace {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range b.levels {
		fmt.Fprintf(&sb, "  subgraph cluster_level_%d {\n", level)
		fmt.Fprintf(&sb, "    label=%q;\n", entityLabel(b.units[ids[0]].Entity, level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			unit := b.units[id]
			label := fmt.Sprintf("%s\\n%s", strings.ReplaceAll(unit.Name, `"`, `'`), unit.Operation)
			fmt.Fprintf(&sb, "    %q [label=\"%s\", fillcolor=%q, style=\"filled,rounded\"];\n",
				id, label, operationColor(unit.Operation))
		}

		sb.WriteString("  }\n\n")
	}

	for _, id := range b.sortedIDs() {
		for _, dep := range b.units[id].Dependencies {
			fmt.Fprintf(&sb, "  %q -> %q;\n", dep.TargetID, id)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func entityLabel(entity domain.EntityType, level int) string {
	return fmt.Sprintf("Level %d (%s)", level, entity.Title())
}

func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

func operationColor(op OperationType) string {
	switch op {
	case OperationCreate:
		return "lightgreen"
	case OperationUpdate:
		return "lightblue"
	case OperationNoop:
		return "lightgray"
	default:
		return "white"
	}
}

// ValidateGraph checks that graph was built from this builder's units.
func (b *DAGBuilder) ValidateGraph(graph *ExecutionGraph) error {
	if len(graph.Nodes) != len(b.units) {
		return graphError("graph node count mismatch")
	}

	for _, edge := range graph.Edges {
		if _, exists := graph.Nodes[edge.From]; !exists {
			return graphError(fmt.Sprintf("edge references non-existent node: %s", edge.From))
		}
		if _, exists := graph.Nodes[edge.To]; !exists {
			return graphError(fmt.Sprintf("edge references non-existent node: %s", edge.To))
		}
	}

	for _, id := range graph.Roots {
		if len(graph.Nodes[id].Dependencies) > 0 {
			return graphError(fmt.Sprintf("root node %s has dependencies", id))
		}
	}

	return nil
}
