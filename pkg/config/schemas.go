package config

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema/workspace.cue
var workspaceSchema string

// SchemaRegistry holds compiled CUE definitions by name. Every value it
// returns belongs to its context, so documents unified against it must be
// compiled with Context().
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the workspace definitions
// registered as workspace, area, goal, project and task.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	builtins := map[string]string{
		"workspace": "#Workspace",
		"area":      "#Area",
		"goal":      "#Goal",
		"project":   "#Project",
		"task":      "#Task",
	}
	for _, name := range SortedKeys(builtins) {
		if err := sr.RegisterSchema(name, workspaceSchema, builtins[name]); err != nil {
			panic(fmt.Sprintf("embedded workspace schema: %v", err))
		}
	}

	return sr
}

// Context returns the CUE context the schemas were compiled in.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema compiles source and registers the definition def under
// name.
func (sr *SchemaRegistry) RegisterSchema(name, source, def string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	definition := val.LookupPath(cue.ParsePath(def))
	if !definition.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, def)
	}
	if err := definition.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = definition
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify applies the named schema to val and checks that the result is
// concrete.
func (sr *SchemaRegistry) Unify(name string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", name)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return unified, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates a Go value against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, name string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Unify(name, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names in order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
