// Package engine turns workspace documents into changes to the database.
//
// A workspace document (see package config) describes life areas, goals,
// projects and tasks as a tree. Planning walks that tree and matches every
// node against the existing rows under its parent:
//
//	planner := engine.NewPlanner(svc, logger)
//	plan, err := planner.Plan(ctx, workspace)
//
// Each node becomes a PlanUnit with one of three operations:
//
//   - create: no row with that name exists under the parent
//   - update: a row matches but some documented fields differ
//   - noop:   a row matches and nothing differs
//
// Only fields present in the document are compared, and tags are additive:
// a document never removes a tag or clears a field.
//
// The units form a DAG where every node depends on its parent. DAGBuilder
// rejects unknown and circular dependencies and groups units into levels,
// so areas come before goals, goals before projects, and so on.
//
// Applying a plan runs the levels in order through the service:
//
//	applier := engine.NewApplier(svc, logger)
//	result, err := applier.Apply(ctx, plan)
//
// Apply stops at the first failing unit. Units applied before it stay
// applied; the rest are reported as skipped and the error is a *UnitError.
// Applying the same document twice yields a plan with only noop units.
package engine
