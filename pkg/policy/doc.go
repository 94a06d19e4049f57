// Package policy guards destructive operations with Open Policy Agent.
//
// Every guard is a Rego module whose package defines a `deny` set. Before
// a delete, archive, batch operation or cleanup the service builds a
// GuardInput and asks the Engine for a Decision:
//
//	decision, err := engine.Check(ctx, policy.GuardInput{
//	    Operation:  policy.OpDelete,
//	    EntityType: domain.EntityLifeArea,
//	    EntityID:   id,
//	    Counts:     map[string]int64{policy.CountChildren: goals},
//	})
//
// Check returns the refusal as a *domain.AppError. Deny entries may be
// plain strings or objects:
//
//	deny contains violation if {
//	    input.operation == "delete"
//	    input.entity_type == "tag"
//	    violation := {"message": "tags are permanent", "severity": "error"}
//	}
//
// Severities error and critical block the operation; info and warning are
// returned in Decision.Warnings.
//
// # Built-in guards
//
//   - hierarchy-integrity: a life area, goal or project with children
//     cannot be deleted.
//   - bulk-limits: batch delete and bulk update accept at most 500 ids.
//   - retention: cleanup keeps at least one day of archived rows and warns
//     below seven days.
//
// # User policies
//
// LoadPolicies reads .rego files (named after the file, default severity
// warning) and .json files holding a single policy. WatchPolicies keeps
// them in sync with the files using fsnotify; bursts of changes are
// debounced and a reload that fails to compile leaves the previous set in
// place.
package policy
