// Package query evaluates Starlark filter expressions over tasks.
//
// An expression sees one task at a time through these globals:
//
//	name        string
//	status      "todo" | "in_progress" | "completed" | "cancelled"
//	priority    "low" | "medium" | "high" | "urgent"
//	rank        priority rank, 0 for urgent through 3 for low
//	due         due date as unix seconds, or None
//	overdue     bool
//	project_id  string or None
//	tags        list of tag names
//	estimated   estimated minutes, or None
//	actual      actual minutes, or None
//	now         evaluation time as unix seconds
//	days(n)     n days in seconds
//
// and must evaluate to a bool:
//
//	priority in ("high", "urgent") and not overdue
//	"errand" in tags and due != None and due < now + days(2)
//
// Each evaluation runs under a step limit, and a whole filter pass under a
// timeout. Syntax and runtime errors are reported as validation errors.
package query
