// Package stores provides the persistence layer for EvorBrain.
//
// The SQLite implementation runs in WAL mode with foreign keys enforced and
// applies embedded golang-migrate migrations on startup. Timestamps are
// stored as fixed-width UTC text so range queries compare lexically.
//
// Deleting a life area, goal, project or task cascades to its descendants
// at the database level; the service layer decides whether a delete is
// allowed. WithTx binds a Store to one transaction so multi-step writes
// such as progress recomputation commit atomically.
package stores
