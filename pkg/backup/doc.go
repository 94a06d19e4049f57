// Package backup writes point-in-time snapshots of the EvorBrain database
// and restores them.
//
// Snapshots are produced with VACUUM INTO, so they are consistent even while
// the database is in use, and are named evorbrain-YYYYMMDD-HHMMSS.db (UTC).
// After every snapshot the directory is pruned to the configured keep count.
// When a remote is configured the snapshot is also copied over SFTP and the
// remote directory is pruned the same way.
//
// Restore works on a closed database: the snapshot is checked with
// PRAGMA integrity_check and its migration version, the current file is kept
// as <db>.pre-restore and the snapshot is moved into place with a rename.
package backup
