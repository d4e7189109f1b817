// Package history records every print and calibration job in SQLite.
//
// Rows are inserted when a job starts with outcome "running" and updated
// when it finishes. Rejected jobs are inserted already finished. On daemon
// start, rows still marked running belong to a process that died mid-job
// and are closed out as faults.
package history
