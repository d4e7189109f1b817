// Package printer runs the print job state machine: it turns operator
// commands into lift moves and slice exposures, one job at a time, and
// publishes status snapshots back to the front end.
package printer
