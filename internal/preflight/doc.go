// Package preflight reports whether the host is ready to print.
//
// The daemon logs failing checks at startup; `pidish status` renders them
// under System. Optional checks cover features that are switched off or
// only needed for calibration, so a failure there is a warning.
package preflight
