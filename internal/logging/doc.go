// Package logging builds the slog loggers shared by the daemon and the CLI.
//
// Console output is one line per record with the component, job, and layer
// pulled into the prefix; JSON output is one object per line. WithJob and
// NewComponentLogger tag loggers, and WarnWithContext fills in the
// event_type, error_hint, and impact fields operators filter on.
package logging
