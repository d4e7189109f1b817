// Package logs reads the daemon log file for `pidish logs`.
//
// Last returns the trailing lines, Since resumes from a byte offset, and
// Follow polls for appended lines until its context ends. Offsets only ever
// advance past complete lines so a half-written record is read once, whole.
package logs
