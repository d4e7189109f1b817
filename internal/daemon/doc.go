// Package daemon coordinates the long-running pidish process.
//
// It owns the hardware: the GPIO driver, the lift, and the display. The
// printer controller runs on a dedicated, pinned goroutine. Front ends
// never touch the controller directly; their wire maps are validated, filled
// from the persisted variables and submitted through the command link,
// while the latest status snapshot is cached for readers. A flock prevents
// two daemons from driving the same pins.
package daemon
