// Package ipc exposes the pidish daemon over JSON-RPC on a Unix domain socket.
//
// The daemon registers a "Pidish" service; CLI subcommands and the serial
// pendant bridge are clients. Requests carry the same string wire maps the
// control loop understands, so every front end shares one validation path.
package ipc
