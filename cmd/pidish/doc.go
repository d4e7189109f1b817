// Command pidish drives a DIY resin printer.
//
// `pidish daemon run` owns the GPIO lines and the light engine; every other
// subcommand is a short-lived client that talks to it over the Unix socket.
package main
