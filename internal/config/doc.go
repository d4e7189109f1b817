// Package config loads, normalizes, and validates pidish configuration data.
//
// It supplies the printer's default geometry and timing, expands user paths
// (including tilde shortcuts), and reads TOML files. The Config type gathers
// every knob the daemon and CLI need so pins, lift geometry, and the exposure
// schedule are resolved in one pass.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
