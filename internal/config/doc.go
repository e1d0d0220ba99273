// Package config loads, normalizes, and validates conform configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and produces clear validation errors. The
// Config type centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical codec names, and validated mode/worker values.
package config
