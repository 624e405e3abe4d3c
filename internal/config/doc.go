// Package config loads, normalizes, and validates forge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// orchestrator and CLI need: source and output roots, dispatch limits,
// collaborator tool names, and checkpoint staging behavior.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
