// Package config loads, normalizes, and validates Predictra configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PREDICTRA_PYTHON. The Config type centralizes every knob the daemon and CLI
// need, so data directories, model runner scripts, and operation timeouts are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
