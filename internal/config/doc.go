// Package config loads, normalizes, and validates the gantry configuration
// file. Configuration lives in a single TOML document (default
// ~/.config/gantry/config.toml) split into sections per subsystem: paths,
// downloads, device, and logging. Load applies defaults first, so a missing
// file yields a runnable configuration.
package config
