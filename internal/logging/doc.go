// Package logging constructs slog loggers for gantry and defines the
// standardized attribute keys used across components. Two output formats are
// supported: a compact console format for interactive use and JSON for
// machine consumption.
package logging
