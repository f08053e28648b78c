// Package main hosts the gantry CLI entrypoint and command graph.
//
// The Cobra-based command tree drives the download queue, inspects the
// artifact catalog, and manages verified copies onto removable volumes. It
// centralizes configuration resolution and engine bootstrap so subcommands
// can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
