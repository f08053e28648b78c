// Package progress carries structured transfer and copy events from the core
// to subscribers (CLI, logs, UI frontends). The Hub is a bounded fan-out:
// slow subscribers lose the oldest events rather than blocking workers.
// Meter smooths instantaneous throughput into a stable rate and ETA.
package progress
