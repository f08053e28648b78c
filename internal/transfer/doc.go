// Package transfer implements the bounded-concurrency download queue:
// admission in arrival order under a concurrency limit with a delay between
// admissions, in-place retry with exponential backoff, stall detection, and
// archive post-processing that lands completed artifacts in the catalog.
package transfer
