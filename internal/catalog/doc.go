// Package catalog persists artifact records in SQLite so deduplication
// survives restarts. An artifact is a completed (and, for archives,
// extracted) disc image in the download directory; records are keyed by the
// catalog item identifier with a (size, checksum) fallback for files acquired
// outside the queue.
package catalog
