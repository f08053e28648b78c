package transfer

import "context"

// ProgressFunc receives byte counters during a fetch. total is
// progress.UnknownTotal when the remote does not advertise a length.
type ProgressFunc func(bytes, total int64)

// Fetcher retrieves the source into destPath, reporting progress as it goes.
// Implementations must honor context cancellation and tag failures with the
// sentinel markers in this package.
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL, destPath string, progressFn ProgressFunc) error
}

// Extractor unpacks an archive, returning the paths of extracted disc
// images. On success the archive itself is removed.
type Extractor interface {
	Extract(ctx context.Context, archivePath string) ([]string, error)
}

// ChecksumFunc computes the content checksum of a completed file.
type ChecksumFunc func(path string) (string, error)
