package testsupport

import (
	"path/filepath"
	"testing"

	"gantry/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Downloads.QueueDelaySeconds = 0
	cfgVal.Downloads.StallSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithMaxConcurrent sets the concurrent download limit on the test config.
func WithMaxConcurrent(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Downloads.MaxConcurrent = limit
	}
}

// WithQueueDelay sets the admission delay in seconds on the test config.
func WithQueueDelay(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Downloads.QueueDelaySeconds = seconds
	}
}

// WithMaxRetries sets the retry limit on the test config.
func WithMaxRetries(retries int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Downloads.MaxRetries = retries
	}
}

// WithBufferSize overrides the copy buffer size on the test config.
func WithBufferSize(size int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Device.BufferSize = size
	}
}
