package config

const (
	defaultDownloadDir       = "~/.local/share/gantry/downloads"
	defaultStateDir          = "~/.local/share/gantry/state"
	defaultLogDir            = "~/.local/share/gantry/logs"
	defaultMaxConcurrent     = 1
	defaultQueueDelaySeconds = 10
	defaultMaxRetries        = 3
	defaultRetryBaseSeconds  = 5
	defaultRetryMaxSeconds   = 120
	defaultStallSeconds      = 120
	defaultBufferSize        = 1 << 20
	defaultGamesDir          = "wbfs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Downloads: Downloads{
			MaxConcurrent:     defaultMaxConcurrent,
			QueueDelaySeconds: defaultQueueDelaySeconds,
			MaxRetries:        defaultMaxRetries,
			RetryBaseSeconds:  defaultRetryBaseSeconds,
			RetryMaxSeconds:   defaultRetryMaxSeconds,
			StallSeconds:      defaultStallSeconds,
		},
		Device: Device{
			BufferSize:        defaultBufferSize,
			VerifyAfterCopy:   true,
			CleanupEmptyDirs:  true,
			GamesDir:          defaultGamesDir,
			ImageExtensions:   []string{".iso", ".wbfs", ".rvz"},
			ArchiveExtensions: []string{".7z", ".zip"},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
