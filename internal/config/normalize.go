package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDownloads()
	c.normalizeDevice()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDownloads() {
	if c.Downloads.MaxConcurrent <= 0 {
		c.Downloads.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Downloads.QueueDelaySeconds < 0 {
		c.Downloads.QueueDelaySeconds = defaultQueueDelaySeconds
	}
	if c.Downloads.MaxRetries < 0 {
		c.Downloads.MaxRetries = defaultMaxRetries
	}
	if c.Downloads.RetryBaseSeconds <= 0 {
		c.Downloads.RetryBaseSeconds = defaultRetryBaseSeconds
	}
	if c.Downloads.RetryMaxSeconds <= 0 {
		c.Downloads.RetryMaxSeconds = defaultRetryMaxSeconds
	}
	if c.Downloads.StallSeconds <= 0 {
		c.Downloads.StallSeconds = defaultStallSeconds
	}
}

func (c *Config) normalizeDevice() {
	if c.Device.BufferSize <= 0 {
		c.Device.BufferSize = defaultBufferSize
	}
	c.Device.GamesDir = strings.Trim(strings.TrimSpace(c.Device.GamesDir), "/")
	if c.Device.GamesDir == "" {
		c.Device.GamesDir = defaultGamesDir
	}
	c.Device.ImageExtensions = normalizeExtensions(c.Device.ImageExtensions, Default().Device.ImageExtensions)
	c.Device.ArchiveExtensions = normalizeExtensions(c.Device.ArchiveExtensions, Default().Device.ArchiveExtensions)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func normalizeExtensions(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimSpace(value))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if ext == "." || filepath.Ext("x"+ext) != ext {
			continue
		}
		out = append(out, ext)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
