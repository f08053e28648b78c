package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDownloads(); err != nil {
		return err
	}
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DownloadDir == "" {
		return errors.New("paths.download_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.DownloadDir == c.Paths.StateDir {
		return errors.New("paths.download_dir and paths.state_dir must differ")
	}
	return nil
}

func (c *Config) validateDownloads() error {
	if c.Downloads.MaxConcurrent < 1 {
		return errors.New("downloads.max_concurrent must be at least 1")
	}
	if c.Downloads.RetryMaxSeconds < c.Downloads.RetryBaseSeconds {
		return fmt.Errorf(
			"downloads.retry_max_seconds (%d) must not be below downloads.retry_base_seconds (%d)",
			c.Downloads.RetryMaxSeconds, c.Downloads.RetryBaseSeconds,
		)
	}
	return nil
}

func (c *Config) validateDevice() error {
	if c.Device.BufferSize < 4096 {
		return fmt.Errorf("device.buffer_size (%d) must be at least 4096 bytes", c.Device.BufferSize)
	}
	if len(c.Device.ImageExtensions) == 0 {
		return errors.New("device.image_extensions must not be empty")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
