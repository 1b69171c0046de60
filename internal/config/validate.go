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
	if err := c.validateResultCache(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateResultCache() error {
	if !c.ResultCache.Enabled {
		return nil
	}
	if c.ResultCache.Path == "" {
		return errors.New("result_cache.path must be set when the cache is enabled")
	}
	switch c.ResultCache.LockMode {
	case "none", "flock":
	default:
		return fmt.Errorf("result_cache.lock_mode must be %q or %q, got %q", "none", "flock", c.ResultCache.LockMode)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.SaveWorkfiles && c.Pipeline.FifoMode {
		return errors.New("pipeline.save_workfiles requires pipeline.fifo_mode = false: a named pipe cannot be re-read")
	}
	if c.Pipeline.PipePollRetries <= 0 {
		return errors.New("pipeline.pipe_poll_retries must be positive")
	}
	if c.Pipeline.PipePollIntervalMS <= 0 {
		return errors.New("pipeline.pipe_poll_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.MaxWorkers < 0 {
		return errors.New("scheduler.max_workers must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be %q or %q, got %q", "console", "json", c.Logging.Format)
	}
	return nil
}
