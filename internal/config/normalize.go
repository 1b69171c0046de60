package config

import "strings"

// normalize expands paths and fills empty fields with defaults so later
// validation can assume a fully populated config.
func (c *Config) normalize() error {
	defaults := Default()

	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaults.Paths.WorkDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaults.Paths.LogDir
	}
	if strings.TrimSpace(c.ResultCache.Path) == "" {
		c.ResultCache.Path = defaults.ResultCache.Path
	}
	if strings.TrimSpace(c.ResultCache.StreamsDir) == "" {
		c.ResultCache.StreamsDir = defaults.ResultCache.StreamsDir
	}
	if c.ResultCache.MaxGiB <= 0 {
		c.ResultCache.MaxGiB = defaults.ResultCache.MaxGiB
	}
	c.ResultCache.LockMode = strings.ToLower(strings.TrimSpace(c.ResultCache.LockMode))
	if c.ResultCache.LockMode == "" {
		c.ResultCache.LockMode = defaults.ResultCache.LockMode
	}

	if c.Pipeline.PipePollRetries <= 0 {
		c.Pipeline.PipePollRetries = defaults.Pipeline.PipePollRetries
	}
	if c.Pipeline.PipePollIntervalMS <= 0 {
		c.Pipeline.PipePollIntervalMS = defaults.Pipeline.PipePollIntervalMS
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if strings.TrimSpace(c.Metrics.Bind) == "" {
		c.Metrics.Bind = defaults.Metrics.Bind
	}

	for _, field := range []*string{
		&c.Paths.WorkDir,
		&c.Paths.LogDir,
		&c.ResultCache.Path,
		&c.ResultCache.StreamsDir,
	} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}
