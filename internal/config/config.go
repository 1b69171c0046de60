package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// ResultCache contains configuration for the fingerprint-keyed result store.
type ResultCache struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	StreamsDir string `toml:"streams_dir"`
	MaxGiB     int    `toml:"max_gib"`
	// LockMode controls cross-process coordination on a cache miss:
	// "none" tolerates duplicate computation (last save wins), "flock"
	// serializes compute per (asset, executor id) via a file lock.
	LockMode string `toml:"lock_mode"`
}

// Pipeline contains configuration for the staged workfile/procfile pipeline.
type Pipeline struct {
	FifoMode           bool `toml:"fifo_mode"`
	DeleteWorkdir      bool `toml:"delete_workdir"`
	SaveWorkfiles      bool `toml:"save_workfiles"`
	PipePollRetries    int  `toml:"pipe_poll_retries"`
	PipePollIntervalMS int  `toml:"pipe_poll_interval_ms"`
}

// Scheduler contains configuration for batch scheduling.
type Scheduler struct {
	Parallel   bool `toml:"parallel"`
	MaxWorkers int  `toml:"max_workers"`
}

// Transcoder contains configuration for the external transcode tool.
type Transcoder struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the optional Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Config encapsulates all configuration values for prism.
type Config struct {
	Paths       Paths       `toml:"paths"`
	ResultCache ResultCache `toml:"result_cache"`
	Pipeline    Pipeline    `toml:"pipeline"`
	Scheduler   Scheduler   `toml:"scheduler"`
	Transcoder  Transcoder  `toml:"transcoder"`
	Logging     Logging     `toml:"logging"`
	Metrics     Metrics     `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/prism/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("prism.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.ResultCache.Enabled {
		for _, dir := range []string{filepath.Dir(c.ResultCache.Path), c.ResultCache.StreamsDir} {
			if strings.TrimSpace(dir) == "" {
				continue
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create cache directory %q: %w", dir, err)
			}
		}
	}
	return nil
}

// FFmpegBinary returns the configured ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	if strings.TrimSpace(c.Transcoder.FFmpegBinary) != "" {
		return c.Transcoder.FFmpegBinary
	}
	return "ffmpeg"
}

// FFprobeBinary returns the configured ffprobe executable name.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Transcoder.FFprobeBinary) != "" {
		return c.Transcoder.FFprobeBinary
	}
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
