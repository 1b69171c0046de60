package config

const (
	defaultWorkDir            = "~/.local/share/prism/work"
	defaultLogDir             = "~/.local/share/prism/logs"
	defaultCachePath          = "~/.cache/prism/results.db"
	defaultStreamsDir         = "~/.cache/prism/streams"
	defaultCacheMaxGiB        = 20
	defaultCacheLockMode      = "none"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultPipePollRetries    = 10
	defaultPipePollIntervalMS = 100
	defaultMetricsBind        = "127.0.0.1:9290"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		ResultCache: ResultCache{
			Enabled:    true,
			Path:       defaultCachePath,
			StreamsDir: defaultStreamsDir,
			MaxGiB:     defaultCacheMaxGiB,
			LockMode:   defaultCacheLockMode,
		},
		Pipeline: Pipeline{
			FifoMode:           true,
			DeleteWorkdir:      true,
			SaveWorkfiles:      false,
			PipePollRetries:    defaultPipePollRetries,
			PipePollIntervalMS: defaultPipePollIntervalMS,
		},
		Scheduler: Scheduler{
			Parallel:   false,
			MaxWorkers: 0,
		},
		Transcoder: Transcoder{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Enabled: false,
			Bind:    defaultMetricsBind,
		},
	}
}
