package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"prism/internal/deps"
	"prism/internal/executor"
	"prism/internal/features"
	"prism/internal/identity"
	"prism/internal/logging"
	"prism/internal/metrics"
	"prism/internal/resultstore"
	"prism/internal/scheduler"
	"prism/internal/services"
	"prism/internal/transcode"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		assetsFlag        string
		pluginFlag        string
		paramFlags        []string
		parallelFlag      bool
		workersFlag       int
		noFifoFlag        bool
		keepWorkdirFlag   bool
		saveWorkfilesFlag bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a computation over a batch of assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("parallel") {
				cfg.Scheduler.Parallel = parallelFlag
			}
			if cmd.Flags().Changed("workers") {
				cfg.Scheduler.MaxWorkers = workersFlag
			}
			if noFifoFlag {
				cfg.Pipeline.FifoMode = false
			}
			if keepWorkdirFlag {
				cfg.Pipeline.DeleteWorkdir = false
			}
			if saveWorkfilesFlag {
				cfg.Pipeline.SaveWorkfiles = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			runID := uuid.NewString()
			logger = logger.With(logging.String(logging.FieldRunID, runID))
			runCtx := services.WithRunID(cmd.Context(), runID)

			params, err := parseParams(paramFlags)
			if err != nil {
				return err
			}
			plugin, err := features.New(pluginFlag, params)
			if err != nil {
				return err
			}
			assets, err := loadAssets(assetsFlag, plugin.Topology(), cfg)
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "cli", "load assets", "", err)
			}

			var meters *metrics.Metrics
			if cfg.Metrics.Enabled {
				meters = metrics.New()
				go meters.Serve(runCtx, cfg.Metrics.Bind, logger)
			}

			var store resultstore.Store
			var vault *resultstore.StreamVault
			var locker *resultstore.Locker
			if cfg.ResultCache.Enabled {
				sqliteStore, err := resultstore.Open(cfg.ResultCache.Path)
				if err != nil {
					return err
				}
				defer sqliteStore.Close()
				store = sqliteStore
				vault = resultstore.NewStreamVault(cfg.ResultCache.StreamsDir, cfg.ResultCache.MaxGiB, logger)
				locker = resultstore.NewLocker(cfg.ResultCache.LockMode, cfg.ResultCache.StreamsDir)
			}

			runner := transcode.NewRunner(cfg.FFmpegBinary(), logger)
			exec := executor.New(executor.Options{
				FifoMode:         cfg.Pipeline.FifoMode,
				SaveWorkfiles:    cfg.Pipeline.SaveWorkfiles,
				DeleteWorkdir:    cfg.Pipeline.DeleteWorkdir,
				PipePollRetries:  cfg.Pipeline.PipePollRetries,
				PipePollInterval: time.Duration(cfg.Pipeline.PipePollIntervalMS) * time.Millisecond,
			}, store, vault, locker, runner, meters, logger)

			sched := scheduler.New(exec, scheduler.Options{
				Parallel: cfg.Scheduler.Parallel,
				Workers:  cfg.Scheduler.MaxWorkers,
			}, func() error { return deps.Require(cfg) }, logger)

			outcomes, runErr := sched.Run(runCtx, plugin, assets)
			if outcomes != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderOutcomes(outcomes))
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&assetsFlag, "assets", "", "Path to the JSON batch file")
	cmd.Flags().StringVar(&pluginFlag, "plugin", "", "Computation to run ("+strings.Join(features.Names(), ", ")+")")
	cmd.Flags().StringArrayVar(&paramFlags, "param", nil, "Plugin parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&parallelFlag, "parallel", false, "Run assets on a bounded worker pool")
	cmd.Flags().IntVar(&workersFlag, "workers", 0, "Worker pool size (0 = logical CPUs)")
	cmd.Flags().BoolVar(&noFifoFlag, "no-fifo", false, "Materialize stage files instead of streaming through pipes")
	cmd.Flags().BoolVar(&keepWorkdirFlag, "keep-workdir", false, "Keep per-run working directories")
	cmd.Flags().BoolVar(&saveWorkfilesFlag, "save-workfiles", false, "Retain workfile snapshots in the cache (requires --no-fifo)")
	_ = cmd.MarkFlagRequired("assets")
	_ = cmd.MarkFlagRequired("plugin")

	return cmd
}

// parseParams turns key=value flags into plugin parameters, preferring
// numeric values when they parse.
func parseParams(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(flags))
	for _, flag := range flags {
		key, value, found := strings.Cut(flag, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed --param %q, want key=value", flag)
		}
		if number, err := strconv.ParseFloat(value, 64); err == nil {
			params[key] = number
		} else {
			params[key] = value
		}
	}
	return params, nil
}

func renderOutcomes(outcomes []scheduler.Outcome) string {
	titler := cases.Title(language.English)
	rows := make([][]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		digest := identity.ShortDigest(outcome.Asset.CanonicalString())
		status := "failed"
		scores := ""
		if outcome.Err == nil {
			status = "ok"
			parts := make([]string, 0, len(outcome.Result.Scores))
			for _, key := range outcome.Result.Keys() {
				if mean, ok := outcome.Result.Aggregate(key); ok {
					parts = append(parts, fmt.Sprintf("%s=%.4f", key, mean))
				}
			}
			scores = strings.Join(parts, " ")
		} else {
			scores = outcome.Err.Error()
		}
		rows = append(rows, []string{
			digest,
			titler.String(status),
			outcome.Duration.Round(time.Millisecond).String(),
			scores,
		})
	}
	return renderTable(
		[]string{"Asset", "Status", "Duration", "Scores"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	)
}
