package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"prism/internal/identity"
	"prism/internal/logging"
	"prism/internal/media"
	"prism/internal/metrics"
	"prism/internal/pipeline"
	"prism/internal/result"
	"prism/internal/resultstore"
	"prism/internal/services"
	"prism/internal/transcode"
)

// Options controls per-run behavior outside the plugin's own semantics.
type Options struct {
	FifoMode      bool
	SaveWorkfiles bool
	DeleteWorkdir bool

	PipePollRetries  int
	PipePollInterval time.Duration
}

// PostProcess rewrites a computed result before it is cached and returned.
type PostProcess func(*result.Result) (*result.Result, error)

// Executor runs plugins over assets with caching, staging, and cleanup.
type Executor struct {
	opts    Options
	store   resultstore.Store
	vault   *resultstore.StreamVault
	locker  *resultstore.Locker
	orch    *pipeline.Orchestrator
	metrics *metrics.Metrics
	logger  *slog.Logger

	postProcess PostProcess
}

// New builds an executor. store, vault, locker, and meters may be nil; each
// nil dependency disables the corresponding behavior.
func New(opts Options, store resultstore.Store, vault *resultstore.StreamVault, locker *resultstore.Locker, runner *transcode.Runner, meters *metrics.Metrics, logger *slog.Logger) *Executor {
	orch := pipeline.NewOrchestrator(pipeline.Options{
		FifoMode:         opts.FifoMode,
		PipePollRetries:  opts.PipePollRetries,
		PipePollInterval: opts.PipePollInterval,
	}, runner, logger)
	return &Executor{
		opts:        opts,
		store:       store,
		vault:       vault,
		locker:      locker,
		orch:        orch,
		metrics:     meters,
		logger:      logging.NewComponentLogger(logger, "executor"),
		postProcess: func(res *result.Result) (*result.Result, error) { return res, nil },
	}
}

// SetPostProcess installs a result rewrite hook. The default is identity.
func (e *Executor) SetPostProcess(hook PostProcess) {
	if hook != nil {
		e.postProcess = hook
	}
}

// ExecutorID renders a plugin's cache-keying identity string.
func ExecutorID(plugin Plugin) string {
	return identity.ExecutorID(plugin.Kind(), plugin.Version(), plugin.Params())
}

// Run drives one asset through the lifecycle and returns its result.
func (e *Executor) Run(ctx context.Context, plugin Plugin, asset *media.Asset) (*result.Result, error) {
	executorID := ExecutorID(plugin)
	canonical := asset.CanonicalString()
	digest := identity.Digest(canonical)

	ctx = services.WithExecutorID(services.WithAssetDigest(ctx, digest), executorID)
	log := e.logger.With(
		logging.String(logging.FieldExecutorID, executorID),
		logging.String(logging.FieldAssetDigest, identity.ShortDigest(canonical)),
	)

	if e.metrics != nil {
		e.metrics.AssetsInFlight.Inc()
		defer e.metrics.AssetsInFlight.Dec()
		started := time.Now()
		defer func() { e.metrics.AssetDuration.Observe(time.Since(started).Seconds()) }()
	}

	if e.locker != nil {
		release, err := e.locker.Acquire(digest, executorID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "executor", "acquire compute lock", "", err)
		}
		defer release()
	}

	if e.store != nil {
		cached, hit, err := e.store.Load(ctx, digest, executorID)
		if err != nil {
			return nil, err
		}
		if hit {
			if e.metrics != nil {
				e.metrics.CacheHits.Inc()
			}
			log.InfoContext(ctx, "result cache hit")
			// Stored results are raw; the hook applies on every return path.
			processed, err := e.postProcess(cached)
			if err != nil {
				return nil, services.Wrap(services.ErrCompute, "executor", "post-process result", "", err)
			}
			return processed, nil
		}
	}
	if e.metrics != nil {
		e.metrics.CacheMisses.Inc()
	}

	if err := Validate(plugin, asset, e.opts.FifoMode, e.opts.SaveWorkfiles); err != nil {
		return nil, err
	}

	plan, err := pipeline.Resolve(asset, executorID)
	if err != nil {
		return nil, err
	}
	run := &RunContext{Plan: plan, Logger: log}

	res, err := e.compute(ctx, plugin, run, log)
	if err != nil {
		if e.metrics != nil {
			e.metrics.AssetFailures.Inc()
		}
		return nil, err
	}

	res, err = e.postProcess(res)
	if err != nil {
		return nil, services.Wrap(services.ErrCompute, "executor", "post-process result", "", err)
	}

	log.InfoContext(ctx, "asset run complete", logging.Int("score_keys", len(res.Scores)))
	return res, nil
}

// Validate checks one asset against the executor's options and a plugin's
// requirements. Pure apart from source existence checks; safe to run for the
// whole batch before any asset is scheduled.
func (e *Executor) Validate(plugin Plugin, asset *media.Asset) error {
	return Validate(plugin, asset, e.opts.FifoMode, e.opts.SaveWorkfiles)
}

// compute covers the stage-owning portion of the lifecycle, from teardown
// through cache save and stream snapshots, so the deferred cleanup runs only
// after everything that still needs the stage files.
func (e *Executor) compute(ctx context.Context, plugin Plugin, run *RunContext, log *slog.Logger) (res *result.Result, err error) {
	plan := run.Plan

	if err := os.MkdirAll(plan.RunDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "executor", "create run dir", plan.RunDir, err)
	}
	if err := e.orch.Teardown(plan); err != nil {
		return nil, err
	}

	var sets []*pipeline.ProducerSet
	defer func() {
		if err != nil {
			e.orch.Abort(plan, sets)
		}
		if cleanupErr := e.cleanup(run, sets); cleanupErr != nil && err == nil {
			err = cleanupErr
		}
	}()

	workfileSet, err := e.orch.OpenWorkfiles(ctx, plan)
	sets = append(sets, workfileSet)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil && !plan.UseSourceAsWorkfile {
		e.metrics.TranscodeRuns.Add(float64(len(plan.Asset.Topology.Roles())))
	}
	procfileSet, err := e.orch.OpenProcfiles(ctx, plan)
	sets = append(sets, procfileSet)
	if err != nil {
		return nil, err
	}

	if err := run.initLog(plan.ExecutorID); err != nil {
		return nil, err
	}
	defer run.closeLog()

	ctx = services.WithStage(ctx, "compute")
	log.InfoContext(ctx, "starting computation",
		logging.Bool("streamed", e.opts.FifoMode),
		logging.Bool("direct_source", plan.UseSourceAsWorkfile),
	)
	if err := plugin.GenerateResult(ctx, run); err != nil {
		return nil, err
	}

	// Streamed producers must have drained cleanly before results are
	// trusted; a producer failure invalidates whatever the plugin read.
	for _, set := range sets {
		if set == nil {
			continue
		}
		if err := set.Wait(ctx); err != nil {
			return nil, err
		}
	}

	res, err = plugin.ReadResult(run)
	if err != nil {
		return nil, err
	}
	res.AssetCanonical = plan.Canonical
	res.AssetDigest = plan.Digest
	res.ExecutorID = plan.ExecutorID

	// Save and snapshot while the stage files still exist; the deferred
	// cleanup removes them once this returns.
	if e.store != nil {
		if err := e.store.Save(ctx, res); err != nil {
			return nil, err
		}
		if e.opts.SaveWorkfiles && e.vault != nil && !plan.UseSourceAsWorkfile {
			for _, role := range plan.Asset.Topology.Roles() {
				if err := e.vault.SaveStream(ctx, plan.Digest, plan.ExecutorID, role, plan.Workfiles[role]); err != nil {
					return nil, err
				}
			}
		}
	}
	return res, nil
}

// cleanup removes the run's stage paths, log, and registered artifacts, then
// the run directory itself. A run directory still holding unknown files is
// left in place rather than treated as a fault.
func (e *Executor) cleanup(run *RunContext, sets []*pipeline.ProducerSet) error {
	if !e.opts.DeleteWorkdir {
		return nil
	}
	plan := run.Plan
	// Never delete a pipe a producer may still hold open.
	for _, set := range sets {
		if set != nil && !set.Settled() {
			waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := set.Wait(waitCtx)
			cancel()
			if err != nil && errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
		}
	}

	// Retained workfiles were already snapshotted into the vault, so the
	// stage files are removable unconditionally.
	if err := e.orch.Cleanup(plan); err != nil {
		return err
	}

	for _, artifact := range run.artifacts {
		if err := removeFile(artifact); err != nil {
			return err
		}
	}
	if err := removeFile(plan.LogPath()); err != nil {
		return err
	}
	if err := os.Remove(plan.RunDir); err != nil && !errors.Is(err, os.ErrNotExist) && !errors.Is(err, syscall.ENOTEMPTY) {
		return services.Wrap(services.ErrTransient, "executor", "remove run dir", plan.RunDir, err)
	}
	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "executor", "remove artifact", path, err)
	}
	return nil
}

// Delete drops an asset's cached result and any retained streams for a plugin.
func (e *Executor) Delete(ctx context.Context, plugin Plugin, asset *media.Asset) error {
	if e.store == nil {
		return nil
	}
	executorID := ExecutorID(plugin)
	digest := identity.Digest(asset.CanonicalString())
	if err := e.store.Delete(ctx, digest, executorID); err != nil {
		return err
	}
	if e.vault != nil {
		if err := e.vault.DeleteStreams(digest, executorID); err != nil {
			return fmt.Errorf("delete retained streams: %w", err)
		}
	}
	return nil
}
