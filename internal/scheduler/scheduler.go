// Package scheduler fans a batch of assets over an executor, serializing
// assets that alias the same computation input and preserving input order in
// the returned outcomes.
package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"prism/internal/executor"
	"prism/internal/identity"
	"prism/internal/logging"
	"prism/internal/media"
	"prism/internal/result"
	"prism/internal/services"
)

// Options controls batch execution.
type Options struct {
	// Parallel enables the bounded worker pool; otherwise assets run
	// sequentially in input order.
	Parallel bool
	// Workers bounds the pool. Zero means the host's logical CPU count.
	Workers int
}

// Preflight is a fast whole-batch check run before any asset is scheduled,
// typically an external-dependency probe.
type Preflight func() error

// Outcome pairs one input asset with its result or failure.
type Outcome struct {
	Asset    *media.Asset
	Result   *result.Result
	Err      error
	Duration time.Duration
}

// Scheduler runs one plugin across many assets.
type Scheduler struct {
	exec      *executor.Executor
	opts      Options
	preflight Preflight
	logger    *slog.Logger
}

// New builds a scheduler. preflight may be nil.
func New(exec *executor.Executor, opts Options, preflight Preflight, logger *slog.Logger) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Scheduler{
		exec:      exec,
		opts:      opts,
		preflight: preflight,
		logger:    logging.NewComponentLogger(logger, "scheduler"),
	}
}

// lockRegistry maps canonical asset strings to shared mutexes so assets that
// alias the same computation input never run concurrently. Built once per
// batch; assets with distinct canonical strings get distinct locks.
type lockRegistry struct {
	locks map[string]*sync.Mutex
}

func buildLockRegistry(assets []*media.Asset) *lockRegistry {
	registry := &lockRegistry{locks: make(map[string]*sync.Mutex, len(assets))}
	for _, asset := range assets {
		canonical := asset.CanonicalString()
		if _, ok := registry.locks[canonical]; !ok {
			registry.locks[canonical] = &sync.Mutex{}
		}
	}
	return registry
}

func (r *lockRegistry) lockFor(asset *media.Asset) *sync.Mutex {
	return r.locks[asset.CanonicalString()]
}

// Run executes the batch and returns one outcome per asset, in input order.
// A preflight failure, an empty batch, or a configuration error on any asset
// aborts before the first asset runs; individual asset failures never cancel
// their siblings. After all assets settle, the first failure in input order
// is returned alongside the outcomes.
func (s *Scheduler) Run(ctx context.Context, plugin executor.Plugin, assets []*media.Asset) ([]Outcome, error) {
	if len(assets) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "scheduler", "run batch", "no assets given", nil)
	}
	if s.preflight != nil {
		if err := s.preflight(); err != nil {
			return nil, err
		}
	}
	// One misconfigured asset fails the whole batch before any work starts.
	for _, asset := range assets {
		if err := s.exec.Validate(plugin, asset); err != nil {
			return nil, err
		}
	}

	registry := buildLockRegistry(assets)
	outcomes := make([]Outcome, len(assets))

	runOne := func(index int, asset *media.Asset) {
		lock := registry.lockFor(asset)
		lock.Lock()
		defer lock.Unlock()

		started := time.Now()
		res, err := s.exec.Run(ctx, plugin, asset)
		outcomes[index] = Outcome{
			Asset:    asset,
			Result:   res,
			Err:      err,
			Duration: time.Since(started),
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "asset run failed",
				logging.String(logging.FieldAssetDigest, identity.ShortDigest(asset.CanonicalString())),
				logging.Error(err),
			)
		}
	}

	if !s.opts.Parallel {
		for i, asset := range assets {
			runOne(i, asset)
		}
	} else {
		workers := s.opts.Workers
		if workers > len(assets) {
			workers = len(assets)
		}
		indexes := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range indexes {
					runOne(i, assets[i])
				}
			}()
		}
		for i := range assets {
			indexes <- i
		}
		close(indexes)
		wg.Wait()
	}

	for _, outcome := range outcomes {
		if outcome.Err != nil {
			return outcomes, outcome.Err
		}
	}
	return outcomes, nil
}
