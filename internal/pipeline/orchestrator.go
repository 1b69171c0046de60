package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"prism/internal/logging"
	"prism/internal/media"
	"prism/internal/services"
	"prism/internal/transcode"
)

// Options controls stage execution behavior.
type Options struct {
	// FifoMode streams stages through named pipes instead of materialized
	// files, bounding peak disk use.
	FifoMode bool
	// PipePollRetries and PipePollInterval bound the wait for a streaming
	// stage's pipes to exist. Exhausting the budget is a fatal
	// resource-timeout failure for the asset.
	PipePollRetries  int
	PipePollInterval time.Duration
}

// Orchestrator runs the two optional intermediate stages for one asset.
type Orchestrator struct {
	opts       Options
	transcoder *transcode.Runner
	logger     *slog.Logger

	// transcodeStream is swappable in tests to inject producer behavior.
	transcodeStream func(ctx context.Context, plan *Plan, role media.Role) error
}

// NewOrchestrator builds an orchestrator over the given transcoder runner.
func NewOrchestrator(opts Options, runner *transcode.Runner, logger *slog.Logger) *Orchestrator {
	if opts.PipePollRetries <= 0 {
		opts.PipePollRetries = 10
	}
	if opts.PipePollInterval <= 0 {
		opts.PipePollInterval = 100 * time.Millisecond
	}
	o := &Orchestrator{
		opts:       opts,
		transcoder: runner,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}
	o.transcodeStream = o.runTranscode
	return o
}

// Teardown removes pre-existing files or pipes at every stage target path.
// All removals for a stage are issued across both streams before any creation
// for that stage begins, so overlapping reference/distorted paths cannot race
// a pending removal against a fresh creation.
func (o *Orchestrator) Teardown(plan *Plan) error {
	if !plan.UseSourceAsWorkfile {
		for _, role := range plan.Asset.Topology.Roles() {
			if err := removeIfExists(plan.Workfiles[role]); err != nil {
				return err
			}
		}
	}
	if !plan.UseWorkfileAsProcfile {
		for _, role := range plan.Asset.Topology.Roles() {
			if err := removeIfExists(plan.Procfiles[role]); err != nil {
				return err
			}
		}
	}
	return nil
}

// OpenWorkfiles runs the transcode stage. In materialized mode it blocks
// until every required stream is fully written; in streaming mode it starts
// one producer per stream and returns once all pipes exist.
func (o *Orchestrator) OpenWorkfiles(ctx context.Context, plan *Plan) (*ProducerSet, error) {
	if plan.UseSourceAsWorkfile {
		return nil, nil
	}
	if !o.opts.FifoMode {
		for _, role := range plan.Asset.Topology.Roles() {
			if err := o.transcodeStream(ctx, plan, role); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	producers := newProducerSet()
	for _, role := range plan.Asset.Topology.Roles() {
		role := role
		producers.launch(func() error {
			return o.transcodeStream(ctx, plan, role)
		})
	}
	producers.seal()

	if err := o.waitForPaths(ctx, plan, rolePaths(plan, plan.Workfiles), "workfile"); err != nil {
		return producers, err
	}
	return producers, nil
}

// OpenProcfiles runs the per-sample transform stage with the same two modes.
func (o *Orchestrator) OpenProcfiles(ctx context.Context, plan *Plan) (*ProducerSet, error) {
	if plan.UseWorkfileAsProcfile {
		return nil, nil
	}
	if !o.opts.FifoMode {
		for _, role := range plan.Asset.Topology.Roles() {
			if err := o.transformStream(plan, role, false); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	producers := newProducerSet()
	for _, role := range plan.Asset.Topology.Roles() {
		role := role
		producers.launch(func() error {
			return o.transformStream(plan, role, true)
		})
	}
	producers.seal()

	if err := o.waitForPaths(ctx, plan, rolePaths(plan, plan.Procfiles), "procfile"); err != nil {
		return producers, err
	}
	return producers, nil
}

// Cleanup removes the stage artifacts this run created. Paths substituted by
// a decision flag are never touched.
func (o *Orchestrator) Cleanup(plan *Plan) error {
	return o.Teardown(plan)
}

// Abort best-effort unblocks and removes a failed run's stage paths: pipes
// are drained with a nonblocking read open so stuck producers can finish,
// then removed.
func (o *Orchestrator) Abort(plan *Plan, sets []*ProducerSet) {
	paths := make([]string, 0, 4)
	if !plan.UseSourceAsWorkfile {
		paths = append(paths, rolePaths(plan, plan.Workfiles)...)
	}
	if !plan.UseWorkfileAsProcfile {
		paths = append(paths, rolePaths(plan, plan.Procfiles)...)
	}
	for _, path := range paths {
		releasePipe(path)
		_ = os.Remove(path)
	}
	deadline := time.Now().Add(2 * time.Second)
	for _, set := range sets {
		if set == nil {
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		waitCtx, cancel := context.WithTimeout(context.Background(), remaining)
		_ = set.Wait(waitCtx)
		cancel()
	}
}

func (o *Orchestrator) runTranscode(ctx context.Context, plan *Plan, role media.Role) error {
	target := plan.Workfiles[role]
	if o.opts.FifoMode {
		if err := unix.Mkfifo(target, 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "pipeline", "mkfifo workfile", target, err)
		}
	}
	stream := plan.Asset.Stream(role)
	return o.transcoder.Run(ctx, transcode.Request{
		Source:         stream.Path,
		Target:         target,
		SourceFormat:   stream.PixelFormat,
		SourceGeometry: stream.Geometry,
		TargetFormat:   string(plan.Format),
		TargetGeometry: plan.Geometry,
		FrameRange:     stream.FrameRange,
		Resampling:     stream.Resampling,
		Filters:        stream.Filters,
	})
}

// waitForPaths polls for every path of a stage to exist, within a fixed
// retry budget. Exhaustion is a fatal resource timeout, not a condition that
// is recovered locally.
func (o *Orchestrator) waitForPaths(ctx context.Context, plan *Plan, paths []string, stage string) error {
	for attempt := 0; attempt < o.opts.PipePollRetries; attempt++ {
		if allExist(paths) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.opts.PipePollInterval):
		}
	}
	if allExist(paths) {
		return nil
	}
	o.logger.Error("stage paths never materialized",
		logging.String(logging.FieldEventType, "pipe_poll_exhausted"),
		logging.String("stage_kind", stage),
		logging.String("paths", strings.Join(paths, ", ")),
		logging.Int("retries", o.opts.PipePollRetries),
	)
	return services.Wrap(services.ErrTimeout, "pipeline", "wait for "+stage+" paths",
		fmt.Sprintf("paths missing after %d retries: %s", o.opts.PipePollRetries, strings.Join(paths, ", ")), nil)
}

func rolePaths(plan *Plan, byRole map[media.Role]string) []string {
	roles := plan.Asset.Topology.Roles()
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, byRole[role])
	}
	return out
}

func allExist(paths []string) bool {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrTransient, "pipeline", "remove stage path", path, err)
	}
	return nil
}

// releasePipe opens a fifo's read end nonblocking so a producer stuck in its
// blocking write-open can proceed and observe the failure.
func releasePipe(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Mode()&os.ModeNamedPipe == 0 {
		return
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return
	}
	_ = unix.Close(fd)
}
