package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"prism/internal/executor"
	"prism/internal/logging"
	"prism/internal/media"
	"prism/internal/result"
	"prism/internal/services"
)

// trackingPlugin counts concurrent generations per canonical asset string so
// tests can detect lock violations.
type trackingPlugin struct {
	mu         sync.Mutex
	inFlight   map[string]int
	violations int32
	delay      time.Duration
	failPaths  map[string]bool
}

func newTrackingPlugin(delay time.Duration) *trackingPlugin {
	return &trackingPlugin{inFlight: make(map[string]int), delay: delay, failPaths: make(map[string]bool)}
}

func (p *trackingPlugin) Kind() string             { return "track" }
func (p *trackingPlugin) Version() string          { return "1.0" }
func (p *trackingPlugin) Params() map[string]any   { return nil }
func (p *trackingPlugin) Topology() media.Topology { return media.NoReference }

func (p *trackingPlugin) GenerateResult(ctx context.Context, run *executor.RunContext) error {
	canonical := run.Plan.Canonical
	p.mu.Lock()
	p.inFlight[canonical]++
	if p.inFlight[canonical] > 1 {
		atomic.AddInt32(&p.violations, 1)
	}
	fail := p.failPaths[run.Plan.Asset.Distorted.Path]
	p.mu.Unlock()

	time.Sleep(p.delay)

	p.mu.Lock()
	p.inFlight[canonical]--
	p.mu.Unlock()

	if fail {
		return services.Wrap(services.ErrCompute, "features", "generate", "requested failure", nil)
	}
	return os.WriteFile(run.ArtifactPath("track.scores"), []byte("ok\n"), 0o644)
}

func (p *trackingPlugin) ReadResult(run *executor.RunContext) (*result.Result, error) {
	return &result.Result{Scores: map[string][]float64{"track_score": {1.0}}}, nil
}

func directAsset(t *testing.T, dir, name string) *media.Asset {
	t.Helper()
	const width, height = 4, 2
	frameBytes := width*height + 2*(width/2)*(height/2)
	source := filepath.Join(dir, name)
	if err := os.WriteFile(source, make([]byte, frameBytes), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	geometry := media.Geometry{Width: width, Height: height}
	return &media.Asset{
		Topology:  media.NoReference,
		Distorted: media.Stream{Path: source, PixelFormat: "yuv420p", Geometry: &geometry},
		WorkDir:   filepath.Join(dir, "work"),
	}
}

func newTestScheduler(opts Options, preflight Preflight) *Scheduler {
	exec := executor.New(executor.Options{DeleteWorkdir: true}, nil, nil, nil, nil, nil, logging.NewNop())
	return New(exec, opts, preflight, logging.NewNop())
}

func TestRunPreservesInputOrder(t *testing.T) {
	dir := t.TempDir()
	assets := []*media.Asset{
		directAsset(t, dir, "a.yuv"),
		directAsset(t, dir, "b.yuv"),
		directAsset(t, dir, "c.yuv"),
		directAsset(t, dir, "d.yuv"),
	}
	sched := newTestScheduler(Options{Parallel: true, Workers: 4}, nil)

	outcomes, err := sched.Run(context.Background(), newTrackingPlugin(10*time.Millisecond), assets)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcomes) != len(assets) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(assets))
	}
	for i, outcome := range outcomes {
		if outcome.Asset != assets[i] {
			t.Fatalf("outcome %d is for the wrong asset", i)
		}
		if outcome.Err != nil {
			t.Fatalf("outcome %d failed: %v", i, outcome.Err)
		}
	}
}

func TestRunSerializesAliasedAssets(t *testing.T) {
	dir := t.TempDir()
	shared := directAsset(t, dir, "same.yuv")
	aliased := *shared
	aliased.WorkDir = filepath.Join(dir, "other-work")
	assets := []*media.Asset{shared, &aliased, directAsset(t, dir, "unique.yuv")}

	plugin := newTrackingPlugin(20 * time.Millisecond)
	sched := newTestScheduler(Options{Parallel: true, Workers: 3}, nil)

	if _, err := sched.Run(context.Background(), plugin, assets); err != nil {
		t.Fatalf("run: %v", err)
	}
	if violations := atomic.LoadInt32(&plugin.violations); violations != 0 {
		t.Fatalf("aliased assets ran concurrently %d times", violations)
	}
}

func TestRunFailureDoesNotCancelSiblings(t *testing.T) {
	dir := t.TempDir()
	assets := []*media.Asset{
		directAsset(t, dir, "a.yuv"),
		directAsset(t, dir, "b.yuv"),
		directAsset(t, dir, "c.yuv"),
	}
	plugin := newTrackingPlugin(0)
	plugin.failPaths[assets[1].Distorted.Path] = true
	sched := newTestScheduler(Options{Parallel: true, Workers: 3}, nil)

	outcomes, err := sched.Run(context.Background(), plugin, assets)
	if !errors.Is(err, services.ErrCompute) {
		t.Fatalf("run returned %v, want the first compute failure", err)
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Fatalf("sibling outcomes failed: %v, %v", outcomes[0].Err, outcomes[2].Err)
	}
	if outcomes[1].Err == nil {
		t.Fatal("failing asset reported success")
	}
}

func TestRunSequentialMode(t *testing.T) {
	dir := t.TempDir()
	assets := []*media.Asset{
		directAsset(t, dir, "a.yuv"),
		directAsset(t, dir, "b.yuv"),
	}
	sched := newTestScheduler(Options{Parallel: false}, nil)

	outcomes, err := sched.Run(context.Background(), newTrackingPlugin(0), assets)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
}

func TestRunEmptyBatchFails(t *testing.T) {
	sched := newTestScheduler(Options{}, nil)
	if _, err := sched.Run(context.Background(), newTrackingPlugin(0), nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("empty batch returned %v, want a configuration error", err)
	}
}

func TestRunPreflightFailureAbortsBatch(t *testing.T) {
	dir := t.TempDir()
	assets := []*media.Asset{directAsset(t, dir, "a.yuv")}
	missing := services.Wrap(services.ErrMissingDependency, "deps", "check binaries", "missing: ffmpeg", nil)
	plugin := newTrackingPlugin(0)
	sched := newTestScheduler(Options{}, func() error { return missing })

	outcomes, err := sched.Run(context.Background(), plugin, assets)
	if !errors.Is(err, services.ErrMissingDependency) {
		t.Fatalf("run returned %v, want the dependency error", err)
	}
	if outcomes != nil {
		t.Fatal("preflight failure still produced outcomes")
	}
	plugin.mu.Lock()
	defer plugin.mu.Unlock()
	if len(plugin.inFlight) != 0 {
		t.Fatal("assets were scheduled despite the preflight failure")
	}
}

func TestRunConfigurationErrorAbortsBatch(t *testing.T) {
	dir := t.TempDir()
	good := directAsset(t, dir, "a.yuv")
	bad := directAsset(t, dir, "b.yuv")
	bad.Distorted.Geometry = nil
	plugin := newTrackingPlugin(0)
	sched := newTestScheduler(Options{}, nil)

	outcomes, err := sched.Run(context.Background(), plugin, []*media.Asset{good, bad})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("run returned %v, want a configuration error", err)
	}
	if outcomes != nil {
		t.Fatal("misconfigured batch still produced outcomes")
	}
	plugin.mu.Lock()
	defer plugin.mu.Unlock()
	if len(plugin.inFlight) != 0 {
		t.Fatal("assets were scheduled despite the configuration error")
	}
}

func TestLockRegistrySharesLocksByCanonicalString(t *testing.T) {
	dir := t.TempDir()
	a := directAsset(t, dir, "same.yuv")
	b := *a
	b.WorkDir = filepath.Join(dir, "elsewhere")
	c := directAsset(t, dir, "other.yuv")

	registry := buildLockRegistry([]*media.Asset{a, &b, c})
	if registry.lockFor(a) != registry.lockFor(&b) {
		t.Fatal("aliased assets received distinct locks")
	}
	if registry.lockFor(a) == registry.lockFor(c) {
		t.Fatal("distinct assets share a lock")
	}
}
