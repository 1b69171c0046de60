package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"prism/internal/logging"
	"prism/internal/media"
	"prism/internal/services"
)

func stagedAsset(t *testing.T) *media.Asset {
	t.Helper()
	dir := t.TempDir()
	geometry := media.Geometry{Width: 8, Height: 4}
	ref := filepath.Join(dir, "ref.yuv")
	dis := filepath.Join(dir, "dis.yuv")
	for _, path := range []string{ref, dis} {
		if err := os.WriteFile(path, make([]byte, 48), 0o644); err != nil {
			t.Fatalf("write source: %v", err)
		}
	}
	return &media.Asset{
		Topology:  media.FullReference,
		Reference: media.Stream{Path: ref, PixelFormat: "yuv420p", Geometry: &geometry},
		Distorted: media.Stream{Path: dis, PixelFormat: "yuv420p", Geometry: &geometry},
		Compute:   &media.Geometry{Width: 8, Height: 4},
		WorkDir:   filepath.Join(dir, "work"),
	}
}

func TestTeardownRemovesStalePaths(t *testing.T) {
	asset := stagedAsset(t)
	asset.WorkfileFormat = "yuv444p" // forces the transcode stage
	plan, err := Resolve(asset, "psnr_1.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := os.MkdirAll(plan.RunDir, 0o755); err != nil {
		t.Fatalf("mkdir run dir: %v", err)
	}
	stale := plan.Workfiles[media.RoleReference]
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write stale workfile: %v", err)
	}

	orch := NewOrchestrator(Options{}, nil, logging.NewNop())
	if err := orch.Teardown(plan); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale workfile survived teardown: %v", err)
	}
}

func TestTeardownNeverTouchesDirectSource(t *testing.T) {
	asset := stagedAsset(t)
	plan, err := Resolve(asset, "psnr_1.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !plan.UseSourceAsWorkfile {
		t.Fatal("fixture should resolve to direct mode")
	}

	orch := NewOrchestrator(Options{}, nil, logging.NewNop())
	if err := orch.Teardown(plan); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if _, err := os.Stat(asset.Reference.Path); err != nil {
		t.Fatalf("source file removed in direct mode: %v", err)
	}
}

func TestOpenWorkfilesMaterializedRunsProducersInline(t *testing.T) {
	asset := stagedAsset(t)
	asset.WorkfileFormat = "yuv444p"
	plan, err := Resolve(asset, "psnr_1.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := os.MkdirAll(plan.RunDir, 0o755); err != nil {
		t.Fatalf("mkdir run dir: %v", err)
	}

	orch := NewOrchestrator(Options{FifoMode: false}, nil, logging.NewNop())
	var produced []media.Role
	orch.transcodeStream = func(ctx context.Context, plan *Plan, role media.Role) error {
		produced = append(produced, role)
		return os.WriteFile(plan.Workfiles[role], make([]byte, 8), 0o644)
	}

	set, err := orch.OpenWorkfiles(context.Background(), plan)
	if err != nil {
		t.Fatalf("OpenWorkfiles: %v", err)
	}
	if set != nil {
		t.Fatal("materialized mode returned a producer set")
	}
	if len(produced) != 2 || produced[0] != media.RoleReference || produced[1] != media.RoleDistorted {
		t.Fatalf("produced roles = %v, want [ref dis]", produced)
	}
}

func TestOpenWorkfilesStreamingTimesOut(t *testing.T) {
	asset := stagedAsset(t)
	asset.WorkfileFormat = "yuv444p"
	plan, err := Resolve(asset, "psnr_1.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := os.MkdirAll(plan.RunDir, 0o755); err != nil {
		t.Fatalf("mkdir run dir: %v", err)
	}

	orch := NewOrchestrator(Options{
		FifoMode:         true,
		PipePollRetries:  3,
		PipePollInterval: 5 * time.Millisecond,
	}, nil, logging.NewNop())
	// Producers that never create their pipes.
	orch.transcodeStream = func(ctx context.Context, plan *Plan, role media.Role) error {
		return nil
	}

	set, err := orch.OpenWorkfiles(context.Background(), plan)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("OpenWorkfiles returned %v, want a resource timeout", err)
	}
	if set == nil {
		t.Fatal("producer set should be returned for cleanup even on timeout")
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := set.Wait(waitCtx); err != nil {
		t.Fatalf("producers did not settle: %v", err)
	}
}

func TestOpenWorkfilesStreamingSeesLatePipe(t *testing.T) {
	asset := stagedAsset(t)
	asset.WorkfileFormat = "yuv444p"
	plan, err := Resolve(asset, "psnr_1.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := os.MkdirAll(plan.RunDir, 0o755); err != nil {
		t.Fatalf("mkdir run dir: %v", err)
	}

	orch := NewOrchestrator(Options{
		FifoMode:         true,
		PipePollRetries:  20,
		PipePollInterval: 5 * time.Millisecond,
	}, nil, logging.NewNop())
	orch.transcodeStream = func(ctx context.Context, plan *Plan, role media.Role) error {
		time.Sleep(15 * time.Millisecond)
		return os.WriteFile(plan.Workfiles[role], nil, 0o644)
	}

	set, err := orch.OpenWorkfiles(context.Background(), plan)
	if err != nil {
		t.Fatalf("OpenWorkfiles: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := set.Wait(waitCtx); err != nil {
		t.Fatalf("producers failed: %v", err)
	}
}

func TestProducerSetSurfacesFirstError(t *testing.T) {
	set := newProducerSet()
	boom := errors.New("boom")
	set.launch(func() error { return boom })
	set.launch(func() error { return nil })
	set.seal()

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := set.Wait(waitCtx); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want the producer error", err)
	}
	if !set.Settled() {
		t.Fatal("set should report settled after Wait")
	}
}
