package features

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"prism/internal/executor"
	"prism/internal/logging"
	"prism/internal/media"
	"prism/internal/pipeline"
	"prism/internal/services"
)

func writeRaw(t *testing.T, path string, frames int, width, height int, luma byte) {
	t.Helper()
	frameBytes := width*height + 2*(width/2)*(height/2)
	data := make([]byte, frames*frameBytes)
	for f := 0; f < frames; f++ {
		base := f * frameBytes
		for i := 0; i < width*height; i++ {
			data[base+i] = luma
		}
		for i := width * height; i < frameBytes; i++ {
			data[base+i] = 128
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write raw file: %v", err)
	}
}

func runContextFor(t *testing.T, asset *media.Asset, executorID string) *executor.RunContext {
	t.Helper()
	plan, err := pipeline.Resolve(asset, executorID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := os.MkdirAll(plan.RunDir, 0o755); err != nil {
		t.Fatalf("mkdir run dir: %v", err)
	}
	return &executor.RunContext{Plan: plan, Logger: logging.NewNop()}
}

func TestRegistryNames(t *testing.T) {
	names := Names()
	if len(names) != 2 || names[0] != "meanluma" || names[1] != "psnr" {
		t.Fatalf("Names = %v, want [meanluma psnr]", names)
	}
	if _, err := New("nope", nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("unknown plugin returned %v, want a configuration error", err)
	}
}

func TestPSNRIdenticalStreamsHitCap(t *testing.T) {
	dir := t.TempDir()
	const width, height = 8, 4
	geometry := media.Geometry{Width: width, Height: height}
	ref := filepath.Join(dir, "ref.yuv")
	dis := filepath.Join(dir, "dis.yuv")
	writeRaw(t, ref, 2, width, height, 100)
	writeRaw(t, dis, 2, width, height, 100)

	asset := &media.Asset{
		Topology:  media.FullReference,
		Reference: media.Stream{Path: ref, PixelFormat: "yuv420p", Geometry: &geometry},
		Distorted: media.Stream{Path: dis, PixelFormat: "yuv420p", Geometry: &geometry},
		WorkDir:   filepath.Join(dir, "work"),
	}

	plugin, err := New("psnr", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run := runContextFor(t, asset, executor.ExecutorID(plugin))

	if err := plugin.GenerateResult(context.Background(), run); err != nil {
		t.Fatalf("GenerateResult: %v", err)
	}
	res, err := plugin.ReadResult(run)
	if err != nil {
		t.Fatalf("ReadResult: %v", err)
	}
	scores := res.Scores["psnr_score"]
	if len(scores) != 2 {
		t.Fatalf("got %d frame scores, want 2", len(scores))
	}
	for i, score := range scores {
		if score != 60.0 {
			t.Fatalf("frame %d score = %v, want capped 60.0", i, score)
		}
	}
}

func TestPSNRDegradedStream(t *testing.T) {
	dir := t.TempDir()
	const width, height = 8, 4
	geometry := media.Geometry{Width: width, Height: height}
	ref := filepath.Join(dir, "ref.yuv")
	dis := filepath.Join(dir, "dis.yuv")
	writeRaw(t, ref, 1, width, height, 100)
	writeRaw(t, dis, 1, width, height, 110)

	asset := &media.Asset{
		Topology:  media.FullReference,
		Reference: media.Stream{Path: ref, PixelFormat: "yuv420p", Geometry: &geometry},
		Distorted: media.Stream{Path: dis, PixelFormat: "yuv420p", Geometry: &geometry},
		WorkDir:   filepath.Join(dir, "work"),
	}

	plugin, err := New("psnr", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run := runContextFor(t, asset, executor.ExecutorID(plugin))
	if err := plugin.GenerateResult(context.Background(), run); err != nil {
		t.Fatalf("GenerateResult: %v", err)
	}
	res, err := plugin.ReadResult(run)
	if err != nil {
		t.Fatalf("ReadResult: %v", err)
	}

	// Uniform offset of 10 gives mse=100: 10*log10(255^2/100).
	want := 10 * math.Log10(255*255/100.0)
	got := res.Scores["psnr_score"][0]
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("score = %v, want %v", got, want)
	}
}

func TestPSNRRejectsParams(t *testing.T) {
	if _, err := New("psnr", map[string]any{"x": 1.0}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("psnr with params returned %v, want a configuration error", err)
	}
}

func TestMeanLumaScoresAndOffset(t *testing.T) {
	dir := t.TempDir()
	const width, height = 8, 4
	geometry := media.Geometry{Width: width, Height: height}
	dis := filepath.Join(dir, "dis.yuv")
	writeRaw(t, dis, 3, width, height, 50)

	asset := &media.Asset{
		Topology:  media.NoReference,
		Distorted: media.Stream{Path: dis, PixelFormat: "yuv420p", Geometry: &geometry},
		WorkDir:   filepath.Join(dir, "work"),
	}

	plugin, err := New("meanluma", map[string]any{"offset": 5.0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	run := runContextFor(t, asset, executor.ExecutorID(plugin))
	if err := plugin.GenerateResult(context.Background(), run); err != nil {
		t.Fatalf("GenerateResult: %v", err)
	}
	res, err := plugin.ReadResult(run)
	if err != nil {
		t.Fatalf("ReadResult: %v", err)
	}

	scores := res.Scores["meanluma_score"]
	if len(scores) != 3 {
		t.Fatalf("got %d frame scores, want 3", len(scores))
	}
	for i, score := range scores {
		if math.Abs(score-55.0) > 1e-6 {
			t.Fatalf("frame %d score = %v, want 55.0", i, score)
		}
	}
}

func TestMeanLumaOffsetChangesIdentity(t *testing.T) {
	base, err := New("meanluma", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	offset, err := New("meanluma", map[string]any{"offset": 5.0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if executor.ExecutorID(base) == executor.ExecutorID(offset) {
		t.Fatal("offset parameter did not change the executor id")
	}
}

func TestScoreArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.scores")
	scores := []float64{1.5, 2.25, 3.0}
	if err := writeScores(path, "psnr_1.0", scores); err != nil {
		t.Fatalf("writeScores: %v", err)
	}

	got, err := readScores(path, "psnr_1.0")
	if err != nil {
		t.Fatalf("readScores: %v", err)
	}
	if len(got) != len(scores) {
		t.Fatalf("got %d scores, want %d", len(got), len(scores))
	}
	for i := range scores {
		if math.Abs(got[i]-scores[i]) > 1e-6 {
			t.Fatalf("score %d = %v, want %v", i, got[i], scores[i])
		}
	}
}

func TestScoreArtifactHeaderMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.scores")
	if err := writeScores(path, "psnr_1.0", []float64{1.0}); err != nil {
		t.Fatalf("writeScores: %v", err)
	}
	if _, err := readScores(path, "psnr_2.0"); !errors.Is(err, services.ErrParse) {
		t.Fatalf("mismatched header returned %v, want a parse error", err)
	}
}

func TestScoreArtifactMalformedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.scores")
	if err := os.WriteFile(path, []byte("psnr_1.0\nframe zero garbage\n"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if _, err := readScores(path, "psnr_1.0"); !errors.Is(err, services.ErrParse) {
		t.Fatalf("malformed artifact returned %v, want a parse error", err)
	}
}
