package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"prism/internal/logging"
	"prism/internal/media"
)

func TestTransformStreamAppliesLumaOnly(t *testing.T) {
	dir := t.TempDir()
	const width, height = 4, 2
	lumaBytes := width * height
	chromaBytes := (width / 2) * (height / 2)
	frameBytes := lumaBytes + 2*chromaBytes

	source := filepath.Join(dir, "dis.yuv")
	data := make([]byte, 2*frameBytes)
	for i := range data {
		data[i] = 100
	}
	if err := os.WriteFile(source, data, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	geometry := media.Geometry{Width: width, Height: height}
	asset := &media.Asset{
		Topology: media.NoReference,
		Distorted: media.Stream{
			Path:        source,
			PixelFormat: "yuv420p",
			Geometry:    &geometry,
			Transform: &media.LumaTransform{
				Name: "plus_ten",
				Fn: func(plane []float64, w, h int) []float64 {
					for i := range plane {
						plane[i] += 10
					}
					return plane
				},
			},
		},
		WorkDir: filepath.Join(dir, "work"),
	}

	plan, err := Resolve(asset, "meanluma_1.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.UseSourceAsWorkfile != true || plan.UseWorkfileAsProcfile != false {
		t.Fatalf("flags = (%t, %t), want direct workfile and staged procfile",
			plan.UseSourceAsWorkfile, plan.UseWorkfileAsProcfile)
	}
	if err := os.MkdirAll(plan.RunDir, 0o755); err != nil {
		t.Fatalf("mkdir run dir: %v", err)
	}

	orch := NewOrchestrator(Options{FifoMode: false}, nil, logging.NewNop())
	if err := orch.transformStream(plan, media.RoleDistorted, false); err != nil {
		t.Fatalf("transformStream: %v", err)
	}

	out, err := os.ReadFile(plan.Procfiles[media.RoleDistorted])
	if err != nil {
		t.Fatalf("read procfile: %v", err)
	}
	if len(out) != len(data) {
		t.Fatalf("procfile length = %d, want %d", len(out), len(data))
	}
	for frame := 0; frame < 2; frame++ {
		base := frame * frameBytes
		for i := 0; i < lumaBytes; i++ {
			if out[base+i] != 110 {
				t.Fatalf("luma sample %d = %d, want 110", base+i, out[base+i])
			}
		}
		for i := lumaBytes; i < frameBytes; i++ {
			if out[base+i] != 100 {
				t.Fatalf("chroma sample %d = %d, want untouched 100", base+i, out[base+i])
			}
		}
	}
}
