package media

import (
	"strings"
	"testing"
)

func fullReferenceAsset() *Asset {
	return &Asset{
		Topology:  FullReference,
		Reference: Stream{Path: "/in/ref.yuv", PixelFormat: "yuv420p", Geometry: &Geometry{Width: 320, Height: 240}},
		Distorted: Stream{Path: "/in/dis.yuv", PixelFormat: "yuv420p", Geometry: &Geometry{Width: 320, Height: 240}},
		WorkDir:   "/tmp/work",
	}
}

func TestCanonicalStringExcludesWorkDir(t *testing.T) {
	a := fullReferenceAsset()
	b := fullReferenceAsset()
	b.WorkDir = "/somewhere/else"
	if a.CanonicalString() != b.CanonicalString() {
		t.Fatal("working directory leaked into the canonical string")
	}
}

func TestCanonicalStringSensitiveToStreams(t *testing.T) {
	a := fullReferenceAsset()
	b := fullReferenceAsset()
	b.Distorted.Path = "/in/other.yuv"
	if a.CanonicalString() == b.CanonicalString() {
		t.Fatal("different distorted paths produced identical canonical strings")
	}
}

func TestCanonicalStringSensitiveToStreamDirectories(t *testing.T) {
	a := fullReferenceAsset()
	b := fullReferenceAsset()
	b.Reference.Path = "/other/ref.yuv"
	b.Distorted.Path = "/other/dis.yuv"
	if a.CanonicalString() == b.CanonicalString() {
		t.Fatal("streams with the same file names in different directories share a canonical string")
	}
}

func TestCanonicalStringFilterOrderStable(t *testing.T) {
	a := fullReferenceAsset()
	a.Distorted.Filters = map[string]string{"crop": "100:100:0:0", "gblur": "sigma=1"}
	b := fullReferenceAsset()
	b.Distorted.Filters = map[string]string{"gblur": "sigma=1", "crop": "100:100:0:0"}
	if a.CanonicalString() != b.CanonicalString() {
		t.Fatal("filter map iteration order leaked into the canonical string")
	}
}

func TestCanonicalStringRendersTransformByName(t *testing.T) {
	a := fullReferenceAsset()
	a.Distorted.Transform = &LumaTransform{Name: "ident", Fn: func(p []float64, w, h int) []float64 { return p }}
	if !strings.Contains(a.CanonicalString(), "transform_ident") {
		t.Fatalf("transform name missing from %q", a.CanonicalString())
	}
}

func TestComputeGeometryFallback(t *testing.T) {
	a := fullReferenceAsset()
	if got, ok := a.ComputeGeometry(); !ok || got != (Geometry{Width: 320, Height: 240}) {
		t.Fatalf("ComputeGeometry = %v ok=%t, want distorted geometry", got, ok)
	}

	a.Compute = &Geometry{Width: 160, Height: 120}
	if got, _ := a.ComputeGeometry(); got != (Geometry{Width: 160, Height: 120}) {
		t.Fatalf("explicit compute geometry not honored, got %v", got)
	}

	b := fullReferenceAsset()
	b.Distorted.Geometry = nil
	if got, ok := b.ComputeGeometry(); !ok || got != (Geometry{Width: 320, Height: 240}) {
		t.Fatalf("reference fallback failed, got %v ok=%t", got, ok)
	}

	c := fullReferenceAsset()
	c.Reference.Geometry = nil
	c.Distorted.Geometry = nil
	if _, ok := c.ComputeGeometry(); ok {
		t.Fatal("geometry reported known with no source of truth")
	}
}

func TestWorkfilePixelFormatDerivation(t *testing.T) {
	a := fullReferenceAsset()
	if got := a.WorkfilePixelFormat(); got != "yuv420p" {
		t.Fatalf("WorkfilePixelFormat = %q, want yuv420p", got)
	}

	a.WorkfileFormat = "yuv444p"
	if got := a.WorkfilePixelFormat(); got != "yuv444p" {
		t.Fatalf("override not honored, got %q", got)
	}

	b := fullReferenceAsset()
	b.Reference.PixelFormat = FormatEncoded
	if got := b.WorkfilePixelFormat(); got != "yuv420p" {
		t.Fatalf("expected raw distorted format, got %q", got)
	}
}

func TestTopologyRoles(t *testing.T) {
	if got := FullReference.Roles(); len(got) != 2 || got[0] != RoleReference || got[1] != RoleDistorted {
		t.Fatalf("FullReference roles = %v", got)
	}
	if got := NoReference.Roles(); len(got) != 1 || got[0] != RoleDistorted {
		t.Fatalf("NoReference roles = %v", got)
	}
	if NoReference.Requires(RoleReference) {
		t.Fatal("NoReference claims to require a reference stream")
	}
}

func TestFrameRangeFrames(t *testing.T) {
	r := FrameRange{Start: 10, End: 19}
	if got := r.Frames(); got != 10 {
		t.Fatalf("Frames = %d, want 10", got)
	}
}
