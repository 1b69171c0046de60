package media

import (
	"fmt"
	"sort"
	"strings"
)

// FormatEncoded marks a stream whose samples are not raw planar data and must
// pass through the external transcoder before any computation can read it.
const FormatEncoded = "notraw"

// Geometry is a frame size in pixels.
type Geometry struct {
	Width  int
	Height int
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// FrameRange selects an inclusive sub-range of frames from a stream.
type FrameRange struct {
	Start int
	End   int
}

// Frames returns the number of frames the range covers.
func (r FrameRange) Frames() int {
	return r.End - r.Start + 1
}

// LumaTransform is a per-sample callback applied to the luma plane between
// the workfile and procfile stages. The name, not the function address,
// participates in the asset's canonical string so fingerprints stay stable
// across processes.
type LumaTransform struct {
	Name string
	Fn   func(plane []float64, width, height int) []float64
}

// ParamName satisfies the identity package's rendering contract for callables.
func (t LumaTransform) ParamName() string { return t.Name }

// Stream describes one input stream and its per-stream processing options.
type Stream struct {
	Path        string
	PixelFormat string
	Geometry    *Geometry
	FrameRange  *FrameRange
	Resampling  string
	Filters     map[string]string
	Transform   *LumaTransform
}

// Raw reports whether the stream's samples are raw planar data.
func (s Stream) Raw() bool {
	return s.PixelFormat != "" && s.PixelFormat != FormatEncoded
}

// Filter returns the configured argument string for a filter, or "".
func (s Stream) Filter(name string) string {
	if s.Filters == nil {
		return ""
	}
	return s.Filters[name]
}

// HasFilters reports whether any filter from the fixed set is configured.
func (s Stream) HasFilters() bool {
	for _, name := range OrderedFilters {
		if s.Filter(name) != "" {
			return true
		}
	}
	return false
}

// Asset is the immutable specification of one computation input.
type Asset struct {
	Topology Topology

	Reference Stream
	Distorted Stream

	// Compute holds the explicitly requested compute geometry, nil when the
	// geometry should be inherited from the streams.
	Compute *Geometry

	// WorkfileFormat overrides the derived workfile pixel format when set.
	WorkfileFormat string

	// WorkDir is the root under which the private per-run directory is created.
	WorkDir string
}

// Stream returns the stream for a role the topology carries.
func (a *Asset) Stream(role Role) Stream {
	if role == RoleReference {
		return a.Reference
	}
	return a.Distorted
}

// ComputeGeometry resolves the target geometry: the explicit request when
// present, otherwise inherited from the distorted stream, then the reference.
func (a *Asset) ComputeGeometry() (Geometry, bool) {
	if a.Compute != nil {
		return *a.Compute, true
	}
	if a.Distorted.Geometry != nil {
		return *a.Distorted.Geometry, true
	}
	if a.Topology.Requires(RoleReference) && a.Reference.Geometry != nil {
		return *a.Reference.Geometry, true
	}
	return Geometry{}, false
}

// ComputeExplicit reports whether the compute geometry was requested rather
// than inherited.
func (a *Asset) ComputeExplicit() bool {
	return a.Compute != nil
}

// WorkfilePixelFormat derives the sample format of the workfile stage: the
// explicit override wins, then whichever stream is raw, with agreement
// enforced at validation time.
func (a *Asset) WorkfilePixelFormat() string {
	if a.WorkfileFormat != "" {
		return a.WorkfileFormat
	}
	if a.Topology.Requires(RoleReference) {
		switch {
		case a.Reference.Raw():
			return a.Reference.PixelFormat
		case a.Distorted.Raw():
			return a.Distorted.PixelFormat
		}
		return ""
	}
	if a.Distorted.Raw() {
		return a.Distorted.PixelFormat
	}
	return ""
}

// WorkfileName returns the stage-one file name for a role inside the run dir.
func (a *Asset) WorkfileName(role Role) string {
	return string(role) + "_workfile"
}

// ProcfileName returns the stage-two file name for a role inside the run dir.
func (a *Asset) ProcfileName(role Role) string {
	return string(role) + "_procfile"
}

// CanonicalString renders every result-impacting field in a fixed order. Two
// assets with the same canonical string alias the same computation input and
// must share a scheduler lock. The working directory is excluded: it does not
// affect the result.
func (a *Asset) CanonicalString() string {
	var sb strings.Builder
	sb.WriteString("topology_")
	sb.WriteString(a.Topology.String())
	if a.Topology.Requires(RoleReference) {
		writeStream(&sb, "ref", a.Reference)
	}
	writeStream(&sb, "dis", a.Distorted)
	if a.Compute != nil {
		fmt.Fprintf(&sb, "_q_%s", a.Compute)
	}
	if a.WorkfileFormat != "" {
		fmt.Fprintf(&sb, "_workfmt_%s", a.WorkfileFormat)
	}
	return sb.String()
}

// writeStream renders the full stream path: two inputs that differ only by
// directory are distinct computation inputs and must not share a fingerprint.
func writeStream(sb *strings.Builder, label string, s Stream) {
	fmt.Fprintf(sb, "_%s_%s", label, s.Path)
	if s.PixelFormat != "" {
		fmt.Fprintf(sb, "_%s", s.PixelFormat)
	}
	if s.Geometry != nil {
		fmt.Fprintf(sb, "_%s", s.Geometry)
	}
	if s.FrameRange != nil {
		fmt.Fprintf(sb, "_frames_%d_%d", s.FrameRange.Start, s.FrameRange.End)
	}
	if s.Resampling != "" {
		fmt.Fprintf(sb, "_resample_%s", s.Resampling)
	}
	if len(s.Filters) > 0 {
		names := make([]string, 0, len(s.Filters))
		for name := range s.Filters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(sb, "_%s_%s", name, s.Filters[name])
		}
	}
	if s.Transform != nil {
		fmt.Fprintf(sb, "_transform_%s", s.Transform.Name)
	}
}

func (a *Asset) String() string {
	return a.CanonicalString()
}
