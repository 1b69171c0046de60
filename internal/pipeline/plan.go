package pipeline

import (
	"fmt"
	"path/filepath"

	"prism/internal/identity"
	"prism/internal/media"
	"prism/internal/rawvideo"
	"prism/internal/services"
)

// Plan is the frozen per-run decision record. It is computed once, before any
// file is deleted or created, and threaded through every later stage and
// through cleanup so their behavior is uniform regardless of which stages
// were skipped.
type Plan struct {
	Asset      *media.Asset
	ExecutorID string
	Canonical  string
	Digest     string

	// RunDir is the private working directory for this (asset, executor) run.
	RunDir string

	// UseSourceAsWorkfile is set when no transcode is needed and downstream
	// stages read the source path directly.
	UseSourceAsWorkfile bool
	// UseWorkfileAsProcfile is set when no per-sample transform is configured.
	UseWorkfileAsProcfile bool

	// Workfiles and Procfiles hold the resolved stage paths per role. When a
	// decision flag is set they alias the upstream path.
	Workfiles map[media.Role]string
	Procfiles map[media.Role]string

	// Geometry and Format describe the workfile/procfile streams.
	Geometry media.Geometry
	Format   rawvideo.Format
}

// NeedsTranscode reports whether the transcode stage is required: compute
// geometry differing from any required stream's native geometry, a non-raw
// source, a frame sub-range, a workfile-format override disagreeing with the
// native format, or any configured filter.
func NeedsTranscode(asset *media.Asset) bool {
	compute, ok := asset.ComputeGeometry()
	if !ok {
		return true
	}
	for _, role := range asset.Topology.Roles() {
		stream := asset.Stream(role)
		if !stream.Raw() {
			return true
		}
		if stream.Geometry == nil || *stream.Geometry != compute {
			return true
		}
		if stream.FrameRange != nil {
			return true
		}
		if asset.WorkfileFormat != "" && asset.WorkfileFormat != stream.PixelFormat {
			return true
		}
		if stream.HasFilters() {
			return true
		}
	}
	return false
}

// NeedsTransform reports whether the per-sample transform stage is required
// for any required stream.
func NeedsTransform(asset *media.Asset) bool {
	for _, role := range asset.Topology.Roles() {
		if asset.Stream(role).Transform != nil {
			return true
		}
	}
	return false
}

// Resolve computes the per-run decision record for an asset. Both decision
// flags are frozen here, before any teardown or creation happens.
func Resolve(asset *media.Asset, executorID string) (*Plan, error) {
	canonical := asset.CanonicalString()
	digest := identity.Digest(canonical)
	runDir := filepath.Join(asset.WorkDir, executorID+"_"+digest)

	geometry, ok := asset.ComputeGeometry()
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "resolve plan",
			"compute geometry is unknown", nil)
	}
	format := rawvideo.Format(asset.WorkfilePixelFormat())
	if !rawvideo.Supported(format) {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "resolve plan",
			fmt.Sprintf("workfile pixel format %q is not supported", format), nil)
	}

	plan := &Plan{
		Asset:                 asset,
		ExecutorID:            executorID,
		Canonical:             canonical,
		Digest:                digest,
		RunDir:                runDir,
		UseSourceAsWorkfile:   !NeedsTranscode(asset),
		UseWorkfileAsProcfile: !NeedsTransform(asset),
		Workfiles:             make(map[media.Role]string, 2),
		Procfiles:             make(map[media.Role]string, 2),
		Geometry:              geometry,
		Format:                format,
	}

	for _, role := range asset.Topology.Roles() {
		stream := asset.Stream(role)
		if plan.UseSourceAsWorkfile {
			plan.Workfiles[role] = stream.Path
		} else {
			plan.Workfiles[role] = filepath.Join(runDir, asset.WorkfileName(role))
			if plan.Workfiles[role] == stream.Path {
				return nil, services.Wrap(services.ErrConfiguration, "pipeline", "resolve plan",
					fmt.Sprintf("workfile path %q aliases the source path", stream.Path), nil)
			}
		}
		if plan.UseWorkfileAsProcfile {
			plan.Procfiles[role] = plan.Workfiles[role]
		} else {
			plan.Procfiles[role] = filepath.Join(runDir, asset.ProcfileName(role))
		}
	}
	return plan, nil
}

// LogPath returns the private log artifact path for the run.
func (p *Plan) LogPath() string {
	return filepath.Join(p.RunDir, "compute.log")
}

// ComputePaths returns the per-role stream paths the computation reads.
func (p *Plan) ComputePaths() map[media.Role]string {
	out := make(map[media.Role]string, len(p.Procfiles))
	for role, path := range p.Procfiles {
		out[role] = path
	}
	return out
}
