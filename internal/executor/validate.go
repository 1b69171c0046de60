package executor

import (
	"fmt"
	"os"

	"prism/internal/media"
	"prism/internal/rawvideo"
	"prism/internal/services"
)

// Validate checks an asset against a plugin's requirements before any file is
// touched. All failures are configuration errors.
func Validate(plugin Plugin, asset *media.Asset, fifoMode, saveWorkfiles bool) error {
	fail := func(message string) error {
		return services.Wrap(services.ErrConfiguration, "executor", "validate asset", message, nil)
	}

	if asset.Topology.String() != plugin.Topology().String() {
		return fail(fmt.Sprintf("asset topology %q does not match plugin topology %q",
			asset.Topology, plugin.Topology()))
	}
	if saveWorkfiles && fifoMode {
		return fail("workfile retention is incompatible with streaming mode")
	}

	if _, ok := asset.ComputeGeometry(); !ok {
		return fail("compute geometry cannot be determined")
	}
	format := rawvideo.Format(asset.WorkfilePixelFormat())
	if !rawvideo.Supported(format) {
		return fail(fmt.Sprintf("workfile pixel format %q is not supported", format))
	}
	// Two raw inputs with disagreeing native formats would be read with the
	// wrong frame size; an explicit workfile format resolves the conflict by
	// forcing a transcode for the odd one out.
	if asset.Topology.Requires(media.RoleReference) &&
		asset.Reference.Raw() && asset.Distorted.Raw() &&
		asset.Reference.PixelFormat != asset.Distorted.PixelFormat &&
		asset.WorkfileFormat == "" {
		return fail(fmt.Sprintf("reference format %q and distorted format %q disagree and no workfile format is set",
			asset.Reference.PixelFormat, asset.Distorted.PixelFormat))
	}

	for _, role := range plugin.Topology().Roles() {
		stream := asset.Stream(role)
		if stream.Path == "" {
			return fail(fmt.Sprintf("%s stream has no path", role))
		}
		if _, err := os.Stat(stream.Path); err != nil {
			return fail(fmt.Sprintf("%s stream path %q is not readable: %v", role, stream.Path, err))
		}
		if stream.Raw() {
			if stream.PixelFormat == "" {
				return fail(fmt.Sprintf("%s raw stream declares no pixel format", role))
			}
			if stream.Geometry == nil {
				return fail(fmt.Sprintf("%s raw stream declares no geometry", role))
			}
		}
		// Geometry-altering filters change the frame size mid-chain, so the
		// compute geometry must be stated explicitly rather than inferred.
		for name := range stream.Filters {
			if !media.FilterAllowed(name) {
				return fail(fmt.Sprintf("%s stream configures unknown filter %q", role, name))
			}
			if isGeometryFilter(name) && !asset.ComputeExplicit() {
				return fail(fmt.Sprintf("%s stream configures filter %q without an explicit compute geometry", role, name))
			}
		}
		if fr := stream.FrameRange; fr != nil && (fr.Start < 0 || fr.End < fr.Start) {
			return fail(fmt.Sprintf("%s stream frame range [%d, %d] is invalid", role, fr.Start, fr.End))
		}
	}

	if asset.WorkDir == "" {
		return fail("asset has no working directory")
	}
	return nil
}

func isGeometryFilter(name string) bool {
	for _, f := range media.GeometryFilters {
		if f == name {
			return true
		}
	}
	return false
}
