package main

import (
	"encoding/json"
	"fmt"
	"os"

	"prism/internal/config"
	"prism/internal/media"
)

// batchFile is the on-disk description of a run's inputs.
type batchFile struct {
	Assets []assetSpec `json:"assets"`
}

type assetSpec struct {
	Reference *streamSpec `json:"reference,omitempty"`
	Distorted *streamSpec `json:"distorted"`

	ComputeWidth   int    `json:"compute_width,omitempty"`
	ComputeHeight  int    `json:"compute_height,omitempty"`
	WorkfileFormat string `json:"workfile_format,omitempty"`
}

type streamSpec struct {
	Path        string            `json:"path"`
	PixelFormat string            `json:"pixel_format,omitempty"`
	Width       int               `json:"width,omitempty"`
	Height      int               `json:"height,omitempty"`
	FrameStart  *int              `json:"frame_start,omitempty"`
	FrameEnd    *int              `json:"frame_end,omitempty"`
	Resampling  string            `json:"resampling,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
}

// loadAssets parses a batch file into assets bound to the configured work
// directory and the plugin's topology.
func loadAssets(path string, topology media.Topology, cfg *config.Config) ([]*media.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var batch batchFile
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parse batch file %s: %w", path, err)
	}
	if len(batch.Assets) == 0 {
		return nil, fmt.Errorf("batch file %s lists no assets", path)
	}

	assets := make([]*media.Asset, 0, len(batch.Assets))
	for i, spec := range batch.Assets {
		asset, err := spec.toAsset(topology, cfg.Paths.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("batch file %s asset %d: %w", path, i, err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func (s assetSpec) toAsset(topology media.Topology, workDir string) (*media.Asset, error) {
	if s.Distorted == nil {
		return nil, fmt.Errorf("distorted stream is required")
	}
	if topology.Requires(media.RoleReference) && s.Reference == nil {
		return nil, fmt.Errorf("topology %s requires a reference stream", topology)
	}

	asset := &media.Asset{
		Topology:       topology,
		Distorted:      s.Distorted.toStream(),
		WorkfileFormat: s.WorkfileFormat,
		WorkDir:        workDir,
	}
	if s.Reference != nil {
		asset.Reference = s.Reference.toStream()
	}
	if s.ComputeWidth > 0 && s.ComputeHeight > 0 {
		asset.Compute = &media.Geometry{Width: s.ComputeWidth, Height: s.ComputeHeight}
	}
	return asset, nil
}

func (s streamSpec) toStream() media.Stream {
	stream := media.Stream{
		Path:        s.Path,
		PixelFormat: s.PixelFormat,
		Resampling:  s.Resampling,
		Filters:     s.Filters,
	}
	if s.Width > 0 && s.Height > 0 {
		stream.Geometry = &media.Geometry{Width: s.Width, Height: s.Height}
	}
	if s.FrameStart != nil && s.FrameEnd != nil {
		stream.FrameRange = &media.FrameRange{Start: *s.FrameStart, End: *s.FrameEnd}
	}
	return stream
}
