package features

import (
	"context"
	"errors"
	"fmt"
	"io"

	"prism/internal/executor"
	"prism/internal/media"
	"prism/internal/rawvideo"
	"prism/internal/result"
	"prism/internal/services"
)

// meanLuma computes the per-frame mean of the distorted stream's luma plane.
// It needs no reference stream.
type meanLuma struct {
	offset float64
}

func newMeanLuma(params map[string]any) (executor.Plugin, error) {
	plugin := meanLuma{}
	for key, value := range params {
		switch key {
		case "offset":
			offset, ok := value.(float64)
			if !ok {
				return nil, services.Wrap(services.ErrConfiguration, "features", "build meanluma",
					fmt.Sprintf("offset must be a number, got %T", value), nil)
			}
			plugin.offset = offset
		default:
			return nil, services.Wrap(services.ErrConfiguration, "features", "build meanluma",
				fmt.Sprintf("unknown parameter %q", key), nil)
		}
	}
	return plugin, nil
}

func (meanLuma) Kind() string             { return "meanluma" }
func (meanLuma) Version() string          { return "1.0" }
func (meanLuma) Topology() media.Topology { return media.NoReference }

func (m meanLuma) Params() map[string]any {
	if m.offset == 0 {
		return nil
	}
	return map[string]any{"offset": m.offset}
}

func (m meanLuma) GenerateResult(ctx context.Context, run *executor.RunContext) error {
	geometry := run.Plan.Geometry
	reader, err := rawvideo.NewReader(run.StreamPath(media.RoleDistorted), geometry.Width, geometry.Height, run.Plan.Format)
	if err != nil {
		return services.Wrap(services.ErrCompute, "features", "open distorted stream", "", err)
	}
	defer reader.Close()

	var scores []float64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := reader.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return services.Wrap(services.ErrCompute, "features", "read frame",
				fmt.Sprintf("frame %d", len(scores)), err)
		}
		var sum float64
		for _, sample := range frame.Y {
			sum += sample
		}
		scores = append(scores, sum/float64(len(frame.Y))+m.offset)
	}
	if len(scores) == 0 {
		return services.Wrap(services.ErrCompute, "features", "read frame", "stream held no frames", nil)
	}
	return writeScores(run.ArtifactPath("meanluma.scores"), run.Plan.ExecutorID, scores)
}

func (m meanLuma) ReadResult(run *executor.RunContext) (*result.Result, error) {
	scores, err := readScores(run.ArtifactPath("meanluma.scores"), run.Plan.ExecutorID)
	if err != nil {
		return nil, err
	}
	return &result.Result{Scores: map[string][]float64{"meanluma_score": scores}}, nil
}
