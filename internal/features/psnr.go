package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"prism/internal/executor"
	"prism/internal/media"
	"prism/internal/rawvideo"
	"prism/internal/result"
	"prism/internal/services"
)

// psnrCap bounds the score when reference and distorted frames are
// identical, where the ratio is unbounded.
const psnrCap = 60.0

// psnr computes per-frame peak signal-to-noise ratio over the luma plane of
// a reference/distorted pair.
type psnr struct{}

func newPSNR(params map[string]any) (executor.Plugin, error) {
	if len(params) > 0 {
		return nil, services.Wrap(services.ErrConfiguration, "features", "build psnr",
			"psnr takes no parameters", nil)
	}
	return psnr{}, nil
}

func (psnr) Kind() string             { return "psnr" }
func (psnr) Version() string          { return "1.0" }
func (psnr) Params() map[string]any   { return nil }
func (psnr) Topology() media.Topology { return media.FullReference }

func (p psnr) GenerateResult(ctx context.Context, run *executor.RunContext) error {
	geometry := run.Plan.Geometry
	refReader, err := rawvideo.NewReader(run.StreamPath(media.RoleReference), geometry.Width, geometry.Height, run.Plan.Format)
	if err != nil {
		return services.Wrap(services.ErrCompute, "features", "open reference stream", "", err)
	}
	defer refReader.Close()
	disReader, err := rawvideo.NewReader(run.StreamPath(media.RoleDistorted), geometry.Width, geometry.Height, run.Plan.Format)
	if err != nil {
		return services.Wrap(services.ErrCompute, "features", "open distorted stream", "", err)
	}
	defer disReader.Close()

	var scores []float64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		refFrame, refErr := refReader.ReadFrame()
		disFrame, disErr := disReader.ReadFrame()
		if errors.Is(refErr, io.EOF) && errors.Is(disErr, io.EOF) {
			break
		}
		if refErr != nil || disErr != nil {
			return services.Wrap(services.ErrCompute, "features", "read frame pair",
				fmt.Sprintf("frame %d: ref=%v dis=%v", len(scores), refErr, disErr), nil)
		}
		scores = append(scores, framePSNR(refFrame.Y, disFrame.Y))
		fmt.Fprintf(run.Log(), "psnr frame %d computed\n", len(scores)-1)
	}
	if len(scores) == 0 {
		return services.Wrap(services.ErrCompute, "features", "read frame pair", "streams held no frames", nil)
	}
	return writeScores(run.ArtifactPath("psnr.scores"), run.Plan.ExecutorID, scores)
}

func (p psnr) ReadResult(run *executor.RunContext) (*result.Result, error) {
	scores, err := readScores(run.ArtifactPath("psnr.scores"), run.Plan.ExecutorID)
	if err != nil {
		return nil, err
	}
	return &result.Result{Scores: map[string][]float64{"psnr_score": scores}}, nil
}

func framePSNR(ref, dis []float64) float64 {
	var sum float64
	for i := range ref {
		diff := ref[i] - dis[i]
		sum += diff * diff
	}
	mse := sum / float64(len(ref))
	if mse == 0 {
		return psnrCap
	}
	score := 10 * math.Log10(255*255/mse)
	return math.Min(score, psnrCap)
}
