// Package transcode builds and runs the external transcoder invocation that
// materializes a stream into raw planar samples at the workfile path. The
// tool's contract: given a source, frame range, format, filters, and target
// resolution, produce raw samples in the declared sample format; a nonzero
// exit is a fatal external-process error.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"prism/internal/logging"
	"prism/internal/media"
	"prism/internal/services"
)

const defaultResampling = "bicubic"

// Request describes one stream's transcode into a workfile or pipe.
type Request struct {
	Source         string
	Target         string
	SourceFormat   string
	SourceGeometry *media.Geometry
	TargetFormat   string
	TargetGeometry media.Geometry
	FrameRange     *media.FrameRange
	Resampling     string
	Filters        map[string]string
}

// Args assembles the transcoder argument vector for a request.
func Args(req Request) []string {
	args := make([]string, 0, 24)

	if req.SourceFormat != "" && req.SourceFormat != media.FormatEncoded {
		// Raw sources carry no header; geometry and format must be declared.
		args = append(args, "-f", "rawvideo", "-pix_fmt", req.SourceFormat)
		if req.SourceGeometry != nil {
			args = append(args, "-s", req.SourceGeometry.String())
		}
	}

	args = append(args, "-i", req.Source, "-an", "-vsync", "0", "-pix_fmt", req.TargetFormat)

	if req.FrameRange != nil {
		args = append(args, "-vframes", fmt.Sprint(req.FrameRange.Frames()))
	}

	args = append(args, "-vf", filterChain(req))

	resampling := req.Resampling
	if resampling == "" {
		resampling = defaultResampling
	}
	args = append(args,
		"-f", "rawvideo",
		"-sws_flags", resampling,
		"-y", "-nostdin",
		req.Target,
	)
	return args
}

func filterChain(req Request) string {
	chain := make([]string, 0, len(media.OrderedFilters)+2)

	if req.FrameRange != nil {
		chain = append(chain, fmt.Sprintf(
			`select='gte(n\,%d)*gte(%d\,n)',setpts=PTS-STARTPTS`,
			req.FrameRange.Start, req.FrameRange.End,
		))
	}
	if crop := req.Filters["crop"]; crop != "" {
		chain = append(chain, "crop="+crop)
	}
	if pad := req.Filters["pad"]; pad != "" {
		chain = append(chain, "pad="+pad)
	}
	chain = append(chain, fmt.Sprintf("scale=%dx%d", req.TargetGeometry.Width, req.TargetGeometry.Height))
	for _, name := range media.OrderedFilters {
		if name == "crop" || name == "pad" {
			continue
		}
		if value := req.Filters[name]; value != "" {
			chain = append(chain, name+"="+value)
		}
	}
	return strings.Join(chain, ",")
}

// Runner executes transcode requests against a configured binary.
type Runner struct {
	binary string
	logger *slog.Logger
}

// NewRunner builds a runner for the given transcoder binary.
func NewRunner(binary string, logger *slog.Logger) *Runner {
	return &Runner{
		binary: binary,
		logger: logging.NewComponentLogger(logger, "transcode"),
	}
}

// Run blocks until the transcoder exits. When the target is a named pipe the
// process blocks inside the tool until a consumer drains it, so streaming
// callers run this on a producer goroutine.
func (r *Runner) Run(ctx context.Context, req Request) error {
	args := Args(req)
	r.logger.InfoContext(ctx, "launching transcoder",
		logging.String("command", r.binary+" "+strings.Join(args, " ")),
		logging.String("source_file", req.Source),
		logging.String("target_file", req.Target),
	)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := tail(stderr.String(), 512)
		return services.Wrap(services.ErrExternalProcess, "transcode", "run transcoder", detail, err)
	}
	return nil
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
