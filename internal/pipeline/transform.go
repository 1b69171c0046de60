package pipeline

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"prism/internal/logging"
	"prism/internal/media"
	"prism/internal/rawvideo"
	"prism/internal/services"
)

// transformStream copies frames from a role's workfile to its procfile,
// applying the configured luma transform. Chroma planes pass through
// untouched. End of input is the normal termination condition.
func (o *Orchestrator) transformStream(plan *Plan, role media.Role, fifo bool) error {
	source := plan.Workfiles[role]
	target := plan.Procfiles[role]
	transform := plan.Asset.Stream(role).Transform

	if fifo {
		if err := unix.Mkfifo(target, 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "pipeline", "mkfifo procfile", target, err)
		}
	}

	// Reader before writer: both opens block on a fifo peer, and the
	// upstream producer is the side guaranteed to arrive first.
	reader, err := rawvideo.NewReader(source, plan.Geometry.Width, plan.Geometry.Height, plan.Format)
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "open transform input", source, err)
	}
	defer reader.Close()

	writer, err := rawvideo.NewWriter(target, plan.Geometry.Width, plan.Geometry.Height, plan.Format)
	if err != nil {
		return services.Wrap(services.ErrTransient, "pipeline", "open transform output", target, err)
	}
	defer writer.Close()

	frames := 0
	for {
		frame, err := reader.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return services.Wrap(services.ErrCompute, "pipeline", "read transform frame",
				fmt.Sprintf("%s frame %d", source, frames), err)
		}
		if transform != nil {
			frame.Y = transform.Fn(frame.Y, plan.Geometry.Width, plan.Geometry.Height)
		}
		if err := writer.WriteFrame(frame); err != nil {
			return services.Wrap(services.ErrCompute, "pipeline", "write transform frame",
				fmt.Sprintf("%s frame %d", target, frames), err)
		}
		frames++
	}
	if err := writer.Close(); err != nil {
		return services.Wrap(services.ErrCompute, "pipeline", "flush transform output", target, err)
	}

	o.logger.Debug("transform stream complete",
		logging.String(logging.FieldStreamRole, string(role)),
		logging.Int("frames", frames),
	)
	return nil
}
