package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"prism/internal/media"
	"prism/internal/pipeline"
	"prism/internal/result"
	"prism/internal/services"
)

// Plugin is a computation bound to an executor. Its identity (kind, version,
// parameters) keys the result cache; its topology declares which streams it
// needs.
type Plugin interface {
	// Kind names the computation, e.g. "psnr".
	Kind() string
	// Version tags the computation's algorithm revision.
	Version() string
	// Params returns the identity-bearing parameters. Callable parameters
	// must implement identity.Named.
	Params() map[string]any
	// Topology declares the stream roles the computation requires.
	Topology() media.Topology
	// GenerateResult runs the computation over the run's stream paths,
	// writing any artifacts under the run directory.
	GenerateResult(ctx context.Context, run *RunContext) error
	// ReadResult parses the run's artifacts into scores. Called only after
	// GenerateResult succeeds.
	ReadResult(run *RunContext) (*result.Result, error)
}

// RunContext is what a plugin sees of one asset run.
type RunContext struct {
	Plan   *pipeline.Plan
	Logger *slog.Logger

	logFile   *os.File
	artifacts []string
}

// StreamPath returns the path the computation reads for a role.
func (r *RunContext) StreamPath(role media.Role) string {
	return r.Plan.Procfiles[role]
}

// ArtifactPath returns a path under the run directory for a named artifact
// and registers it for removal during cleanup.
func (r *RunContext) ArtifactPath(name string) string {
	path := filepath.Join(r.Plan.RunDir, name)
	for _, existing := range r.artifacts {
		if existing == path {
			return path
		}
	}
	r.artifacts = append(r.artifacts, path)
	return path
}

// Log returns the run's private log sink. External tool output belongs here.
func (r *RunContext) Log() io.Writer {
	if r.logFile == nil {
		return io.Discard
	}
	return r.logFile
}

// initLog creates the run log. Its first line is the executor identity, so a
// log artifact is attributable without its directory name.
func (r *RunContext) initLog(executorID string) error {
	file, err := os.OpenFile(r.Plan.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return services.Wrap(services.ErrTransient, "executor", "create run log", r.Plan.LogPath(), err)
	}
	if _, err := fmt.Fprintln(file, executorID); err != nil {
		_ = file.Close()
		return services.Wrap(services.ErrTransient, "executor", "write run log header", r.Plan.LogPath(), err)
	}
	r.logFile = file
	return nil
}

func (r *RunContext) closeLog() {
	if r.logFile != nil {
		_ = r.logFile.Close()
		r.logFile = nil
	}
}
