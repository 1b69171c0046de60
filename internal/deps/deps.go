// Package deps verifies the external tools a run depends on before any
// scheduling happens, so a missing binary fails the whole batch fast.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"prism/internal/config"
	"prism/internal/services"
)

// Status describes one external dependency probe.
type Status struct {
	Name      string
	Path      string
	Available bool
	Detail    string
}

// Check probes every binary the configuration names.
func Check(cfg *config.Config) []Status {
	binaries := []struct {
		name string
		path string
	}{
		{"ffmpeg", cfg.FFmpegBinary()},
		{"ffprobe", cfg.FFprobeBinary()},
	}

	statuses := make([]Status, 0, len(binaries))
	for _, binary := range binaries {
		status := Status{Name: binary.name, Path: binary.path}
		resolved, err := exec.LookPath(binary.path)
		if err != nil {
			status.Detail = err.Error()
		} else {
			status.Path = resolved
			status.Available = true
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Require returns a missing-dependency error when any probe fails.
func Require(cfg *config.Config) error {
	var missing []string
	for _, status := range Check(cfg) {
		if !status.Available {
			missing = append(missing, status.Name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(services.ErrMissingDependency, "deps", "check binaries",
		fmt.Sprintf("missing: %s", strings.Join(missing, ", ")), nil)
}
