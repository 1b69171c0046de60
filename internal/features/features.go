// Package features holds the built-in computations and the registry the CLI
// selects them from. Each feature writes a per-frame score artifact during
// generation and parses it back afterwards, so generation and read-back stay
// independently testable.
package features

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"prism/internal/executor"
	"prism/internal/services"
)

// Factory builds a plugin from CLI-style parameters.
type Factory func(params map[string]any) (executor.Plugin, error)

var registry = map[string]Factory{
	"psnr":     newPSNR,
	"meanluma": newMeanLuma,
}

// New builds the named plugin.
func New(name string, params map[string]any) (executor.Plugin, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "features", "select plugin",
			fmt.Sprintf("unknown plugin %q (have: %s)", name, strings.Join(Names(), ", ")), nil)
	}
	return factory(params)
}

// Names lists the registered plugins, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// writeScores writes the per-frame score artifact: the executor identity on
// the first line, then one "frame <n>: <value>" line per frame.
func writeScores(path, executorID string, scores []float64) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return services.Wrap(services.ErrTransient, "features", "create score artifact", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintln(w, executorID)
	for i, score := range scores {
		fmt.Fprintf(w, "frame %d: %.6f\n", i, score)
	}
	if err := w.Flush(); err != nil {
		return services.Wrap(services.ErrTransient, "features", "flush score artifact", path, err)
	}
	return nil
}

// readScores parses a score artifact, verifying the identity header matches.
func readScores(path, executorID string) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrParse, "features", "open score artifact", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil, services.Wrap(services.ErrParse, "features", "read score artifact",
			fmt.Sprintf("%s: empty artifact", path), nil)
	}
	if header := strings.TrimSpace(scanner.Text()); header != executorID {
		return nil, services.Wrap(services.ErrParse, "features", "read score artifact",
			fmt.Sprintf("%s: header %q does not match executor %q", path, header, executorID), nil)
	}

	var scores []float64
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		_, valueText, found := strings.Cut(line, ":")
		if !found {
			return nil, services.Wrap(services.ErrParse, "features", "read score artifact",
				fmt.Sprintf("%s: malformed line %q", path, line), nil)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(valueText), 64)
		if err != nil {
			return nil, services.Wrap(services.ErrParse, "features", "read score artifact",
				fmt.Sprintf("%s: malformed value in %q", path, line), err)
		}
		scores = append(scores, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrParse, "features", "read score artifact", path, err)
	}
	if len(scores) == 0 {
		return nil, services.Wrap(services.ErrParse, "features", "read score artifact",
			fmt.Sprintf("%s: no frame scores", path), nil)
	}
	return scores, nil
}
