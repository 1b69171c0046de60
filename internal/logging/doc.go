// Package logging configures structured logging for prism. It wraps log/slog
// with a compact console handler for interactive use and a JSON handler for
// machine consumption, plus attr helpers shared across components.
package logging
