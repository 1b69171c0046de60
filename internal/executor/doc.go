// Package executor drives one asset through the full computation lifecycle:
// cache check, validation, path resolution, stage teardown and opening,
// computation, result read-back, cache save, and cleanup. Plugins supply the
// computation; the executor owns everything around it.
package executor
