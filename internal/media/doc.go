// Package media models the unit of work for a computation: one or two source
// streams plus the processing options that shape the staged pipeline. Assets
// are immutable values; everything derived from them (paths, decisions) is
// computed per run and never written back.
package media
