// Package pipeline decides which intermediate stages an asset needs and
// manages their file and named-pipe lifecycle: teardown ordering that avoids
// aliasing races, materialized and streaming stage modes, the bounded poll
// for pipe peers, and the per-sample transform loop.
package pipeline
