// Package resultstore persists computed results keyed by asset fingerprint
// and executor identity, optionally retaining intermediate stream snapshots
// alongside them. A store hit makes the entire pipeline for that pairing
// skippable.
package resultstore
