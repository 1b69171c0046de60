// Package result defines the typed score payload produced once per
// successful run and owned by the result cache after save.
package result

import (
	"fmt"
	"sort"
	"strings"
)

// Result couples an asset's canonical identity with the scores one executor
// produced for it.
type Result struct {
	// AssetCanonical is the asset's canonical string form.
	AssetCanonical string `json:"asset"`
	// AssetDigest is the sha1 digest of AssetCanonical.
	AssetDigest string `json:"asset_digest"`
	// ExecutorID identifies the exact computation configuration.
	ExecutorID string `json:"executor_id"`
	// Scores maps a metric key to its per-frame values.
	Scores map[string][]float64 `json:"scores"`
}

// Aggregate returns the arithmetic mean of a metric's per-frame values.
func (r *Result) Aggregate(key string) (float64, bool) {
	values, ok := r.Scores[key]
	if !ok || len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Keys returns the metric keys in sorted order.
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.Scores))
	for key := range r.Scores {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *Result) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s on %s:", r.ExecutorID, r.AssetDigest)
	for _, key := range r.Keys() {
		if mean, ok := r.Aggregate(key); ok {
			fmt.Fprintf(&sb, " %s=%.6f", key, mean)
		}
	}
	return sb.String()
}
