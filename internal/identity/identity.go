// Package identity builds the canonical strings that key the result cache
// and name per-run artifacts. Identities are pure functions of configuration:
// stable across runs and processes, insensitive to parameter key order, and
// sensitive to any value change.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Named lets parameter values that are not plain data (callbacks, plugins)
// render under a declared name instead of an address.
type Named interface {
	ParamName() string
}

// ExecutorID returns "{kind}_{version}" with a canonical suffix derived from
// the optional parameters. Characters that would collide with path separators
// or shell quoting are replaced.
func ExecutorID(kind, version string, params map[string]any) string {
	id := kind + "_" + version
	if len(params) > 0 {
		id += "_" + NormalizedParams(params)
	}
	replacer := strings.NewReplacer("'", "_", " ", "_", "/", "_")
	return replacer.Replace(id)
}

// NormalizedParams renders a parameter mapping as sorted key_value pairs
// joined with underscores. Values implementing Named render by name.
func NormalizedParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"_"+renderValue(params[key]))
	}
	return strings.Join(parts, "_")
}

func renderValue(value any) string {
	switch v := value.(type) {
	case Named:
		return v.ParamName()
	case string:
		return v
	case float64:
		// Trim trailing zeros so 5.0 and 5.00 fingerprint identically.
		s := fmt.Sprintf("%g", v)
		return s
	default:
		return fmt.Sprint(v)
	}
}

// Digest returns the content-independent sha1 hex digest of a canonical
// string. Combined with an executor id it names a run's private directory and
// log artifact, so concurrently running but differently-configured
// computations on the same asset never collide.
func Digest(canonical string) string {
	sum := sha1.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ShortDigest returns a truncated digest for log readability.
func ShortDigest(canonical string) string {
	d := Digest(canonical)
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
