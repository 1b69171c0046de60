package identity

import (
	"strings"
	"testing"
)

type namedFn struct{ name string }

func (n namedFn) ParamName() string { return n.name }

func TestExecutorIDWithoutParams(t *testing.T) {
	got := ExecutorID("psnr", "1.0", nil)
	if got != "psnr_1.0" {
		t.Fatalf("ExecutorID = %q, want %q", got, "psnr_1.0")
	}
}

func TestExecutorIDKeyOrderInvariance(t *testing.T) {
	a := ExecutorID("vif", "2.1", map[string]any{"alpha": 0.5, "beta": "fast", "gamma": 3})
	b := ExecutorID("vif", "2.1", map[string]any{"gamma": 3, "alpha": 0.5, "beta": "fast"})
	if a != b {
		t.Fatalf("identical params in different order rendered differently: %q vs %q", a, b)
	}
}

func TestExecutorIDValueSensitivity(t *testing.T) {
	a := ExecutorID("vif", "2.1", map[string]any{"alpha": 0.5})
	b := ExecutorID("vif", "2.1", map[string]any{"alpha": 0.6})
	if a == b {
		t.Fatalf("different parameter values rendered identically: %q", a)
	}
}

func TestExecutorIDRendersCallablesByName(t *testing.T) {
	a := ExecutorID("motion", "1.0", map[string]any{"fn": namedFn{name: "ident"}})
	b := ExecutorID("motion", "1.0", map[string]any{"fn": namedFn{name: "ident"}})
	if a != b {
		t.Fatalf("same-named callables rendered differently: %q vs %q", a, b)
	}
	if !strings.Contains(a, "fn_ident") {
		t.Fatalf("callable name missing from %q", a)
	}
}

func TestExecutorIDSanitizesUnsafeCharacters(t *testing.T) {
	id := ExecutorID("psnr", "1.0", map[string]any{"note": "a b/c'd"})
	for _, forbidden := range []string{" ", "/", "'"} {
		if strings.Contains(id, forbidden) {
			t.Fatalf("ExecutorID %q contains forbidden %q", id, forbidden)
		}
	}
}

func TestExecutorIDFloatNormalization(t *testing.T) {
	a := ExecutorID("vif", "1.0", map[string]any{"alpha": 5.0})
	if !strings.HasSuffix(a, "alpha_5") {
		t.Fatalf("float 5.0 rendered as %q, want trailing alpha_5", a)
	}
}

func TestDigestStability(t *testing.T) {
	if Digest("asset-a") != Digest("asset-a") {
		t.Fatal("digest of identical input differs")
	}
	if Digest("asset-a") == Digest("asset-b") {
		t.Fatal("digest of different inputs collides")
	}
	if len(Digest("asset-a")) != 40 {
		t.Fatalf("digest length = %d, want 40 hex chars", len(Digest("asset-a")))
	}
}

func TestShortDigestTruncates(t *testing.T) {
	short := ShortDigest("asset-a")
	if len(short) != 12 {
		t.Fatalf("short digest length = %d, want 12", len(short))
	}
	if !strings.HasPrefix(Digest("asset-a"), short) {
		t.Fatal("short digest is not a prefix of the full digest")
	}
}
