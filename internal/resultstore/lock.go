package resultstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock modes. The default tolerates duplicate computation across processes
// (last save wins); flock serializes identical runs machine-wide.
const (
	LockModeNone  = "none"
	LockModeFlock = "flock"
)

// Locker serializes computations for the same fingerprint pairing across
// processes. The in-process scheduler already serializes identical assets
// within one run; this extends that guarantee machine-wide when enabled.
type Locker struct {
	mode string
	dir  string
}

// NewLocker builds a locker for the given mode. Lock files live under dir.
func NewLocker(mode, dir string) *Locker {
	return &Locker{mode: mode, dir: dir}
}

// Acquire takes the cross-process lock for a pairing and returns a release
// function. In mode "none" it is a no-op.
func (l *Locker) Acquire(assetDigest, executorID string) (func(), error) {
	if l == nil || l.mode != LockModeFlock {
		return func() {}, nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock dir: %w", err)
	}
	path := filepath.Join(l.dir, assetDigest+"_"+executorID+".lock")
	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire compute lock %q: %w", path, err)
	}
	return func() { _ = lock.Unlock() }, nil
}
