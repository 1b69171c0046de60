package resultstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"prism/internal/fileutil"
	"prism/internal/logging"
	"prism/internal/media"
)

const (
	// freeSpaceFloor is the minimum free-space ratio allowed before pruning.
	freeSpaceFloor = 0.10
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// StreamVault retains intermediate stream snapshots next to cached results,
// bounded by a size budget and a free-space floor. Oldest entries are pruned
// first.
type StreamVault struct {
	root     string
	maxBytes int64
	logger   *slog.Logger
	statfs   statfsFunc
}

// VaultStats describes current vault usage.
type VaultStats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	MaxBytes   int64 `json:"max_bytes"`
}

// NewStreamVault builds a vault when retention is configured; returns nil when
// the directory or budget is unset, and callers treat a nil vault as disabled.
func NewStreamVault(root string, maxGiB int, logger *slog.Logger) *StreamVault {
	root = strings.TrimSpace(root)
	if root == "" || maxGiB <= 0 {
		return nil
	}
	return &StreamVault{
		root:     root,
		maxBytes: int64(maxGiB) * 1024 * 1024 * 1024,
		logger:   logging.NewComponentLogger(logger, "streamvault"),
		statfs:   realStatfs,
	}
}

func (v *StreamVault) entryDir(assetDigest, executorID string) string {
	return filepath.Join(v.root, assetDigest, executorID)
}

// SaveStream snapshots one role's stream file into the vault entry for a
// fingerprint pairing, then prunes.
func (v *StreamVault) SaveStream(ctx context.Context, assetDigest, executorID string, role media.Role, path string) error {
	if v == nil {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("streamvault: inspect stream: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("streamvault: stream %q is not a regular file", path)
	}

	dest := filepath.Join(v.entryDir(assetDigest, executorID), string(role)+"_"+filepath.Base(path))
	if err := fileutil.CopyFile(path, dest); err != nil {
		return fmt.Errorf("streamvault: copy stream: %w", err)
	}
	_ = os.Chtimes(filepath.Dir(dest), time.Now(), time.Now())

	if err := v.prune(ctx, filepath.Dir(dest)); err != nil {
		return fmt.Errorf("streamvault: prune after save: %w", err)
	}
	v.logger.InfoContext(ctx, "retained stream snapshot",
		logging.String("snapshot_path", dest),
		logging.String(logging.FieldAssetDigest, assetDigest),
		logging.String(logging.FieldExecutorID, executorID),
	)
	return nil
}

// DeleteStreams removes the vault entry for a fingerprint pairing.
func (v *StreamVault) DeleteStreams(assetDigest, executorID string) error {
	if v == nil {
		return nil
	}
	dir := v.entryDir(assetDigest, executorID)
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("streamvault: remove entry: %w", err)
	}
	// Leave the per-digest parent if other executors still retain streams.
	_ = os.Remove(filepath.Dir(dir))
	return nil
}

// Stats reports usage across all retained entries.
func (v *StreamVault) Stats() (VaultStats, error) {
	stats := VaultStats{MaxBytes: v.maxBytes}
	entries, err := v.collectEntries()
	if err != nil {
		return stats, err
	}
	stats.Entries = len(entries)
	for _, entry := range entries {
		stats.TotalBytes += entry.size
	}
	return stats, nil
}

type vaultEntry struct {
	dir      string
	size     int64
	modified time.Time
}

func (v *StreamVault) collectEntries() ([]vaultEntry, error) {
	digests, err := os.ReadDir(v.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("streamvault: read root: %w", err)
	}

	var entries []vaultEntry
	for _, digest := range digests {
		if !digest.IsDir() {
			continue
		}
		executors, err := os.ReadDir(filepath.Join(v.root, digest.Name()))
		if err != nil {
			continue
		}
		for _, executor := range executors {
			if !executor.IsDir() {
				continue
			}
			dir := filepath.Join(v.root, digest.Name(), executor.Name())
			size, err := fileutil.DirSize(dir)
			if err != nil {
				continue
			}
			info, err := os.Stat(dir)
			if err != nil {
				continue
			}
			entries = append(entries, vaultEntry{dir: dir, size: size, modified: info.ModTime()})
		}
	}
	return entries, nil
}

// prune evicts oldest entries until both the byte budget and the filesystem
// free-space floor are satisfied. The entry just written is never evicted.
func (v *StreamVault) prune(ctx context.Context, keep string) error {
	entries, err := v.collectEntries()
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modified.Before(entries[j].modified)
	})

	var total int64
	for _, entry := range entries {
		total += entry.size
	}

	overBudget := func() bool {
		if total > v.maxBytes {
			return true
		}
		fsTotal, fsFree, err := v.statfs(v.root)
		if err != nil || fsTotal == 0 {
			return false
		}
		return float64(fsFree)/float64(fsTotal) < freeSpaceFloor
	}

	for _, entry := range entries {
		if !overBudget() {
			break
		}
		if entry.dir == keep {
			continue
		}
		if err := os.RemoveAll(entry.dir); err != nil {
			return fmt.Errorf("evict %q: %w", entry.dir, err)
		}
		_ = os.Remove(filepath.Dir(entry.dir))
		total -= entry.size
		v.logger.InfoContext(ctx, "evicted stream snapshot entry",
			logging.String("snapshot_dir", entry.dir),
			logging.Int64("freed_bytes", entry.size),
		)
	}
	return nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	blockSize := uint64(stat.Bsize)
	return stat.Blocks * blockSize, stat.Bavail * blockSize, nil
}
