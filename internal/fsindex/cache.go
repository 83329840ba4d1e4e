package fsindex

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zyhibook/filelist/internal/logging"
	"github.com/zyhibook/filelist/internal/metrics"
)

// CounterReader looks up download counts for listing entries. Lookups are
// best-effort; implementations return 0 when no counter exists.
type CounterReader interface {
	Read(namespace, relPath string) int64
}

type slotKey struct {
	namespace string
	dir       string
}

// slot is the cached state of one directory: the directory's own mtime as
// observed at scan time, and the sorted entries built from that scan. A
// slot is definitionally current while the live directory still has the
// same mtime.
type slot struct {
	mtime   time.Time
	entries []Entry
}

// DirectoryCache caches per-directory entry listings keyed by
// (namespace, absolute directory). Slots are never evicted; the cache is
// bounded by the number of distinct directories visited in this worker's
// lifetime, which the filelist_dircache_slots gauge exposes.
type DirectoryCache struct {
	resolver *Resolver
	counters CounterReader

	mu    sync.RWMutex
	slots map[slotKey]*slot

	scans atomic.Int64
}

// NewDirectoryCache creates an empty cache. counters may be nil.
func NewDirectoryCache(resolver *Resolver, counters CounterReader) *DirectoryCache {
	return &DirectoryCache{
		resolver: resolver,
		counters: counters,
		slots:    make(map[slotKey]*slot),
	}
}

// Scans reports how many filesystem rescans the cache has performed.
func (c *DirectoryCache) Scans() int64 {
	return c.scans.Load()
}

// ListDirectory returns the current entries of absDir, rescanning only
// when the directory's mtime no longer matches the cached slot.
//
// A missing directory yields an empty listing, not an error: freshly
// shared or concurrently deleted directories are legitimate. A failed
// rescan returns the error and leaves any previous slot untouched.
func (c *DirectoryCache) ListDirectory(namespace, absDir string, includeHidden bool) ([]Entry, error) {
	info, err := os.Stat(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", absDir, err)
	}
	mtime := info.ModTime()

	key := slotKey{namespace: namespace, dir: absDir}
	c.mu.RLock()
	cached, ok := c.slots[key]
	c.mu.RUnlock()
	if ok && cached.mtime.Equal(mtime) {
		metrics.RecordCacheHit()
		return cached.entries, nil
	}

	metrics.RecordCacheMiss()
	entries, err := c.scan(namespace, absDir, includeHidden)
	if err != nil {
		return nil, err
	}

	// Two goroutines can race a rescan of the same stale slot; both
	// computed from the same mtime, so last write wins is benign.
	c.mu.Lock()
	c.slots[key] = &slot{mtime: mtime, entries: entries}
	metrics.SetCacheSlots(len(c.slots))
	c.mu.Unlock()

	return entries, nil
}

// scan enumerates the direct children of absDir. Children vanishing
// between enumeration and stat are dropped, not errors.
func (c *DirectoryCache) scan(namespace, absDir string, includeHidden bool) ([]Entry, error) {
	start := time.Now()
	c.scans.Add(1)

	dirents, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", absDir, err)
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		name := d.Name()
		if !includeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		childAbs := filepath.Join(absDir, name)
		info, err := d.Info()
		if err != nil {
			continue
		}

		symlink := info.Mode()&os.ModeSymlink != 0
		if symlink {
			// Follow the link for display; a dangling link is
			// treated like a vanished child.
			info, err = os.Stat(childAbs)
			if err != nil {
				continue
			}
		}

		rel, err := c.resolver.Rel(namespace, childAbs)
		if err != nil {
			logging.Warn("entry outside namespace root skipped",
				zap.String("namespace", namespace),
				zap.String("path", childAbs))
			continue
		}

		e := Entry{
			Path:     rel,
			Name:     name,
			Modified: info.ModTime().Format(TimeLayout),
			ModTime:  info.ModTime(),
			Size:     HumanSize(info.Size()),
			IsDir:    info.IsDir(),
			Symlink:  symlink,
		}
		if c.counters != nil {
			e.Downloads = c.counters.Read(namespace, rel)
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].sortKey() > entries[j].sortKey()
	})

	metrics.ObserveScan(time.Since(start))
	return entries, nil
}

// Slots reports the number of cached directories.
func (c *DirectoryCache) Slots() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}
