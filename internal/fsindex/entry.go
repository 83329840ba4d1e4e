// Package fsindex implements the filesystem listing and caching engine:
// sandboxed path resolution per namespace, an mtime-keyed per-directory
// entry cache, and paginated/search/tree views built on top of it.
package fsindex

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the rendered modification time format. The lowercased
// rendered string is also the sort key clients observe, so it must not
// change.
const TimeLayout = "2006-01-02 15:04:05"

// Entry is one filesystem child, an immutable snapshot taken at scan
// time. Entries are rebuilt on every rescan, never mutated in place.
type Entry struct {
	Path      string    `json:"path"` // relative to the namespace root, slash-separated
	Name      string    `json:"name"`
	Modified  string    `json:"mtime"` // rendered with TimeLayout
	ModTime   time.Time `json:"-"`
	Size      string    `json:"size"` // human-readable, one decimal place
	IsDir     bool      `json:"is_dir"`
	Symlink   bool      `json:"-"`
	Downloads int64     `json:"downloads"`
}

// sortKey is the observable ordering key: the lowercased rendered mtime.
func (e Entry) sortKey() string {
	return strings.ToLower(e.Modified)
}

// HumanSize renders a byte count at one of three scales with one decimal
// place. Everything below 1 MB is rendered in KB, matching what clients
// have always seen.
func HumanSize(n int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case float64(n)/gb >= 1:
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	case float64(n)/mb >= 1:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	default:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	}
}
