package fsindex

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/zyhibook/filelist/internal/metrics"
)

// ErrForbidden is returned when a path resolves outside its namespace root.
var ErrForbidden = errors.New("path escapes namespace root")

// Resolver maps tenant-relative paths to absolute filesystem paths
// confined to that tenant's root.
type Resolver struct {
	rootDir string
}

// NewResolver creates a resolver over rootDir, the parent of all
// namespace roots. rootDir must be absolute.
func NewResolver(rootDir string) *Resolver {
	return &Resolver{rootDir: rootDir}
}

// Root returns the namespace's root directory.
func (r *Resolver) Root(namespace string) string {
	return filepath.Join(r.rootDir, namespace)
}

// Resolve validates rawPath against the namespace sandbox and returns the
// cleaned absolute path, or ErrForbidden.
//
// The candidate is built without lexical cleaning so that traversal
// segments survive into the check. For an existing file the *parent*
// string is checked rather than the candidate itself: a file's own name
// cannot legally contain "/..", but the parent chain can smuggle one in.
// For anything else (directory or not-yet-existing path) the candidate's
// own string is checked.
func (r *Resolver) Resolve(namespace, rawPath string) (string, error) {
	name := strings.TrimPrefix(rawPath, "/")
	candidate := r.Root(namespace)
	if name != "" {
		candidate += string(filepath.Separator) + filepath.FromSlash(name)
	}

	checked := candidate
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		if i := strings.LastIndexByte(candidate, filepath.Separator); i >= 0 {
			checked = candidate[:i]
		}
	}
	if strings.Contains(checked, string(filepath.Separator)+"..") {
		metrics.RecordSandboxRejection()
		return "", ErrForbidden
	}

	return filepath.Clean(candidate), nil
}

// Rel returns abs relative to the namespace root in slash form. It is the
// inverse of Resolve for in-sandbox paths.
func (r *Resolver) Rel(namespace, abs string) (string, error) {
	rel, err := filepath.Rel(r.Root(namespace), abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
