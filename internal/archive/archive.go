// Package archive packs and unpacks files with the system's archive
// tools, the same way an operator would at a shell. Operations are not
// atomic: a cancelled extraction can leave partial on-disk state, which
// callers must tolerate.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for paths no known tool handles.
var ErrUnsupported = fmt.Errorf("unsupported archive type")

// commandFor picks the tool invocation for path, run from the path's
// parent directory. Directories are packed, archives are unpacked.
func commandFor(name string, isDir bool) []string {
	if isDir {
		return []string{"tar", "czf", name + ".tgz", name}
	}

	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, ".tar.") || strings.HasSuffix(lower, ".tgz") || strings.HasSuffix(lower, ".tar"):
		return []string{"tar", "xf", name}
	case strings.HasSuffix(lower, ".gz"):
		return []string{"gzip", "-d", name}
	case strings.HasSuffix(lower, ".bz2") || strings.HasSuffix(lower, ".bz"):
		return []string{"bzip2", "-d", name}
	case strings.HasSuffix(lower, ".xz"):
		return []string{"xz", "-d", name}
	case strings.HasSuffix(lower, ".zip"):
		return []string{"unzip", "-o", name}
	default:
		return nil
	}
}

// Run packs or unpacks abs in place and returns the tool's exit code.
func Run(ctx context.Context, abs string, isDir bool) (int, error) {
	args := commandFor(filepath.Base(abs), isDir)
	if args == nil {
		return -1, ErrUnsupported
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = filepath.Dir(abs)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("run %s: %w", args[0], err)
	}
	return 0, nil
}
