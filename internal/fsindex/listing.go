package fsindex

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Node is one element of a recursive tree view.
type Node struct {
	Title    string `json:"title"`
	Href     string `json:"href"`
	Children []Node `json:"children,omitempty"`
}

// Listing builds paginated, searched and tree-shaped views from the
// directory cache. All traversal goes through the cache, so each visited
// directory is rescanned at most once per mtime change.
type Listing struct {
	cache    *DirectoryCache
	resolver *Resolver
}

// NewListing creates a listing service over cache.
func NewListing(cache *DirectoryCache, resolver *Resolver) *Listing {
	return &Listing{cache: cache, resolver: resolver}
}

// Page returns one page of absDir's entries plus the total entry and page
// counts. Out-of-range pages yield an empty slice, not an error.
func (l *Listing) Page(namespace, absDir string, includeHidden bool, page, count int) ([]Entry, int, int, error) {
	entries, err := l.cache.ListDirectory(namespace, absDir, includeHidden)
	if err != nil {
		return nil, 0, 0, err
	}
	paged, total, pages := paginate(entries, page, count)
	return paged, total, pages, nil
}

// Search walks the whole subtree under absDir through the cache and
// collects entries whose name contains query as a case-sensitive
// substring, then paginates the aggregate. Cost is proportional to the
// subtree size.
func (l *Listing) Search(namespace, absDir string, includeHidden bool, query string, page, count int) ([]Entry, int, int, error) {
	visited := make(map[string]bool)
	var matches []Entry

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := l.cache.ListDirectory(namespace, dir, includeHidden)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if strings.Contains(e.Name, query) {
				matches = append(matches, e)
			}
			if child, ok := l.recursable(namespace, dir, e, visited); ok {
				if err := walk(child); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(absDir); err != nil {
		return nil, 0, 0, err
	}

	paged, total, pages := paginate(matches, page, count)
	return paged, total, pages, nil
}

// Tree returns the recursive node list under absDir. Directories recurse
// eagerly, files are leaves. hrefBase is the request path the hrefs are
// built against.
func (l *Listing) Tree(namespace, absDir string, includeHidden bool, hrefBase string) ([]Node, error) {
	visited := make(map[string]bool)

	var build func(dir string) ([]Node, error)
	build = func(dir string) ([]Node, error) {
		entries, err := l.cache.ListDirectory(namespace, dir, includeHidden)
		if err != nil {
			return nil, err
		}
		nodes := make([]Node, 0, len(entries))
		for _, e := range entries {
			node := Node{
				Title: e.Name,
				Href:  hrefBase + "?path=" + url.QueryEscape(e.Path),
			}
			if child, ok := l.recursable(namespace, dir, e, visited); ok {
				children, err := build(child)
				if err != nil {
					return nil, err
				}
				node.Children = children
			}
			nodes = append(nodes, node)
		}
		return nodes, nil
	}
	return build(absDir)
}

// recursable decides whether a directory entry may be descended into and
// returns its absolute path. Symlinked directories are only followed when
// their resolved target is still inside the namespace root and has not
// been visited in this walk; anything else is a leaf.
func (l *Listing) recursable(namespace, parentAbs string, e Entry, visited map[string]bool) (string, bool) {
	if !e.IsDir {
		return "", false
	}
	child := filepath.Join(parentAbs, e.Name)
	if !e.Symlink {
		return child, true
	}

	resolved, err := filepath.EvalSymlinks(child)
	if err != nil {
		return "", false
	}
	root := l.resolver.Root(namespace)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", false
	}
	if visited[resolved] {
		return "", false
	}
	visited[resolved] = true
	return child, true
}

func paginate(entries []Entry, page, count int) ([]Entry, int, int) {
	total := len(entries)
	if count < 1 {
		count = 1
	}
	if page < 1 {
		page = 1
	}
	pages := (total + count - 1) / count

	lo := (page - 1) * count
	if lo >= total {
		return []Entry{}, total, pages
	}
	hi := lo + count
	if hi > total {
		hi = total
	}
	return entries[lo:hi], total, pages
}
