package fsindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestListing(t *testing.T) (*Listing, *Resolver) {
	t.Helper()
	root := t.TempDir()
	r := NewResolver(root)
	return NewListing(NewDirectoryCache(r, nil), r), r
}

func TestPageSlicing(t *testing.T) {
	l, r := newTestListing(t)
	dir := r.Root("alice")
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)
	for i, name := range []string{"e1", "e2", "e3", "e4", "e5"} {
		writeFile(t, filepath.Join(dir, name), base.Add(time.Duration(i)*time.Minute))
	}

	wantSizes := []int{2, 2, 1}
	for page := 1; page <= 3; page++ {
		entries, total, pages, err := l.Page("alice", dir, false, page, 2)
		if err != nil {
			t.Fatal(err)
		}
		if total != 5 || pages != 3 {
			t.Fatalf("page %d: total=%d pages=%d, want 5/3", page, total, pages)
		}
		if len(entries) != wantSizes[page-1] {
			t.Errorf("page %d has %d entries, want %d", page, len(entries), wantSizes[page-1])
		}
	}

	// Out of range: empty slice, same totals.
	entries, total, pages, err := l.Page("alice", dir, false, 9, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 || total != 5 || pages != 3 {
		t.Errorf("out-of-range page: entries=%d total=%d pages=%d", len(entries), total, pages)
	}
}

func TestSearchSubtree(t *testing.T) {
	l, r := newTestListing(t)
	dir := r.Root("alice")
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)
	writeFile(t, filepath.Join(dir, "report.pdf"), base.Add(2*time.Minute))
	writeFile(t, filepath.Join(dir, "notes.txt"), base.Add(time.Minute))
	writeFile(t, filepath.Join(dir, "archive", "report2.pdf"), base)
	// Pin the subdirectory's mtime so the walk order is deterministic.
	if err := os.Chtimes(filepath.Join(dir, "archive"), base, base); err != nil {
		t.Fatal(err)
	}

	entries, total, pages, err := l.Search("alice", dir, false, "report", 1, 49)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || pages != 1 {
		t.Fatalf("total=%d pages=%d, want 2/1", total, pages)
	}
	names := []string{entries[0].Name, entries[1].Name}
	if names[0] != "report.pdf" || names[1] != "report2.pdf" {
		t.Errorf("search order = %v, want [report.pdf report2.pdf]", names)
	}

	// Case-sensitive substring match.
	_, total, _, err = l.Search("alice", dir, false, "Report", 1, 49)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("case-insensitive match leaked: total=%d", total)
	}
}

func TestTreeRecursesDirectories(t *testing.T) {
	l, r := newTestListing(t)
	dir := r.Root("alice")
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)
	writeFile(t, filepath.Join(dir, "docs", "a.txt"), base)
	writeFile(t, filepath.Join(dir, "top.txt"), base.Add(time.Minute))
	if err := os.Chtimes(filepath.Join(dir, "docs"), base.Add(2*time.Minute), base.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}

	nodes, err := l.Tree("alice", dir, false, "/home")
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d root nodes, want 2", len(nodes))
	}

	// docs has the newer mtime, so it sorts first.
	docs := nodes[0]
	if docs.Title != "docs" || len(docs.Children) != 1 {
		t.Fatalf("docs node = %+v", docs)
	}
	if docs.Children[0].Title != "a.txt" {
		t.Errorf("child = %q, want a.txt", docs.Children[0].Title)
	}
	if docs.Children[0].Href != "/home?path=docs%2Fa.txt" {
		t.Errorf("child href = %q", docs.Children[0].Href)
	}
	if nodes[1].Title != "top.txt" || len(nodes[1].Children) != 0 {
		t.Errorf("file node = %+v", nodes[1])
	}
}

func TestTreeDoesNotFollowEscapingSymlinks(t *testing.T) {
	l, r := newTestListing(t)
	dir := r.Root("alice")
	outside := filepath.Join(r.rootDir, "bob")
	writeFile(t, filepath.Join(outside, "secret.txt"), time.Time{})
	writeFile(t, filepath.Join(dir, "mine.txt"), time.Time{})

	if err := os.Symlink(outside, filepath.Join(dir, "sneaky")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	nodes, err := l.Tree("alice", dir, false, "/home")
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range nodes {
		if n.Title == "sneaky" && len(n.Children) != 0 {
			t.Errorf("escaped symlink was followed: %+v", n)
		}
	}
}

func TestTreeGuardsSymlinkCycles(t *testing.T) {
	l, r := newTestListing(t)
	dir := r.Root("alice")
	writeFile(t, filepath.Join(dir, "loop", "file.txt"), time.Time{})

	if err := os.Symlink(filepath.Join(dir, "loop"), filepath.Join(dir, "loop", "again")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	// Must terminate; the cycle is cut at the first revisit.
	if _, err := l.Tree("alice", dir, false, "/home"); err != nil {
		t.Fatal(err)
	}
}
