package counter

import "testing"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIncrementThenRead(t *testing.T) {
	s := newTestStore(t)

	if got := s.Read("alice", "docs/report.pdf"); got != 0 {
		t.Errorf("fresh counter = %d, want 0", got)
	}

	s.Increment("alice", "docs/report.pdf")
	if got := s.Read("alice", "docs/report.pdf"); got != 1 {
		t.Errorf("after one increment = %d, want 1", got)
	}

	s.Increment("alice", "docs/report.pdf")
	s.Increment("alice", "docs/report.pdf")
	if got := s.Read("alice", "docs/report.pdf"); got != 3 {
		t.Errorf("after three increments = %d, want 3", got)
	}
}

func TestCountersAreNamespaced(t *testing.T) {
	s := newTestStore(t)

	s.Increment("alice", "report.pdf")
	if got := s.Read("bob", "report.pdf"); got != 0 {
		t.Errorf("bob sees alice's counter: %d", got)
	}
}

func TestDeleteSubtree(t *testing.T) {
	s := newTestStore(t)

	s.Increment("alice", "docs")
	s.Increment("alice", "docs/a.txt")
	s.Increment("alice", "docs/sub/b.txt")
	s.Increment("alice", "docstore.txt") // shares the string prefix, not the path prefix
	s.Increment("bob", "docs/a.txt")

	if err := s.DeleteSubtree("alice", "docs"); err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{"docs", "docs/a.txt", "docs/sub/b.txt"} {
		if got := s.Read("alice", rel); got != 0 {
			t.Errorf("Read(alice, %q) = %d after subtree delete", rel, got)
		}
	}
	if got := s.Read("alice", "docstore.txt"); got != 1 {
		t.Errorf("sibling with shared name prefix deleted: %d", got)
	}
	if got := s.Read("bob", "docs/a.txt"); got != 1 {
		t.Errorf("other namespace deleted: %d", got)
	}
}

func TestDeleteSubtreeOnSingleFile(t *testing.T) {
	s := newTestStore(t)

	s.Increment("alice", "single.txt")
	if err := s.DeleteSubtree("alice", "single.txt"); err != nil {
		t.Fatal(err)
	}
	if got := s.Read("alice", "single.txt"); got != 0 {
		t.Errorf("counter survived delete: %d", got)
	}
}
