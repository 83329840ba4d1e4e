package sharing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := generateToken()
		if err != nil {
			t.Fatal(err)
		}
		if len(tok) != 32 {
			t.Fatalf("token length = %d, want 32", len(tok))
		}
		if seen[tok] {
			t.Fatalf("duplicate token %s", tok)
		}
		seen[tok] = true
	}
}

func TestShareLinkLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	clock := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return clock }

	link, err := store.Create(ctx, "alice", "docs/report.pdf", "alice", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !link.ExpiredAt.Equal(link.CreatedAt.Add(24 * time.Hour)) {
		t.Errorf("expiry = %v, want created+24h", link.ExpiredAt)
	}

	got, err := store.Resolve(ctx, link.ID)
	if err != nil {
		t.Fatalf("resolve fresh link: %v", err)
	}
	if got.Namespace != "alice" || got.Path != "docs/report.pdf" {
		t.Errorf("resolved to %s/%s", got.Namespace, got.Path)
	}

	// Past expiry the link is reported expired and evicted...
	clock = clock.Add(25 * time.Hour)
	if _, err := store.Resolve(ctx, link.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("after expiry: got %v, want ErrExpired", err)
	}
	// ...so the next lookup no longer finds it.
	if _, err := store.Resolve(ctx, link.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after eviction: got %v, want ErrNotFound", err)
	}
}

func TestShareLinkZeroTTLExpiresImmediately(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	clock := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return clock }

	link, err := store.Create(ctx, "alice", "a.txt", "alice", 0)
	if err != nil {
		t.Fatal(err)
	}

	clock = clock.Add(time.Second)
	if _, err := store.Resolve(ctx, link.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("ttl=0 link: got %v, want ErrExpired", err)
	}
	if _, err := store.Resolve(ctx, link.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ttl=0 link second resolve: got %v, want ErrNotFound", err)
	}
}

func TestShareLinkRevoke(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	link, err := store.Create(ctx, "alice", "a.txt", "alice", 7)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Revoke(ctx, link.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Resolve(ctx, link.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after revoke: got %v, want ErrNotFound", err)
	}
}

func TestListByOwner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	clock := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return clock }

	if _, err := store.Create(ctx, "alice", "a.txt", "alice", 7); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Minute)
	newest, err := store.Create(ctx, "alice", "b.txt", "alice", 7)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(ctx, "admin", "c.txt", "bob", 7); err != nil {
		t.Fatal(err)
	}

	links, err := store.ListByOwner(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2", len(links))
	}
	if links[0].ID != newest.ID {
		t.Errorf("newest link not first: %v", links)
	}
}
