package sharing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zyhibook/filelist/internal/metrics"
)

// MemoryStore implements Store in process memory. It backs tests;
// links do not survive a restart.
type MemoryStore struct {
	// Now is the store's clock, overridable in tests.
	Now func() time.Time

	mu    sync.Mutex
	links map[string]ShareLink
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:   time.Now,
		links: make(map[string]ShareLink),
	}
}

// Create persists a new link expiring ttlDays from now.
func (s *MemoryStore) Create(_ context.Context, namespace, path, owner string, ttlDays int) (*ShareLink, error) {
	id, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	created := s.Now().Truncate(time.Second)
	link := ShareLink{
		ID:        id,
		Namespace: namespace,
		Path:      path,
		Owner:     owner,
		CreatedAt: created,
		ExpiredAt: created.Add(time.Duration(ttlDays) * 24 * time.Hour),
	}

	s.mu.Lock()
	s.links[id] = link
	metrics.SetShareLinksActive(s.activeCountLocked())
	s.mu.Unlock()
	return &link, nil
}

// Resolve looks up a link, lazily evicting it when expired.
func (s *MemoryStore) Resolve(_ context.Context, id string) (*ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		metrics.RecordShareResolution("not_found")
		return nil, ErrNotFound
	}
	if !link.Usable(s.Now()) {
		delete(s.links, id)
		metrics.SetShareLinksActive(s.activeCountLocked())
		metrics.RecordShareResolution("expired")
		return nil, ErrExpired
	}
	metrics.RecordShareResolution("ok")
	return &link, nil
}

// Revoke deletes a link regardless of expiry.
func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.links, id)
	metrics.SetShareLinksActive(s.activeCountLocked())
	s.mu.Unlock()
	return nil
}

// ListByOwner returns the owner's unexpired links, newest first.
func (s *MemoryStore) ListByOwner(_ context.Context, owner string) ([]ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	var links []ShareLink
	for _, l := range s.links {
		if l.Owner == owner && l.Usable(now) {
			links = append(links, l)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

func (s *MemoryStore) activeCountLocked() int64 {
	now := s.Now()
	var n int64
	for _, l := range s.links {
		if l.Usable(now) {
			n++
		}
	}
	return n
}
