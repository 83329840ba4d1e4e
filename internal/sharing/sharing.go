// Package sharing manages time-limited share links: capability tokens
// granting session-independent access to one (namespace, path) pair.
package sharing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Resolution outcomes. Both are user-facing "this link no longer works"
// results, never internal errors.
var (
	ErrNotFound = errors.New("share link not found")
	ErrExpired  = errors.New("share link expired")
)

// ShareLink grants access to one path in one namespace until ExpiredAt.
type ShareLink struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Path      string    `json:"path"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
	ExpiredAt time.Time `json:"expired_at"`
}

// Usable reports whether the link grants access at the given instant.
func (l *ShareLink) Usable(now time.Time) bool {
	return now.Before(l.ExpiredAt)
}

// Store persists share links. Expired links are evicted lazily on
// resolution, not by a background sweep.
type Store interface {
	// Create persists a link expiring ttlDays from now.
	Create(ctx context.Context, namespace, path, owner string, ttlDays int) (*ShareLink, error)

	// Resolve returns the link for id. An expired link is deleted and
	// reported as ErrExpired; a missing one as ErrNotFound.
	Resolve(ctx context.Context, id string) (*ShareLink, error)

	// Revoke deletes a link regardless of expiry.
	Revoke(ctx context.Context, id string) error

	// ListByOwner returns the owner's unexpired links.
	ListByOwner(ctx context.Context, owner string) ([]ShareLink, error)
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
