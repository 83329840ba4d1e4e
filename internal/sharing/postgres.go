package sharing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zyhibook/filelist/internal/metrics"
)

// PostgresStore implements Store on a PostgreSQL table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a share link store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// EnsureSchema creates the share_links table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS share_links (
			id         TEXT PRIMARY KEY,
			namespace  TEXT NOT NULL,
			path       TEXT NOT NULL,
			owner      TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expired_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure share_links schema: %w", err)
	}
	return nil
}

// Create persists a new link expiring ttlDays from now.
func (s *PostgresStore) Create(ctx context.Context, namespace, path, owner string, ttlDays int) (*ShareLink, error) {
	id, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	created := s.now().Truncate(time.Second)
	link := &ShareLink{
		ID:        id,
		Namespace: namespace,
		Path:      path,
		Owner:     owner,
		CreatedAt: created,
		ExpiredAt: created.Add(time.Duration(ttlDays) * 24 * time.Hour),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO share_links (id, namespace, path, owner, created_at, expired_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		link.ID, link.Namespace, link.Path, link.Owner, link.CreatedAt, link.ExpiredAt)
	if err != nil {
		return nil, fmt.Errorf("insert share link: %w", err)
	}

	s.updateActiveCount(ctx)
	return link, nil
}

// Resolve looks up a link, lazily evicting it when expired.
func (s *PostgresStore) Resolve(ctx context.Context, id string) (*ShareLink, error) {
	var link ShareLink
	err := s.db.QueryRowContext(ctx,
		`SELECT id, namespace, path, owner, created_at, expired_at
		 FROM share_links WHERE id = $1`, id).
		Scan(&link.ID, &link.Namespace, &link.Path, &link.Owner, &link.CreatedAt, &link.ExpiredAt)
	if err == sql.ErrNoRows {
		metrics.RecordShareResolution("not_found")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query share link: %w", err)
	}

	if !link.Usable(s.now()) {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM share_links WHERE id = $1`, id); err != nil {
			return nil, fmt.Errorf("evict expired share link: %w", err)
		}
		s.updateActiveCount(ctx)
		metrics.RecordShareResolution("expired")
		return nil, ErrExpired
	}

	metrics.RecordShareResolution("ok")
	return &link, nil
}

// Revoke deletes a link regardless of expiry.
func (s *PostgresStore) Revoke(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM share_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke share link: %w", err)
	}
	s.updateActiveCount(ctx)
	return nil
}

// ListByOwner returns the owner's unexpired links, newest first.
func (s *PostgresStore) ListByOwner(ctx context.Context, owner string) ([]ShareLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, namespace, path, owner, created_at, expired_at
		 FROM share_links
		 WHERE owner = $1 AND expired_at > $2
		 ORDER BY created_at DESC`, owner, s.now())
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	defer rows.Close()

	var links []ShareLink
	for rows.Next() {
		var l ShareLink
		if err := rows.Scan(&l.ID, &l.Namespace, &l.Path, &l.Owner, &l.CreatedAt, &l.ExpiredAt); err != nil {
			return nil, fmt.Errorf("scan share link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *PostgresStore) updateActiveCount(ctx context.Context) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM share_links WHERE expired_at > $1`, s.now()).Scan(&count)
	if err == nil {
		metrics.SetShareLinksActive(count)
	}
}
