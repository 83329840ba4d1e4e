// Package account is the account-store collaborator: typed user records
// read from PostgreSQL, session tokens, and the startup admin bootstrap.
// The listing core only consumes Username and IsAdmin to derive the
// tenant namespace and admin-gated operations.
package account

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zyhibook/filelist/internal/logging"
)

// User is one account record.
type User struct {
	ID           int
	Username     string
	Email        string
	IsAdmin      bool
	KindleEmail  string
	PasswordHash string
	CreatedAt    time.Time
}

// Store reads and writes account records.
type Store struct {
	db        *sql.DB
	jwtSecret []byte
}

// NewStore creates an account store over db. jwtSecret signs session
// tokens.
func NewStore(db *sql.DB, jwtSecret string) *Store {
	return &Store{db: db, jwtSecret: []byte(jwtSecret)}
}

// EnsureSchema creates the users table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id            SERIAL PRIMARY KEY,
			username      TEXT UNIQUE NOT NULL,
			email         TEXT NOT NULL DEFAULT '',
			is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
			kindle_email  TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("ensure users schema: %w", err)
	}
	return nil
}

// EnsureAdmin makes sure an admin account exists, creating or updating it
// with the configured password. A blank password leaves an existing admin
// untouched.
func (s *Store) EnsureAdmin(ctx context.Context, password, email string) error {
	if password == "" {
		existing, err := s.FindByUsername(ctx, "admin")
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		// First boot without ADMIN_PASSWORD: generate one and log it
		// once so the instance is not left open.
		raw := make([]byte, 12)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generate admin password: %w", err)
		}
		password = hex.EncodeToString(raw)
		logging.Warn("generated initial admin password", zap.String("password", password))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, is_admin, password_hash)
		VALUES ('admin', $1, TRUE, $2)
		ON CONFLICT (username)
		DO UPDATE SET email = EXCLUDED.email, is_admin = TRUE, password_hash = EXCLUDED.password_hash`,
		email, string(hash))
	if err != nil {
		return fmt.Errorf("ensure admin account: %w", err)
	}
	return nil
}

// FindByUsername returns the user, or nil when absent.
func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, is_admin, kindle_email, password_hash, created_at
		 FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.IsAdmin, &u.KindleEmail, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user %s: %w", username, err)
	}
	return &u, nil
}

// Authenticate checks a username/password pair and returns the user, or
// nil when the credentials do not match.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.FindByUsername(ctx, username)
	if err != nil || u == nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return u, nil
}

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssueToken returns a signed session token for u, valid for ttl.
func (s *Store) IssueToken(u *User, ttl time.Duration) (string, error) {
	claims := sessionClaims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// FindBySession resolves a session token back to its user. Invalid or
// expired tokens yield nil, not an error: requests simply proceed
// anonymously.
func (s *Store) FindBySession(ctx context.Context, tokenString string) (*User, error) {
	username, ok := s.parseSession(tokenString)
	if !ok {
		return nil, nil
	}
	return s.FindByUsername(ctx, username)
}

func (s *Store) parseSession(tokenString string) (string, bool) {
	if tokenString == "" {
		return "", false
	}

	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	return claims.Username, true
}
