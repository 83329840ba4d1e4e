package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/zyhibook/filelist/internal/account"
	"github.com/zyhibook/filelist/internal/config"
	"github.com/zyhibook/filelist/internal/counter"
	"github.com/zyhibook/filelist/internal/fsindex"
	"github.com/zyhibook/filelist/internal/logging"
	"github.com/zyhibook/filelist/internal/metrics"
	"github.com/zyhibook/filelist/internal/notify"
	"github.com/zyhibook/filelist/internal/sharing"
	"github.com/zyhibook/filelist/internal/taskpool"
	"go.uber.org/zap"
)

// publicNamespace is the namespace served under /public. Writes to it
// are restricted to admins.
const publicNamespace = "admin"

// Accounts is the slice of the account store the API needs.
type Accounts interface {
	FindBySession(ctx context.Context, token string) (*account.User, error)
	Authenticate(ctx context.Context, username, password string) (*account.User, error)
	IssueToken(u *account.User, ttl time.Duration) (string, error)
}

// Server handles the file browsing API for a single worker. Each
// worker owns its own Server and directory cache.
type Server struct {
	cfg      *config.Config
	worker   int
	resolver *fsindex.Resolver
	listing  *fsindex.Listing
	counters *counter.Store
	shares   sharing.Store
	accounts Accounts
	sender   notify.Sender
	pool     *taskpool.Pool
}

// NewServer wires the collaborators for one worker.
func NewServer(cfg *config.Config, worker int, resolver *fsindex.Resolver, listing *fsindex.Listing, counters *counter.Store, shares sharing.Store, accounts Accounts, sender notify.Sender, pool *taskpool.Pool) *Server {
	return &Server{
		cfg:      cfg,
		worker:   worker,
		resolver: resolver,
		listing:  listing,
		counters: counters,
		shares:   shares,
		accounts: accounts,
		sender:   sender,
		pool:     pool,
	}
}

// Routes builds the handler graph for this worker.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/public", http.StatusFound)
	})
	mux.HandleFunc("POST /signin", s.handleSignin)

	mux.HandleFunc("GET /shares", s.handleShareList)
	mux.HandleFunc("DELETE /shares/{id}", s.handleShareRevoke)

	mux.HandleFunc("/public", s.handleBrowse)
	mux.HandleFunc("/home", s.handleBrowse)
	mux.HandleFunc("/share/{token}", s.handleBrowse)

	return logging.Middleware(metrics.Middleware(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{"status": "ok", "worker": s.worker})
}

// requestScope carries everything resolved about one browse request:
// who is asking, which namespace they landed in, and where in it.
type requestScope struct {
	mode      string
	namespace string
	rel       string
	abs       string
	user      *account.User
	link      *sharing.ShareLink
}

func (sc *requestScope) shared() bool { return sc.link != nil }

// scope authenticates the request and resolves its target path. It
// writes the error response itself and returns false when the request
// must not proceed.
func (s *Server) scope(w http.ResponseWriter, r *http.Request) (*requestScope, bool) {
	ctx := r.Context()
	sc := &requestScope{}

	if token := sessionToken(r); token != "" {
		user, err := s.accounts.FindBySession(ctx, token)
		if err != nil {
			sendError(w, http.StatusInternalServerError, "session lookup failed")
			return nil, false
		}
		sc.user = user
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/share/"):
		sc.mode = "share"
		link, err := s.shares.Resolve(ctx, r.PathValue("token"))
		switch {
		case errors.Is(err, sharing.ErrExpired):
			sendError(w, http.StatusGone, "share link expired")
			return nil, false
		case errors.Is(err, sharing.ErrNotFound):
			sendError(w, http.StatusNotFound, "share link not found")
			return nil, false
		case err != nil:
			sendError(w, http.StatusInternalServerError, "share lookup failed")
			return nil, false
		}
		sc.link = link
		sc.namespace = link.Namespace
		sc.rel = link.Path
	case r.URL.Path == "/home":
		if sc.user == nil {
			sendError(w, http.StatusUnauthorized, "sign in required")
			return nil, false
		}
		sc.mode = "home"
		sc.namespace = sc.user.Username
	default:
		sc.mode = "public"
		sc.namespace = publicNamespace
	}

	// Shared links are read only.
	if sc.shared() && r.Method != http.MethodGet {
		sendError(w, http.StatusForbidden, "share links are read only")
		return nil, false
	}

	// Writes to the public namespace need an admin session. PUT is
	// exempt: share creation carries its own admin check and kindle
	// push only needs a signed-in user.
	switch r.Method {
	case http.MethodPost, http.MethodDelete, http.MethodHead:
		if sc.mode == "public" && (sc.user == nil || !sc.user.IsAdmin) {
			sendError(w, http.StatusForbidden, "admin required")
			return nil, false
		}
	}

	if p := r.URL.Query().Get("path"); p != "" {
		p = normalizeRel(p)
		// A share token scopes access to its target subtree; the path
		// override may only narrow it, never step outside.
		if sc.shared() && !withinShare(sc.link.Path, p) {
			sendError(w, http.StatusForbidden, "forbidden")
			return nil, false
		}
		sc.rel = p
	}

	abs, err := s.resolver.Resolve(sc.namespace, sc.rel)
	if err != nil {
		if errors.Is(err, fsindex.ErrForbidden) {
			logging.Warn("path escapes namespace root",
				zap.String("namespace", sc.namespace), zap.String("path", sc.rel))
			sendError(w, http.StatusForbidden, "forbidden")
			return nil, false
		}
		sendError(w, http.StatusInternalServerError, "path resolution failed")
		return nil, false
	}
	sc.abs = abs
	return sc, true
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.scope(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGet(w, r, sc)
	case http.MethodPost:
		s.handlePost(w, r, sc)
	case http.MethodPut:
		s.handlePut(w, r, sc)
	case http.MethodDelete:
		s.handleDelete(w, r, sc)
	case http.MethodHead:
		s.handleHead(w, r, sc)
	default:
		sendError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	if user == nil {
		sendError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.accounts.IssueToken(user, 30*24*time.Hour)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	sendJSON(w, http.StatusOK, SigninResponse{Token: token})
}

// sessionUser resolves the request's session to a user. It writes the
// error response itself when there is no valid session.
func (s *Server) sessionUser(w http.ResponseWriter, r *http.Request) (*account.User, bool) {
	token := sessionToken(r)
	if token == "" {
		sendError(w, http.StatusUnauthorized, "sign in required")
		return nil, false
	}
	user, err := s.accounts.FindBySession(r.Context(), token)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "session lookup failed")
		return nil, false
	}
	if user == nil {
		sendError(w, http.StatusUnauthorized, "sign in required")
		return nil, false
	}
	return user, true
}

// sessionToken pulls the session token from the cookie or, failing
// that, a bearer Authorization header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// submit runs fn on the scan pool so listing work does not block the
// request goroutines of other workers.
func (s *Server) submit(ctx context.Context, fn taskpool.Task) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return s.pool.Submit(ctx, fn)
}

// normalizeRel reduces a client-supplied path to the namespace-relative
// form the counter keys and cache-decorated entry paths use: no leading
// slashes, no empty, dot or trailing-slash segments. Traversal segments
// are left intact for the resolver to reject.
func normalizeRel(p string) string {
	p = path.Clean(strings.TrimLeft(p, "/"))
	if p == "." {
		return ""
	}
	return p
}

// withinShare reports whether the namespace-relative candidate stays
// inside the shared base path.
func withinShare(base, candidate string) bool {
	b := path.Clean("/" + base)
	c := path.Clean("/" + candidate)
	return b == "/" || c == b || strings.HasPrefix(c, b+"/")
}

// joinRel joins a child name onto a namespace-relative path.
func joinRel(rel, name string) string {
	if rel == "" {
		return name
	}
	return path.Join(rel, name)
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("encode response", zap.Error(err))
	}
}

func sendError(w http.ResponseWriter, status int, msg string) {
	sendJSON(w, status, ErrorResponse{Error: msg, Code: status})
}
