package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zyhibook/filelist/internal/archive"
	"github.com/zyhibook/filelist/internal/logging"
	"github.com/zyhibook/filelist/internal/metrics"
	"github.com/zyhibook/filelist/internal/sharing"
)

const (
	defaultPage  = 1
	defaultCount = 49

	// kindleSizeLimit caps attachments sent to a kindle address.
	kindleSizeLimit = 50 << 20
)

// filenameJunk collapses runs of dots and plus signs in uploaded
// filenames so a crafted name cannot smuggle a ".." segment.
var filenameJunk = regexp.MustCompile(`[.+]+`)

func pageParams(r *http.Request) (page, count int) {
	page, count = defaultPage, defaultCount
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && v > 0 {
		count = v
	}
	return page, count
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, sc *requestScope) {
	ctx := r.Context()
	page, count := pageParams(r)

	if q := r.URL.Query().Get("q"); q != "" {
		var resp ListingResponse
		err := s.submit(ctx, func(ctx context.Context) error {
			entries, total, pages, err := s.listing.Search(sc.namespace, sc.abs, s.cfg.ShowHidden, q, page, count)
			if err != nil {
				return err
			}
			resp = ListingResponse{Entries: entries, Total: total, Pages: pages, Page: page, Count: count}
			return nil
		})
		if err != nil {
			sendError(w, http.StatusInternalServerError, "search failed")
			return
		}
		sendJSON(w, http.StatusOK, resp)
		return
	}

	info, err := os.Stat(sc.abs)
	if err != nil && !os.IsNotExist(err) {
		sendError(w, http.StatusInternalServerError, "stat failed")
		return
	}
	if info != nil && !info.IsDir() {
		s.serveDownload(w, r, sc)
		return
	}

	if r.URL.Query().Get("f") == "tree" {
		base := "/" + sc.mode
		if sc.shared() {
			base = "/share/" + sc.link.ID
		}
		nodes, err := s.listing.Tree(sc.namespace, sc.abs, s.cfg.ShowHidden, base)
		if err != nil {
			sendError(w, http.StatusInternalServerError, "tree failed")
			return
		}
		sendJSON(w, http.StatusOK, TreeResponse{Nodes: nodes})
		return
	}

	var resp ListingResponse
	err = s.submit(ctx, func(ctx context.Context) error {
		entries, total, pages, err := s.listing.Page(sc.namespace, sc.abs, s.cfg.ShowHidden, page, count)
		if err != nil {
			return err
		}
		resp = ListingResponse{Entries: entries, Total: total, Pages: pages, Page: page, Count: count}
		return nil
	})
	if err != nil {
		sendError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) serveDownload(w http.ResponseWriter, r *http.Request, sc *requestScope) {
	s.counters.Increment(sc.namespace, sc.rel)
	metrics.RecordDownload(sc.namespace)
	w.Header().Set("Content-Disposition", contentDisposition(filepath.Base(sc.abs)))
	http.ServeFile(w, r, sc.abs)
}

// contentDisposition renders an attachment header, switching to the
// RFC 5987 encoded form when the name is not plain ASCII.
func contentDisposition(name string) string {
	ascii := true
	for _, c := range name {
		if c > 127 || c == '"' || c == '\\' {
			ascii = false
			break
		}
	}
	if ascii {
		return fmt.Sprintf("attachment; filename=%q", name)
	}
	return "attachment; filename*=UTF-8''" + url.PathEscape(name)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request, sc *requestScope) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadSize); err != nil {
		sendError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	var saved []string
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			name := sanitizeFilename(fh.Filename)
			if name == "" {
				sendError(w, http.StatusBadRequest, "invalid filename")
				return
			}
			destAbs, err := s.resolver.Resolve(sc.namespace, joinRel(sc.rel, name))
			if err != nil {
				sendError(w, http.StatusForbidden, "forbidden")
				return
			}
			if err := saveUpload(fh, destAbs); err != nil {
				logging.Error("upload failed",
					zap.String("namespace", sc.namespace), zap.String("name", name), zap.Error(err))
				sendError(w, http.StatusInternalServerError, "upload failed")
				return
			}
			saved = append(saved, name)
		}
	}
	if len(saved) == 0 {
		sendError(w, http.StatusBadRequest, "no files in request")
		return
	}
	sendJSON(w, http.StatusOK, MessageResponse{Message: "uploaded " + strings.Join(saved, ", ")})
}

// sanitizeFilename strips path separators and collapses dot runs so
// the stored name is a single safe path segment.
func sanitizeFilename(name string) string {
	name = filepath.Base(filepath.FromSlash(name))
	name = filenameJunk.ReplaceAllString(name, ".")
	name = strings.Trim(name, ". ")
	if name == "" || name == "." || name == ".." {
		return ""
	}
	return name
}

// saveUpload writes the part to a temp file next to the destination
// and renames it into place.
func saveUpload(fh *multipart.FileHeader, destAbs string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dir := filepath.Dir(destAbs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.ReadFrom(src); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), destAbs)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, sc *requestScope) {
	switch action := r.URL.Query().Get("action"); action {
	case "", "share":
		s.handleShare(w, r, sc)
	case "kindle":
		s.handleKindle(w, r, sc)
	default:
		sendError(w, http.StatusBadRequest, "unknown action "+action)
	}
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request, sc *requestScope) {
	if sc.user == nil {
		sendError(w, http.StatusUnauthorized, "sign in required")
		return
	}
	if sc.mode == "public" && !sc.user.IsAdmin {
		sendError(w, http.StatusForbidden, "admin required")
		return
	}
	days := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && v > 0 {
		days = v
	}
	link, err := s.shares.Create(r.Context(), sc.namespace, sc.rel, sc.user.Username, days)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "share creation failed")
		return
	}
	sendJSON(w, http.StatusOK, ShareResponse{
		ID:        link.ID,
		URL:       "/share/" + link.ID,
		ExpiredAt: link.ExpiredAt,
	})
}

func (s *Server) handleKindle(w http.ResponseWriter, r *http.Request, sc *requestScope) {
	if sc.user == nil {
		sendError(w, http.StatusUnauthorized, "sign in required")
		return
	}
	if sc.user.KindleEmail == "" {
		sendError(w, http.StatusBadRequest, "no kindle email configured")
		return
	}
	if s.sender == nil {
		sendError(w, http.StatusServiceUnavailable, "mail delivery not configured")
		return
	}
	info, err := os.Stat(sc.abs)
	if err != nil || info.IsDir() {
		sendError(w, http.StatusNotFound, "file not found")
		return
	}
	if info.Size() > kindleSizeLimit {
		sendError(w, http.StatusBadRequest, "file too large for kindle delivery")
		return
	}
	if err := s.sender.Send(r.Context(), sc.user.KindleEmail, filepath.Base(sc.abs), sc.abs); err != nil {
		logging.Error("kindle delivery failed", zap.String("recipient", sc.user.KindleEmail), zap.Error(err))
		sendError(w, http.StatusBadGateway, "mail delivery failed")
		return
	}
	sendJSON(w, http.StatusOK, MessageResponse{Message: "sent to " + sc.user.KindleEmail})
}

func (s *Server) handleShareList(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(w, r)
	if !ok {
		return
	}
	links, err := s.shares.ListByOwner(r.Context(), user.Username)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "share listing failed")
		return
	}
	sendJSON(w, http.StatusOK, ShareListResponse{Links: links})
}

func (s *Server) handleShareRevoke(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	link, err := s.shares.Resolve(r.Context(), id)
	if errors.Is(err, sharing.ErrNotFound) || errors.Is(err, sharing.ErrExpired) {
		sendError(w, http.StatusNotFound, "share link not found")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "share lookup failed")
		return
	}
	if link.Owner != user.Username && !user.IsAdmin {
		sendError(w, http.StatusForbidden, "not your share link")
		return
	}
	if err := s.shares.Revoke(r.Context(), id); err != nil {
		sendError(w, http.StatusInternalServerError, "revoke failed")
		return
	}
	sendJSON(w, http.StatusOK, MessageResponse{Message: id + " revoked"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, sc *requestScope) {
	if sc.user == nil {
		sendError(w, http.StatusUnauthorized, "sign in required")
		return
	}
	info, err := os.Stat(sc.abs)
	if os.IsNotExist(err) {
		sendError(w, http.StatusNotFound, "not exists")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "stat failed")
		return
	}
	if info.IsDir() {
		err = os.RemoveAll(sc.abs)
	} else {
		err = os.Remove(sc.abs)
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "remove failed")
		return
	}
	if err := s.counters.DeleteSubtree(sc.namespace, sc.rel); err != nil {
		logging.Warn("counter cleanup failed",
			zap.String("namespace", sc.namespace), zap.String("path", sc.rel), zap.Error(err))
	}
	sendJSON(w, http.StatusOK, MessageResponse{Message: sc.rel + " removed"})
}

// handleHead runs the archive helper on the target: directories are
// packed, known archive files are extracted in place. The exit code is
// reported in a header since HEAD responses carry no body.
func (s *Server) handleHead(w http.ResponseWriter, r *http.Request, sc *requestScope) {
	if sc.user == nil {
		sendError(w, http.StatusUnauthorized, "sign in required")
		return
	}
	info, err := os.Stat(sc.abs)
	if os.IsNotExist(err) {
		sendError(w, http.StatusNotFound, "not exists")
		return
	}
	if err != nil {
		sendError(w, http.StatusInternalServerError, "stat failed")
		return
	}
	var code int
	err = s.submit(r.Context(), func(ctx context.Context) error {
		var runErr error
		code, runErr = archive.Run(ctx, sc.abs, info.IsDir())
		return runErr
	})
	if err != nil {
		if errors.Is(err, archive.ErrUnsupported) {
			sendError(w, http.StatusBadRequest, "unsupported archive type")
			return
		}
		logging.Warn("archive command failed",
			zap.String("path", sc.rel), zap.Int("exit", code), zap.Error(err))
	}
	w.Header().Set("X-Archive-Exit-Code", strconv.Itoa(code))
	w.WriteHeader(http.StatusOK)
}
