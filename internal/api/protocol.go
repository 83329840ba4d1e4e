package api

import (
	"time"

	"github.com/zyhibook/filelist/internal/fsindex"
	"github.com/zyhibook/filelist/internal/sharing"
)

// ListingResponse is returned for directory listings and searches.
type ListingResponse struct {
	Entries []fsindex.Entry `json:"entries"`
	Total   int             `json:"total"`
	Pages   int             `json:"pages"`
	Page    int             `json:"page"`
	Count   int             `json:"count"`
}

// TreeResponse is returned for f=tree requests.
type TreeResponse struct {
	Nodes []fsindex.Node `json:"nodes"`
}

// ShareResponse is returned when a share link is created.
type ShareResponse struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiredAt time.Time `json:"expired_at"`
}

// ShareListResponse lists the caller's active share links.
type ShareListResponse struct {
	Links []sharing.ShareLink `json:"links"`
}

// MessageResponse is a generic success envelope.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// SigninRequest is the body for POST /signin.
type SigninRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SigninResponse carries the session token, which is also set as a
// cookie.
type SigninResponse struct {
	Token string `json:"token"`
}
