package model

import (
	"net/http"
	"strings"
	"time"
)

// CacheNamespace names one isolated cache partition.
type CacheNamespace string

const (
	NamespaceGeneric CacheNamespace = "generic"
	NamespaceVideo   CacheNamespace = "video"
	NamespaceStatic  CacheNamespace = "static"
)

// Namespaces lists every namespace in lookup order.
var Namespaces = []CacheNamespace{NamespaceVideo, NamespaceStatic, NamespaceGeneric}

// StoreName returns the versioned store identifier, e.g. "v1-video".
func (ns CacheNamespace) StoreName(version string) string {
	return version + "-" + string(ns)
}

// Request is a normalized request as seen at the network boundary.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	// Body is only set for passthrough requests.
	Body []byte
}

// Key returns the cache key for the request. Only GET requests are ever cached
// so the method is fixed.
func (r *Request) Key() string {
	u := r.URL
	if i := strings.IndexByte(u, '#'); i >= 0 {
		u = u[:i]
	}
	return http.MethodGet + " " + u
}

// HasRange reports whether the request asks for a byte subrange.
func (r *Request) HasRange() bool {
	return r.Headers != nil && r.Headers.Get("Range") != ""
}

// Response is a fully buffered response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// IsComplete reports whether the response is a whole body that may be cached.
func (r *Response) IsComplete() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// CachedEntry is a stored response keyed by its normalized request.
type CachedEntry struct {
	Key        string              `json:"key"`
	URL        string              `json:"url"`
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	StoredAt   time.Time           `json:"stored_at"`
}

// Response converts the entry back into a response.
func (e *CachedEntry) Response() *Response {
	return &Response{
		StatusCode: e.StatusCode,
		Headers:    http.Header(e.Headers).Clone(),
		Body:       e.Body,
	}
}

// NewCachedEntry builds an entry for req from resp.
func NewCachedEntry(req *Request, resp *Response, now time.Time) *CachedEntry {
	return &CachedEntry{
		Key:        req.Key(),
		URL:        req.URL,
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers.Clone(),
		Body:       resp.Body,
		StoredAt:   now,
	}
}
