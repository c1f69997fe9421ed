package offlinecache

import (
	"bytes"
	"net/http"
	"path"
	"strings"
)

// requestClass buckets an intercepted request into a caching strategy
type requestClass int

const (
	classDownloadProxy requestClass = iota
	classAudio
	classAPI
	classStatic
	classNavigation
)

const offlineFallbackHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>You are offline</h1><p>This page is not available without a network connection.</p></body></html>`

var audioExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".mp4": true, ".ogg": true, ".wav": true,
}

var staticExtensions = map[string]bool{
	".js": true, ".css": true, ".png": true, ".jpg": true, ".jpeg": true,
	".svg": true, ".ico": true, ".webp": true, ".woff": true, ".woff2": true,
	".json": true, ".webmanifest": true,
}

// classify picks the caching strategy for a request
func classify(r *http.Request) requestClass {
	p := r.URL.Path
	ext := strings.ToLower(path.Ext(p))

	switch {
	case strings.HasPrefix(p, "/api/download"):
		// Large streamed binaries belong in the blob store, never here
		return classDownloadProxy
	case audioExtensions[ext]:
		return classAudio
	case strings.HasPrefix(p, "/api/"):
		return classAPI
	case staticExtensions[ext]:
		return classStatic
	default:
		return classNavigation
	}
}

// recorder buffers a handler's response so it can be cached after the fact
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (rec *recorder) Header() http.Header        { return rec.header }
func (rec *recorder) WriteHeader(status int)     { rec.status = status }
func (rec *recorder) Write(b []byte) (int, error) { return rec.body.Write(b) }

func (rec *recorder) ok() bool {
	return rec.status >= 200 && rec.status < 300
}

// failed treats server-side errors as the equivalent of an unreachable
// network, which triggers the cache fallback paths.
func (rec *recorder) failed() bool {
	return rec.status >= 500 || rec.status == http.StatusRequestTimeout
}

func (rec *recorder) replay(w http.ResponseWriter) {
	for k, vs := range rec.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(rec.status)
	w.Write(rec.body.Bytes())
}

// Middleware wraps the HTTP surface with the interception cache. Only GET
// requests participate; everything else passes straight through.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		switch classify(r) {
		case classDownloadProxy:
			next.ServeHTTP(w, r)
		case classAudio, classStatic:
			s.cacheFirst(w, r, next)
		case classAPI:
			s.networkFirst(w, r, next, false)
		case classNavigation:
			s.networkFirst(w, r, next, true)
		}
	})
}

// cacheFirst serves a cached copy when present, otherwise lets the handler
// respond and caches successful results.
func (s *Store) cacheFirst(w http.ResponseWriter, r *http.Request, next http.Handler) {
	url := r.URL.String()
	if entry, err := s.Get(url); err == nil && entry != nil {
		s.serveEntry(w, entry)
		return
	}

	rec := newRecorder()
	next.ServeHTTP(rec, r)
	if rec.ok() {
		s.storeRecorded(url, rec)
	}
	rec.replay(w)
}

// networkFirst prefers a live response and falls back to the cache when the
// handler fails. Navigation requests get the extended fallback chain ending
// in a synthesized offline page.
func (s *Store) networkFirst(w http.ResponseWriter, r *http.Request, next http.Handler, navigation bool) {
	url := r.URL.String()

	rec := newRecorder()
	next.ServeHTTP(rec, r)

	if rec.ok() {
		s.storeRecorded(url, rec)
		rec.replay(w)
		return
	}
	if !rec.failed() {
		// Client errors pass through untouched
		rec.replay(w)
		return
	}

	if entry, err := s.Get(url); err == nil && entry != nil {
		s.serveEntry(w, entry)
		return
	}

	if !navigation {
		rec.replay(w)
		return
	}

	// Root document, then a static offline page, then synthesized HTML
	for _, fallback := range []string{"/", "/offline.html"} {
		if entry, err := s.Get(fallback); err == nil && entry != nil {
			s.serveEntry(w, entry)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(offlineFallbackHTML))
}

func (s *Store) serveEntry(w http.ResponseWriter, entry *Entry) {
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set("X-Served-From", "offline-cache")
	w.WriteHeader(entry.Status)
	w.Write(entry.Body)
}

func (s *Store) storeRecorded(url string, rec *recorder) {
	if err := s.Put(url, rec.status, rec.header.Get("Content-Type"), rec.body.Bytes()); err != nil {
		s.logger.Warn("Failed to cache response", "url", url, "error", err)
	}
}
