package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// proxyClient streams large audio files, so it carries no overall timeout
var proxyClient = &http.Client{}

// rssClient fetches feed documents for the browser with a short deadline
var rssClient = &http.Client{Timeout: 10 * time.Second}

func validateProxyURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// ProxyDownload streams a remote audio URL back to the client verbatim,
// working around CORS restrictions on direct fetches.
func (h *Handlers) ProxyDownload(w http.ResponseWriter, r *http.Request) {
	target, ok := validateProxyURL(r.URL.Query().Get("url"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "url must be a valid http or https URL")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	resp, err := proxyClient.Do(req)
	if err != nil {
		h.logger.Warn("Download proxy fetch failed", "url", target, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch url")
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Debug("Download proxy stream interrupted", "url", target, "error", err)
	}
}

// ProxyRSS fetches a feed document on behalf of the client. Responses that
// are not XML are rejected rather than passed through.
func (h *Handlers) ProxyRSS(w http.ResponseWriter, r *http.Request) {
	target, ok := validateProxyURL(r.URL.Query().Get("url"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "url must be a valid http or https URL")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	resp, err := rssClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			h.writeError(w, http.StatusRequestTimeout, "feed fetch timed out")
			return
		}
		h.logger.Warn("RSS proxy fetch failed", "url", target, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch feed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.writeError(w, http.StatusInternalServerError, "feed fetch failed upstream")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "xml") {
		h.writeError(w, http.StatusBadRequest, "url does not serve an XML feed")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", contentType)
	io.Copy(w, resp.Body)
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// SearchITunes proxies podcast discovery searches with a long client cache
func (h *Handlers) SearchITunes(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	if strings.TrimSpace(term) == "" {
		h.writeError(w, http.StatusBadRequest, "term is required")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	results, err := h.itunes.Search(r.Context(), term, limit)
	if err != nil {
		h.logger.Warn("iTunes search failed", "term", term, "error", err)
		h.writeError(w, http.StatusBadGateway, "search failed")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=1800")
	h.writeJSON(w, http.StatusOK, results)
}

// CacheVersion reports the offline cache's build version
func (h *Handlers) CacheVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"version": h.cache.Version()})
}

// CacheClear wipes the offline cache
func (h *Handlers) CacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(); err != nil {
		h.logger.Error("Failed to clear offline cache", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CacheAudio caches one audio URL on demand
func (h *Handlers) CacheAudio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	if err := h.cache.CacheAudio(r.Context(), req.URL); err != nil {
		h.logger.Warn("Failed to cache audio", "url", req.URL, "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to cache audio")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
