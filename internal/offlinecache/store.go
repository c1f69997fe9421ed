// Package offlinecache is a URL-keyed response cache versioned per build. It
// sits in front of the HTTP surface as an interception layer so previously
// seen responses stay servable without a network, independent of the
// download pipeline's blob store.
package offlinecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Entry is one cached response
type Entry struct {
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Status      int       `json:"status"`
	CreatedAt   time.Time `json:"created_at"`

	Body []byte `json:"-"`
}

// Store keeps cached responses on disk under dir/<version>/. Each entry is a
// body file plus a JSON sidecar, named by the SHA-256 of the URL.
type Store struct {
	dir     string
	version string
	client  *http.Client
	logger  *slog.Logger
}

// NewStore creates a cache store for the given build version
func NewStore(dir, version string) *Store {
	return &Store{
		dir:     dir,
		version: version,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  slog.Default(),
	}
}

// Version returns the build identifier this cache is keyed under
func (s *Store) Version() string {
	return s.version
}

// Activate prepares the current version's directory and purges caches left
// behind by other versions, so an upgrade deterministically invalidates
// stale entries.
func (s *Store) Activate() error {
	if err := os.MkdirAll(s.versionDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	dirs, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache root: %w", err)
	}
	for _, d := range dirs {
		if !d.IsDir() || d.Name() == s.version {
			continue
		}
		stale := filepath.Join(s.dir, d.Name())
		if err := os.RemoveAll(stale); err != nil {
			return fmt.Errorf("failed to purge stale cache %s: %w", stale, err)
		}
		s.logger.Info("Purged stale offline cache", "version", d.Name())
	}
	return nil
}

// Put stores a response under its URL
func (s *Store) Put(url string, status int, contentType string, body []byte) error {
	if err := os.MkdirAll(s.versionDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	meta := Entry{
		URL:         url,
		ContentType: contentType,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode cache metadata: %w", err)
	}

	key := urlKey(url)
	if err := os.WriteFile(s.entryPath(key), body, 0o644); err != nil {
		return fmt.Errorf("failed to write cache body: %w", err)
	}
	if err := os.WriteFile(s.entryPath(key)+".json", metaBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}
	return nil
}

// Get returns the cached entry for a URL, or nil when absent
func (s *Store) Get(url string) (*Entry, error) {
	key := urlKey(url)

	metaBytes, err := os.ReadFile(s.entryPath(key) + ".json")
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache metadata: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(metaBytes, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache metadata: %w", err)
	}

	entry.Body, err = os.ReadFile(s.entryPath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to read cache body: %w", err)
	}
	return &entry, nil
}

// Has reports whether a URL is cached
func (s *Store) Has(url string) bool {
	_, err := os.Stat(s.entryPath(urlKey(url)) + ".json")
	return err == nil
}

// Clear removes every entry of the current version
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.versionDir()); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return os.MkdirAll(s.versionDir(), 0o755)
}

// CacheAudio fetches an audio URL and stores the response. This is the
// advisory secondary-cache step the download orchestrator runs after a
// successful download.
func (s *Store) CacheAudio(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("audio fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read audio body: %w", err)
	}

	return s.Put(url, resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

func (s *Store) versionDir() string {
	return filepath.Join(s.dir, s.version)
}

func (s *Store) entryPath(key string) string {
	return filepath.Join(s.versionDir(), key)
}

func urlKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
