// Package web provides the HTTP server and routing
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"castvault/internal/config"
	"castvault/internal/web/handlers"
)

// Server represents the HTTP server
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// Deps bundles the services the HTTP surface exposes
type Deps = handlers.Deps

// NewServer creates a new HTTP server. All traffic passes through the
// offline cache's interception middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	h := handlers.NewHandlers(deps)

	mux := http.NewServeMux()

	// Proxy endpoints
	mux.HandleFunc("GET /api/download", h.ProxyDownload)
	mux.HandleFunc("GET /api/rss", h.ProxyRSS)
	mux.HandleFunc("GET /api/itunes-search", h.SearchITunes)

	// Offline cache control
	mux.HandleFunc("GET /api/cache/version", h.CacheVersion)
	mux.HandleFunc("POST /api/cache/clear", h.CacheClear)
	mux.HandleFunc("POST /api/cache/audio", h.CacheAudio)

	// Subscriptions
	mux.HandleFunc("GET /api/podcasts", h.ListPodcasts)
	mux.HandleFunc("POST /api/podcasts", h.Subscribe)
	mux.HandleFunc("GET /api/podcasts/{id}", h.GetPodcast)
	mux.HandleFunc("DELETE /api/podcasts/{id}", h.Unsubscribe)
	mux.HandleFunc("POST /api/podcasts/{id}/refresh", h.RefreshPodcast)
	mux.HandleFunc("POST /api/podcasts/refresh", h.RefreshAll)
	mux.HandleFunc("POST /api/opml/import", h.ImportOPML)
	mux.HandleFunc("GET /api/opml/export", h.ExportOPML)

	// Episodes
	mux.HandleFunc("GET /api/podcasts/{id}/episodes", h.ListEpisodes)
	mux.HandleFunc("GET /api/episodes/latest", h.LatestEpisodes)
	mux.HandleFunc("GET /api/episodes/unfinished", h.UnfinishedEpisodes)
	mux.HandleFunc("GET /api/episodes/{id}", h.GetEpisode)
	mux.HandleFunc("GET /api/episodes/{id}/audio", h.EpisodeAudio)
	mux.HandleFunc("GET /api/search", h.Search)

	// Downloads
	mux.HandleFunc("POST /api/episodes/{id}/download", h.QueueDownload)
	mux.HandleFunc("DELETE /api/episodes/{id}/download", h.DeleteDownload)
	mux.HandleFunc("POST /api/episodes/{id}/download/cancel", h.CancelDownload)
	mux.HandleFunc("POST /api/episodes/{id}/download/retry", h.RetryDownload)
	mux.HandleFunc("GET /api/episodes/{id}/download/events", h.DownloadEvents)
	mux.HandleFunc("GET /api/downloads", h.ListDownloadProgress)
	mux.HandleFunc("GET /api/downloads/queue", h.ListDownloadQueue)
	mux.HandleFunc("DELETE /api/downloads", h.ClearAllDownloads)

	// Playback
	mux.HandleFunc("GET /api/episodes/{id}/playback", h.GetPlayback)
	mux.HandleFunc("PUT /api/episodes/{id}/playback", h.SavePlayback)

	// Preferences
	mux.HandleFunc("GET /api/preferences", h.GetPreferences)
	mux.HandleFunc("PUT /api/preferences", h.SavePreferences)

	var handler http.Handler = mux
	if deps.Cache != nil {
		handler = deps.Cache.Middleware(mux)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming endpoints manage their own deadlines
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		server: server,
		logger: slog.Default(),
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
