// Package handlers provides the JSON API handlers
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"castvault/internal/database"
	"castvault/internal/downloader"
	"castvault/internal/episodes"
	"castvault/internal/itunes"
	"castvault/internal/offlinecache"
	"castvault/internal/playback"
	"castvault/internal/prefs"
	"castvault/internal/subscriptions"
)

// Deps bundles the services the handlers depend on
type Deps struct {
	DB            *database.DB
	Orchestrator  *downloader.Orchestrator
	Subscriptions *subscriptions.Service
	Episodes      *episodes.Service
	Playback      *playback.Tracker
	Cache         *offlinecache.Store
	Prefs         *prefs.Store
	ITunes        *itunes.Client

	// WhatsNewCount is the default size of the latest-episodes list when a
	// request does not specify one. Values below 1 fall back to 10.
	WhatsNewCount int
}

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	db            *database.DB
	orchestrator  *downloader.Orchestrator
	subscriptions *subscriptions.Service
	episodes      *episodes.Service
	playback      *playback.Tracker
	cache         *offlinecache.Store
	prefs         *prefs.Store
	itunes        *itunes.Client
	whatsNewCount int
	logger        *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps) *Handlers {
	whatsNew := deps.WhatsNewCount
	if whatsNew < 1 {
		whatsNew = 10
	}
	return &Handlers{
		db:            deps.DB,
		orchestrator:  deps.Orchestrator,
		subscriptions: deps.Subscriptions,
		episodes:      deps.Episodes,
		playback:      deps.Playback,
		cache:         deps.Cache,
		prefs:         deps.Prefs,
		itunes:        deps.ITunes,
		whatsNewCount: whatsNew,
		logger:        slog.Default(),
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// ListPodcasts returns all subscriptions
func (h *Handlers) ListPodcasts(w http.ResponseWriter, r *http.Request) {
	podcasts, err := h.db.ListPodcasts()
	if err != nil {
		h.logger.Error("Failed to list podcasts", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, podcasts)
}

// GetPodcast returns one subscription
func (h *Handlers) GetPodcast(w http.ResponseWriter, r *http.Request) {
	podcast, err := h.db.GetPodcast(r.PathValue("id"))
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "podcast not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get podcast", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, podcast)
}

// Subscribe adds a subscription by feed URL
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeedURL string `json:"feed_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FeedURL == "" {
		h.writeError(w, http.StatusBadRequest, "feed_url is required")
		return
	}

	podcast, err := h.subscriptions.Subscribe(r.Context(), req.FeedURL)
	if errors.Is(err, subscriptions.ErrAlreadySubscribed) {
		h.writeError(w, http.StatusConflict, "already subscribed")
		return
	}
	if err != nil {
		h.logger.Error("Failed to subscribe", "feed_url", req.FeedURL, "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to fetch feed")
		return
	}
	h.writeJSON(w, http.StatusCreated, podcast)
}

// Unsubscribe removes a subscription with all dependent records
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.subscriptions.Unsubscribe(id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "podcast not found")
			return
		}
		h.logger.Error("Failed to unsubscribe", "podcast_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RefreshPodcast re-fetches one feed
func (h *Handlers) RefreshPodcast(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	added, err := h.subscriptions.Refresh(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "podcast not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to refresh podcast", "podcast_id", id, "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to refresh feed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"new_episodes": added})
}

// RefreshAll re-fetches every feed; per-feed failures are reported, not fatal
func (h *Handlers) RefreshAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.subscriptions.RefreshAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to refresh feeds", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ImportOPML subscribes to every feed in the posted OPML document
func (h *Handlers) ImportOPML(w http.ResponseWriter, r *http.Request) {
	result, err := h.subscriptions.ImportOPML(r.Context(), r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid OPML document")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ExportOPML writes the subscription list as OPML
func (h *Handlers) ExportOPML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/x-opml")
	w.Header().Set("Content-Disposition", `attachment; filename="subscriptions.opml"`)
	if _, err := h.subscriptions.ExportOPML(w); err != nil {
		h.logger.Error("Failed to export OPML", "error", err)
	}
}

// ListEpisodes returns all episodes of one podcast, newest first
func (h *Handlers) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.db.GetPodcast(id); errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "podcast not found")
		return
	}

	list, err := h.db.ListEpisodesByPodcast(id)
	if err != nil {
		h.logger.Error("Failed to list episodes", "podcast_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// LatestEpisodes returns the what's-new list across all subscriptions
func (h *Handlers) LatestEpisodes(w http.ResponseWriter, r *http.Request) {
	count := h.whatsNewCount
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = n
	}

	list, err := h.episodes.GetLatestEpisodes(count)
	if err != nil {
		h.logger.Error("Failed to get latest episodes", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// UnfinishedEpisodes returns episodes with playback in progress
func (h *Handlers) UnfinishedEpisodes(w http.ResponseWriter, r *http.Request) {
	list, err := h.episodes.GetUnfinishedEpisodes()
	if err != nil {
		h.logger.Error("Failed to get unfinished episodes", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// GetEpisode returns one episode
func (h *Handlers) GetEpisode(w http.ResponseWriter, r *http.Request) {
	episode, err := h.db.GetEpisode(r.PathValue("id"))
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "episode not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get episode", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, episode)
}

// EpisodeAudio serves a downloaded episode's audio from the blob store
func (h *Handlers) EpisodeAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	episode, err := h.db.GetEpisode(id)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "episode not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get episode", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !episode.IsDownloaded {
		h.writeError(w, http.StatusNotFound, "episode not downloaded")
		return
	}

	data, contentType, err := h.db.GetBlob(episode.DownloadedPath)
	if err != nil {
		h.logger.Error("Failed to read audio blob", "episode_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// GetPlayback returns the saved playback position for an episode
func (h *Handlers) GetPlayback(w http.ResponseWriter, r *http.Request) {
	progress, err := h.playback.GetProgress(r.PathValue("id"))
	if err != nil {
		h.logger.Error("Failed to get playback progress", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if progress == nil {
		h.writeError(w, http.StatusNotFound, "no playback progress")
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

// SavePlayback stores the playback position for an episode
func (h *Handlers) SavePlayback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PodcastID string  `json:"podcast_id"`
		Position  float64 `json:"position"`
		Duration  float64 `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	progress, err := h.playback.SaveProgress(r.PathValue("id"), req.PodcastID, req.Position, req.Duration)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, progress)
}

// GetPreferences returns the persisted user preferences
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.prefs.Load()
	if err != nil {
		h.logger.Error("Failed to load preferences", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// SavePreferences replaces the persisted user preferences
func (h *Handlers) SavePreferences(w http.ResponseWriter, r *http.Request) {
	var p prefs.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.prefs.Save(p); err != nil {
		h.logger.Error("Failed to save preferences", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}
