package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"castvault/internal/database"
	"castvault/internal/downloader"
	"castvault/pkg/models"
)

// QueueDownload enqueues an episode for download
func (h *Handlers) QueueDownload(w http.ResponseWriter, r *http.Request) {
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

	// Priority defaults to 1 so a plain enqueue ranks the same as a retry
	priority := 1
	var req struct {
		Priority *int `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Priority != nil {
		priority = *req.Priority
	}

	err = h.orchestrator.QueueDownload(episode, priority)
	switch {
	case errors.Is(err, downloader.ErrAlreadyDownloaded):
		h.writeError(w, http.StatusConflict, "episode already downloaded")
	case errors.Is(err, database.ErrAlreadyQueued):
		h.writeError(w, http.StatusConflict, "episode already queued")
	case err != nil:
		h.logger.Error("Failed to queue download", "episode_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		h.writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
	}
}

// CancelDownload aborts an in-flight or queued download
func (h *Handlers) CancelDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.orchestrator.CancelDownload(id); err != nil {
		h.logger.Error("Failed to cancel download", "episode_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// DeleteDownload removes a completed download's blob and flags
func (h *Handlers) DeleteDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.orchestrator.DeleteDownload(id)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "episode not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// RetryDownload re-enqueues a previously failed download
func (h *Handlers) RetryDownload(w http.ResponseWriter, r *http.Request) {
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

	if err := h.orchestrator.RetryDownload(episode); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

// ListDownloadProgress returns all persisted transfer records
func (h *Handlers) ListDownloadProgress(w http.ResponseWriter, r *http.Request) {
	list, err := h.db.ListDownloadProgress()
	if err != nil {
		h.logger.Error("Failed to list download progress", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// ListDownloadQueue returns the durable queue in drain order
func (h *Handlers) ListDownloadQueue(w http.ResponseWriter, r *http.Request) {
	list, err := h.db.ListQueue()
	if err != nil {
		h.logger.Error("Failed to list download queue", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// ClearAllDownloads erases every blob and resets all download state
func (h *Handlers) ClearAllDownloads(w http.ResponseWriter, r *http.Request) {
	if err := h.db.ClearAllDownloads(); err != nil {
		h.logger.Error("Failed to clear downloads", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DownloadEvents streams progress updates for one episode as server-sent
// events until the transfer reaches a terminal state or the client leaves.
func (h *Handlers) DownloadEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := r.PathValue("id")
	events := make(chan models.DownloadProgress, 16)
	broker := h.orchestrator.Broker()
	token := broker.Subscribe(id, func(p models.DownloadProgress) {
		select {
		case events <- p:
		default:
			// Drop updates a slow client cannot keep up with
		}
	})
	defer broker.Unsubscribe(id, token)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	// Replay current state so late subscribers see where the transfer is
	if progress, err := h.db.GetDownloadProgress(id); err == nil {
		h.writeEvent(w, flusher, *progress)
		if progress.Status == models.StatusCompleted || progress.Status == models.StatusFailed {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case p := <-events:
			h.writeEvent(w, flusher, p)
			if p.Status == models.StatusCompleted || p.Status == models.StatusFailed {
				return
			}
		}
	}
}

func (h *Handlers) writeEvent(w http.ResponseWriter, flusher http.Flusher, p models.DownloadProgress) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
