package handlers

import (
	"net/http"
	"strings"

	"castvault/pkg/fuzzy"
	"castvault/pkg/models"
)

// searchLimit caps how many results each section of a search returns
const searchLimit = 20

// SearchResults groups library search hits by record type
type SearchResults struct {
	Podcasts []*models.Podcast `json:"podcasts"`
	Episodes []*models.Episode `json:"episodes"`
}

// Search fuzzy-matches the query against subscribed podcast and episode
// titles.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	podcasts, err := h.db.ListPodcasts()
	if err != nil {
		h.logger.Error("Failed to list podcasts for search", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	results := SearchResults{
		Podcasts: []*models.Podcast{},
		Episodes: []*models.Episode{},
	}

	podcastTitles := make([]string, len(podcasts))
	for i, p := range podcasts {
		podcastTitles[i] = p.Title
	}
	for _, match := range fuzzy.Rank(query, podcastTitles, searchLimit) {
		results.Podcasts = append(results.Podcasts, podcasts[match.Index])
	}

	// Episode search walks per-podcast lists; libraries stay small enough
	// that this beats maintaining a separate search index.
	var allEpisodes []*models.Episode
	for _, p := range podcasts {
		list, err := h.db.ListEpisodesByPodcast(p.ID)
		if err != nil {
			h.logger.Error("Failed to list episodes for search", "podcast_id", p.ID, "error", err)
			continue
		}
		allEpisodes = append(allEpisodes, list...)
	}

	episodeTitles := make([]string, len(allEpisodes))
	for i, e := range allEpisodes {
		episodeTitles[i] = e.Title
	}
	for _, match := range fuzzy.Rank(query, episodeTitles, searchLimit) {
		results.Episodes = append(results.Episodes, allEpisodes[match.Index])
	}

	h.writeJSON(w, http.StatusOK, results)
}
