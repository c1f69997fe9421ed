// Package playback tracks per-episode playback positions
package playback

import (
	"errors"
	"fmt"
	"time"

	"castvault/internal/database"
	"castvault/pkg/models"
)

// Tracker persists playback positions with put semantics: one record per
// episode, each save replaces the previous one.
type Tracker struct {
	db *database.DB
}

// NewTracker creates a playback tracker
func NewTracker(db *database.DB) *Tracker {
	return &Tracker{db: db}
}

// SaveProgress stores the playback position for an episode. An episode
// counts as completed once the position passes the completion threshold of
// its duration.
func (t *Tracker) SaveProgress(episodeID, podcastID string, position, duration float64) (*models.PlaybackProgress, error) {
	if episodeID == "" {
		return nil, errors.New("episode id is empty")
	}
	if position < 0 || duration < 0 {
		return nil, fmt.Errorf("invalid playback values: position=%f duration=%f", position, duration)
	}

	progress := &models.PlaybackProgress{
		ID:           episodeID,
		EpisodeID:    episodeID,
		PodcastID:    podcastID,
		Position:     position,
		Duration:     duration,
		LastPlayedAt: time.Now(),
		IsCompleted:  models.Completed(position, duration),
	}
	if err := t.db.SavePlaybackProgress(progress); err != nil {
		return nil, err
	}
	return progress, nil
}

// GetProgress returns the saved playback record for an episode, or nil when
// none exists.
func (t *Tracker) GetProgress(episodeID string) (*models.PlaybackProgress, error) {
	progress, err := t.db.GetPlaybackProgress(episodeID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// ResumePosition returns the offset playback should resume from: the saved
// position when it lies strictly inside the episode, otherwise zero.
func (t *Tracker) ResumePosition(episodeID string) (float64, error) {
	progress, err := t.GetProgress(episodeID)
	if err != nil {
		return 0, err
	}
	if progress == nil {
		return 0, nil
	}
	if progress.Position <= 0 || (progress.Duration > 0 && progress.Position >= progress.Duration) {
		return 0, nil
	}
	return progress.Position, nil
}

// ListByPodcast returns all playback records for one podcast
func (t *Tracker) ListByPodcast(podcastID string) ([]*models.PlaybackProgress, error) {
	return t.db.ListPlaybackByPodcast(podcastID)
}
