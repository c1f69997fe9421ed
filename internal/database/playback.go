package database

import (
	"database/sql"
	"fmt"

	"castvault/pkg/models"
)

// SavePlaybackProgress stores playback progress with put semantics: the
// prior record for the episode, if any, is overwritten.
func (db *DB) SavePlaybackProgress(progress *models.PlaybackProgress) error {
	query := `
	INSERT OR REPLACE INTO playback_progress (
		id, episode_id, podcast_id, position, duration, last_played_at, is_completed
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query,
		progress.ID, progress.EpisodeID, progress.PodcastID, progress.Position,
		progress.Duration, progress.LastPlayedAt, progress.IsCompleted,
	)
	if err != nil {
		return fmt.Errorf("failed to save playback progress: %w", err)
	}

	return nil
}

// GetPlaybackProgress retrieves playback progress for an episode
func (db *DB) GetPlaybackProgress(episodeID string) (*models.PlaybackProgress, error) {
	query := `
	SELECT id, episode_id, podcast_id, position, duration, last_played_at, is_completed
	FROM playback_progress WHERE episode_id = ?
	`

	var progress models.PlaybackProgress
	err := db.conn.QueryRow(query, episodeID).Scan(
		&progress.ID, &progress.EpisodeID, &progress.PodcastID, &progress.Position,
		&progress.Duration, &progress.LastPlayedAt, &progress.IsCompleted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get playback progress: %w", err)
	}

	return &progress, nil
}

// ListPlaybackByPodcast retrieves all playback progress rows for a podcast
func (db *DB) ListPlaybackByPodcast(podcastID string) ([]*models.PlaybackProgress, error) {
	query := `
	SELECT id, episode_id, podcast_id, position, duration, last_played_at, is_completed
	FROM playback_progress
	WHERE podcast_id = ?
	ORDER BY last_played_at DESC
	`
	return db.queryPlayback(query, podcastID)
}

// ListUnfinishedPlayback retrieves progress rows for episodes that were
// started but not completed, most recently played first.
func (db *DB) ListUnfinishedPlayback() ([]*models.PlaybackProgress, error) {
	query := `
	SELECT id, episode_id, podcast_id, position, duration, last_played_at, is_completed
	FROM playback_progress
	WHERE is_completed = FALSE AND position > 0
	ORDER BY last_played_at DESC
	`
	return db.queryPlayback(query)
}

func (db *DB) queryPlayback(query string, args ...any) ([]*models.PlaybackProgress, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playback progress: %w", err)
	}
	defer rows.Close()

	var records []*models.PlaybackProgress
	for rows.Next() {
		var progress models.PlaybackProgress
		err := rows.Scan(
			&progress.ID, &progress.EpisodeID, &progress.PodcastID, &progress.Position,
			&progress.Duration, &progress.LastPlayedAt, &progress.IsCompleted,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playback progress: %w", err)
		}
		records = append(records, &progress)
	}

	return records, nil
}
