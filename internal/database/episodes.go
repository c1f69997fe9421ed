package database

import (
	"database/sql"
	"fmt"

	"castvault/pkg/models"
)

const episodeColumns = `id, podcast_id, title, description, content, audio_url,
	   duration, published_at, image_url, episode_number, season_number,
	   is_downloaded, downloaded_path, downloaded_at, file_size`

// UpsertEpisode inserts an episode or refreshes its feed-derived metadata.
// Download-state fields are never touched on conflict, so refreshing a feed
// cannot undo a completed download.
func (db *DB) UpsertEpisode(episode *models.Episode) error {
	query := `
	INSERT INTO episodes (
		id, podcast_id, title, description, content, audio_url,
		duration, published_at, image_url, episode_number, season_number,
		is_downloaded, downloaded_path, downloaded_at, file_size
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		content = excluded.content,
		audio_url = excluded.audio_url,
		duration = excluded.duration,
		image_url = excluded.image_url,
		episode_number = excluded.episode_number,
		season_number = excluded.season_number
	`

	_, err := db.conn.Exec(query,
		episode.ID, episode.PodcastID, episode.Title, episode.Description,
		episode.Content, episode.AudioURL, episode.Duration, episode.PublishedAt,
		episode.ImageURL, episode.EpisodeNumber, episode.SeasonNumber,
		episode.IsDownloaded, episode.DownloadedPath, episode.DownloadedAt,
		episode.FileSize,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert episode: %w", err)
	}

	return nil
}

// GetEpisode retrieves an episode by ID
func (db *DB) GetEpisode(id string) (*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE id = ?`

	var episode models.Episode
	err := db.conn.QueryRow(query, id).Scan(
		&episode.ID, &episode.PodcastID, &episode.Title, &episode.Description,
		&episode.Content, &episode.AudioURL, &episode.Duration, &episode.PublishedAt,
		&episode.ImageURL, &episode.EpisodeNumber, &episode.SeasonNumber,
		&episode.IsDownloaded, &episode.DownloadedPath, &episode.DownloadedAt,
		&episode.FileSize,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}

	return &episode, nil
}

// ListEpisodesByPodcast retrieves a podcast's episodes, newest first
func (db *DB) ListEpisodesByPodcast(podcastID string) ([]*models.Episode, error) {
	query := `
	SELECT ` + episodeColumns + `
	FROM episodes
	WHERE podcast_id = ?
	ORDER BY published_at DESC, id ASC
	`
	return db.queryEpisodes(query, podcastID)
}

// ListLatestEpisodes retrieves the most recently published episodes across
// all subscriptions. The published_at index keeps this a bounded scan.
func (db *DB) ListLatestEpisodes(limit int) ([]*models.Episode, error) {
	query := `
	SELECT ` + episodeColumns + `
	FROM episodes
	ORDER BY published_at DESC, id ASC
	LIMIT ?
	`
	return db.queryEpisodes(query, limit)
}

// ListDownloadedEpisodes retrieves all episodes flagged as downloaded
func (db *DB) ListDownloadedEpisodes() ([]*models.Episode, error) {
	query := `
	SELECT ` + episodeColumns + `
	FROM episodes
	WHERE is_downloaded = TRUE
	ORDER BY downloaded_at DESC, id ASC
	`
	return db.queryEpisodes(query)
}

// ResetEpisodeDownload clears the download-state fields on an episode
func (db *DB) ResetEpisodeDownload(id string) error {
	query := `
	UPDATE episodes SET
		is_downloaded = FALSE, downloaded_path = '', downloaded_at = NULL, file_size = 0
	WHERE id = ?
	`

	_, err := db.conn.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to reset episode download state: %w", err)
	}

	return nil
}

func (db *DB) queryEpisodes(query string, args ...any) ([]*models.Episode, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*models.Episode
	for rows.Next() {
		var episode models.Episode
		err := rows.Scan(
			&episode.ID, &episode.PodcastID, &episode.Title, &episode.Description,
			&episode.Content, &episode.AudioURL, &episode.Duration, &episode.PublishedAt,
			&episode.ImageURL, &episode.EpisodeNumber, &episode.SeasonNumber,
			&episode.IsDownloaded, &episode.DownloadedPath, &episode.DownloadedAt,
			&episode.FileSize,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, &episode)
	}

	return episodes, nil
}
