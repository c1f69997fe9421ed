package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"castvault/pkg/models"
)

// CreatePodcast creates a new podcast record
func (db *DB) CreatePodcast(podcast *models.Podcast) error {
	categories, err := json.Marshal(podcast.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	query := `
	INSERT INTO podcasts (
		id, title, description, image_url, feed_url, author,
		language, categories, subscribed_at, last_updated
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.conn.Exec(query,
		podcast.ID, podcast.Title, podcast.Description, podcast.ImageURL,
		podcast.FeedURL, podcast.Author, podcast.Language, string(categories),
		podcast.SubscribedAt, podcast.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to create podcast: %w", err)
	}

	return nil
}

// UpdatePodcast updates feed-derived metadata on an existing podcast
func (db *DB) UpdatePodcast(podcast *models.Podcast) error {
	categories, err := json.Marshal(podcast.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}

	query := `
	UPDATE podcasts SET
		title = ?, description = ?, image_url = ?, author = ?,
		language = ?, categories = ?, last_updated = ?
	WHERE id = ?
	`

	_, err = db.conn.Exec(query,
		podcast.Title, podcast.Description, podcast.ImageURL, podcast.Author,
		podcast.Language, string(categories), podcast.LastUpdated, podcast.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update podcast: %w", err)
	}

	return nil
}

// GetPodcast retrieves a podcast by ID
func (db *DB) GetPodcast(id string) (*models.Podcast, error) {
	return db.getPodcastWhere("id = ?", id)
}

// GetPodcastByFeedURL retrieves a podcast by its unique feed URL
func (db *DB) GetPodcastByFeedURL(feedURL string) (*models.Podcast, error) {
	return db.getPodcastWhere("feed_url = ?", feedURL)
}

func (db *DB) getPodcastWhere(where string, arg any) (*models.Podcast, error) {
	query := `
	SELECT id, title, description, image_url, feed_url, author,
		   language, categories, subscribed_at, last_updated
	FROM podcasts WHERE ` + where

	var podcast models.Podcast
	var categories string
	err := db.conn.QueryRow(query, arg).Scan(
		&podcast.ID, &podcast.Title, &podcast.Description, &podcast.ImageURL,
		&podcast.FeedURL, &podcast.Author, &podcast.Language, &categories,
		&podcast.SubscribedAt, &podcast.LastUpdated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get podcast: %w", err)
	}

	if err := json.Unmarshal([]byte(categories), &podcast.Categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}

	return &podcast, nil
}

// ListPodcasts retrieves all subscribed podcasts, newest subscription first
func (db *DB) ListPodcasts() ([]*models.Podcast, error) {
	query := `
	SELECT id, title, description, image_url, feed_url, author,
		   language, categories, subscribed_at, last_updated
	FROM podcasts
	ORDER BY subscribed_at DESC, id ASC
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	defer rows.Close()

	var podcasts []*models.Podcast
	for rows.Next() {
		var podcast models.Podcast
		var categories string
		err := rows.Scan(
			&podcast.ID, &podcast.Title, &podcast.Description, &podcast.ImageURL,
			&podcast.FeedURL, &podcast.Author, &podcast.Language, &categories,
			&podcast.SubscribedAt, &podcast.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan podcast: %w", err)
		}
		if err := json.Unmarshal([]byte(categories), &podcast.Categories); err != nil {
			return nil, fmt.Errorf("failed to decode categories: %w", err)
		}
		podcasts = append(podcasts, &podcast)
	}

	return podcasts, nil
}

// DeletePodcastCascade removes a podcast together with all of its episodes
// and playback progress in a single transaction. No partial delete is
// possible: either all three tables are updated or none.
func (db *DB) DeletePodcastCascade(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cascade delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM playback_progress WHERE podcast_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete playback progress: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM episodes WHERE podcast_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete episodes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM podcasts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete podcast: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cascade delete: %w", err)
	}

	return nil
}
