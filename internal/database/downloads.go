package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"castvault/pkg/models"
)

// PutDownloadProgress stores transfer state for an episode, overwriting any
// prior record.
func (db *DB) PutDownloadProgress(progress *models.DownloadProgress) error {
	query := `
	INSERT OR REPLACE INTO download_progress (
		episode_id, progress, status, started_at, completed_at, error
	) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query,
		progress.EpisodeID, progress.Progress, progress.Status,
		progress.StartedAt, progress.CompletedAt, progress.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to put download progress: %w", err)
	}

	return nil
}

// GetDownloadProgress retrieves transfer state for an episode
func (db *DB) GetDownloadProgress(episodeID string) (*models.DownloadProgress, error) {
	query := `
	SELECT episode_id, progress, status, started_at, completed_at, error
	FROM download_progress WHERE episode_id = ?
	`

	var progress models.DownloadProgress
	err := db.conn.QueryRow(query, episodeID).Scan(
		&progress.EpisodeID, &progress.Progress, &progress.Status,
		&progress.StartedAt, &progress.CompletedAt, &progress.Error,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get download progress: %w", err)
	}

	return &progress, nil
}

// ListDownloadProgress retrieves all persisted transfer states
func (db *DB) ListDownloadProgress() ([]*models.DownloadProgress, error) {
	query := `
	SELECT episode_id, progress, status, started_at, completed_at, error
	FROM download_progress
	ORDER BY started_at DESC
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list download progress: %w", err)
	}
	defer rows.Close()

	var records []*models.DownloadProgress
	for rows.Next() {
		var progress models.DownloadProgress
		err := rows.Scan(
			&progress.EpisodeID, &progress.Progress, &progress.Status,
			&progress.StartedAt, &progress.CompletedAt, &progress.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan download progress: %w", err)
		}
		records = append(records, &progress)
	}

	return records, nil
}

// DeleteDownloadProgress removes the transfer state for an episode
func (db *DB) DeleteDownloadProgress(episodeID string) error {
	_, err := db.conn.Exec(`DELETE FROM download_progress WHERE episode_id = ?`, episodeID)
	if err != nil {
		return fmt.Errorf("failed to delete download progress: %w", err)
	}
	return nil
}

// DeleteStaleDownloadProgress removes terminal transfer records older than
// the given retention period.
func (db *DB) DeleteStaleDownloadProgress(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := db.conn.Exec(
		`DELETE FROM download_progress WHERE started_at < ? AND status IN (?, ?)`,
		cutoff, models.StatusCompleted, models.StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale download progress: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// CreateQueueEntry persists a new queue entry. At most one live entry per
// episode is allowed; a second enqueue returns ErrAlreadyQueued.
func (db *DB) CreateQueueEntry(entry *models.QueueEntry) error {
	query := `
	INSERT INTO download_queue (
		id, episode_id, podcast_id, priority, added_at, status
	) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query,
		entry.ID, entry.EpisodeID, entry.PodcastID,
		entry.Priority, entry.AddedAt, entry.Status,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyQueued
		}
		return fmt.Errorf("failed to create queue entry: %w", err)
	}

	return nil
}

// GetQueueEntryByEpisode retrieves the live queue entry for an episode
func (db *DB) GetQueueEntryByEpisode(episodeID string) (*models.QueueEntry, error) {
	query := `
	SELECT id, episode_id, podcast_id, priority, added_at, status
	FROM download_queue WHERE episode_id = ?
	`

	var entry models.QueueEntry
	err := db.conn.QueryRow(query, episodeID).Scan(
		&entry.ID, &entry.EpisodeID, &entry.PodcastID,
		&entry.Priority, &entry.AddedAt, &entry.Status,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	return &entry, nil
}

// ListQueue retrieves the full queue in processing order: priority first,
// insertion order within a priority.
func (db *DB) ListQueue() ([]*models.QueueEntry, error) {
	query := `
	SELECT id, episode_id, podcast_id, priority, added_at, status
	FROM download_queue
	ORDER BY priority DESC, added_at ASC, id ASC
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		var entry models.QueueEntry
		err := rows.Scan(
			&entry.ID, &entry.EpisodeID, &entry.PodcastID,
			&entry.Priority, &entry.AddedAt, &entry.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

// ClaimQueueEntry atomically transitions an entry from queued to
// downloading. Returns false when the entry was already claimed or removed,
// so concurrent drain loops can safely race over the same queue.
func (db *DB) ClaimQueueEntry(id string) (bool, error) {
	result, err := db.conn.Exec(
		`UPDATE download_queue SET status = ? WHERE id = ? AND status = ?`,
		models.StatusDownloading, id, models.StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim queue entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	return affected == 1, nil
}

// DeleteQueueEntry removes an entry from the queue
func (db *DB) DeleteQueueEntry(id string) error {
	_, err := db.conn.Exec(`DELETE FROM download_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

// DeleteQueueEntriesByEpisode removes any queue entry for an episode,
// whether or not a transfer has started.
func (db *DB) DeleteQueueEntriesByEpisode(episodeID string) error {
	_, err := db.conn.Exec(`DELETE FROM download_queue WHERE episode_id = ?`, episodeID)
	if err != nil {
		return fmt.Errorf("failed to delete queue entries for episode: %w", err)
	}
	return nil
}

// ResetOrphanedQueueEntries flips entries stuck in downloading state back to
// queued. Run at startup to recover work orphaned by a crash.
func (db *DB) ResetOrphanedQueueEntries() (int64, error) {
	result, err := db.conn.Exec(
		`UPDATE download_queue SET status = ? WHERE status = ?`,
		models.StatusQueued, models.StatusDownloading,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset orphaned queue entries: %w", err)
	}

	reset, _ := result.RowsAffected()
	return reset, nil
}
