package database

import (
	"database/sql"
	"fmt"
	"time"

	"castvault/pkg/models"
)

// PutBlob stores a binary object under the given key, replacing any prior
// entry.
func (db *DB) PutBlob(key string, data []byte, contentType string) error {
	query := `
	INSERT OR REPLACE INTO blobs (key, data, content_type, size, created_at)
	VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.conn.Exec(query, key, data, contentType, int64(len(data)), time.Now())
	if err != nil {
		return fmt.Errorf("failed to put blob: %w", err)
	}

	return nil
}

// GetBlob retrieves a binary object and its content type by key
func (db *DB) GetBlob(key string) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := db.conn.QueryRow(`SELECT data, content_type FROM blobs WHERE key = ?`, key).Scan(&data, &contentType)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get blob: %w", err)
	}

	return data, contentType, nil
}

// GetBlobInfo retrieves size and creation metadata for a stored object
// without loading its payload.
func (db *DB) GetBlobInfo(key string) (*models.BlobInfo, error) {
	var info models.BlobInfo
	err := db.conn.QueryRow(
		`SELECT key, content_type, size, created_at FROM blobs WHERE key = ?`, key,
	).Scan(&info.Key, &info.ContentType, &info.Size, &info.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get blob info: %w", err)
	}

	return &info, nil
}

// HasBlob reports whether a blob exists for the given key
func (db *DB) HasBlob(key string) (bool, error) {
	var one int
	err := db.conn.QueryRow(`SELECT 1 FROM blobs WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check blob: %w", err)
	}
	return true, nil
}

// DeleteBlob removes a binary object by key
func (db *DB) DeleteBlob(key string) error {
	_, err := db.conn.Exec(`DELETE FROM blobs WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// CompleteDownload commits a finished transfer: the blob write and the
// episode's downloaded flags land in one transaction, so the downloaded
// invariant (flag implies live blob) holds even across a crash.
func (db *DB) CompleteDownload(episodeID, key string, data []byte, contentType string, downloadedAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin download commit: %w", err)
	}
	defer tx.Rollback()

	size := int64(len(data))

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO blobs (key, data, content_type, size, created_at) VALUES (?, ?, ?, ?, ?)`,
		key, data, contentType, size, downloadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE episodes SET is_downloaded = TRUE, downloaded_path = ?, downloaded_at = ?, file_size = ? WHERE id = ?`,
		key, downloadedAt, size, episodeID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark episode downloaded: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit download: %w", err)
	}

	return nil
}

// RemoveDownload undoes a completed download: blob, episode flags and the
// transfer record are removed together.
func (db *DB) RemoveDownload(episodeID, key string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin download removal: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE episodes SET is_downloaded = FALSE, downloaded_path = '', downloaded_at = NULL, file_size = 0 WHERE id = ?`,
		episodeID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset episode download state: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM download_progress WHERE episode_id = ?`, episodeID); err != nil {
		return fmt.Errorf("failed to delete download progress: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit download removal: %w", err)
	}

	return nil
}

// ClearAllDownloads erases every blob, resets every episode's download
// fields and empties the download progress and queue tables in one
// transaction. Partial failure cannot leave orphaned blobs or stale flags.
func (db *DB) ClearAllDownloads() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin download clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM blobs`); err != nil {
		return fmt.Errorf("failed to clear blobs: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE episodes SET is_downloaded = FALSE, downloaded_path = '', downloaded_at = NULL, file_size = 0 WHERE is_downloaded = TRUE`,
	)
	if err != nil {
		return fmt.Errorf("failed to reset episodes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM download_progress`); err != nil {
		return fmt.Errorf("failed to clear download progress: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM download_queue`); err != nil {
		return fmt.Errorf("failed to clear download queue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit download clear: %w", err)
	}

	return nil
}
