// Package models defines the data structures used throughout the application
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
)

// DownloadStatus represents the current status of a download or queue entry
type DownloadStatus string

const (
	StatusQueued      DownloadStatus = "queued"
	StatusDownloading DownloadStatus = "downloading"
	StatusCompleted   DownloadStatus = "completed"
	StatusFailed      DownloadStatus = "failed"
)

// CompletionThreshold is the fraction of an episode's duration after which
// playback counts as completed.
const CompletionThreshold = 0.95

// Podcast represents a subscribed feed
type Podcast struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	ImageURL     string    `json:"image_url" db:"image_url"`
	FeedURL      string    `json:"feed_url" db:"feed_url"`
	Author       string    `json:"author" db:"author"`
	Language     string    `json:"language" db:"language"`
	Categories   []string  `json:"categories" db:"categories"`
	SubscribedAt time.Time `json:"subscribed_at" db:"subscribed_at"`
	LastUpdated  time.Time `json:"last_updated" db:"last_updated"`
}

// Episode represents a single feed item together with its download state
type Episode struct {
	ID            string    `json:"id" db:"id"`
	PodcastID     string    `json:"podcast_id" db:"podcast_id"`
	Title         string    `json:"title" db:"title"`
	Description   string    `json:"description" db:"description"`
	Content       string    `json:"content" db:"content"`
	AudioURL      string    `json:"audio_url" db:"audio_url"`
	Duration      int64     `json:"duration" db:"duration"`
	PublishedAt   time.Time `json:"published_at" db:"published_at"`
	ImageURL      string    `json:"image_url" db:"image_url"`
	EpisodeNumber int       `json:"episode_number" db:"episode_number"`
	SeasonNumber  int       `json:"season_number" db:"season_number"`

	IsDownloaded   bool       `json:"is_downloaded" db:"is_downloaded"`
	DownloadedPath string     `json:"downloaded_path" db:"downloaded_path"`
	DownloadedAt   *time.Time `json:"downloaded_at" db:"downloaded_at"`
	FileSize       int64      `json:"file_size" db:"file_size"`
}

// PlaybackProgress tracks playback position per episode. One record per
// episode, overwritten on every save (put semantics).
type PlaybackProgress struct {
	ID           string    `json:"id" db:"id"`
	EpisodeID    string    `json:"episode_id" db:"episode_id"`
	PodcastID    string    `json:"podcast_id" db:"podcast_id"`
	Position     float64   `json:"position" db:"position"`
	Duration     float64   `json:"duration" db:"duration"`
	LastPlayedAt time.Time `json:"last_played_at" db:"last_played_at"`
	IsCompleted  bool      `json:"is_completed" db:"is_completed"`
}

// DownloadProgress is the persisted transfer state for one episode. It
// survives restarts so clients can reconcile, and is superseded by a fresh
// record on retry.
type DownloadProgress struct {
	EpisodeID   string         `json:"episode_id" db:"episode_id"`
	Progress    int            `json:"progress" db:"progress"`
	Status      DownloadStatus `json:"status" db:"status"`
	StartedAt   time.Time      `json:"started_at" db:"started_at"`
	CompletedAt *time.Time     `json:"completed_at" db:"completed_at"`
	Error       string         `json:"error,omitempty" db:"error"`
}

// QueueEntry is a durable record of one pending or in-flight download
// request. The queue holds only live work; terminal entries are removed.
type QueueEntry struct {
	ID        string         `json:"id" db:"id"`
	EpisodeID string         `json:"episode_id" db:"episode_id"`
	PodcastID string         `json:"podcast_id" db:"podcast_id"`
	Priority  int            `json:"priority" db:"priority"`
	AddedAt   time.Time      `json:"added_at" db:"added_at"`
	Status    DownloadStatus `json:"status" db:"status"`
}

// BlobInfo describes a stored binary object without its payload
type BlobInfo struct {
	Key         string    `json:"key" db:"key"`
	ContentType string    `json:"content_type" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PodcastID derives a stable podcast identifier from its feed URL, so
// subscribing to the same feed twice yields the same record.
func PodcastID(feedURL string) string {
	sum := sha256.Sum256([]byte(feedURL))
	return hex.EncodeToString(sum[:])[:16]
}

// EpisodeID derives a stable episode identifier from the owning podcast,
// title and publish timestamp. Re-fetching the same feed item is idempotent.
func EpisodeID(podcastID, title string, publishedAt time.Time) string {
	sum := sha256.Sum256([]byte(podcastID + "|" + title + "|" + fmt.Sprint(publishedAt.Unix())))
	return hex.EncodeToString(sum[:])[:16]
}

// NewQueueEntryID builds a queue entry identifier unique per enqueue. The
// timestamp component keeps re-enqueues of the same episode distinct.
func NewQueueEntryID(episodeID string, at time.Time) string {
	return fmt.Sprintf("%s-%d", episodeID, at.UnixNano())
}

// BlobKey is the binary object store key for an episode's audio
func BlobKey(episodeID string) string {
	return "audio/" + episodeID
}

// AudioMIMEType infers the MIME type of an audio URL from its file extension
func AudioMIMEType(audioURL string) string {
	u := audioURL
	if idx := strings.IndexAny(u, "?#"); idx >= 0 {
		u = u[:idx]
	}
	switch strings.ToLower(path.Ext(u)) {
	case ".mp3":
		return "audio/mpeg"
	case ".mp4", ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}

// Completed reports whether the given playback position counts as having
// finished the episode.
func Completed(position, duration float64) bool {
	return duration > 0 && position >= CompletionThreshold*duration
}
