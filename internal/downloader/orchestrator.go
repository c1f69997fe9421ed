// Package downloader implements the queued, concurrency-bounded download
// pipeline that streams episode audio into the binary object store.
package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"castvault/internal/database"
	"castvault/pkg/models"
)

// ErrAlreadyDownloaded is returned when queueing an episode that already has
// a completed download.
var ErrAlreadyDownloaded = errors.New("episode already downloaded")

// DefaultConcurrency is the default number of simultaneous transfers
const DefaultConcurrency = 2

// settleDelay is the pause between a transfer finishing and the next
// queue-drain attempt, allowing state writes to land first.
const settleDelay = 100 * time.Millisecond

// transferHandle tracks one in-flight transfer so it can be cancelled
type transferHandle struct {
	cancel    context.CancelFunc
	cancelled bool
}

// Orchestrator pulls entries from the durable download queue, bounds the
// number of concurrent transfers and commits finished audio to the store.
type Orchestrator struct {
	db     *database.DB
	broker *Broker
	cache  OfflineCacher
	client *http.Client
	logger *slog.Logger
	limit  int
	settle time.Duration

	mu       sync.Mutex
	draining bool
	rearm    bool
	active   map[string]*transferHandle

	baseCtx   context.Context
	cancelAll context.CancelFunc
}

// NewOrchestrator creates a download orchestrator. The concurrency limit
// caps simultaneous transfers; values below 1 fall back to the default.
// The offline cache may be nil, in which case the advisory cache step is
// skipped.
func NewOrchestrator(db *database.DB, broker *Broker, cache OfflineCacher, limit int) *Orchestrator {
	if limit < 1 {
		limit = DefaultConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		db:     db,
		broker: broker,
		cache:  cache,
		client: &http.Client{Timeout: 1 * time.Hour},
		logger: slog.Default(),
		limit:  limit,
		settle: settleDelay,
		active: make(map[string]*transferHandle),

		baseCtx:   ctx,
		cancelAll: cancel,
	}
}

// Broker returns the progress broker transfers publish to
func (o *Orchestrator) Broker() *Broker {
	return o.broker
}

// QueueDownload enqueues an episode for download. It fails synchronously
// when the episode is already downloaded or already queued, before any state
// is written.
func (o *Orchestrator) QueueDownload(episode *models.Episode, priority int) error {
	if episode.IsDownloaded {
		return ErrAlreadyDownloaded
	}

	now := time.Now()
	entry := &models.QueueEntry{
		ID:        models.NewQueueEntryID(episode.ID, now),
		EpisodeID: episode.ID,
		PodcastID: episode.PodcastID,
		Priority:  priority,
		AddedAt:   now,
		Status:    models.StatusQueued,
	}

	if err := o.db.CreateQueueEntry(entry); err != nil {
		return err
	}

	o.logger.Info("Download queued", "episode_id", episode.ID, "priority", priority)
	o.Drain()
	return nil
}

// Drain walks the durable queue and starts transfers until the concurrency
// limit is reached or no queued entries remain. The method is
// re-entrant-guarded: a call made while another drain is running arms a
// follow-up pass instead, so an entry committed after the running drain's
// final queue scan is still picked up.
func (o *Orchestrator) Drain() {
	o.mu.Lock()
	if o.draining {
		o.rearm = true
		o.mu.Unlock()
		return
	}
	o.draining = true
	o.mu.Unlock()

	for {
		o.drainQueue()

		o.mu.Lock()
		if !o.rearm {
			o.draining = false
			o.mu.Unlock()
			return
		}
		o.rearm = false
		o.mu.Unlock()
	}
}

// drainQueue is a single drain pass over the queue
func (o *Orchestrator) drainQueue() {
	for {
		o.mu.Lock()
		slots := o.limit - len(o.active)
		o.mu.Unlock()
		if slots <= 0 {
			return
		}

		entries, err := o.db.ListQueue()
		if err != nil {
			o.logger.Error("Failed to read download queue", "error", err)
			return
		}

		var next *models.QueueEntry
		for _, entry := range entries {
			if entry.Status == models.StatusQueued {
				next = entry
				break
			}
		}
		if next == nil {
			return
		}

		episode, err := o.db.GetEpisode(next.EpisodeID)
		if errors.Is(err, database.ErrNotFound) {
			// Orphaned entry, drop it and keep draining
			o.logger.Warn("Discarding queue entry for missing episode", "episode_id", next.EpisodeID)
			if err := o.db.DeleteQueueEntry(next.ID); err != nil {
				o.logger.Error("Failed to discard orphaned queue entry", "entry_id", next.ID, "error", err)
				return
			}
			continue
		}
		if err != nil {
			o.logger.Error("Failed to resolve queued episode", "episode_id", next.EpisodeID, "error", err)
			return
		}

		claimed, err := o.db.ClaimQueueEntry(next.ID)
		if err != nil {
			o.logger.Error("Failed to claim queue entry", "entry_id", next.ID, "error", err)
			return
		}
		if !claimed {
			// Another drain loop got there first
			continue
		}

		o.startTransfer(next, episode)
	}
}

// startTransfer registers a cancellation handle and runs the transfer in its
// own goroutine. The loop keeps draining to fill remaining slots.
func (o *Orchestrator) startTransfer(entry *models.QueueEntry, episode *models.Episode) {
	ctx, cancel := context.WithCancel(o.baseCtx)
	handle := &transferHandle{cancel: cancel}

	o.mu.Lock()
	o.active[episode.ID] = handle
	o.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.active, episode.ID)
			o.mu.Unlock()
			// Advance the queue once state has settled; without this the
			// pipeline stalls after the concurrency limit is first reached.
			time.AfterFunc(o.settle, o.Drain)
		}()

		started := time.Now()
		if err := o.transfer(ctx, episode, started); err != nil {
			o.failTransfer(entry, episode, handle, started, err)
		}
	}()
}

// transfer streams the episode's audio and commits it to the store. Any
// error returned here is converted into a failed DownloadProgress by the
// caller.
func (o *Orchestrator) transfer(ctx context.Context, episode *models.Episode, started time.Time) error {
	progress := &models.DownloadProgress{
		EpisodeID: episode.ID,
		Progress:  0,
		Status:    models.StatusDownloading,
		StartedAt: started,
	}
	if err := o.db.PutDownloadProgress(progress); err != nil {
		return fmt.Errorf("failed to initialize download progress: %w", err)
	}
	o.broker.Publish(*progress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, episode.AudioURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to start download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	// With an unknown total size progress stays at 0 until completion
	total := resp.ContentLength

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	var downloaded int64
	lastPct := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			downloaded += int64(n)

			if total > 0 {
				pct := int(downloaded * 100 / total)
				if pct > lastPct {
					lastPct = pct
					progress.Progress = pct
					if updateErr := o.db.PutDownloadProgress(progress); updateErr != nil {
						o.logger.Warn("Failed to persist download progress", "episode_id", episode.ID, "error", updateErr)
					}
					o.broker.Publish(*progress)
				}
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read from response: %w", err)
		}
	}

	data := buf.Bytes()
	key := models.BlobKey(episode.ID)
	contentType := models.AudioMIMEType(episode.AudioURL)
	downloadedAt := time.Now()

	if err := o.db.CompleteDownload(episode.ID, key, data, contentType, downloadedAt); err != nil {
		return fmt.Errorf("failed to commit download: %w", err)
	}

	// Advisory secondary cache step; the blob store already holds the
	// authoritative copy.
	if o.cache != nil {
		if err := o.cache.CacheAudio(ctx, episode.AudioURL); err != nil {
			o.logger.Warn("Failed to register audio in offline cache",
				"episode_id", episode.ID, "url", episode.AudioURL, "error", err)
		}
	}

	progress.Progress = 100
	progress.Status = models.StatusCompleted
	progress.CompletedAt = &downloadedAt
	if err := o.db.PutDownloadProgress(progress); err != nil {
		o.logger.Error("Failed to persist completed download progress", "episode_id", episode.ID, "error", err)
	}
	o.broker.Publish(*progress)

	if err := o.removeQueueEntry(episode.ID); err != nil {
		o.logger.Error("Failed to remove completed queue entry", "episode_id", episode.ID, "error", err)
	}

	o.logger.Info("Download completed",
		"episode_id", episode.ID,
		"size", humanize.Bytes(uint64(len(data))),
		"content_type", contentType)

	return nil
}

// failTransfer converts a transfer error into a failed progress record and
// clears the queue entry. This is the single catch for network errors,
// non-OK statuses and aborts.
func (o *Orchestrator) failTransfer(entry *models.QueueEntry, episode *models.Episode, handle *transferHandle, started time.Time, err error) {
	msg := err.Error()

	o.mu.Lock()
	cancelled := handle.cancelled
	o.mu.Unlock()
	if cancelled {
		msg = "Cancelled by user"
	}

	failed := &models.DownloadProgress{
		EpisodeID: episode.ID,
		Status:    models.StatusFailed,
		StartedAt: started,
		Error:     msg,
	}
	if putErr := o.db.PutDownloadProgress(failed); putErr != nil {
		o.logger.Error("Failed to persist failed download progress", "episode_id", episode.ID, "error", putErr)
	}
	o.broker.Publish(*failed)

	if delErr := o.db.DeleteQueueEntry(entry.ID); delErr != nil {
		o.logger.Error("Failed to remove failed queue entry", "entry_id", entry.ID, "error", delErr)
	}

	o.logger.Warn("Download failed", "episode_id", episode.ID, "error", msg)
}

// CancelDownload aborts an in-flight transfer and removes any queue entry
// for the episode, covering items that never started.
func (o *Orchestrator) CancelDownload(episodeID string) error {
	o.mu.Lock()
	if handle, ok := o.active[episodeID]; ok {
		handle.cancelled = true
		handle.cancel()
	}
	o.mu.Unlock()

	if err := o.db.DeleteQueueEntriesByEpisode(episodeID); err != nil {
		return fmt.Errorf("failed to remove queue entry: %w", err)
	}

	o.logger.Info("Download cancelled", "episode_id", episodeID)
	return nil
}

// DeleteDownload removes a completed download: the downloaded flag, the
// stored blob and the transfer record all go together.
func (o *Orchestrator) DeleteDownload(episodeID string) error {
	episode, err := o.db.GetEpisode(episodeID)
	if err != nil {
		return fmt.Errorf("failed to get episode: %w", err)
	}
	if !episode.IsDownloaded {
		return fmt.Errorf("episode %s is not downloaded", episodeID)
	}

	if err := o.db.RemoveDownload(episodeID, episode.DownloadedPath); err != nil {
		return err
	}

	o.logger.Info("Download deleted", "episode_id", episodeID)
	return nil
}

// RetryDownload discards a stale failed transfer record and re-enqueues the
// episode.
func (o *Orchestrator) RetryDownload(episode *models.Episode) error {
	if err := o.db.DeleteDownloadProgress(episode.ID); err != nil {
		return fmt.Errorf("failed to clear stale download progress: %w", err)
	}
	return o.QueueDownload(episode, 1)
}

// Recover reconciles durable state after a restart: entries orphaned in
// downloading state go back to queued, episodes whose blob disappeared are
// self-healed, then the queue resumes.
func (o *Orchestrator) Recover() error {
	reset, err := o.db.ResetOrphanedQueueEntries()
	if err != nil {
		return err
	}
	if reset > 0 {
		o.logger.Info("Reset orphaned queue entries from previous session", "count", reset)
	}

	if err := o.VerifyDownloads(); err != nil {
		return err
	}

	o.Drain()
	return nil
}

// VerifyDownloads enforces the downloaded invariant: an episode flagged as
// downloaded must have a live blob. Violations are healed by flipping the
// flag, not surfaced as errors.
func (o *Orchestrator) VerifyDownloads() error {
	episodes, err := o.db.ListDownloadedEpisodes()
	if err != nil {
		return fmt.Errorf("failed to list downloaded episodes: %w", err)
	}

	for _, episode := range episodes {
		exists, err := o.db.HasBlob(episode.DownloadedPath)
		if err != nil {
			return fmt.Errorf("failed to check blob for episode %s: %w", episode.ID, err)
		}
		if !exists {
			o.logger.Warn("Downloaded episode missing its blob, resetting flag",
				"episode_id", episode.ID, "path", episode.DownloadedPath)
			if err := o.db.ResetEpisodeDownload(episode.ID); err != nil {
				return fmt.Errorf("failed to reset episode download state: %w", err)
			}
		}
	}

	return nil
}

// ActiveCount returns the number of transfers currently in flight
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Shutdown aborts all in-flight transfers. Interrupted entries remain in
// downloading state and are recovered on the next start.
func (o *Orchestrator) Shutdown() {
	o.cancelAll()
}

// removeQueueEntry drops whatever queue entry exists for the episode
func (o *Orchestrator) removeQueueEntry(episodeID string) error {
	return o.db.DeleteQueueEntriesByEpisode(episodeID)
}
