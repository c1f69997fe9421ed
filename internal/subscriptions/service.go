// Package subscriptions manages the podcast subscription lifecycle:
// subscribing, unsubscribing, refreshing feeds and OPML import/export.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"castvault/internal/database"
	"castvault/internal/opml"
	"castvault/pkg/models"
)

// ErrAlreadySubscribed is returned when subscribing to a feed URL that
// already has a podcast record.
var ErrAlreadySubscribed = errors.New("already subscribed to feed")

// refreshParallelism bounds concurrent feed fetches during RefreshAll
const refreshParallelism = 4

// RefreshResult aggregates a RefreshAll run. Individual feed failures are
// counted, never fatal.
type RefreshResult struct {
	Refreshed   int `json:"refreshed"`
	NewEpisodes int `json:"new_episodes"`
	Errors      int `json:"errors"`
}

// ImportResult aggregates an OPML import
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Service owns subscription state. All mutations notify the cache
// invalidator so derived episode queries stay fresh.
type Service struct {
	db          *database.DB
	fetcher     FeedFetcher
	invalidator CacheInvalidator
	logger      *slog.Logger
}

// NewService creates a subscription service. The invalidator may be nil.
func NewService(db *database.DB, fetcher FeedFetcher, invalidator CacheInvalidator) *Service {
	return &Service{
		db:          db,
		fetcher:     fetcher,
		invalidator: invalidator,
		logger:      slog.Default(),
	}
}

// Subscribe fetches the feed and stores the podcast with its episodes.
// Subscribing to an already-subscribed feed fails before any state changes.
func (s *Service) Subscribe(ctx context.Context, feedURL string) (*models.Podcast, error) {
	_, err := s.db.GetPodcastByFeedURL(feedURL)
	if err == nil {
		return nil, ErrAlreadySubscribed
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing subscription: %w", err)
	}

	podcast, episodes, err := s.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	if err := s.db.CreatePodcast(podcast); err != nil {
		return nil, err
	}
	if _, err := s.storeEpisodes(episodes); err != nil {
		return nil, err
	}

	s.invalidate()
	s.logger.Info("Subscribed to podcast", "podcast_id", podcast.ID, "title", podcast.Title, "episodes", len(episodes))
	return podcast, nil
}

// Unsubscribe removes the podcast, its episodes and their playback progress
// in one transaction.
func (s *Service) Unsubscribe(podcastID string) error {
	if _, err := s.db.GetPodcast(podcastID); err != nil {
		return err
	}
	if err := s.db.DeletePodcastCascade(podcastID); err != nil {
		return err
	}
	s.invalidate()
	s.logger.Info("Unsubscribed from podcast", "podcast_id", podcastID)
	return nil
}

// Refresh re-fetches one podcast's feed and returns the number of episodes
// not seen before. Existing episodes keep their download state.
func (s *Service) Refresh(ctx context.Context, podcastID string) (int, error) {
	podcast, err := s.db.GetPodcast(podcastID)
	if err != nil {
		return 0, err
	}

	fetched, episodes, err := s.fetcher.Fetch(ctx, podcast.FeedURL)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh feed: %w", err)
	}

	// Refresh updates metadata but never the subscription timestamp
	fetched.SubscribedAt = podcast.SubscribedAt
	fetched.LastUpdated = time.Now()
	if err := s.db.UpdatePodcast(fetched); err != nil {
		return 0, err
	}

	added, err := s.storeEpisodes(episodes)
	if err != nil {
		return 0, err
	}

	// Even a refresh with no new episodes rewrites episode metadata, so
	// cached query results are stale either way.
	s.invalidate()
	s.logger.Info("Refreshed podcast", "podcast_id", podcastID, "new_episodes", added)
	return added, nil
}

// RefreshAll refreshes every subscription with bounded parallelism. A
// failing feed is counted and logged; the rest keep going.
func (s *Service) RefreshAll(ctx context.Context) (*RefreshResult, error) {
	podcasts, err := s.db.ListPodcasts()
	if err != nil {
		return nil, err
	}

	var refreshed, added, failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshParallelism)
	for _, podcast := range podcasts {
		g.Go(func() error {
			n, err := s.Refresh(gctx, podcast.ID)
			if err != nil {
				failures.Add(1)
				s.logger.Warn("Feed refresh failed", "podcast_id", podcast.ID, "feed_url", podcast.FeedURL, "error", err)
				return nil
			}
			refreshed.Add(1)
			added.Add(int64(n))
			return nil
		})
	}
	g.Wait()

	return &RefreshResult{
		Refreshed:   int(refreshed.Load()),
		NewEpisodes: int(added.Load()),
		Errors:      int(failures.Load()),
	}, nil
}

// ImportOPML subscribes to every feed in the document. Already-subscribed
// feeds are skipped, per-feed failures are collected rather than aborting
// the import.
func (s *Service) ImportOPML(ctx context.Context, r io.Reader) (*ImportResult, error) {
	feeds, err := opml.Parse(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, feed := range feeds {
		_, err := s.Subscribe(ctx, feed.FeedURL)
		switch {
		case errors.Is(err, ErrAlreadySubscribed):
			result.Skipped++
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", feed.FeedURL, err))
		default:
			result.Imported++
		}
	}

	s.logger.Info("OPML import finished",
		"imported", result.Imported, "skipped", result.Skipped, "errors", len(result.Errors))
	return result, nil
}

// ExportOPML writes all subscriptions as an OPML document
func (s *Service) ExportOPML(w io.Writer) (int, error) {
	podcasts, err := s.db.ListPodcasts()
	if err != nil {
		return 0, err
	}

	feeds := make([]opml.Feed, len(podcasts))
	for i, podcast := range podcasts {
		feeds[i] = opml.Feed{Title: podcast.Title, FeedURL: podcast.FeedURL}
	}

	if err := opml.Render(w, "castvault subscriptions", feeds); err != nil {
		return 0, err
	}
	return len(feeds), nil
}

// storeEpisodes upserts fetched episodes and reports how many were new
func (s *Service) storeEpisodes(episodes []*models.Episode) (int, error) {
	added := 0
	for _, episode := range episodes {
		_, err := s.db.GetEpisode(episode.ID)
		if errors.Is(err, database.ErrNotFound) {
			added++
		} else if err != nil {
			return added, err
		}

		if err := s.db.UpsertEpisode(episode); err != nil {
			return added, fmt.Errorf("failed to store episode %s: %w", episode.ID, err)
		}
	}
	return added, nil
}

func (s *Service) invalidate() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}
