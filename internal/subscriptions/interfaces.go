package subscriptions

import (
	"context"

	"castvault/pkg/models"
)

// FeedFetcher resolves a feed URL into podcast metadata and its episodes
//
//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (*models.Podcast, []*models.Episode, error)
}

// CacheInvalidator is notified after subscription mutations so cached
// episode queries drop stale results.
type CacheInvalidator interface {
	Invalidate()
}
