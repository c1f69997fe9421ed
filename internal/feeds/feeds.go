// Package feeds fetches and parses podcast RSS feeds into domain records
package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"castvault/pkg/models"
)

// Fetcher retrieves podcast feeds over HTTP and parses them. Safe for
// concurrent use.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewFetcher creates a feed fetcher with a 30 second request timeout
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		logger: slog.Default(),
	}
}

// Fetch downloads and parses the feed at the given URL. The returned podcast
// and episodes carry deterministic identifiers derived from the feed URL and
// item metadata, so fetching the same feed twice produces the same records.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*models.Podcast, []*models.Episode, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("User-Agent", "castvault/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := time.Now()
	podcast := &models.Podcast{
		ID:           models.PodcastID(feedURL),
		Title:        strings.TrimSpace(feed.Title),
		Description:  strings.TrimSpace(feed.Description),
		FeedURL:      feedURL,
		Language:     feed.Language,
		Categories:   feed.Categories,
		SubscribedAt: now,
		LastUpdated:  now,
	}
	if feed.Image != nil {
		podcast.ImageURL = feed.Image.URL
	}
	if feed.ITunesExt != nil {
		podcast.Author = feed.ITunesExt.Author
		if podcast.ImageURL == "" {
			podcast.ImageURL = feed.ITunesExt.Image
		}
	}
	if podcast.Author == "" && len(feed.Authors) > 0 {
		podcast.Author = feed.Authors[0].Name
	}

	episodes := make([]*models.Episode, 0, len(feed.Items))
	for _, item := range feed.Items {
		episode := f.parseItem(podcast.ID, item)
		if episode == nil {
			continue
		}
		episodes = append(episodes, episode)
	}

	return podcast, episodes, nil
}

// parseItem converts one feed item. Items without an audio enclosure are not
// playable and are dropped.
func (f *Fetcher) parseItem(podcastID string, item *gofeed.Item) *models.Episode {
	audioURL := ""
	for _, enc := range item.Enclosures {
		if enc.URL != "" {
			audioURL = enc.URL
			break
		}
	}
	if audioURL == "" {
		f.logger.Debug("Skipping feed item without enclosure", "title", item.Title)
		return nil
	}

	var publishedAt time.Time
	if item.PublishedParsed != nil {
		publishedAt = *item.PublishedParsed
	}

	title := strings.TrimSpace(item.Title)
	episode := &models.Episode{
		ID:          models.EpisodeID(podcastID, title, publishedAt),
		PodcastID:   podcastID,
		Title:       title,
		Description: strings.TrimSpace(item.Description),
		Content:     item.Content,
		AudioURL:    audioURL,
		PublishedAt: publishedAt,
	}
	if item.Image != nil {
		episode.ImageURL = item.Image.URL
	}

	if item.ITunesExt != nil {
		episode.Duration = ParseDuration(item.ITunesExt.Duration)
		episode.EpisodeNumber = atoiOrZero(item.ITunesExt.Episode)
		episode.SeasonNumber = atoiOrZero(item.ITunesExt.Season)
		if episode.ImageURL == "" {
			episode.ImageURL = item.ITunesExt.Image
		}
		if episode.Description == "" {
			episode.Description = strings.TrimSpace(item.ITunesExt.Summary)
		}
	}

	return episode
}

// ParseDuration converts an itunes:duration value to seconds. The tag holds
// either a bare number of seconds or a clock format (HH:MM:SS or MM:SS).
func ParseDuration(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if !strings.Contains(value, ":") {
		seconds, err := strconv.ParseFloat(value, 64)
		if err != nil || seconds < 0 {
			return 0
		}
		return int64(seconds)
	}

	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0
	}

	var total int64
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + int64(n)
	}
	return total
}

func atoiOrZero(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}
