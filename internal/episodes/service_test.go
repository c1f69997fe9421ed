package episodes

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"castvault/internal/database"
	"castvault/pkg/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedPodcast(t *testing.T, db *database.DB, id string) {
	t.Helper()
	require.NoError(t, db.CreatePodcast(&models.Podcast{
		ID:           id,
		Title:        "Show " + id,
		FeedURL:      "https://example.com/" + id + ".xml",
		SubscribedAt: time.Now(),
		LastUpdated:  time.Now(),
	}))
}

func seedEpisodeAt(t *testing.T, db *database.DB, podcastID, id string, publishedAt time.Time) {
	t.Helper()
	require.NoError(t, db.UpsertEpisode(&models.Episode{
		ID:          id,
		PodcastID:   podcastID,
		Title:       "Episode " + id,
		AudioURL:    "https://cdn.example.com/" + id + ".mp3",
		PublishedAt: publishedAt,
	}))
}

func TestService_GetLatestEpisodes(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	seedPodcast(t, db, "p1")
	seedPodcast(t, db, "p2")
	seedEpisodeAt(t, db, "p1", "old", base)
	seedEpisodeAt(t, db, "p2", "mid", base.Add(24*time.Hour))
	seedEpisodeAt(t, db, "p1", "new", base.Add(48*time.Hour))

	got, err := svc.GetLatestEpisodes(2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest first, across podcasts
	require.Equal(t, "new", got[0].ID)
	require.Equal(t, "mid", got[1].ID)
}

func TestService_GetLatestEpisodesRejectsBadCount(t *testing.T) {
	svc := NewService(newTestDB(t))
	_, err := svc.GetLatestEpisodes(0)
	require.Error(t, err)
}

func TestService_GetLatestEpisodesCaching(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	seedPodcast(t, db, "p1")
	seedEpisodeAt(t, db, "p1", "e1", clock.Add(-time.Hour))

	got, err := svc.GetLatestEpisodes(5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// A write the cache does not know about
	seedEpisodeAt(t, db, "p1", "e2", clock)

	// Within the TTL the memoized result is served
	clock = clock.Add(time.Minute)
	got, err = svc.GetLatestEpisodes(5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// A different count is a different cache entry and sees fresh data
	got, err = svc.GetLatestEpisodes(10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Past the TTL the original count refetches too
	clock = clock.Add(cacheTTL)
	got, err = svc.GetLatestEpisodes(5)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestService_InvalidateDropsCache(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	seedPodcast(t, db, "p1")
	seedEpisodeAt(t, db, "p1", "e1", time.Now().Add(-time.Hour))

	got, err := svc.GetLatestEpisodes(5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	seedEpisodeAt(t, db, "p1", "e2", time.Now())
	svc.Invalidate()

	got, err = svc.GetLatestEpisodes(5)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestService_GetUnfinishedEpisodes(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	seedPodcast(t, db, "p1")
	seedEpisodeAt(t, db, "p1", "e1", base)
	seedEpisodeAt(t, db, "p1", "e2", base)
	seedEpisodeAt(t, db, "p1", "e3", base)

	save := func(episodeID string, position float64, completed bool, playedAt time.Time) {
		require.NoError(t, db.SavePlaybackProgress(&models.PlaybackProgress{
			ID:           episodeID,
			EpisodeID:    episodeID,
			PodcastID:    "p1",
			Position:     position,
			Duration:     100,
			LastPlayedAt: playedAt,
			IsCompleted:  completed,
		}))
	}

	save("e1", 30, false, base.Add(time.Hour))
	save("e2", 60, false, base.Add(2*time.Hour))
	save("e3", 99, true, base.Add(3*time.Hour))

	// A progress row whose episode is gone must not surface
	save("ghost", 10, false, base.Add(4*time.Hour))

	got, err := svc.GetUnfinishedEpisodes()
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Most recently played first; completed and ghost rows excluded
	require.Equal(t, "e2", got[0].ID)
	require.Equal(t, "e1", got[1].ID)
}

func TestService_GetUnfinishedEpisodesPropagatesStoreErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castvault.db")
	db, err := database.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := NewService(db)

	seedPodcast(t, db, "p1")
	seedEpisodeAt(t, db, "p1", "e1", time.Now().Add(-time.Hour))
	require.NoError(t, db.SavePlaybackProgress(&models.PlaybackProgress{
		ID:           "e1",
		EpisodeID:    "e1",
		PodcastID:    "p1",
		Position:     30,
		Duration:     100,
		LastPlayedAt: time.Now(),
	}))

	// Break the episodes table underneath the service; the failure is not a
	// missing row and must surface, not be skipped
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	_, err = raw.Exec(`DROP TABLE episodes`)
	require.NoError(t, err)

	_, err = svc.GetUnfinishedEpisodes()
	require.Error(t, err)
}
