package database

import (
	"path/filepath"
	"testing"
	"time"

	"castvault/pkg/models"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testPodcast(feedURL string) *models.Podcast {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Podcast{
		ID:           models.PodcastID(feedURL),
		Title:        "Test Podcast",
		Description:  "A podcast about testing",
		FeedURL:      feedURL,
		Author:       "Tester",
		Language:     "en",
		Categories:   []string{"Technology"},
		SubscribedAt: now,
		LastUpdated:  now,
	}
}

func testEpisode(podcastID, title string, publishedAt time.Time) *models.Episode {
	return &models.Episode{
		ID:          models.EpisodeID(podcastID, title, publishedAt),
		PodcastID:   podcastID,
		Title:       title,
		Description: "episode description",
		AudioURL:    "https://cdn.example.com/" + title + ".mp3",
		Duration:    1800,
		PublishedAt: publishedAt.UTC().Truncate(time.Second),
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		dbPath  func(t *testing.T) string
		wantErr bool
	}{
		{
			name:   "in-memory database",
			dbPath: func(t *testing.T) string { return ":memory:" },
		},
		{
			name:   "file database",
			dbPath: func(t *testing.T) string { return filepath.Join(t.TempDir(), "test.db") },
		},
		{
			name:    "invalid database path",
			dbPath:  func(t *testing.T) string { return "/invalid/nonexistent/path/test.db" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(tt.dbPath(t))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, db.Close())
		})
	}
}

func TestDB_SchemaVersion(t *testing.T) {
	db := newTestDB(t)

	version, err := db.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, len(migrations), version)
}

func TestDB_Migrate_Reentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")

	db, err := New(path)
	require.NoError(t, err)

	podcast := testPodcast("https://example.com/feed.xml")
	require.NoError(t, db.CreatePodcast(podcast))
	require.NoError(t, db.Close())

	// Re-opening applies no destructive migrations; old data stays queryable
	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.GetPodcast(podcast.ID)
	require.NoError(t, err)
	require.Equal(t, podcast.FeedURL, got.FeedURL)
}

func TestDB_PodcastCRUD(t *testing.T) {
	db := newTestDB(t)

	podcast := testPodcast("https://example.com/feed.xml")
	require.NoError(t, db.CreatePodcast(podcast))

	got, err := db.GetPodcast(podcast.ID)
	require.NoError(t, err)
	require.Equal(t, podcast.Title, got.Title)
	require.Equal(t, []string{"Technology"}, got.Categories)

	byURL, err := db.GetPodcastByFeedURL(podcast.FeedURL)
	require.NoError(t, err)
	require.Equal(t, podcast.ID, byURL.ID)

	podcast.Title = "Renamed"
	podcast.LastUpdated = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.UpdatePodcast(podcast))

	got, err = db.GetPodcast(podcast.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Title)

	// Duplicate feed URL violates the unique constraint
	dup := testPodcast("https://example.com/feed.xml")
	dup.ID = "different-id"
	require.Error(t, db.CreatePodcast(dup))

	_, err = db.GetPodcast("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDB_DeletePodcastCascade(t *testing.T) {
	db := newTestDB(t)

	podcast := testPodcast("https://example.com/feed.xml")
	require.NoError(t, db.CreatePodcast(podcast))

	now := time.Now().UTC().Truncate(time.Second)
	var episodes []*models.Episode
	for i := 0; i < 3; i++ {
		ep := testEpisode(podcast.ID, "ep"+string(rune('a'+i)), now.Add(time.Duration(i)*time.Hour))
		require.NoError(t, db.UpsertEpisode(ep))
		episodes = append(episodes, ep)

		require.NoError(t, db.SavePlaybackProgress(&models.PlaybackProgress{
			ID:           ep.ID,
			EpisodeID:    ep.ID,
			PodcastID:    podcast.ID,
			Position:     60,
			Duration:     1800,
			LastPlayedAt: now,
		}))
	}

	require.NoError(t, db.DeletePodcastCascade(podcast.ID))

	_, err := db.GetPodcast(podcast.ID)
	require.ErrorIs(t, err, ErrNotFound)

	remaining, err := db.ListEpisodesByPodcast(podcast.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)

	progress, err := db.ListPlaybackByPodcast(podcast.ID)
	require.NoError(t, err)
	require.Empty(t, progress)

	for _, ep := range episodes {
		_, err := db.GetEpisode(ep.ID)
		require.ErrorIs(t, err, ErrNotFound)
	}
}

func TestDB_UpsertEpisode_Idempotent(t *testing.T) {
	db := newTestDB(t)

	podcast := testPodcast("https://example.com/feed.xml")
	require.NoError(t, db.CreatePodcast(podcast))

	published := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	episode := testEpisode(podcast.ID, "Episode 1", published)
	require.NoError(t, db.UpsertEpisode(episode))

	// Mark it downloaded, then re-ingest the same feed item
	require.NoError(t, db.CompleteDownload(episode.ID, models.BlobKey(episode.ID), []byte("audio"), "audio/mpeg", time.Now()))

	refreshed := testEpisode(podcast.ID, "Episode 1", published)
	refreshed.Description = "updated show notes"
	require.NoError(t, db.UpsertEpisode(refreshed))

	episodes, err := db.ListEpisodesByPodcast(podcast.ID)
	require.NoError(t, err)
	require.Len(t, episodes, 1, "re-fetching the same feed item must not duplicate the episode")
	require.Equal(t, "updated show notes", episodes[0].Description)
	require.True(t, episodes[0].IsDownloaded, "refresh must not clobber download state")
}

func TestDB_ListLatestEpisodes(t *testing.T) {
	db := newTestDB(t)

	feedA := testPodcast("https://example.com/a.xml")
	feedB := testPodcast("https://example.com/b.xml")
	feedB.ID = models.PodcastID(feedB.FeedURL)
	require.NoError(t, db.CreatePodcast(feedA))
	require.NoError(t, db.CreatePodcast(feedB))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		require.NoError(t, db.UpsertEpisode(testEpisode(feedA.ID, "a", base.Add(time.Duration(2*i)*time.Hour))))
	}
	for i := 0; i < 15; i++ {
		require.NoError(t, db.UpsertEpisode(testEpisode(feedB.ID, "b", base.Add(time.Duration(2*i+1)*time.Hour))))
	}

	latest, err := db.ListLatestEpisodes(10)
	require.NoError(t, err)
	require.Len(t, latest, 10)

	// Globally ordered by publish date descending, drawn from both feeds
	for i := 1; i < len(latest); i++ {
		require.False(t, latest[i].PublishedAt.After(latest[i-1].PublishedAt))
	}
	podcastIDs := map[string]bool{}
	for _, ep := range latest {
		podcastIDs[ep.PodcastID] = true
	}
	require.True(t, podcastIDs[feedA.ID])
	require.True(t, podcastIDs[feedB.ID])
}

func TestDB_PlaybackProgress(t *testing.T) {
	db := newTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	progress := &models.PlaybackProgress{
		ID:           "ep1",
		EpisodeID:    "ep1",
		PodcastID:    "pod1",
		Position:     120,
		Duration:     1800,
		LastPlayedAt: now,
	}
	require.NoError(t, db.SavePlaybackProgress(progress))

	// Put semantics: second save overwrites
	progress.Position = 300
	require.NoError(t, db.SavePlaybackProgress(progress))

	got, err := db.GetPlaybackProgress("ep1")
	require.NoError(t, err)
	require.Equal(t, 300.0, got.Position)

	_, err = db.GetPlaybackProgress("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDB_ListUnfinishedPlayback(t *testing.T) {
	db := newTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	records := []*models.PlaybackProgress{
		{ID: "a", EpisodeID: "a", PodcastID: "p", Position: 100, Duration: 1800, LastPlayedAt: now.Add(-2 * time.Hour)},
		{ID: "b", EpisodeID: "b", PodcastID: "p", Position: 200, Duration: 1800, LastPlayedAt: now},
		{ID: "c", EpisodeID: "c", PodcastID: "p", Position: 1750, Duration: 1800, LastPlayedAt: now, IsCompleted: true},
		{ID: "d", EpisodeID: "d", PodcastID: "p", Position: 0, Duration: 1800, LastPlayedAt: now},
	}
	for _, r := range records {
		require.NoError(t, db.SavePlaybackProgress(r))
	}

	unfinished, err := db.ListUnfinishedPlayback()
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	// Most recently played first; completed and never-started excluded
	require.Equal(t, "b", unfinished[0].EpisodeID)
	require.Equal(t, "a", unfinished[1].EpisodeID)
}

func TestDB_DownloadProgress(t *testing.T) {
	db := newTestDB(t)

	progress := &models.DownloadProgress{
		EpisodeID: "ep1",
		Progress:  0,
		Status:    models.StatusDownloading,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.PutDownloadProgress(progress))

	progress.Progress = 47
	require.NoError(t, db.PutDownloadProgress(progress))

	got, err := db.GetDownloadProgress("ep1")
	require.NoError(t, err)
	require.Equal(t, 47, got.Progress)
	require.Equal(t, models.StatusDownloading, got.Status)

	require.NoError(t, db.DeleteDownloadProgress("ep1"))
	_, err = db.GetDownloadProgress("ep1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDB_DeleteStaleDownloadProgress(t *testing.T) {
	db := newTestDB(t)

	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, db.PutDownloadProgress(&models.DownloadProgress{
		EpisodeID: "old-failed", Status: models.StatusFailed, StartedAt: old,
	}))
	require.NoError(t, db.PutDownloadProgress(&models.DownloadProgress{
		EpisodeID: "old-active", Status: models.StatusDownloading, StartedAt: old,
	}))
	require.NoError(t, db.PutDownloadProgress(&models.DownloadProgress{
		EpisodeID: "fresh-failed", Status: models.StatusFailed, StartedAt: time.Now(),
	}))

	deleted, err := db.DeleteStaleDownloadProgress(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	// Non-terminal and fresh records survive
	_, err = db.GetDownloadProgress("old-active")
	require.NoError(t, err)
	_, err = db.GetDownloadProgress("fresh-failed")
	require.NoError(t, err)
}

func TestDB_QueueEntry_DuplicateRejected(t *testing.T) {
	db := newTestDB(t)

	now := time.Now()
	entry := &models.QueueEntry{
		ID:        models.NewQueueEntryID("ep1", now),
		EpisodeID: "ep1",
		PodcastID: "pod1",
		Priority:  1,
		AddedAt:   now,
		Status:    models.StatusQueued,
	}
	require.NoError(t, db.CreateQueueEntry(entry))

	dup := *entry
	dup.ID = models.NewQueueEntryID("ep1", now.Add(time.Second))
	require.ErrorIs(t, db.CreateQueueEntry(&dup), ErrAlreadyQueued)
}

func TestDB_ListQueue_Order(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().UTC().Truncate(time.Second)
	add := func(episodeID string, priority int, offset time.Duration) {
		require.NoError(t, db.CreateQueueEntry(&models.QueueEntry{
			ID:        models.NewQueueEntryID(episodeID, base.Add(offset)),
			EpisodeID: episodeID,
			PodcastID: "pod1",
			Priority:  priority,
			AddedAt:   base.Add(offset),
			Status:    models.StatusQueued,
		}))
	}

	add("low-first", 1, 0)
	add("low-second", 1, time.Second)
	add("high-late", 5, 2*time.Second)

	queue, err := db.ListQueue()
	require.NoError(t, err)
	require.Len(t, queue, 3)
	require.Equal(t, "high-late", queue[0].EpisodeID)
	require.Equal(t, "low-first", queue[1].EpisodeID)
	require.Equal(t, "low-second", queue[2].EpisodeID)
}

func TestDB_ClaimQueueEntry(t *testing.T) {
	db := newTestDB(t)

	now := time.Now()
	entry := &models.QueueEntry{
		ID:        models.NewQueueEntryID("ep1", now),
		EpisodeID: "ep1",
		PodcastID: "pod1",
		Priority:  1,
		AddedAt:   now,
		Status:    models.StatusQueued,
	}
	require.NoError(t, db.CreateQueueEntry(entry))

	claimed, err := db.ClaimQueueEntry(entry.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	// Second claim loses the race
	claimed, err = db.ClaimQueueEntry(entry.ID)
	require.NoError(t, err)
	require.False(t, claimed)

	got, err := db.GetQueueEntryByEpisode("ep1")
	require.NoError(t, err)
	require.Equal(t, models.StatusDownloading, got.Status)
}

func TestDB_ResetOrphanedQueueEntries(t *testing.T) {
	db := newTestDB(t)

	now := time.Now()
	entry := &models.QueueEntry{
		ID:        models.NewQueueEntryID("ep1", now),
		EpisodeID: "ep1",
		PodcastID: "pod1",
		Priority:  1,
		AddedAt:   now,
		Status:    models.StatusQueued,
	}
	require.NoError(t, db.CreateQueueEntry(entry))
	claimed, err := db.ClaimQueueEntry(entry.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	reset, err := db.ResetOrphanedQueueEntries()
	require.NoError(t, err)
	require.Equal(t, int64(1), reset)

	got, err := db.GetQueueEntryByEpisode("ep1")
	require.NoError(t, err)
	require.Equal(t, models.StatusQueued, got.Status)
}

func TestDB_Blobs(t *testing.T) {
	db := newTestDB(t)

	data := []byte("binary audio payload")
	require.NoError(t, db.PutBlob("audio/ep1", data, "audio/mpeg"))

	got, contentType, err := db.GetBlob("audio/ep1")
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, "audio/mpeg", contentType)

	info, err := db.GetBlobInfo("audio/ep1")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), info.Size)
	require.Equal(t, "audio/mpeg", info.ContentType)
	require.False(t, info.CreatedAt.IsZero())

	exists, err := db.HasBlob("audio/ep1")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, db.DeleteBlob("audio/ep1"))
	_, _, err = db.GetBlob("audio/ep1")
	require.ErrorIs(t, err, ErrNotFound)

	exists, err = db.HasBlob("audio/ep1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDB_CompleteDownload(t *testing.T) {
	db := newTestDB(t)

	podcast := testPodcast("https://example.com/feed.xml")
	require.NoError(t, db.CreatePodcast(podcast))
	episode := testEpisode(podcast.ID, "ep1", time.Now())
	require.NoError(t, db.UpsertEpisode(episode))

	data := []byte("downloaded audio bytes")
	key := models.BlobKey(episode.ID)
	require.NoError(t, db.CompleteDownload(episode.ID, key, data, "audio/mpeg", time.Now()))

	got, err := db.GetEpisode(episode.ID)
	require.NoError(t, err)
	require.True(t, got.IsDownloaded)
	require.Equal(t, key, got.DownloadedPath)
	require.NotNil(t, got.DownloadedAt)
	require.Equal(t, int64(len(data)), got.FileSize)

	info, err := db.GetBlobInfo(key)
	require.NoError(t, err)
	require.Equal(t, got.FileSize, info.Size)

	downloaded, err := db.ListDownloadedEpisodes()
	require.NoError(t, err)
	require.Len(t, downloaded, 1)
}

func TestDB_RemoveDownload(t *testing.T) {
	db := newTestDB(t)

	podcast := testPodcast("https://example.com/feed.xml")
	require.NoError(t, db.CreatePodcast(podcast))
	episode := testEpisode(podcast.ID, "ep1", time.Now())
	require.NoError(t, db.UpsertEpisode(episode))

	key := models.BlobKey(episode.ID)
	require.NoError(t, db.CompleteDownload(episode.ID, key, []byte("audio"), "audio/mpeg", time.Now()))
	require.NoError(t, db.PutDownloadProgress(&models.DownloadProgress{
		EpisodeID: episode.ID, Progress: 100, Status: models.StatusCompleted, StartedAt: time.Now(),
	}))

	require.NoError(t, db.RemoveDownload(episode.ID, key))

	got, err := db.GetEpisode(episode.ID)
	require.NoError(t, err)
	require.False(t, got.IsDownloaded)
	require.Empty(t, got.DownloadedPath)
	require.Zero(t, got.FileSize)

	_, _, err = db.GetBlob(key)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = db.GetDownloadProgress(episode.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDB_ClearAllDownloads(t *testing.T) {
	db := newTestDB(t)

	podcast := testPodcast("https://example.com/feed.xml")
	require.NoError(t, db.CreatePodcast(podcast))

	now := time.Now()
	for _, title := range []string{"ep1", "ep2"} {
		ep := testEpisode(podcast.ID, title, now)
		require.NoError(t, db.UpsertEpisode(ep))
		require.NoError(t, db.CompleteDownload(ep.ID, models.BlobKey(ep.ID), []byte("audio"), "audio/mpeg", now))
		require.NoError(t, db.PutDownloadProgress(&models.DownloadProgress{
			EpisodeID: ep.ID, Progress: 100, Status: models.StatusCompleted, StartedAt: now,
		}))
	}
	require.NoError(t, db.CreateQueueEntry(&models.QueueEntry{
		ID: models.NewQueueEntryID("ep3", now), EpisodeID: "ep3", PodcastID: podcast.ID,
		Priority: 1, AddedAt: now, Status: models.StatusQueued,
	}))

	require.NoError(t, db.ClearAllDownloads())

	downloaded, err := db.ListDownloadedEpisodes()
	require.NoError(t, err)
	require.Empty(t, downloaded)

	progress, err := db.ListDownloadProgress()
	require.NoError(t, err)
	require.Empty(t, progress)

	queue, err := db.ListQueue()
	require.NoError(t, err)
	require.Empty(t, queue)
}
