package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title> Deep Signals </title>
    <description>A show about weak signals in noisy data.</description>
    <language>en-us</language>
    <itunes:author>Ada Researcher</itunes:author>
    <itunes:image href="https://example.com/cover.jpg"/>
    <item>
      <title>Signal One</title>
      <description>First episode.</description>
      <pubDate>Mon, 02 Jun 2025 10:00:00 +0000</pubDate>
      <enclosure url="https://cdn.example.com/ep1.mp3" length="1000" type="audio/mpeg"/>
      <itunes:duration>01:02:03</itunes:duration>
      <itunes:episode>1</itunes:episode>
      <itunes:season>2</itunes:season>
    </item>
    <item>
      <title>Signal Two</title>
      <description>Second episode.</description>
      <pubDate>Mon, 09 Jun 2025 10:00:00 +0000</pubDate>
      <enclosure url="https://cdn.example.com/ep2.m4a" length="2000" type="audio/mp4"/>
      <itunes:duration>1800</itunes:duration>
    </item>
    <item>
      <title>Blog Post Without Audio</title>
      <description>No enclosure here.</description>
      <pubDate>Mon, 16 Jun 2025 10:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func newFeedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher_Fetch(t *testing.T) {
	srv := newFeedServer(t, sampleFeed)
	fetcher := NewFetcher()

	podcast, episodes, err := fetcher.Fetch(context.Background(), srv.URL+"/feed.xml")
	require.NoError(t, err)

	require.Equal(t, "Deep Signals", podcast.Title)
	require.Equal(t, "A show about weak signals in noisy data.", podcast.Description)
	require.Equal(t, "Ada Researcher", podcast.Author)
	require.Equal(t, "en-us", podcast.Language)
	require.Equal(t, "https://example.com/cover.jpg", podcast.ImageURL)
	require.Equal(t, srv.URL+"/feed.xml", podcast.FeedURL)
	require.Len(t, podcast.ID, 16)

	// The item without an enclosure is not an episode
	require.Len(t, episodes, 2)

	first := episodes[0]
	require.Equal(t, "Signal One", first.Title)
	require.Equal(t, "https://cdn.example.com/ep1.mp3", first.AudioURL)
	require.Equal(t, int64(3723), first.Duration)
	require.Equal(t, 1, first.EpisodeNumber)
	require.Equal(t, 2, first.SeasonNumber)
	require.Equal(t, podcast.ID, first.PodcastID)
	require.Len(t, first.ID, 16)

	second := episodes[1]
	require.Equal(t, int64(1800), second.Duration)
	require.Zero(t, second.EpisodeNumber)
}

func TestFetcher_FetchIsIdempotent(t *testing.T) {
	srv := newFeedServer(t, sampleFeed)
	fetcher := NewFetcher()

	podcastA, episodesA, err := fetcher.Fetch(context.Background(), srv.URL+"/feed.xml")
	require.NoError(t, err)
	podcastB, episodesB, err := fetcher.Fetch(context.Background(), srv.URL+"/feed.xml")
	require.NoError(t, err)

	require.Equal(t, podcastA.ID, podcastB.ID)
	require.Len(t, episodesA, len(episodesB))
	for i := range episodesA {
		require.Equal(t, episodesA[i].ID, episodesB[i].ID)
	}
}

func TestFetcher_FetchErrors(t *testing.T) {
	fetcher := NewFetcher()

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, _, err := fetcher.Fetch(context.Background(), srv.URL)
		require.Error(t, err)
		require.Contains(t, err.Error(), "404")
	})

	t.Run("not a feed", func(t *testing.T) {
		srv := newFeedServer(t, "<html><body>hello</body></html>")

		_, _, err := fetcher.Fetch(context.Background(), srv.URL)
		require.Error(t, err)
	})

	t.Run("unreachable host", func(t *testing.T) {
		_, _, err := fetcher.Fetch(context.Background(), "http://127.0.0.1:1/feed.xml")
		require.Error(t, err)
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int64
	}{
		{name: "empty", value: "", want: 0},
		{name: "seconds", value: "1800", want: 1800},
		{name: "fractional seconds", value: "90.5", want: 90},
		{name: "minutes and seconds", value: "12:34", want: 754},
		{name: "hours minutes seconds", value: "01:02:03", want: 3723},
		{name: "whitespace", value: " 45 ", want: 45},
		{name: "garbage", value: "soon", want: 0},
		{name: "negative", value: "-5", want: 0},
		{name: "too many segments", value: "1:2:3:4", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ParseDuration(tt.value))
		})
	}
}
