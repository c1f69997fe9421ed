package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPodcastID(t *testing.T) {
	id1 := PodcastID("https://example.com/feed.xml")
	id2 := PodcastID("https://example.com/feed.xml")
	id3 := PodcastID("https://example.com/other.xml")

	require.Len(t, id1, 16)
	require.Equal(t, id1, id2)
	require.NotEqual(t, id1, id3)
}

func TestEpisodeID_Idempotent(t *testing.T) {
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	podcastID := PodcastID("https://example.com/feed.xml")

	// Parsing the same feed item twice must yield the same ID
	id1 := EpisodeID(podcastID, "Episode 1", published)
	id2 := EpisodeID(podcastID, "Episode 1", published)
	require.Equal(t, id1, id2)

	require.NotEqual(t, id1, EpisodeID(podcastID, "Episode 2", published))
	require.NotEqual(t, id1, EpisodeID(podcastID, "Episode 1", published.Add(time.Hour)))
	require.NotEqual(t, id1, EpisodeID("otherpodcast", "Episode 1", published))
}

func TestNewQueueEntryID(t *testing.T) {
	now := time.Now()
	id1 := NewQueueEntryID("ep1", now)
	id2 := NewQueueEntryID("ep1", now.Add(time.Nanosecond))
	require.NotEqual(t, id1, id2)
	require.Contains(t, id1, "ep1-")
}

func TestAudioMIMEType(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"mp3", "https://cdn.example.com/show/ep1.mp3", "audio/mpeg"},
		{"mp3 with query", "https://cdn.example.com/ep1.mp3?token=abc", "audio/mpeg"},
		{"m4a", "https://cdn.example.com/ep1.m4a", "audio/mp4"},
		{"mp4", "https://cdn.example.com/ep1.mp4", "audio/mp4"},
		{"ogg", "https://cdn.example.com/ep1.ogg", "audio/ogg"},
		{"wav", "https://cdn.example.com/ep1.wav", "audio/wav"},
		{"uppercase", "https://cdn.example.com/EP1.MP3", "audio/mpeg"},
		{"unknown extension", "https://cdn.example.com/ep1.flac", "audio/mpeg"},
		{"no extension", "https://cdn.example.com/stream", "audio/mpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, AudioMIMEType(tt.url))
		})
	}
}

func TestCompleted(t *testing.T) {
	// 96% of the way through counts as completed, 90% does not
	require.True(t, Completed(0.96*3600, 3600))
	require.False(t, Completed(0.90*3600, 3600))
	require.True(t, Completed(0.95*3600, 3600))
	require.False(t, Completed(100, 0))
}
