package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		query string
		title string
		want  float64
	}{
		{name: "exact match scores highest", query: "deep signals", title: "Deep Signals", want: 2.0},
		{name: "all words matched", query: "deep signals", title: "Deep Signals Weekly", want: 1.0},
		{name: "prefix typing matches", query: "sig", title: "Deep Signals", want: 1.0},
		{name: "partial word coverage", query: "deep nonsense", title: "Deep Signals", want: 0.5},
		{name: "no match", query: "cooking", title: "Deep Signals", want: 0},
		{name: "empty query", query: "  ", title: "Deep Signals", want: 0},
		{name: "case insensitive", query: "DEEP", title: "deep signals", want: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Score(tt.query, tt.title))
		})
	}
}

func TestRank(t *testing.T) {
	titles := []string{
		"Cooking With Fire",
		"Deep Signals",
		"Signals and Noise",
		"History Hour",
	}

	matches := Rank("signals", titles, 0)
	require.Len(t, matches, 2)
	require.Equal(t, 1, matches[0].Index)
	require.Equal(t, 2, matches[1].Index)

	// Limit caps the result
	matches = Rank("signals", titles, 1)
	require.Len(t, matches, 1)

	// No matches at all
	require.Empty(t, Rank("astronomy", titles, 0))
}

func TestRankStableForTies(t *testing.T) {
	titles := []string{"Signals A", "Signals B"}
	matches := Rank("signals", titles, 0)
	require.Len(t, matches, 2)
	require.Equal(t, 0, matches[0].Index)
	require.Equal(t, 1, matches[1].Index)
}
