// Package fuzzy provides fuzzy matching for searching podcast and episode
// titles.
package fuzzy

import (
	"sort"
	"strings"
)

// Match pairs a candidate's index with its score
type Match struct {
	Index int
	Score float64
}

// Score rates how well a query matches a title. Exact word overlap counts
// most, substring containment keeps partial typing useful. Zero means no
// match.
func Score(query, title string) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	title = strings.ToLower(title)
	if query == "" || title == "" {
		return 0
	}

	if query == title {
		return 2
	}

	queryWords := splitWords(query)
	titleWords := splitWords(title)

	matched := 0
	for _, qw := range queryWords {
		for _, tw := range titleWords {
			if qw == tw || strings.HasPrefix(tw, qw) {
				matched++
				break
			}
		}
	}

	if matched > 0 && len(queryWords) > 0 {
		// All query words found scores 1.0, partial coverage proportionally
		return float64(matched) / float64(len(queryWords))
	}

	if strings.Contains(title, query) {
		return float64(len(query)) / float64(len(title))
	}

	return 0
}

// Rank scores every candidate title against the query and returns matches
// sorted best-first, capped at limit. Non-matches are dropped.
func Rank(query string, titles []string, limit int) []Match {
	var matches []Match
	for i, title := range titles {
		if score := Score(query, title); score > 0 {
			matches = append(matches, Match{Index: i, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '.' || r == '_' || r == '-' || r == ':' || r == ','
	})
}
