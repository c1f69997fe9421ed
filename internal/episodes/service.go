// Package episodes provides derived episode queries: the what's-new list and
// unfinished (in-progress) episodes.
package episodes

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"castvault/internal/database"
	"castvault/pkg/models"
)

// cacheTTL bounds how stale a memoized latest-episodes result may get
const cacheTTL = 5 * time.Minute

type cachedList struct {
	episodes []*models.Episode
	fetched  time.Time
}

// Service answers episode queries. Latest-episode results are memoized per
// requested count with a TTL; mutations to subscriptions invalidate the memo
// through Invalidate.
type Service struct {
	db  *database.DB
	now func() time.Time

	mu     sync.Mutex
	latest map[int]cachedList
}

// NewService creates an episode query service
func NewService(db *database.DB) *Service {
	return &Service{
		db:     db,
		now:    time.Now,
		latest: make(map[int]cachedList),
	}
}

// GetLatestEpisodes returns the most recently published episodes across all
// subscriptions, newest first. Results are cached per count for a few
// minutes; Invalidate drops the cache early.
func (s *Service) GetLatestEpisodes(count int) ([]*models.Episode, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	s.mu.Lock()
	entry, ok := s.latest[count]
	s.mu.Unlock()
	if ok && s.now().Sub(entry.fetched) < cacheTTL {
		return entry.episodes, nil
	}

	episodes, err := s.db.ListLatestEpisodes(count)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.latest[count] = cachedList{episodes: episodes, fetched: s.now()}
	s.mu.Unlock()

	return episodes, nil
}

// GetUnfinishedEpisodes returns episodes with playback in progress, most
// recently played first. An unfinished playback row whose episode no longer
// exists is skipped.
func (s *Service) GetUnfinishedEpisodes() ([]*models.Episode, error) {
	progress, err := s.db.ListUnfinishedPlayback()
	if err != nil {
		return nil, err
	}

	episodes := make([]*models.Episode, 0, len(progress))
	for _, p := range progress {
		episode, err := s.db.GetEpisode(p.EpisodeID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, nil
}

// Invalidate drops all memoized latest-episode results
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = make(map[int]cachedList)
}
