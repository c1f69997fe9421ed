package downloader

import (
	"sync"

	"castvault/pkg/models"
)

// Broker fans download progress updates out to subscribers. Multiple
// listeners may watch the same episode; each Subscribe returns a token used
// to unsubscribe.
type Broker struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]func(models.DownloadProgress)
}

// NewBroker creates an empty progress broker
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[int]func(models.DownloadProgress)),
	}
}

// Subscribe registers a callback for an episode's progress updates and
// returns an unsubscribe token.
func (b *Broker) Subscribe(episodeID string, fn func(models.DownloadProgress)) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	token := b.next

	listeners, ok := b.subs[episodeID]
	if !ok {
		listeners = make(map[int]func(models.DownloadProgress))
		b.subs[episodeID] = listeners
	}
	listeners[token] = fn

	return token
}

// Unsubscribe removes a previously registered callback
func (b *Broker) Unsubscribe(episodeID string, token int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	listeners, ok := b.subs[episodeID]
	if !ok {
		return
	}
	delete(listeners, token)
	if len(listeners) == 0 {
		delete(b.subs, episodeID)
	}
}

// Publish delivers a progress update to every subscriber of the episode.
// Callbacks run outside the broker lock so a slow listener cannot block
// subscription changes.
func (b *Broker) Publish(progress models.DownloadProgress) {
	b.mu.RLock()
	listeners := make([]func(models.DownloadProgress), 0, len(b.subs[progress.EpisodeID]))
	for _, fn := range b.subs[progress.EpisodeID] {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	for _, fn := range listeners {
		fn(progress)
	}
}
