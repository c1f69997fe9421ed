// Package prefs persists user preferences as a small JSON file, kept apart
// from the main database.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Preferences holds the user-tunable playback and UI settings
type Preferences struct {
	Theme           string  `json:"theme"`
	PlaybackRate    float64 `json:"playback_rate"`
	SkipForwardSec  int     `json:"skip_forward_sec"`
	SkipBackwardSec int     `json:"skip_backward_sec"`
	AutoPlayNext    bool    `json:"auto_play_next"`
	WhatsNewCount   int     `json:"whats_new_count"`
}

// defaults returns the preferences used before the user changes anything
func defaults() Preferences {
	return Preferences{
		Theme:           "system",
		PlaybackRate:    1.0,
		SkipForwardSec:  30,
		SkipBackwardSec: 10,
		AutoPlayNext:    true,
		WhatsNewCount:   10,
	}
}

// Store reads and writes the preference file. Writes go through a temp file
// and rename so a crash cannot leave a half-written file behind.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a preference store backed by the given file path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the stored preferences, or defaults when no file exists yet
func (s *Store) Load() (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return defaults(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("failed to read preferences: %w", err)
	}

	prefs := defaults()
	if err := json.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return prefs, nil
}

// Save replaces the stored preferences
func (s *Store) Save(prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace preferences file: %w", err)
	}
	return nil
}
