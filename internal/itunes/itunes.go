// Package itunes is a minimal client for the iTunes Search API, used for
// podcast discovery.
package itunes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://itunes.apple.com"

// ErrEmptyTerm is returned when Search is called without a search term
var ErrEmptyTerm = errors.New("search term is empty")

// Result is one podcast as returned by the search API, normalized for the
// rest of the application.
type Result struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	FeedURL      string `json:"feed_url"`
	ArtworkURL   string `json:"artwork_url"`
	Genre        string `json:"genre"`
	EpisodeCount int    `json:"episode_count"`
	Country      string `json:"country"`
}

// Client queries the iTunes Search API
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates an iTunes search client. An empty baseURL selects the
// public endpoint; tests point it at a local server.
func NewClient(baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Search finds podcasts matching the term. Limit values outside 1..200 fall
// back to 10.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]Result, error) {
	if strings.TrimSpace(term) == "" {
		return nil, ErrEmptyTerm
	}
	if limit < 1 || limit > 200 {
		limit = 10
	}

	query := url.Values{}
	query.Set("media", "podcast")
	query.Set("entity", "podcast")
	query.Set("term", term)
	query.Set("limit", strconv.Itoa(limit))

	payload, err := c.get(ctx, "/search?"+query.Encode())
	if err != nil {
		return nil, err
	}
	return payload.normalize(), nil
}

// Lookup resolves a single podcast by its iTunes collection identifier
func (c *Client) Lookup(ctx context.Context, id string) (*Result, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("lookup id is empty")
	}

	query := url.Values{}
	query.Set("id", id)

	payload, err := c.get(ctx, "/lookup?"+query.Encode())
	if err != nil {
		return nil, err
	}

	results := payload.normalize()
	if len(results) == 0 {
		return nil, fmt.Errorf("podcast %s not found", id)
	}
	return &results[0], nil
}

func (c *Client) get(ctx context.Context, path string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query itunes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("itunes returned status %d", resp.StatusCode)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode itunes response: %w", err)
	}
	return &payload, nil
}

type response struct {
	Results []struct {
		CollectionID     int64  `json:"collectionId"`
		CollectionName   string `json:"collectionName"`
		ArtistName       string `json:"artistName"`
		FeedURL          string `json:"feedUrl"`
		ArtworkURL100    string `json:"artworkUrl100"`
		ArtworkURL600    string `json:"artworkUrl600"`
		PrimaryGenreName string `json:"primaryGenreName"`
		TrackCount       int    `json:"trackCount"`
		Country          string `json:"country"`
	} `json:"results"`
}

// normalize drops results without a feed URL; those cannot be subscribed to
func (r *response) normalize() []Result {
	results := make([]Result, 0, len(r.Results))
	for _, item := range r.Results {
		if item.FeedURL == "" {
			continue
		}
		artwork := item.ArtworkURL600
		if artwork == "" {
			artwork = item.ArtworkURL100
		}
		results = append(results, Result{
			ID:           strconv.FormatInt(item.CollectionID, 10),
			Title:        item.CollectionName,
			Author:       item.ArtistName,
			FeedURL:      item.FeedURL,
			ArtworkURL:   artwork,
			Genre:        item.PrimaryGenreName,
			EpisodeCount: item.TrackCount,
			Country:      item.Country,
		})
	}
	return results
}
