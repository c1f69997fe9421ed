// Package opml reads and writes OPML subscription lists
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// Feed is one subscription entry in an OPML document
type Feed struct {
	Title   string
	FeedURL string
}

type document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    head     `xml:"head"`
	Body    body     `xml:"body"`
}

type body struct {
	Outlines []outline `xml:"outline"`
}

type head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// outline may itself contain outlines; some exporters group feeds in folders
type outline struct {
	Type     string    `xml:"type,attr,omitempty"`
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	Outlines []outline `xml:"outline,omitempty"`
}

// Parse extracts the feed entries from an OPML document, walking nested
// folder outlines and dropping duplicate feed URLs.
func Parse(r io.Reader) ([]Feed, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode OPML: %w", err)
	}

	seen := make(map[string]bool)
	var feeds []Feed
	var walk func(outlines []outline)
	walk = func(outlines []outline) {
		for _, o := range outlines {
			url := strings.TrimSpace(o.XMLURL)
			if url != "" && !seen[url] {
				seen[url] = true
				title := o.Title
				if title == "" {
					title = o.Text
				}
				feeds = append(feeds, Feed{Title: title, FeedURL: url})
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)

	return feeds, nil
}

// Render writes the feeds as an OPML 2.0 document
func Render(w io.Writer, title string, feeds []Feed) error {
	doc := document{
		Version: "2.0",
		Head: head{
			Title:       title,
			DateCreated: time.Now().UTC().Format(time.RFC1123Z),
		},
	}
	for _, feed := range feeds {
		doc.Body.Outlines = append(doc.Body.Outlines, outline{
			Type:   "rss",
			Text:   feed.Title,
			Title:  feed.Title,
			XMLURL: feed.FeedURL,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write OPML header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}
	return nil
}
