// Package feed parses RSS 2.0 and Atom documents into a flat item list
// for the fetch command.
package feed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
)

// Item is one entry of a syndication feed.
type Item struct {
	Title     string
	Link      string
	Published time.Time
	// Summary is the short description; Content the full embedded body when
	// the feed carries one.
	Summary string
	Content string
}

// Feed is a parsed syndication document.
type Feed struct {
	Title string
	Items []Item
}

// Fetch downloads and parses the feed at url. Transport failures surface as
// internalerr.ErrTransport.
func Fetch(ctx context.Context, client *http.Client, url string) (*Feed, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: %w: %v", internalerr.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed: %w: status %d", internalerr.ErrTransport, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed: %w: %v", internalerr.ErrTransport, err)
	}
	return Parse(body)
}

// Parse decodes an RSS 2.0 or Atom document.
func Parse(data []byte) (*Feed, error) {
	var r rssDoc
	if err := xml.Unmarshal(data, &r); err == nil && r.XMLName.Local == "rss" {
		return r.feed(), nil
	}
	var a atomDoc
	if err := xml.Unmarshal(data, &a); err == nil && a.XMLName.Local == "feed" {
		return a.feed(), nil
	}
	return nil, fmt.Errorf("feed: %w: not an RSS or Atom document", internalerr.ErrInvalidInput)
}

type rssDoc struct {
	XMLName xml.Name
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	// Encoded matches content:encoded used by WordPress-style feeds.
	Encoded string `xml:"encoded"`
}

func (d rssDoc) feed() *Feed {
	f := &Feed{Title: strings.TrimSpace(d.Channel.Title)}
	for _, it := range d.Channel.Items {
		f.Items = append(f.Items, Item{
			Title:     strings.TrimSpace(it.Title),
			Link:      strings.TrimSpace(it.Link),
			Published: parseWhen(it.PubDate),
			Summary:   strings.TrimSpace(it.Description),
			Content:   strings.TrimSpace(it.Encoded),
		})
	}
	return f
}

type atomDoc struct {
	XMLName xml.Name
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

func (d atomDoc) feed() *Feed {
	f := &Feed{Title: strings.TrimSpace(d.Title)}
	for _, e := range d.Entries {
		when := e.Published
		if when == "" {
			when = e.Updated
		}
		f.Items = append(f.Items, Item{
			Title:     strings.TrimSpace(e.Title),
			Link:      e.link(),
			Published: parseWhen(when),
			Summary:   strings.TrimSpace(e.Summary),
			Content:   strings.TrimSpace(e.Content),
		})
	}
	return f
}

// link prefers the alternate relation; bare links count as alternate.
func (e atomEntry) link() string {
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if len(e.Links) > 0 {
		return strings.TrimSpace(e.Links[0].Href)
	}
	return ""
}

var whenLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
}

// parseWhen tries the common syndication date layouts and returns the zero
// time when none match.
func parseWhen(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range whenLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
