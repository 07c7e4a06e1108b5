package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/tangyongfeng/article-classifier/internal/feed"
)

var fetchFlags struct {
	out   string
	limit int
	delay time.Duration
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <feed-url>",
	Short: "Download articles from an RSS or Atom feed into a directory",
	Long: `Fetch reads a syndication feed, downloads each linked page and saves it
as an HTML file. The output directory can then be classified with
'classifier process'.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchFlags.out, "out", "o", "data/inbox", "Directory to write fetched articles into")
	fetchCmd.Flags().IntVar(&fetchFlags.limit, "limit", 0, "Fetch at most N feed items (0 = all)")
	fetchCmd.Flags().DurationVar(&fetchFlags.delay, "delay", 200*time.Millisecond, "Pause between page downloads")
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client := &http.Client{Timeout: 30 * time.Second}

	f, err := feed.Fetch(ctx, client, args[0])
	if err != nil {
		return err
	}
	items := f.Items
	if fetchFlags.limit > 0 && fetchFlags.limit < len(items) {
		items = items[:fetchFlags.limit]
	}
	log.Printf("Feed %q carries %d items, fetching %d", f.Title, len(f.Items), len(items))
	if len(items) == 0 {
		return nil
	}

	if err := os.MkdirAll(fetchFlags.out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	saved, skipped := 0, 0
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(fetchFlags.delay):
			}
		}

		path := filepath.Join(fetchFlags.out, fmt.Sprintf("%03d-%s.html", i+1, slugify(item.Title)))
		if _, err := os.Stat(path); err == nil {
			skipped++
			continue
		}

		body, err := itemPage(ctx, client, item)
		if err != nil {
			log.Printf("WARNING: skipping %q: %v", item.Title, err)
			continue
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		saved++
		if saved%10 == 0 {
			log.Printf("Fetched %d/%d items", saved, len(items))
		}
	}

	log.Printf("Saved %d articles to %s (%d already present)", saved, fetchFlags.out, skipped)
	if saved > 0 {
		log.Printf("Run 'classifier process %s' to classify them", fetchFlags.out)
	}
	return nil
}

// itemPage downloads the linked page, falling back to the content embedded
// in the feed when the page is unreachable or the item has no link.
func itemPage(ctx context.Context, client *http.Client, item feed.Item) ([]byte, error) {
	if item.Link != "" {
		body, err := downloadPage(ctx, client, item.Link)
		if err == nil {
			return body, nil
		}
		if page, ok := embeddedPage(item); ok {
			log.Printf("WARNING: download %s: %v (using feed content)", item.Link, err)
			return page, nil
		}
		return nil, err
	}
	if page, ok := embeddedPage(item); ok {
		return page, nil
	}
	return nil, fmt.Errorf("item has no link and no embedded content")
}

func downloadPage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// embeddedPage wraps the feed-carried body in a minimal HTML document so the
// HTML loader can pick up the title.
func embeddedPage(item feed.Item) ([]byte, bool) {
	content := item.Content
	if content == "" {
		content = item.Summary
	}
	if content == "" {
		return nil, false
	}
	page := fmt.Sprintf(
		"<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head>\n<body><article>%s</article></body></html>\n",
		html.EscapeString(item.Title), content)
	return []byte(page), true
}

// slugify reduces a title to a filesystem-safe file stem.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteRune('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "item"
	}
	if runes := []rune(out); len(runes) > 60 {
		out = strings.TrimRight(string(runes[:60]), "-")
	}
	return out
}
