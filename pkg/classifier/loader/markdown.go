package loader

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	fenceLineExpr   = regexp.MustCompile(`(?m)^---\s*$`)
	headingExpr     = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	headingMarkExpr = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	codeFenceExpr   = regexp.MustCompile("(?m)^```.*$")
	imageExpr       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkExpr        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	bulletExpr      = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	quoteExpr       = regexp.MustCompile(`(?m)^>\s?`)
	emphasisExpr    = regexp.MustCompile("[*_`]+")
)

// createdKeys are checked in order. The first key present decides the
// created-at value even when its format cannot be parsed.
var createdKeys = []string{"created", "date", "created_at"}

func parseMarkdown(path, raw string) (Document, error) {
	meta, body, err := splitFrontMatter(raw)
	if err != nil {
		return Document{}, err
	}
	body = strings.TrimSpace(body)

	title, _ := meta["title"].(string)
	title = strings.TrimSpace(title)
	if title == "" {
		if m := headingExpr.FindStringSubmatch(body); m != nil {
			title = strings.TrimSpace(m[1])
		}
	}
	if title == "" {
		title = stem(path)
	}

	return Document{
		Title:      title,
		Content:    stripMarkup(body),
		RawContent: body,
		CreatedAt:  metaCreatedAt(meta),
	}, nil
}

// splitFrontMatter peels a leading YAML fence off the file. Files that do
// not open with --- come back with nil metadata and the input unchanged.
func splitFrontMatter(raw string) (map[string]any, string, error) {
	locs := fenceLineExpr.FindAllStringIndex(raw, 2)
	if len(locs) < 2 || locs[0][0] != 0 {
		return nil, raw, nil
	}

	block := raw[locs[0][1]:locs[1][0]]
	body := strings.TrimPrefix(raw[locs[1][1]:], "\n")

	meta := map[string]any{}
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, "", fmt.Errorf("front matter: %w", err)
	}
	return meta, body, nil
}

// metaCreatedAt reads the created-at date from front matter. yaml.v3 hands
// back time.Time for unquoted dates and string for quoted ones.
func metaCreatedAt(meta map[string]any) time.Time {
	for _, key := range createdKeys {
		val, ok := meta[key]
		if !ok {
			continue
		}
		switch v := val.(type) {
		case time.Time:
			return v
		case string:
			return parseDate(strings.TrimSpace(v))
		}
		return time.Time{}
	}
	return time.Time{}
}

// stripMarkup reduces markdown to plain text. Fence lines, heading markers,
// bullets, quote prefixes and emphasis go; link and image text survives
// without the target.
func stripMarkup(body string) string {
	s := codeFenceExpr.ReplaceAllString(body, "")
	s = imageExpr.ReplaceAllString(s, "$1")
	s = linkExpr.ReplaceAllString(s, "$1")
	s = headingMarkExpr.ReplaceAllString(s, "")
	s = bulletExpr.ReplaceAllString(s, "")
	s = quoteExpr.ReplaceAllString(s, "")
	s = emphasisExpr.ReplaceAllString(s, "")
	return strings.TrimSpace(collapseBlankLines(s))
}
