package loader

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Evernote exports open with a small YAML-ish header before the markup;
// title and dates live there rather than in meta tags.
var (
	fmTitleExpr    = regexp.MustCompile(`(?m)^---\s*\ntitle:\s*(.+)$`)
	fmCreatedExprs = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^created:\s*(.+)$`),
		regexp.MustCompile(`(?m)^updated:\s*(.+)$`),
	}
)

func parseHTML(path, raw string) (Document, error) {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return Document{}, fmt.Errorf("parse html: %w", err)
	}

	title := htmlTitle(gq, raw, path)
	content := htmlContent(gq) // prunes the tree, keep after title extraction

	return Document{
		Title:      title,
		Content:    content,
		RawContent: raw,
		CreatedAt:  htmlCreatedAt(raw),
	}, nil
}

func htmlTitle(gq *goquery.Document, raw, path string) string {
	if m := fmTitleExpr.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if t := strings.TrimSpace(gq.Find("title").First().Text()); t != "" {
		return t
	}
	if og, ok := gq.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if og = strings.TrimSpace(og); og != "" {
			return og
		}
	}
	return stem(path)
}

func htmlCreatedAt(raw string) time.Time {
	for _, expr := range fmCreatedExprs {
		m := expr.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		if t := parseDate(strings.TrimSpace(m[1])); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// htmlContent extracts readable text. An <en-note> element scopes the
// extraction when present, so Evernote chrome outside it never leaks in.
func htmlContent(gq *goquery.Document) string {
	gq.Find("script, style, head, nav").Remove()

	root := gq.Selection
	if en := gq.Find("en-note"); en.Length() > 0 {
		root = en.First()
	}

	var buf strings.Builder
	for _, node := range root.Nodes {
		writeText(&buf, node)
	}
	return strings.TrimSpace(collapseBlankLines(buf.String()))
}

// writeText walks the node tree and emits each text chunk on its own line.
func writeText(buf *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			buf.WriteString(s)
			buf.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(buf, c)
	}
}
