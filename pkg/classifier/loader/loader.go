// Package loader reads source files from disk and normalizes them into a
// common Document shape. Each supported format registers a parse function;
// dispatch is by file extension.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
)

// Document is a source file after loading: plain text for classification
// plus the original content and file metadata.
type Document struct {
	SourcePath string
	Title      string
	Content    string
	RawContent string
	Format     string // extension without the dot
	FileSize   int64
	CreatedAt  time.Time // zero when the file carries no date
}

// parseFunc turns raw file content into a Document. Load fills in
// SourcePath, Format and FileSize afterwards.
type parseFunc func(path, raw string) (Document, error)

var parsers = map[string]parseFunc{
	"md":       parseMarkdown,
	"markdown": parseMarkdown,
	"html":     parseHTML,
	"htm":      parseHTML,
	"txt":      parseText,
}

// Supported reports whether the file's extension has a registered parser.
func Supported(path string) bool {
	_, ok := parsers[formatOf(path)]
	return ok
}

// Formats returns the registered extensions in sorted order.
func Formats() []string {
	out := make([]string, 0, len(parsers))
	for f := range parsers {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Load reads the file at path and parses it with the loader registered for
// its extension. Unsupported extensions return ErrInvalidInput.
func Load(path string) (Document, error) {
	format := formatOf(path)
	parse, ok := parsers[format]
	if !ok {
		return Document{}, fmt.Errorf("%w: unsupported file format %q", internalerr.ErrInvalidInput, format)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Document{}, fmt.Errorf("stat %s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := parse(path, string(raw))
	if err != nil {
		return Document{}, fmt.Errorf("parse %s: %w", path, err)
	}
	doc.SourcePath = path
	doc.Format = format
	doc.FileSize = info.Size()
	return doc, nil
}

func formatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// dateLayouts cover the timestamp shapes seen in note exports, longest
// first. Evernote writes the trailing-Z form without a real offset.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate tries each known layout and returns the zero time when none fit.
func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var blankRunExpr = regexp.MustCompile(`\n\s*\n`)

// collapseBlankLines squeezes runs of blank lines down to one empty line.
func collapseBlankLines(s string) string {
	return blankRunExpr.ReplaceAllString(s, "\n\n")
}

// stem returns the file name without directory or extension, the fallback
// title for files that name no title of their own.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
