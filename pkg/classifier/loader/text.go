package loader

import (
	"strings"
	"unicode/utf8"
)

// maxTitleLine caps how long a first line may be and still pass as a title.
const maxTitleLine = 100

func parseText(path, raw string) (Document, error) {
	content := strings.TrimSpace(raw)

	title := stem(path)
	first, _, _ := strings.Cut(content, "\n")
	first = strings.TrimSpace(first)
	if first != "" && utf8.RuneCountInString(first) < maxTitleLine {
		title = first
	}

	return Document{
		Title:      title,
		Content:    content,
		RawContent: content,
	}, nil
}
