package classify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
)

type wireClassification struct {
	CategoryPath *[]string        `json:"category_path"`
	Summary      *string          `json:"summary"`
	Keywords     *[]string        `json:"keywords"`
	Confidence   *json.RawMessage `json:"confidence"`
}

// Parse validates raw model output into a Classification. Markdown fences
// and surrounding prose are tolerated; anything that does not yield the four
// expected fields reports internalerr.ErrMalformedResponse.
func Parse(raw string, maxLevels int) (Classification, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return Classification{}, err
	}

	var w wireClassification
	if err := json.Unmarshal(obj, &w); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", internalerr.ErrMalformedResponse, err)
	}

	if w.CategoryPath == nil || w.Summary == nil || w.Keywords == nil || w.Confidence == nil {
		return Classification{}, fmt.Errorf("%w: missing required fields", internalerr.ErrMalformedResponse)
	}

	path := make([]string, 0, len(*w.CategoryPath))
	for _, seg := range *w.CategoryPath {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			path = append(path, seg)
		}
	}
	if len(path) == 0 {
		return Classification{}, fmt.Errorf("%w: empty category path", internalerr.ErrMalformedResponse)
	}
	if maxLevels > 0 && len(path) > maxLevels {
		path = path[:maxLevels]
	}

	conf, ok := coerceConfidence(*w.Confidence)
	if !ok {
		return Classification{}, fmt.Errorf("%w: confidence is not numeric", internalerr.ErrMalformedResponse)
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	var keywords []string
	for _, kw := range *w.Keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}

	return Classification{
		Path:       path,
		Confidence: conf,
		Keywords:   keywords,
		Summary:    strings.TrimSpace(*w.Summary),
	}, nil
}

// ExtractJSON recovers the JSON payload from a model response, stripping
// markdown fences and, failing that, pulling the first balanced object out
// of surrounding prose.
func ExtractJSON(raw string) ([]byte, error) {
	cleaned := cleanJSON(raw)
	if json.Valid([]byte(cleaned)) {
		return []byte(cleaned), nil
	}
	obj, ok := extractObject(cleaned)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in output", internalerr.ErrMalformedResponse)
	}
	if !json.Valid([]byte(obj)) {
		return nil, fmt.Errorf("%w: extracted object is not valid JSON", internalerr.ErrMalformedResponse)
	}
	return []byte(obj), nil
}

// cleanJSON strips markdown code fences around a JSON payload.
func cleanJSON(raw string) string {
	out := strings.TrimSpace(raw)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}

// extractObject returns the first balanced top-level JSON object in s,
// skipping braces inside string literals.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func coerceConfidence(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
