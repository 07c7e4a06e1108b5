package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
)

const rssSample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>技术周刊</title>
    <item>
      <title>Go 并发模式</title>
      <link>https://example.com/go-concurrency</link>
      <pubDate>Mon, 04 Aug 2025 08:30:00 +0000</pubDate>
      <description>goroutine 与 channel 的常见用法。</description>
      <content:encoded><![CDATA[<p>完整正文，包含 <b>示例代码</b>。</p>]]></content:encoded>
    </item>
    <item>
      <title>数据库索引入门</title>
      <link>https://example.com/indexes</link>
      <pubDate>Tue, 05 Aug 2025 10:00:00 +0000</pubDate>
      <description>B+ 树与覆盖索引。</description>
    </item>
  </channel>
</rss>`

const atomSample = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Research Notes</title>
  <entry>
    <title>Attention Is All You Need</title>
    <link rel="alternate" href="https://example.org/attention"/>
    <link rel="self" href="https://example.org/feed/1"/>
    <published>2025-08-01T12:00:00Z</published>
    <summary>Transformer architecture notes.</summary>
  </entry>
  <entry>
    <title>Vector Databases</title>
    <link href="https://example.org/vectors"/>
    <updated>2025-08-02T09:00:00Z</updated>
    <content>Full entry body without a summary.</content>
  </entry>
</feed>`

func TestParseRSS(t *testing.T) {
	f, err := Parse([]byte(rssSample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Title != "技术周刊" {
		t.Errorf("Title = %q", f.Title)
	}
	if len(f.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(f.Items))
	}

	first := f.Items[0]
	if first.Title != "Go 并发模式" {
		t.Errorf("item title = %q", first.Title)
	}
	if first.Link != "https://example.com/go-concurrency" {
		t.Errorf("item link = %q", first.Link)
	}
	if !strings.Contains(first.Content, "完整正文") {
		t.Errorf("content:encoded not carried: %q", first.Content)
	}
	want := time.Date(2025, 8, 4, 8, 30, 0, 0, time.UTC)
	if !first.Published.Equal(want) {
		t.Errorf("published = %v, want %v", first.Published, want)
	}

	if f.Items[1].Content != "" {
		t.Errorf("second item should have no embedded content, got %q", f.Items[1].Content)
	}
	if f.Items[1].Summary != "B+ 树与覆盖索引。" {
		t.Errorf("summary = %q", f.Items[1].Summary)
	}
}

func TestParseAtom(t *testing.T) {
	f, err := Parse([]byte(atomSample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Title != "Research Notes" {
		t.Errorf("Title = %q", f.Title)
	}
	if len(f.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(f.Items))
	}

	first := f.Items[0]
	if first.Link != "https://example.org/attention" {
		t.Errorf("alternate link not preferred, got %q", first.Link)
	}
	if first.Published.IsZero() {
		t.Error("published should parse from RFC3339")
	}

	second := f.Items[1]
	if second.Link != "https://example.org/vectors" {
		t.Errorf("bare link = %q", second.Link)
	}
	if second.Published.IsZero() {
		t.Error("updated should stand in for a missing published date")
	}
	if second.Content != "Full entry body without a summary." {
		t.Errorf("content = %q", second.Content)
	}
}

func TestParseRejectsNonFeed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"html page", "<html><body>not a feed</body></html>"},
		{"broken xml", "<rss><channel><item>"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.data)); !errors.Is(err, internalerr.ErrInvalidInput) {
				t.Fatalf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestParseWhenLayouts(t *testing.T) {
	cases := []string{
		"Mon, 04 Aug 2025 08:30:00 +0000",
		"Mon, 04 Aug 2025 08:30:00 GMT",
		"2025-08-04T08:30:00Z",
		"2025-08-04T08:30:00+08:00",
	}
	for _, s := range cases {
		if parseWhen(s).IsZero() {
			t.Errorf("parseWhen(%q) did not parse", s)
		}
	}
	if !parseWhen("not a date").IsZero() {
		t.Error("garbage date should yield the zero time")
	}
	if !parseWhen("").IsZero() {
		t.Error("empty date should yield the zero time")
	}
}

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func TestFetch(t *testing.T) {
	client := &http.Client{
		Transport: roundTrip(func(req *http.Request) *http.Response {
			if req.URL.String() != "http://feeds.test/rss.xml" {
				t.Fatalf("url = %s", req.URL)
			}
			return &http.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(rssSample)),
				Header:     make(http.Header),
			}
		}),
	}

	f, err := Fetch(context.Background(), client, "http://feeds.test/rss.xml")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(f.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(f.Items))
	}
}

func TestFetchStatusError(t *testing.T) {
	client := &http.Client{
		Transport: roundTrip(func(req *http.Request) *http.Response {
			return &http.Response{
				StatusCode: 404,
				Body:       io.NopCloser(strings.NewReader("gone")),
				Header:     make(http.Header),
			}
		}),
	}

	if _, err := Fetch(context.Background(), client, "http://feeds.test/rss.xml"); !errors.Is(err, internalerr.ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}
