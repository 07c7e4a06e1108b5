package loader

import (
	"strings"
	"testing"
	"time"
)

func TestMarkdownFrontMatter(t *testing.T) {
	content := `---
title: 深度学习笔记
created: 2024-03-01 10:30:00
tags: [ai]
---

# 第一章

神经网络基础。
`
	path := writeFixture(t, t.TempDir(), "notes.md", content)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Title != "深度学习笔记" {
		t.Errorf("Title = %q", doc.Title)
	}
	want := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	if !doc.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", doc.CreatedAt, want)
	}
	if doc.Content != "第一章\n\n神经网络基础。" {
		t.Errorf("Content = %q", doc.Content)
	}
	if !strings.Contains(doc.RawContent, "# 第一章") {
		t.Errorf("RawContent should keep markup, got %q", doc.RawContent)
	}
	if strings.Contains(doc.RawContent, "title:") {
		t.Errorf("RawContent should drop front matter, got %q", doc.RawContent)
	}
}

func TestMarkdownHeadingTitle(t *testing.T) {
	path := writeFixture(t, t.TempDir(), "paper.md",
		"# Attention Is All You Need\n\nTransformer 架构论文。\n")

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Title != "Attention Is All You Need" {
		t.Errorf("Title = %q", doc.Title)
	}
	if !doc.CreatedAt.IsZero() {
		t.Errorf("CreatedAt should be zero, got %v", doc.CreatedAt)
	}
}

func TestMarkdownStemTitle(t *testing.T) {
	path := writeFixture(t, t.TempDir(), "weekly-review.md", "纯文本段落。\n")

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Title != "weekly-review" {
		t.Errorf("Title = %q, want weekly-review", doc.Title)
	}
}

func TestMarkdownStripsMarkup(t *testing.T) {
	content := "## Setup\n\n- install [Go](https://go.dev)\n- run `make`\n\n```bash\nmake test\n```\n\n**done**\n"
	path := writeFixture(t, t.TempDir(), "setup.md", content)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Title != "Setup" {
		t.Errorf("Title = %q, want Setup", doc.Title)
	}
	want := "Setup\n\ninstall Go\nrun make\n\nmake test\n\ndone"
	if doc.Content != want {
		t.Errorf("Content = %q, want %q", doc.Content, want)
	}
	if !strings.Contains(doc.RawContent, "```bash") {
		t.Errorf("RawContent should keep the fence, got %q", doc.RawContent)
	}
}

func TestMarkdownDateKey(t *testing.T) {
	path := writeFixture(t, t.TempDir(), "entry.md", "---\ndate: 2024-05-01\n---\n正文。\n")

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if !doc.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", doc.CreatedAt, want)
	}
}

func TestMarkdownUnparseableCreatedEndsSearch(t *testing.T) {
	// The first created-key present wins even when its value cannot be
	// parsed, so the valid date key below is never consulted.
	path := writeFixture(t, t.TempDir(), "entry.md",
		"---\ncreated: sometime last year\ndate: 2024-05-01\n---\n正文。\n")

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !doc.CreatedAt.IsZero() {
		t.Errorf("CreatedAt = %v, want zero", doc.CreatedAt)
	}
}

func TestMarkdownMalformedFrontMatter(t *testing.T) {
	path := writeFixture(t, t.TempDir(), "bad.md", "---\ntitle: [unclosed\n---\n\nbody\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed front matter")
	}
}
