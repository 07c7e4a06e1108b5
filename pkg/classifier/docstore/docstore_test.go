package docstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

func sampleDoc() ArticleDoc {
	return ArticleDoc{
		ID: 42,
		Metadata: Metadata{
			FilePath:    "notes/go-concurrency.md",
			Title:       "Go 并发模式",
			CreatedAt:   time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
			ProcessedAt: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
			FileFormat:  "markdown",
			FileSize:    2048,
		},
		Content: Content{Raw: "# Go 并发模式\n\n正文", Cleaned: "Go 并发模式 正文"},
		Classification: ClassificationInfo{
			CategoryPath: []string{"技术", "编程"},
			CategoryIDs:  []int64{1, 2},
			Confidence:   0.92,
			Keywords:     []string{"Go", "并发"},
			Summary:      "Go 并发模式介绍",
		},
		Processing: ProcessingInfo{Model: "gpt-oss:20b", DurationSeconds: 3.5},
	}
}

func TestSaveArticleOrganizedByDate(t *testing.T) {
	ds := &DocStore{Root: t.TempDir(), OrganizeByDate: true, SaveRawContent: true}

	path, err := ds.SaveArticle(sampleDoc())
	if err != nil {
		t.Fatalf("SaveArticle: %v", err)
	}
	want := filepath.Join(ds.Root, "articles", "2025", "03", "000042.json")
	if path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("article file missing: %v", err)
	}
}

func TestSaveArticleFlatLayout(t *testing.T) {
	ds := &DocStore{Root: t.TempDir(), SaveRawContent: true}

	path, err := ds.SaveArticle(sampleDoc())
	if err != nil {
		t.Fatalf("SaveArticle: %v", err)
	}
	want := filepath.Join(ds.Root, "articles", "000042.json")
	if path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}
}

func TestSaveArticleStripsRawContent(t *testing.T) {
	ds := &DocStore{Root: t.TempDir(), OrganizeByDate: true}

	if _, err := ds.SaveArticle(sampleDoc()); err != nil {
		t.Fatalf("SaveArticle: %v", err)
	}
	loaded, ok, err := ds.LoadArticle(42, sampleDoc().Metadata.CreatedAt)
	if err != nil || !ok {
		t.Fatalf("LoadArticle: ok=%v err=%v", ok, err)
	}
	if loaded.Content.Raw != "" {
		t.Errorf("raw content kept despite SaveRawContent=false")
	}
	if loaded.Content.Cleaned == "" {
		t.Errorf("cleaned content lost")
	}
}

func TestLoadArticleRoundTrip(t *testing.T) {
	ds := &DocStore{Root: t.TempDir(), OrganizeByDate: true, SaveRawContent: true}
	doc := sampleDoc()

	if _, err := ds.SaveArticle(doc); err != nil {
		t.Fatalf("SaveArticle: %v", err)
	}
	loaded, ok, err := ds.LoadArticle(doc.ID, doc.Metadata.CreatedAt)
	if err != nil {
		t.Fatalf("LoadArticle: %v", err)
	}
	if !ok {
		t.Fatal("article not found")
	}
	if loaded.Metadata.Title != doc.Metadata.Title || loaded.Classification.Confidence != doc.Classification.Confidence {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}

	if _, ok, err := ds.LoadArticle(999, doc.Metadata.CreatedAt); err != nil || ok {
		t.Fatalf("missing article: ok=%v err=%v", ok, err)
	}
}

func TestExportCategories(t *testing.T) {
	ds := &DocStore{Root: t.TempDir()}
	parent := int64(1)
	nodes := taxonomy.BuildTree([]store.Category{
		{ID: 1, Name: "技术", Level: 1, ArticleCount: 12},
		{ID: 2, Name: "编程", ParentID: &parent, Level: 2, ArticleCount: 5},
	})

	if err := ds.ExportCategories(nodes); err != nil {
		t.Fatalf("ExportCategories: %v", err)
	}

	buf, err := os.ReadFile(filepath.Join(ds.Root, "categories.json"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var export struct {
		Categories []struct {
			Name     string `json:"name"`
			Children []struct {
				Name     string `json:"name"`
				ParentID *int64 `json:"parent_id"`
			} `json:"children"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(buf, &export); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(export.Categories) != 1 || export.Categories[0].Name != "技术" {
		t.Fatalf("export roots = %+v", export.Categories)
	}
	children := export.Categories[0].Children
	if len(children) != 1 || children[0].Name != "编程" || children[0].ParentID == nil || *children[0].ParentID != 1 {
		t.Fatalf("export children = %+v", children)
	}
}

func TestSaveTreeSnapshot(t *testing.T) {
	ds := &DocStore{Root: t.TempDir()}
	nodes := taxonomy.BuildTree([]store.Category{{ID: 1, Name: "技术", Level: 1, ArticleCount: 3}})

	path, err := ds.SaveTreeSnapshot(nodes, 3)
	if err != nil {
		t.Fatalf("SaveTreeSnapshot: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "categories_") {
		t.Fatalf("snapshot name = %s", filepath.Base(path))
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !strings.Contains(string(buf), `"total_articles": 3`) {
		t.Errorf("snapshot missing totals: %s", buf)
	}
}

func TestFailureLog(t *testing.T) {
	ds := &DocStore{Root: t.TempDir()}

	records, err := ds.Failures()
	if err != nil || records != nil {
		t.Fatalf("empty log: %v %v", records, err)
	}

	if err := ds.AppendFailure(FailureRecord{FilePath: "a.md", ErrorType: "storage", ErrorMessage: "disk full"}); err != nil {
		t.Fatalf("AppendFailure: %v", err)
	}
	if err := ds.AppendFailure(FailureRecord{FilePath: "b.md", ErrorType: "loader", ErrorMessage: "unreadable"}); err != nil {
		t.Fatalf("AppendFailure: %v", err)
	}

	records, err = ds.Failures()
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(records) != 2 || records[0].FilePath != "a.md" || records[1].ErrorType != "loader" {
		t.Fatalf("records = %+v", records)
	}
	if records[0].Timestamp.IsZero() {
		t.Errorf("timestamp not filled")
	}

	if err := ds.ClearFailures(); err != nil {
		t.Fatalf("ClearFailures: %v", err)
	}
	if records, _ := ds.Failures(); records != nil {
		t.Fatalf("log not cleared: %+v", records)
	}
	if err := ds.ClearFailures(); err != nil {
		t.Fatalf("ClearFailures on missing log: %v", err)
	}
}
