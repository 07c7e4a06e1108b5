// Package docstore mirrors classified articles into a browsable JSON tree on
// disk: one document per article, a category tree export, timestamped tree
// snapshots and an append-only failure log.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

// DocStore writes the JSON side of the storage layer under Root.
type DocStore struct {
	Root string
	// OrganizeByDate nests article docs under year/month directories
	// derived from the source file's creation time.
	OrganizeByDate bool
	// SaveRawContent keeps the unprocessed source text inside article
	// docs; when false the raw field is written empty.
	SaveRawContent bool
}

// ArticleDoc is the on-disk JSON form of one classified article.
type ArticleDoc struct {
	ID             int64              `json:"id"`
	Metadata       Metadata           `json:"metadata"`
	Content        Content            `json:"content"`
	Classification ClassificationInfo `json:"classification"`
	Processing     ProcessingInfo     `json:"processing_info"`
}

// Metadata describes the source file.
type Metadata struct {
	FilePath    string    `json:"file_path"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	ProcessedAt time.Time `json:"processed_at"`
	FileFormat  string    `json:"file_format"`
	FileSize    int64     `json:"file_size"`
}

// Content carries the article text.
type Content struct {
	Raw     string `json:"raw"`
	Cleaned string `json:"cleaned"`
}

// ClassificationInfo carries the resolved classification facts.
type ClassificationInfo struct {
	CategoryPath []string `json:"category_path"`
	CategoryIDs  []int64  `json:"category_ids"`
	Confidence   float64  `json:"confidence"`
	Keywords     []string `json:"keywords"`
	Summary      string   `json:"summary"`
}

// ProcessingInfo records how the classification was produced.
type ProcessingInfo struct {
	Model           string  `json:"llm_model"`
	DurationSeconds float64 `json:"processing_time_seconds"`
}

// SaveArticle writes the article doc and returns its path.
func (d *DocStore) SaveArticle(doc ArticleDoc) (string, error) {
	if !d.SaveRawContent {
		doc.Content.Raw = ""
	}
	path := d.articlePath(doc.ID, doc.Metadata.CreatedAt)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	buf, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadArticle reads an article doc back; ok is false when none exists.
func (d *DocStore) LoadArticle(id int64, createdAt time.Time) (ArticleDoc, bool, error) {
	buf, err := os.ReadFile(d.articlePath(id, createdAt))
	if os.IsNotExist(err) {
		return ArticleDoc{}, false, nil
	}
	if err != nil {
		return ArticleDoc{}, false, err
	}
	var doc ArticleDoc
	if err := json.Unmarshal(buf, &doc); err != nil {
		return ArticleDoc{}, false, err
	}
	return doc, true, nil
}

func (d *DocStore) articlePath(id int64, createdAt time.Time) string {
	dir := filepath.Join(d.Root, "articles")
	if d.OrganizeByDate && !createdAt.IsZero() {
		dir = filepath.Join(dir, createdAt.Format("2006"), createdAt.Format("01"))
	}
	return filepath.Join(dir, fmt.Sprintf("%06d.json", id))
}

type categoryNode struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Level        int            `json:"level"`
	ParentID     *int64         `json:"parent_id"`
	ArticleCount int64          `json:"article_count"`
	Children     []categoryNode `json:"children"`
}

func exportNodes(nodes []*taxonomy.Node) []categoryNode {
	out := make([]categoryNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, categoryNode{
			ID:           n.ID,
			Name:         n.Name,
			Level:        n.Level,
			ParentID:     n.ParentID,
			ArticleCount: n.ArticleCount,
			Children:     exportNodes(n.Children),
		})
	}
	return out
}

// ExportCategories writes the current tree to categories.json.
func (d *DocStore) ExportCategories(nodes []*taxonomy.Node) error {
	export := struct {
		UpdatedAt  time.Time      `json:"updated_at"`
		Categories []categoryNode `json:"categories"`
	}{
		UpdatedAt:  time.Now().UTC(),
		Categories: exportNodes(nodes),
	}
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(d.Root, "categories.json"), buf, 0o644)
}

// SaveTreeSnapshot writes a timestamped copy of the tree under snapshots/
// and returns its path.
func (d *DocStore) SaveTreeSnapshot(nodes []*taxonomy.Node, totalArticles int64) (string, error) {
	now := time.Now()
	snapshot := struct {
		Timestamp     time.Time      `json:"timestamp"`
		TotalArticles int64          `json:"total_articles"`
		CategoryTree  []categoryNode `json:"category_tree"`
	}{
		Timestamp:     now.UTC(),
		TotalArticles: totalArticles,
		CategoryTree:  exportNodes(nodes),
	}

	dir := filepath.Join(d.Root, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	buf, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("categories_%s.json", now.Format("20060102_150405")))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
