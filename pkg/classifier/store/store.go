package store

import (
	"context"
	"time"
)

// Store is the main interface for persisting and querying classification data
type Store interface {
	Close() error

	// Categories
	GetCategory(ctx context.Context, id int64) (Category, error)
	GetCategoryByName(ctx context.Context, name string, parentID *int64) (Category, bool, error)
	// CreateCategory returns the existing node when (name, parent) is already
	// present, so concurrent or repeated creation converges on one row.
	CreateCategory(ctx context.Context, name string, parentID *int64, level int) (Category, error)
	RenameCategory(ctx context.Context, id int64, name string) error
	ListChildren(ctx context.Context, parentID *int64) ([]Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	// CategoryPath returns the chain from root to the given node.
	CategoryPath(ctx context.Context, id int64) ([]Category, error)
	// DirectArticleCount counts only leaf links, the articles whose chain
	// terminates at this node.
	DirectArticleCount(ctx context.Context, categoryID int64) (int64, error)

	// Articles
	// SaveClassification stores the article, its category chain links (the
	// last chain node marked as leaf) and its keywords in one transaction.
	SaveClassification(ctx context.Context, a Article, chain []int64, keywords []string) (int64, error)
	GetArticleByPath(ctx context.Context, sourcePath string) (Article, bool, error)
	CountArticles(ctx context.Context) (int64, error)
	// RecentArticles returns the most recently stored articles, newest first.
	RecentArticles(ctx context.Context, limit int) ([]Article, error)
	ArticlesInCategory(ctx context.Context, categoryID int64, leafOnly bool, limit int) ([]Article, error)
	ArticleKeywords(ctx context.Context, articleID int64) ([]string, error)

	// Keywords
	TopKeywords(ctx context.Context, limit int) ([]Keyword, error)

	// Tree surgery for the optimizer. Each call is a single transaction.
	SplitCategory(ctx context.Context, categoryID int64, moves []SplitMove) ([]Category, error)
	MergeCategories(ctx context.Context, sourceIDs []int64, targetName string) (Category, error)

	// Snapshots
	SaveSnapshot(ctx context.Context, s Snapshot) error
	ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error)

	// Stats
	Stats(ctx context.Context) (Stats, error)
}

// Category is one node of the taxonomy tree
type Category struct {
	ID       int64
	Name     string
	ParentID *int64 // nil for root nodes
	Level    int    // 1-based depth
	// ArticleCount is the number of article links at this node, including
	// articles whose chain continues below it.
	ArticleCount int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Article is the stored record of one classified document
type Article struct {
	ID           int64
	SourcePath   string // unique, relative or absolute path of the source file
	Title        string
	Summary      string
	Confidence   float64
	Defaulted    bool
	ClassifiedAt time.Time
}

// Keyword is an extracted term with its usage count across articles
type Keyword struct {
	ID         int64
	Keyword    string
	UsageCount int64
}

// SplitMove reassigns one leaf article of a split category to a named child
type SplitMove struct {
	ArticleID int64
	ChildName string
}

// Snapshot is a serialized copy of the category tree taken before an
// optimization pass
type Snapshot struct {
	ID       string
	Reason   string
	TreeJSON string
	TakenAt  time.Time
}

// Stats aggregates corpus-wide counters
type Stats struct {
	Articles      int64
	Categories    int64
	Keywords      int64
	Defaulted     int64
	AvgConfidence float64
	// LevelCounts maps tree depth to the number of categories at that depth.
	LevelCounts map[int]int64
}
