package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// schema if it does not exist yet.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	parent_id INTEGER REFERENCES categories(id) ON DELETE CASCADE,
	level INTEGER NOT NULL,
	article_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

-- Root categories have NULL parent_id; IFNULL folds them onto one key so
-- sibling names stay unique at every depth.
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name_parent
	ON categories(name, IFNULL(parent_id, 0));

CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_path TEXT UNIQUE NOT NULL,
	title TEXT,
	summary TEXT,
	confidence REAL NOT NULL DEFAULT 0,
	defaulted INTEGER NOT NULL DEFAULT 0,
	classified_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS article_categories (
	article_id INTEGER NOT NULL,
	category_id INTEGER NOT NULL,
	is_leaf INTEGER NOT NULL DEFAULT 0,
	UNIQUE(article_id, category_id),
	FOREIGN KEY(article_id) REFERENCES articles(id) ON DELETE CASCADE,
	FOREIGN KEY(category_id) REFERENCES categories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_article_categories_category
	ON article_categories(category_id);

CREATE TABLE IF NOT EXISTS keywords (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	keyword TEXT UNIQUE NOT NULL,
	usage_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS article_keywords (
	article_id INTEGER NOT NULL,
	keyword_id INTEGER NOT NULL,
	UNIQUE(article_id, keyword_id),
	FOREIGN KEY(article_id) REFERENCES articles(id) ON DELETE CASCADE,
	FOREIGN KEY(keyword_id) REFERENCES keywords(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	reason TEXT,
	tree_json TEXT NOT NULL,
	taken_at TEXT NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// GetCategory retrieves a category by ID
func (s *sqliteStore) GetCategory(ctx context.Context, id int64) (store.Category, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, name, parent_id, level, article_count, created_at, updated_at
FROM categories
WHERE id = ?;
`, id)
	cat, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return store.Category{}, fmt.Errorf("category %d: %w", id, internalerr.ErrNotFound)
	}
	return cat, err
}

// GetCategoryByName retrieves a category by name under the given parent
func (s *sqliteStore) GetCategoryByName(ctx context.Context, name string, parentID *int64) (store.Category, bool, error) {
	const base = `
SELECT id, name, parent_id, level, article_count, created_at, updated_at
FROM categories
WHERE name = ?`

	var row *sql.Row
	if parentID == nil {
		row = s.db.QueryRowContext(ctx, base+` AND parent_id IS NULL;`, name)
	} else {
		row = s.db.QueryRowContext(ctx, base+` AND parent_id = ?;`, name, *parentID)
	}

	cat, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return store.Category{}, false, nil
	}
	if err != nil {
		return store.Category{}, false, err
	}
	return cat, true, nil
}

// CreateCategory inserts a category, returning the existing row when the
// (name, parent) pair is already present.
func (s *sqliteStore) CreateCategory(ctx context.Context, name string, parentID *int64, level int) (store.Category, error) {
	if name == "" {
		return store.Category{}, fmt.Errorf("%w: empty category name", internalerr.ErrInvalidInput)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var id int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO categories (name, parent_id, level, article_count, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?)
ON CONFLICT(name, IFNULL(parent_id, 0)) DO UPDATE SET updated_at=excluded.updated_at
RETURNING id;
`, name, parentID, level, now, now).Scan(&id)
	if err != nil {
		return store.Category{}, err
	}
	return s.GetCategory(ctx, id)
}

// RenameCategory changes a category name in place
func (s *sqliteStore) RenameCategory(ctx context.Context, id int64, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty category name", internalerr.ErrInvalidInput)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE categories SET name = ?, updated_at = ? WHERE id = ?;
`, name, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("category %d: %w", id, internalerr.ErrNotFound)
	}
	return nil
}

// ListChildren returns the direct children of a node, or the roots when
// parentID is nil
func (s *sqliteStore) ListChildren(ctx context.Context, parentID *int64) ([]store.Category, error) {
	const base = `
SELECT id, name, parent_id, level, article_count, created_at, updated_at
FROM categories
`
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == nil {
		rows, err = s.db.QueryContext(ctx, base+`WHERE parent_id IS NULL ORDER BY name;`)
	} else {
		rows, err = s.db.QueryContext(ctx, base+`WHERE parent_id = ? ORDER BY name;`, *parentID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCategories(rows)
}

// ListCategories returns every category ordered by level then name
func (s *sqliteStore) ListCategories(ctx context.Context) ([]store.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, parent_id, level, article_count, created_at, updated_at
FROM categories
ORDER BY level, name;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCategories(rows)
}

// CategoryPath walks parent links up from the node and returns the chain
// from root to the node itself.
func (s *sqliteStore) CategoryPath(ctx context.Context, id int64) ([]store.Category, error) {
	var chain []store.Category
	next := &id
	for next != nil {
		cat, err := s.GetCategory(ctx, *next)
		if err != nil {
			return nil, err
		}
		chain = append([]store.Category{cat}, chain...)
		next = cat.ParentID
		if len(chain) > 16 {
			return nil, fmt.Errorf("category %d: cycle in parent chain", id)
		}
	}
	return chain, nil
}

// DirectArticleCount counts leaf links at the node
func (s *sqliteStore) DirectArticleCount(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM article_categories WHERE category_id = ? AND is_leaf = 1;
`, categoryID).Scan(&n)
	return n, err
}

// SaveClassification stores an article with its category chain and keywords
// in one transaction. Existing links of a re-saved article are replaced and
// all affected counters stay consistent.
func (s *sqliteStore) SaveClassification(ctx context.Context, a store.Article, chain []int64, keywords []string) (int64, error) {
	if a.SourcePath == "" {
		return 0, fmt.Errorf("%w: empty source path", internalerr.ErrInvalidInput)
	}
	if len(chain) == 0 {
		return 0, fmt.Errorf("%w: empty category chain", internalerr.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	classifiedAt := a.ClassifiedAt
	if classifiedAt.IsZero() {
		classifiedAt = time.Now().UTC()
	}

	const stmt = `
INSERT INTO articles (source_path, title, summary, confidence, defaulted, classified_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(source_path) DO UPDATE SET
	title=excluded.title,
	summary=excluded.summary,
	confidence=excluded.confidence,
	defaulted=excluded.defaulted,
	classified_at=excluded.classified_at
RETURNING id;
`

	var articleID int64
	err = tx.QueryRowContext(
		ctx,
		stmt,
		a.SourcePath,
		a.Title,
		a.Summary,
		a.Confidence,
		boolToInt(a.Defaulted),
		classifiedAt.UTC().Format(time.RFC3339),
	).Scan(&articleID)
	if err != nil {
		return 0, err
	}

	if err := replaceArticleLinks(ctx, tx, articleID, chain); err != nil {
		return 0, err
	}
	if err := replaceArticleKeywords(ctx, tx, articleID, uniqueStrings(keywords)); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return articleID, nil
}

func replaceArticleLinks(ctx context.Context, tx *sql.Tx, articleID int64, chain []int64) error {
	// Drop stale links first, decrementing the counters they held.
	if _, err := tx.ExecContext(ctx, `
UPDATE categories
SET article_count = article_count - 1
WHERE id IN (SELECT category_id FROM article_categories WHERE article_id = ?);
`, articleID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM article_categories WHERE article_id = ?`, articleID); err != nil {
		return err
	}

	link, err := tx.PrepareContext(ctx, `
INSERT INTO article_categories (article_id, category_id, is_leaf) VALUES (?, ?, ?);
`)
	if err != nil {
		return err
	}
	defer link.Close()

	bump, err := tx.PrepareContext(ctx, `
UPDATE categories SET article_count = article_count + 1, updated_at = ? WHERE id = ?;
`)
	if err != nil {
		return err
	}
	defer bump.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, catID := range chain {
		isLeaf := 0
		if i == len(chain)-1 {
			isLeaf = 1
		}
		if _, err := link.ExecContext(ctx, articleID, catID, isLeaf); err != nil {
			return err
		}
		if _, err := bump.ExecContext(ctx, now, catID); err != nil {
			return err
		}
	}
	return nil
}

func replaceArticleKeywords(ctx context.Context, tx *sql.Tx, articleID int64, keywords []string) error {
	if _, err := tx.ExecContext(ctx, `
UPDATE keywords
SET usage_count = usage_count - 1
WHERE id IN (SELECT keyword_id FROM article_keywords WHERE article_id = ?);
`, articleID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM article_keywords WHERE article_id = ?`, articleID); err != nil {
		return err
	}
	if len(keywords) == 0 {
		return nil
	}

	upsert, err := tx.PrepareContext(ctx, `
INSERT INTO keywords (keyword, usage_count) VALUES (?, 1)
ON CONFLICT(keyword) DO UPDATE SET usage_count = usage_count + 1
RETURNING id;
`)
	if err != nil {
		return err
	}
	defer upsert.Close()

	link, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO article_keywords (article_id, keyword_id) VALUES (?, ?);
`)
	if err != nil {
		return err
	}
	defer link.Close()

	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		var kwID int64
		if err := upsert.QueryRowContext(ctx, kw).Scan(&kwID); err != nil {
			return err
		}
		if _, err := link.ExecContext(ctx, articleID, kwID); err != nil {
			return err
		}
	}
	return nil
}

// GetArticleByPath retrieves an article by its unique source path
func (s *sqliteStore) GetArticleByPath(ctx context.Context, sourcePath string) (store.Article, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, source_path, title, summary, confidence, defaulted, classified_at
FROM articles
WHERE source_path = ?;
`, sourcePath)
	art, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return store.Article{}, false, nil
	}
	if err != nil {
		return store.Article{}, false, err
	}
	return art, true, nil
}

// CountArticles returns the total number of stored articles
func (s *sqliteStore) CountArticles(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n)
	return n, err
}

// RecentArticles returns the most recently stored articles, newest first
func (s *sqliteStore) RecentArticles(ctx context.Context, limit int) ([]store.Article, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source_path, title, summary, confidence, defaulted, classified_at
FROM articles
ORDER BY id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []store.Article
	for rows.Next() {
		art, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, art)
	}
	return articles, rows.Err()
}

// ArticlesInCategory returns articles linked to the category, optionally
// restricted to leaf links
func (s *sqliteStore) ArticlesInCategory(ctx context.Context, categoryID int64, leafOnly bool, limit int) ([]store.Article, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
SELECT a.id, a.source_path, a.title, a.summary, a.confidence, a.defaulted, a.classified_at
FROM articles a
JOIN article_categories ac ON a.id = ac.article_id
WHERE ac.category_id = ?`
	if leafOnly {
		query += ` AND ac.is_leaf = 1`
	}
	query += `
ORDER BY a.id
LIMIT ?;`

	rows, err := s.db.QueryContext(ctx, query, categoryID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []store.Article
	for rows.Next() {
		art, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, art)
	}
	return articles, rows.Err()
}

// ArticleKeywords returns the keywords attached to an article
func (s *sqliteStore) ArticleKeywords(ctx context.Context, articleID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT k.keyword
FROM keywords k
JOIN article_keywords ak ON k.id = ak.keyword_id
WHERE ak.article_id = ?
ORDER BY k.keyword;
`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, err
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

// TopKeywords returns keywords ordered by usage
func (s *sqliteStore) TopKeywords(ctx context.Context, limit int) ([]store.Keyword, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, keyword, usage_count
FROM keywords
WHERE usage_count > 0
ORDER BY usage_count DESC, keyword
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keywords []store.Keyword
	for rows.Next() {
		var k store.Keyword
		if err := rows.Scan(&k.ID, &k.Keyword, &k.UsageCount); err != nil {
			return nil, err
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

// SplitCategory pushes the leaf articles of a node down into named children.
// The node keeps its links but they stop being leaves, so its direct count
// drains into the children while its total count is unchanged.
func (s *sqliteStore) SplitCategory(ctx context.Context, categoryID int64, moves []store.SplitMove) ([]store.Category, error) {
	parent, err := s.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if len(moves) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	childIDs := make(map[string]int64)
	for _, m := range moves {
		if m.ChildName == "" {
			return nil, fmt.Errorf("%w: empty child name", internalerr.ErrInvalidInput)
		}
		if _, ok := childIDs[m.ChildName]; ok {
			continue
		}
		var childID int64
		err := tx.QueryRowContext(ctx, `
INSERT INTO categories (name, parent_id, level, article_count, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?)
ON CONFLICT(name, IFNULL(parent_id, 0)) DO UPDATE SET updated_at=excluded.updated_at
RETURNING id;
`, m.ChildName, categoryID, parent.Level+1, now, now).Scan(&childID)
		if err != nil {
			return nil, err
		}
		childIDs[m.ChildName] = childID
	}

	for _, m := range moves {
		// Articles already pushed below this node are skipped, so a replayed
		// split is a no-op for them.
		res, err := tx.ExecContext(ctx, `
UPDATE article_categories SET is_leaf = 0 WHERE article_id = ? AND category_id = ? AND is_leaf = 1;
`, m.ArticleID, categoryID)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}

		childID := childIDs[m.ChildName]
		res, err = tx.ExecContext(ctx, `
INSERT OR IGNORE INTO article_categories (article_id, category_id, is_leaf) VALUES (?, ?, 1);
`, m.ArticleID, childID)
		if err != nil {
			return nil, err
		}
		if n, err = res.RowsAffected(); err != nil {
			return nil, err
		}
		if n == 0 {
			// Already linked from an earlier pass; only promote it to leaf.
			if _, err := tx.ExecContext(ctx, `
UPDATE article_categories SET is_leaf = 1 WHERE article_id = ? AND category_id = ?;
`, m.ArticleID, childID); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE categories SET article_count = article_count + 1, updated_at = ? WHERE id = ?;
`, now, childID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	children := make([]store.Category, 0, len(childIDs))
	for _, id := range childIDs {
		child, err := s.GetCategory(ctx, id)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// MergeCategories folds the source nodes into one target sibling. Links move
// to the target, duplicate links collapse, child nodes are reparented and the
// sources are deleted, all in one transaction.
func (s *sqliteStore) MergeCategories(ctx context.Context, sourceIDs []int64, targetName string) (store.Category, error) {
	if len(sourceIDs) == 0 {
		return store.Category{}, fmt.Errorf("%w: no merge sources", internalerr.ErrInvalidInput)
	}
	if targetName == "" {
		return store.Category{}, fmt.Errorf("%w: empty target name", internalerr.ErrInvalidInput)
	}

	sources := make([]store.Category, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		cat, err := s.GetCategory(ctx, id)
		if err != nil {
			return store.Category{}, err
		}
		sources = append(sources, cat)
	}
	for _, src := range sources[1:] {
		if !sameParent(src.ParentID, sources[0].ParentID) {
			return store.Category{}, fmt.Errorf("%w: merge sources span different parents", internalerr.ErrInvalidInput)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Category{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	var targetID int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO categories (name, parent_id, level, article_count, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?)
ON CONFLICT(name, IFNULL(parent_id, 0)) DO UPDATE SET updated_at=excluded.updated_at
RETURNING id;
`, targetName, sources[0].ParentID, sources[0].Level, now, now).Scan(&targetID)
	if err != nil {
		return store.Category{}, err
	}

	for _, src := range sources {
		if src.ID == targetID {
			continue
		}

		// Move links onto the target; links the target already holds are left
		// behind and cleaned up below.
		if _, err := tx.ExecContext(ctx, `
UPDATE OR IGNORE article_categories SET category_id = ? WHERE category_id = ?;
`, targetID, src.ID); err != nil {
			return store.Category{}, err
		}
		// A duplicate link that was a leaf at the source keeps leaf status on
		// the target.
		if _, err := tx.ExecContext(ctx, `
UPDATE article_categories SET is_leaf = 1
WHERE category_id = ?
  AND article_id IN (SELECT article_id FROM article_categories WHERE category_id = ? AND is_leaf = 1);
`, targetID, src.ID); err != nil {
			return store.Category{}, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM article_categories WHERE category_id = ?`, src.ID); err != nil {
			return store.Category{}, err
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE categories SET parent_id = ?, updated_at = ? WHERE parent_id = ?;
`, targetID, now, src.ID); err != nil {
			return store.Category{}, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, src.ID); err != nil {
			return store.Category{}, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE categories
SET article_count = (SELECT COUNT(*) FROM article_categories WHERE category_id = ?),
    updated_at = ?
WHERE id = ?;
`, targetID, now, targetID); err != nil {
		return store.Category{}, err
	}

	if err := tx.Commit(); err != nil {
		return store.Category{}, err
	}
	return s.GetCategory(ctx, targetID)
}

// SaveSnapshot stores a tree snapshot
func (s *sqliteStore) SaveSnapshot(ctx context.Context, snap store.Snapshot) error {
	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO snapshots (id, reason, tree_json, taken_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	reason=excluded.reason,
	tree_json=excluded.tree_json,
	taken_at=excluded.taken_at;
`, snap.ID, snap.Reason, snap.TreeJSON, takenAt.UTC().Format(time.RFC3339))
	return err
}

// ListSnapshots returns the most recent snapshots
func (s *sqliteStore) ListSnapshots(ctx context.Context, limit int) ([]store.Snapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, reason, tree_json, taken_at
FROM snapshots
ORDER BY taken_at DESC, id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []store.Snapshot
	for rows.Next() {
		var (
			snap    store.Snapshot
			takenAt string
		)
		if err := rows.Scan(&snap.ID, &snap.Reason, &snap.TreeJSON, &takenAt); err != nil {
			return nil, err
		}
		if parsed, perr := time.Parse(time.RFC3339, takenAt); perr == nil {
			snap.TakenAt = parsed
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Stats aggregates corpus-wide counters
func (s *sqliteStore) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(defaulted), 0), COALESCE(AVG(confidence), 0) FROM articles;
`).Scan(&st.Articles, &st.Defaulted, &st.AvgConfidence)
	if err != nil {
		return store.Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&st.Categories); err != nil {
		return store.Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keywords WHERE usage_count > 0`).Scan(&st.Keywords); err != nil {
		return store.Stats{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT level, COUNT(*) FROM categories GROUP BY level`)
	if err != nil {
		return store.Stats{}, err
	}
	defer rows.Close()

	st.LevelCounts = make(map[int]int64)
	for rows.Next() {
		var (
			level int
			count int64
		)
		if err := rows.Scan(&level, &count); err != nil {
			return store.Stats{}, err
		}
		st.LevelCounts[level] = count
	}
	return st, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCategory(row rowScanner) (store.Category, error) {
	var (
		cat       store.Category
		parentID  sql.NullInt64
		createdAt string
		updatedAt string
	)
	err := row.Scan(&cat.ID, &cat.Name, &parentID, &cat.Level, &cat.ArticleCount, &createdAt, &updatedAt)
	if err != nil {
		return store.Category{}, err
	}
	if parentID.Valid {
		cat.ParentID = &parentID.Int64
	}
	if parsed, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		cat.CreatedAt = parsed
	}
	if parsed, perr := time.Parse(time.RFC3339, updatedAt); perr == nil {
		cat.UpdatedAt = parsed
	}
	return cat, nil
}

func collectCategories(rows *sql.Rows) ([]store.Category, error) {
	var cats []store.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

func scanArticle(row rowScanner) (store.Article, error) {
	var (
		art          store.Article
		defaulted    int
		classifiedAt string
	)
	err := row.Scan(&art.ID, &art.SourcePath, &art.Title, &art.Summary, &art.Confidence, &defaulted, &classifiedAt)
	if err != nil {
		return store.Article{}, err
	}
	art.Defaulted = defaulted != 0
	if parsed, perr := time.Parse(time.RFC3339, classifiedAt); perr == nil {
		art.ClassifiedAt = parsed
	}
	return art, nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// uniqueStrings drops blanks and duplicates, keeping first-seen order. A
// repeated keyword must not bump its usage counter twice in one save.
func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
