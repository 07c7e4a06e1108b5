package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
)

type link struct {
	articleID  int64
	categoryID int64
	isLeaf     bool
}

// Store is an in-memory implementation of store.Store for tests.
type Store struct {
	mu        sync.RWMutex
	nextCatID int64
	nextArtID int64
	nextKwID  int64
	cats      map[int64]store.Category
	arts      map[int64]store.Article
	pathIndex map[string]int64
	links     []link
	kwIndex   map[string]int64
	kwNames   map[int64]string
	artKws    map[int64]map[int64]struct{}
	snaps     []store.Snapshot
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		nextCatID: 1,
		nextArtID: 1,
		nextKwID:  1,
		cats:      make(map[int64]store.Category),
		arts:      make(map[int64]store.Article),
		pathIndex: make(map[string]int64),
		kwIndex:   make(map[string]int64),
		kwNames:   make(map[int64]string),
		artKws:    make(map[int64]map[int64]struct{}),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// GetCategory returns a category by ID.
func (s *Store) GetCategory(ctx context.Context, id int64) (store.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryLocked(id)
}

func (s *Store) categoryLocked(id int64) (store.Category, error) {
	cat, ok := s.cats[id]
	if !ok {
		return store.Category{}, fmt.Errorf("category %d: %w", id, internalerr.ErrNotFound)
	}
	cat.ArticleCount = s.linkCountLocked(id, false)
	return cat, nil
}

// GetCategoryByName returns a category by name under the given parent.
func (s *Store) GetCategoryByName(ctx context.Context, name string, parentID *int64) (store.Category, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.findByNameLocked(name, parentID); ok {
		cat, err := s.categoryLocked(id)
		return cat, err == nil, err
	}
	return store.Category{}, false, nil
}

func (s *Store) findByNameLocked(name string, parentID *int64) (int64, bool) {
	for id, cat := range s.cats {
		if cat.Name == name && sameParent(cat.ParentID, parentID) {
			return id, true
		}
	}
	return 0, false
}

// CreateCategory inserts a category or returns the existing (name, parent) row.
func (s *Store) CreateCategory(ctx context.Context, name string, parentID *int64, level int) (store.Category, error) {
	if name == "" {
		return store.Category{}, fmt.Errorf("%w: empty category name", internalerr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.findByNameLocked(name, parentID); ok {
		return s.categoryLocked(id)
	}

	now := time.Now().UTC()
	cat := store.Category{
		ID:        s.nextCatID,
		Name:      name,
		Level:     level,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parentID != nil {
		pid := *parentID
		cat.ParentID = &pid
	}
	s.nextCatID++
	s.cats[cat.ID] = cat
	return cat, nil
}

// RenameCategory changes a category name in place.
func (s *Store) RenameCategory(ctx context.Context, id int64, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty category name", internalerr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.cats[id]
	if !ok {
		return fmt.Errorf("category %d: %w", id, internalerr.ErrNotFound)
	}
	if sibling, exists := s.findByNameLocked(name, cat.ParentID); exists && sibling != id {
		return fmt.Errorf("%w: sibling %q already exists", internalerr.ErrInvalidInput, name)
	}
	cat.Name = name
	cat.UpdatedAt = time.Now().UTC()
	s.cats[id] = cat
	return nil
}

// ListChildren returns the direct children of a node, or the roots when
// parentID is nil.
func (s *Store) ListChildren(ctx context.Context, parentID *int64) ([]store.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Category
	for id, cat := range s.cats {
		if sameParent(cat.ParentID, parentID) {
			c, _ := s.categoryLocked(id)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListCategories returns every category ordered by level then name.
func (s *Store) ListCategories(ctx context.Context) ([]store.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Category, 0, len(s.cats))
	for id := range s.cats {
		c, _ := s.categoryLocked(id)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// CategoryPath returns the chain from root to the given node.
func (s *Store) CategoryPath(ctx context.Context, id int64) ([]store.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []store.Category
	next := &id
	for next != nil {
		cat, err := s.categoryLocked(*next)
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

// DirectArticleCount counts leaf links at the node.
func (s *Store) DirectArticleCount(ctx context.Context, categoryID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linkCountLocked(categoryID, true), nil
}

func (s *Store) linkCountLocked(categoryID int64, leafOnly bool) int64 {
	var n int64
	for _, l := range s.links {
		if l.categoryID != categoryID {
			continue
		}
		if leafOnly && !l.isLeaf {
			continue
		}
		n++
	}
	return n
}

// SaveClassification stores an article with its chain and keywords, replacing
// any previous links of the same source path.
func (s *Store) SaveClassification(ctx context.Context, a store.Article, chain []int64, keywords []string) (int64, error) {
	if a.SourcePath == "" {
		return 0, fmt.Errorf("%w: empty source path", internalerr.ErrInvalidInput)
	}
	if len(chain) == 0 {
		return 0, fmt.Errorf("%w: empty category chain", internalerr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, catID := range chain {
		if _, ok := s.cats[catID]; !ok {
			return 0, fmt.Errorf("category %d: %w", catID, internalerr.ErrNotFound)
		}
	}

	if a.ClassifiedAt.IsZero() {
		a.ClassifiedAt = time.Now().UTC()
	}

	var id int64
	if existing, ok := s.pathIndex[a.SourcePath]; ok {
		id = existing
	} else {
		id = s.nextArtID
		s.nextArtID++
		s.pathIndex[a.SourcePath] = id
	}
	a.ID = id
	s.arts[id] = a

	s.dropArticleLinksLocked(id)
	for i, catID := range chain {
		s.links = append(s.links, link{
			articleID:  id,
			categoryID: catID,
			isLeaf:     i == len(chain)-1,
		})
	}

	kwSet := make(map[int64]struct{})
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		kwID, ok := s.kwIndex[kw]
		if !ok {
			kwID = s.nextKwID
			s.nextKwID++
			s.kwIndex[kw] = kwID
			s.kwNames[kwID] = kw
		}
		kwSet[kwID] = struct{}{}
	}
	s.artKws[id] = kwSet
	return id, nil
}

func (s *Store) dropArticleLinksLocked(articleID int64) {
	kept := s.links[:0]
	for _, l := range s.links {
		if l.articleID != articleID {
			kept = append(kept, l)
		}
	}
	s.links = kept
}

// GetArticleByPath returns an article by its unique source path.
func (s *Store) GetArticleByPath(ctx context.Context, sourcePath string) (store.Article, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.pathIndex[sourcePath]; ok {
		if art, exists := s.arts[id]; exists {
			return art, true, nil
		}
	}
	return store.Article{}, false, nil
}

// CountArticles returns the total number of stored articles.
func (s *Store) CountArticles(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.arts)), nil
}

// RecentArticles returns the most recently stored articles, newest first.
func (s *Store) RecentArticles(ctx context.Context, limit int) ([]store.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	ids := make([]int64, 0, len(s.arts))
	for id := range s.arts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var out []store.Article
	for _, id := range ids {
		out = append(out, s.arts[id])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ArticlesInCategory returns articles linked to the category.
func (s *Store) ArticlesInCategory(ctx context.Context, categoryID int64, leafOnly bool, limit int) ([]store.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	var ids []int64
	for _, l := range s.links {
		if l.categoryID != categoryID {
			continue
		}
		if leafOnly && !l.isLeaf {
			continue
		}
		ids = append(ids, l.articleID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []store.Article
	for _, id := range ids {
		if art, ok := s.arts[id]; ok {
			out = append(out, art)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ArticleKeywords returns the keywords attached to an article.
func (s *Store) ArticleKeywords(ctx context.Context, articleID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for kwID := range s.artKws[articleID] {
		out = append(out, s.kwNames[kwID])
	}
	sort.Strings(out)
	return out, nil
}

// TopKeywords returns keywords ordered by usage.
func (s *Store) TopKeywords(ctx context.Context, limit int) ([]store.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	usage := make(map[int64]int64)
	for _, set := range s.artKws {
		for kwID := range set {
			usage[kwID]++
		}
	}

	var out []store.Keyword
	for kwID, n := range usage {
		if n == 0 {
			continue
		}
		out = append(out, store.Keyword{ID: kwID, Keyword: s.kwNames[kwID], UsageCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Keyword < out[j].Keyword
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SplitCategory pushes leaf articles of a node down into named children.
func (s *Store) SplitCategory(ctx context.Context, categoryID int64, moves []store.SplitMove) ([]store.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.categoryLocked(categoryID)
	if err != nil {
		return nil, err
	}
	if len(moves) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	childIDs := make(map[string]int64)
	for _, m := range moves {
		if m.ChildName == "" {
			return nil, fmt.Errorf("%w: empty child name", internalerr.ErrInvalidInput)
		}
		if _, ok := childIDs[m.ChildName]; ok {
			continue
		}
		if id, ok := s.findByNameLocked(m.ChildName, &categoryID); ok {
			childIDs[m.ChildName] = id
			continue
		}
		pid := categoryID
		child := store.Category{
			ID:        s.nextCatID,
			Name:      m.ChildName,
			ParentID:  &pid,
			Level:     parent.Level + 1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.nextCatID++
		s.cats[child.ID] = child
		childIDs[m.ChildName] = child.ID
	}

	for _, m := range moves {
		moved := false
		for i := range s.links {
			l := &s.links[i]
			if l.articleID == m.ArticleID && l.categoryID == categoryID && l.isLeaf {
				l.isLeaf = false
				moved = true
				break
			}
		}
		if !moved {
			continue
		}

		childID := childIDs[m.ChildName]
		linked := false
		for i := range s.links {
			l := &s.links[i]
			if l.articleID == m.ArticleID && l.categoryID == childID {
				l.isLeaf = true
				linked = true
				break
			}
		}
		if !linked {
			s.links = append(s.links, link{articleID: m.ArticleID, categoryID: childID, isLeaf: true})
		}
	}

	children := make([]store.Category, 0, len(childIDs))
	for _, id := range childIDs {
		c, _ := s.categoryLocked(id)
		children = append(children, c)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

// MergeCategories folds the source nodes into one target sibling.
func (s *Store) MergeCategories(ctx context.Context, sourceIDs []int64, targetName string) (store.Category, error) {
	if len(sourceIDs) == 0 {
		return store.Category{}, fmt.Errorf("%w: no merge sources", internalerr.ErrInvalidInput)
	}
	if targetName == "" {
		return store.Category{}, fmt.Errorf("%w: empty target name", internalerr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sources := make([]store.Category, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		cat, err := s.categoryLocked(id)
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

	now := time.Now().UTC()
	targetID, ok := s.findByNameLocked(targetName, sources[0].ParentID)
	if !ok {
		target := store.Category{
			ID:        s.nextCatID,
			Name:      targetName,
			Level:     sources[0].Level,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if sources[0].ParentID != nil {
			pid := *sources[0].ParentID
			target.ParentID = &pid
		}
		s.nextCatID++
		s.cats[target.ID] = target
		targetID = target.ID
	}

	for _, src := range sources {
		if src.ID == targetID {
			continue
		}

		hasTarget := make(map[int64]bool)
		for _, l := range s.links {
			if l.categoryID == targetID {
				hasTarget[l.articleID] = true
			}
		}
		// Articles holding a leaf link on the source keep leaf status on
		// the target when both links exist.
		promote := make(map[int64]bool)
		for _, l := range s.links {
			if l.categoryID == src.ID && l.isLeaf && hasTarget[l.articleID] {
				promote[l.articleID] = true
			}
		}

		kept := s.links[:0]
		for _, l := range s.links {
			switch {
			case l.categoryID == src.ID:
				if hasTarget[l.articleID] {
					continue
				}
				l.categoryID = targetID
				kept = append(kept, l)
			case l.categoryID == targetID && promote[l.articleID]:
				l.isLeaf = true
				kept = append(kept, l)
			default:
				kept = append(kept, l)
			}
		}
		s.links = kept

		for id, cat := range s.cats {
			if cat.ParentID != nil && *cat.ParentID == src.ID {
				tid := targetID
				cat.ParentID = &tid
				cat.UpdatedAt = now
				s.cats[id] = cat
			}
		}
		delete(s.cats, src.ID)
	}

	return s.categoryLocked(targetID)
}

// SaveSnapshot stores a tree snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap store.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}
	for i := range s.snaps {
		if s.snaps[i].ID == snap.ID {
			s.snaps[i] = snap
			return nil
		}
	}
	s.snaps = append(s.snaps, snap)
	return nil
}

// ListSnapshots returns the most recent snapshots.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	out := make([]store.Snapshot, len(s.snaps))
	copy(out, s.snaps)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TakenAt.Equal(out[j].TakenAt) {
			return out[i].TakenAt.After(out[j].TakenAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats aggregates corpus-wide counters.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := store.Stats{
		Articles:    int64(len(s.arts)),
		Categories:  int64(len(s.cats)),
		LevelCounts: make(map[int]int64),
	}

	var confSum float64
	for _, a := range s.arts {
		confSum += a.Confidence
		if a.Defaulted {
			st.Defaulted++
		}
	}
	if st.Articles > 0 {
		st.AvgConfidence = confSum / float64(st.Articles)
	}

	for _, c := range s.cats {
		st.LevelCounts[c.Level]++
	}

	usage := make(map[int64]struct{})
	for _, set := range s.artKws {
		for kwID := range set {
			usage[kwID] = struct{}{}
		}
	}
	st.Keywords = int64(len(usage))
	return st, nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
