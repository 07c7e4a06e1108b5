package taxonomy

import (
	"context"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
)

// ResolverConfig controls path resolution.
type ResolverConfig struct {
	MaxLevels int
	// MinConfidence gates the creation of new category nodes.
	MinConfidence float64
	// InitialTrainingSize lifts the confidence gate while the corpus holds
	// fewer articles than this, letting the tree grow freely at first.
	InitialTrainingSize int
	FallbackCategory    string
	Language            string
}

// Resolver walks classification paths into stored category nodes.
type Resolver struct {
	store store.Store
	norm  Normalizer
	cfg   ResolverConfig
}

func NewResolver(st store.Store, cfg ResolverConfig) *Resolver {
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = 3
	}
	if cfg.FallbackCategory == "" {
		cfg.FallbackCategory = defaultFallback
	}
	return &Resolver{
		store: st,
		norm:  Normalizer{Language: cfg.Language, Fallback: cfg.FallbackCategory},
		cfg:   cfg,
	}
}

// ResolvedPath is the outcome of resolving one classification path.
type ResolvedPath struct {
	// Chain runs root first, leaf last. Never empty.
	Chain []store.Category
	// Created lists the names of nodes created during this resolution.
	Created []string
	// Truncated reports that the path was cut at its deepest existing
	// ancestor because the confidence did not clear the creation gate.
	Truncated bool
	// Fallback reports that no level matched and the article was attached
	// to the fallback category instead.
	Fallback bool
}

// Leaf is the node the article attaches to.
func (r ResolvedPath) Leaf() store.Category { return r.Chain[len(r.Chain)-1] }

// IDs returns the chain as category IDs, root first.
func (r ResolvedPath) IDs() []int64 {
	ids := make([]int64, len(r.Chain))
	for i, c := range r.Chain {
		ids[i] = c.ID
	}
	return ids
}

// Names returns the chain as category names, root first.
func (r ResolvedPath) Names() []string {
	names := make([]string, len(r.Chain))
	for i, c := range r.Chain {
		names[i] = c.Name
	}
	return names
}

// Resolve maps a classification path onto stored nodes, walking level by
// level from the roots. Lookups match normalized names exactly. A missing
// level is created when confidence clears MinConfidence, or while the corpus
// is still below InitialTrainingSize; otherwise the path is truncated at the
// deepest existing ancestor. When not even the first level exists the
// article resolves to the fallback category.
func (r *Resolver) Resolve(ctx context.Context, path []string, confidence float64) (ResolvedPath, error) {
	names := r.norm.Path(path)
	if len(names) > r.cfg.MaxLevels {
		names = names[:r.cfg.MaxLevels]
	}

	allowCreate := confidence >= r.cfg.MinConfidence
	if !allowCreate && r.cfg.InitialTrainingSize > 0 {
		n, err := r.store.CountArticles(ctx)
		if err != nil {
			return ResolvedPath{}, err
		}
		allowCreate = n < int64(r.cfg.InitialTrainingSize)
	}

	var (
		resolved ResolvedPath
		parent   *int64
	)
	for i, name := range names {
		cat, ok, err := r.store.GetCategoryByName(ctx, name, parent)
		if err != nil {
			return ResolvedPath{}, err
		}
		if !ok {
			if !allowCreate {
				resolved.Truncated = true
				break
			}
			cat, err = r.store.CreateCategory(ctx, name, parent, i+1)
			if err != nil {
				return ResolvedPath{}, err
			}
			resolved.Created = append(resolved.Created, cat.Name)
		}
		resolved.Chain = append(resolved.Chain, cat)
		id := cat.ID
		parent = &id
	}

	if len(resolved.Chain) == 0 {
		return r.resolveFallback(ctx)
	}
	return resolved, nil
}

// resolveFallback attaches to the fallback root, creating it on first use.
// The confidence gate does not apply here: every article must land somewhere.
func (r *Resolver) resolveFallback(ctx context.Context) (ResolvedPath, error) {
	name := r.cfg.FallbackCategory
	cat, ok, err := r.store.GetCategoryByName(ctx, name, nil)
	if err != nil {
		return ResolvedPath{}, err
	}
	resolved := ResolvedPath{Fallback: true}
	if !ok {
		cat, err = r.store.CreateCategory(ctx, name, nil, 1)
		if err != nil {
			return ResolvedPath{}, err
		}
		resolved.Created = append(resolved.Created, cat.Name)
	}
	resolved.Chain = []store.Category{cat}
	return resolved, nil
}
