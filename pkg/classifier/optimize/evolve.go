package optimize

import (
	"context"
	"sort"
	"strings"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

// evolvePass promotes keywords that recur across recent articles but match
// no existing category into new level-1 nodes, then pulls the matching
// low-confidence articles into them.
func (o *Optimizer) evolvePass(ctx context.Context, th Thresholds, rep *Report, snapped *bool) error {
	arts, err := o.Store.RecentArticles(ctx, th.RecentWindow)
	if err != nil {
		return err
	}
	if len(arts) == 0 {
		return nil
	}

	kwArticles := make(map[string][]store.Article)
	kwLowConf := make(map[string]int)
	kwOf := make(map[int64][]string, len(arts))
	for _, a := range arts {
		kws, err := o.Store.ArticleKeywords(ctx, a.ID)
		if err != nil {
			return err
		}
		kwOf[a.ID] = kws
		for _, kw := range kws {
			kwArticles[kw] = append(kwArticles[kw], a)
			if a.Confidence < th.MinConfidence {
				kwLowConf[kw]++
			}
		}
	}

	cats, err := o.Store.ListCategories(ctx)
	if err != nil {
		return err
	}
	norm := o.normalizer()

	var candidates []string
	for kw, linked := range kwArticles {
		if int64(len(linked)) < th.EvolveMinCount {
			continue
		}
		// A cluster with no low-confidence carriers has nothing to
		// reassign.
		if kwLowConf[kw] == 0 {
			continue
		}
		if representedBy(cats, norm.Name(kw), th.SimilarityThreshold) {
			continue
		}
		candidates = append(candidates, kw)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if len(kwArticles[candidates[i]]) != len(kwArticles[candidates[j]]) {
			return len(kwArticles[candidates[i]]) > len(kwArticles[candidates[j]])
		}
		return candidates[i] < candidates[j]
	})

	for _, kw := range candidates {
		name := norm.Name(kw)
		// Re-check against nodes created earlier in this same pass.
		if representedBy(cats, name, th.SimilarityThreshold) {
			continue
		}
		if o.Advisor != nil {
			titles := sampleTitles(kwArticles[kw], th.SampleSize)
			proposed, err := o.Advisor.SuggestCategoryName(ctx, kw, titles)
			if err != nil {
				o.skip(rep, OpEvolve, kw, err.Error())
				continue
			}
			proposed = norm.Name(strings.TrimSpace(proposed))
			if proposed == "" {
				o.skip(rep, OpEvolve, kw, "blank category name")
				continue
			}
			name = proposed
		}

		if err := o.ensureSnapshot(ctx, snapped); err != nil {
			return err
		}
		cat, err := o.Store.CreateCategory(ctx, name, nil, 1)
		if err != nil {
			return err
		}
		cats = append(cats, cat)

		moved := 0
		for _, a := range kwArticles[kw] {
			if a.Confidence >= th.MinConfidence {
				continue
			}
			if _, err := o.Store.SaveClassification(ctx, a, []int64{cat.ID}, kwOf[a.ID]); err != nil {
				return err
			}
			moved++
		}
		rep.Evolved = append(rep.Evolved, EvolveOutcome{Category: cat.Name, Keyword: kw, Moved: moved})
	}
	return nil
}

// representedBy reports whether any existing category name already covers
// the normalized keyword.
func representedBy(cats []store.Category, name string, threshold float64) bool {
	for _, c := range cats {
		if taxonomy.NameSimilarity(name, c.Name) >= threshold {
			return true
		}
	}
	return false
}

func sampleTitles(arts []store.Article, size int) []string {
	if size > len(arts) {
		size = len(arts)
	}
	titles := make([]string, 0, size)
	for _, a := range arts[:size] {
		titles = append(titles, a.Title)
	}
	return titles
}
