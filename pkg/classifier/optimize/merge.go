package optimize

import (
	"context"
	"sort"
	"strings"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

// mergePass combines sibling categories that are both underpopulated and
// semantically equivalent. The fallback category is never merged away.
func (o *Optimizer) mergePass(ctx context.Context, th Thresholds, rep *Report, snapped *bool) error {
	cats, err := o.Store.ListCategories(ctx)
	if err != nil {
		return err
	}
	fallback := o.normalizer().Name("")

	for _, group := range groupSiblings(cats) {
		var candidates []store.Category
		for _, c := range group {
			if c.Name == fallback {
				continue
			}
			if c.ArticleCount < th.MergeMaxArticles {
				candidates = append(candidates, c)
			}
		}

		for _, cluster := range clusterSimilar(candidates, th.SimilarityThreshold) {
			if len(cluster) < 2 {
				continue
			}
			if err := o.mergeCluster(ctx, rep, snapped, cluster); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Optimizer) mergeCluster(ctx context.Context, rep *Report, snapped *bool, cluster []store.Category) error {
	names := make([]string, len(cluster))
	for i, c := range cluster {
		names[i] = c.Name
	}

	// The cluster is ordered largest first, so the heuristic survivor is
	// the biggest member's name.
	target := cluster[0].Name
	if o.Advisor != nil {
		proposed, err := o.Advisor.SuggestMergeName(ctx, names)
		if err != nil {
			o.skip(rep, OpMerge, strings.Join(names, "+"), err.Error())
			return nil
		}
		proposed = o.normalizer().Name(strings.TrimSpace(proposed))
		if proposed == "" {
			o.skip(rep, OpMerge, strings.Join(names, "+"), "blank merge name")
			return nil
		}
		target = proposed
	}

	var sources []int64
	var from []string
	for _, c := range cluster {
		if c.Name == target {
			continue
		}
		sources = append(sources, c.ID)
		from = append(from, c.Name)
	}
	if len(sources) == 0 {
		return nil
	}

	if err := o.ensureSnapshot(ctx, snapped); err != nil {
		return err
	}
	merged, err := o.Store.MergeCategories(ctx, sources, target)
	if err != nil {
		return err
	}
	rep.Merges = append(rep.Merges, MergeOutcome{
		Into:     merged.Name,
		From:     from,
		Articles: merged.ArticleCount,
	})
	return nil
}

// clusterSimilar greedily groups categories around the largest members.
// A category joins the first cluster whose seed name it matches.
func clusterSimilar(cands []store.Category, threshold float64) [][]store.Category {
	sorted := make([]store.Category, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ArticleCount != sorted[j].ArticleCount {
			return sorted[i].ArticleCount > sorted[j].ArticleCount
		}
		return sorted[i].Name < sorted[j].Name
	})

	var clusters [][]store.Category
	for _, c := range sorted {
		placed := false
		for i, cl := range clusters {
			if taxonomy.NameSimilarity(cl[0].Name, c.Name) >= threshold {
				clusters[i] = append(cl, c)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []store.Category{c})
		}
	}
	return clusters
}
