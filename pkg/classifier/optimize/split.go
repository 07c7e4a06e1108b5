package optimize

import (
	"context"
	"strings"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

// splitPass subdivides nodes whose direct article count stands far above
// their siblings'. The high-water mark is the median sibling direct count
// times SplitMultiplier, floored at SplitMin; a node with no siblings is
// measured against the floor alone.
func (o *Optimizer) splitPass(ctx context.Context, th Thresholds, rep *Report, snapped *bool) error {
	cats, err := o.Store.ListCategories(ctx)
	if err != nil {
		return err
	}

	for _, group := range groupSiblings(cats) {
		direct := make(map[int64]int64, len(group))
		for _, c := range group {
			n, err := o.Store.DirectArticleCount(ctx, c.ID)
			if err != nil {
				return err
			}
			direct[c.ID] = n
		}

		for _, c := range group {
			if c.Level >= th.MaxLevels {
				continue
			}
			highWater := float64(th.SplitMin)
			var others []int64
			for _, sib := range group {
				if sib.ID != c.ID {
					others = append(others, direct[sib.ID])
				}
			}
			if len(others) > 0 {
				if m := median(others) * th.SplitMultiplier; m > highWater {
					highWater = m
				}
			}
			if float64(direct[c.ID]) <= highWater {
				continue
			}

			if err := o.splitCategory(ctx, th, rep, snapped, c, direct[c.ID]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Optimizer) splitCategory(ctx context.Context, th Thresholds, rep *Report, snapped *bool, c store.Category, directCount int64) error {
	if o.Advisor == nil {
		o.skip(rep, OpSplit, c.Name, "no advisor configured")
		return nil
	}

	samples, err := o.sampleArticles(ctx, c.ID, th.SampleSize)
	if err != nil {
		return err
	}
	proposed, err := o.Advisor.SuggestSplit(ctx, c.Name, samples)
	if err != nil {
		o.skip(rep, OpSplit, c.Name, err.Error())
		return nil
	}
	labels := usableLabels(proposed, c.Name, o.normalizer())
	if len(labels) < 2 {
		o.skip(rep, OpSplit, c.Name, "fewer than two usable sub-labels")
		return nil
	}

	arts, err := o.Store.ArticlesInCategory(ctx, c.ID, true, int(directCount))
	if err != nil {
		return err
	}
	moves := make([]store.SplitMove, 0, len(arts))
	for _, a := range arts {
		kws, err := o.Store.ArticleKeywords(ctx, a.ID)
		if err != nil {
			return err
		}
		moves = append(moves, store.SplitMove{
			ArticleID: a.ID,
			ChildName: bestChild(labels, a.Title, kws),
		})
	}

	if err := o.ensureSnapshot(ctx, snapped); err != nil {
		return err
	}
	if _, err := o.Store.SplitCategory(ctx, c.ID, moves); err != nil {
		return err
	}
	rep.Splits = append(rep.Splits, SplitOutcome{Category: c.Name, Children: labels, Moved: len(moves)})
	return nil
}

func (o *Optimizer) sampleArticles(ctx context.Context, categoryID int64, size int) ([]ArticleSample, error) {
	arts, err := o.Store.ArticlesInCategory(ctx, categoryID, true, size)
	if err != nil {
		return nil, err
	}
	samples := make([]ArticleSample, 0, len(arts))
	for _, a := range arts {
		kws, err := o.Store.ArticleKeywords(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		samples = append(samples, ArticleSample{Title: a.Title, Keywords: kws})
	}
	return samples, nil
}

// usableLabels normalizes, deduplicates and drops blank labels or labels
// equal to the parent name.
func usableLabels(proposed []string, parent string, norm taxonomy.Normalizer) []string {
	seen := make(map[string]bool, len(proposed))
	var out []string
	for _, label := range proposed {
		if strings.TrimSpace(label) == "" {
			continue
		}
		name := norm.Name(label)
		if name == parent || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// bestChild assigns an article to the proposed label scoring highest against
// its keywords and title. Ties keep the earliest label, so assignment is
// deterministic for a fixed proposal order.
func bestChild(labels []string, title string, keywords []string) string {
	best := labels[0]
	bestScore := -1.0
	lowTitle := strings.ToLower(title)
	for _, label := range labels {
		var score float64
		for _, kw := range keywords {
			if s := taxonomy.NameSimilarity(label, kw); s > score {
				score = s
			}
		}
		if score < 0.8 && strings.Contains(lowTitle, strings.ToLower(label)) {
			score = 0.8
		}
		if score > bestScore {
			bestScore = score
			best = label
		}
	}
	return best
}
