// Package optimize restructures the category tree between batches: splitting
// overloaded nodes, merging near-duplicate siblings and promoting emergent
// keyword clusters to categories. It never runs concurrently with document
// resolution; the orchestrator invokes it between documents.
package optimize

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

// Operation kind constants.
const (
	OpSplit  = "split"
	OpMerge  = "merge"
	OpEvolve = "evolve"
)

// ArticleSample is the slice of an article shown to the advisor.
type ArticleSample struct {
	Title    string
	Keywords []string
}

// Advisor proposes names for structural changes. Splits require an advisor;
// merge and evolve fall back to heuristics when none is configured. An
// advisor error skips that candidate, it never aborts the run.
type Advisor interface {
	// SuggestSplit returns two or more sub-category names for an
	// overloaded category, given a sample of its articles.
	SuggestSplit(ctx context.Context, category string, samples []ArticleSample) ([]string, error)
	// SuggestMergeName picks the surviving name for a group of
	// near-duplicate sibling categories.
	SuggestMergeName(ctx context.Context, names []string) (string, error)
	// SuggestCategoryName names a new category for an emergent keyword.
	SuggestCategoryName(ctx context.Context, keyword string, titles []string) (string, error)
}

// Thresholds control candidate sensitivity.
type Thresholds struct {
	MaxLevels int
	// SplitMultiplier scales the median sibling direct count into the
	// split high-water mark; SplitMin floors it.
	SplitMultiplier float64
	SplitMin        int64
	// MergeMaxArticles is the low-water mark: only nodes with fewer total
	// articles are merge candidates.
	MergeMaxArticles    int64
	SimilarityThreshold float64
	// EvolveMinCount is the keyword frequency needed inside the recent
	// window before a new category is proposed.
	EvolveMinCount int64
	RecentWindow   int
	SampleSize     int
	// MinConfidence marks the articles evolve may pull into a new node.
	MinConfidence float64
}

func (t Thresholds) orDefault() Thresholds {
	if t.MaxLevels == 0 {
		t.MaxLevels = 3
	}
	if t.SplitMultiplier == 0 {
		t.SplitMultiplier = 3
	}
	if t.SplitMin == 0 {
		t.SplitMin = 12
	}
	if t.MergeMaxArticles == 0 {
		t.MergeMaxArticles = 3
	}
	if t.SimilarityThreshold == 0 {
		t.SimilarityThreshold = 0.8
	}
	if t.EvolveMinCount == 0 {
		t.EvolveMinCount = 5
	}
	if t.RecentWindow == 0 {
		t.RecentWindow = 100
	}
	if t.SampleSize == 0 {
		t.SampleSize = 20
	}
	if t.MinConfidence == 0 {
		t.MinConfidence = 0.6
	}
	return t
}

// SplitOutcome records one executed split.
type SplitOutcome struct {
	Category string
	Children []string
	Moved    int
}

// MergeOutcome records one executed merge.
type MergeOutcome struct {
	Into     string
	From     []string
	Articles int64
}

// EvolveOutcome records one category promoted from an emergent keyword.
type EvolveOutcome struct {
	Category string
	Keyword  string
	Moved    int
}

// Skip records a candidate passed over because its proposal was unusable.
type Skip struct {
	Op       string
	Category string
	Reason   string
}

// Report summarizes one optimizer run.
type Report struct {
	Splits  []SplitOutcome
	Merges  []MergeOutcome
	Evolved []EvolveOutcome
	Skips   []Skip
}

// Changed reports whether the run mutated the tree.
func (r Report) Changed() bool {
	return len(r.Splits) > 0 || len(r.Merges) > 0 || len(r.Evolved) > 0
}

// Optimizer runs the three structural passes over the stored tree.
type Optimizer struct {
	Store      store.Store
	Advisor    Advisor // optional for merge and evolve, required for split
	Thresholds Thresholds
	Language   string
	Fallback   string

	entropy *ulid.MonotonicEntropy
}

// Run executes split, merge and evolve in order. The tree is snapshotted
// before the first mutation of the run; a run with no candidates over
// threshold leaves the tree and the snapshot list untouched.
func (o *Optimizer) Run(ctx context.Context) (Report, error) {
	var rep Report
	if o.Store == nil {
		return rep, errors.New("optimize: store required")
	}
	th := o.Thresholds.orDefault()

	snapped := false
	if err := o.splitPass(ctx, th, &rep, &snapped); err != nil {
		return rep, err
	}
	if err := o.mergePass(ctx, th, &rep, &snapped); err != nil {
		return rep, err
	}
	if err := o.evolvePass(ctx, th, &rep, &snapped); err != nil {
		return rep, err
	}
	return rep, nil
}

func (o *Optimizer) normalizer() taxonomy.Normalizer {
	return taxonomy.Normalizer{Language: o.Language, Fallback: o.Fallback}
}

func (o *Optimizer) skip(rep *Report, op, category, reason string) {
	rep.Skips = append(rep.Skips, Skip{Op: op, Category: category, Reason: reason})
}

// ensureSnapshot stores the tree once per run, before the first mutation.
func (o *Optimizer) ensureSnapshot(ctx context.Context, snapped *bool) error {
	if *snapped {
		return nil
	}
	cats, err := o.Store.ListCategories(ctx)
	if err != nil {
		return err
	}
	tree, err := json.Marshal(snapshotForest(taxonomy.BuildTree(cats)))
	if err != nil {
		return err
	}
	snap := store.Snapshot{
		ID:       o.snapshotID(),
		Reason:   "optimize",
		TreeJSON: string(tree),
		TakenAt:  time.Now().UTC(),
	}
	if err := o.Store.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	*snapped = true
	return nil
}

func (o *Optimizer) snapshotID() string {
	if o.entropy == nil {
		o.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	return ulid.MustNew(ulid.Now(), o.entropy).String()
}

type snapshotNode struct {
	Name     string         `json:"name"`
	Level    int            `json:"level"`
	Articles int64          `json:"articles"`
	Children []snapshotNode `json:"children,omitempty"`
}

func snapshotForest(nodes []*taxonomy.Node) []snapshotNode {
	out := make([]snapshotNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, snapshotNode{
			Name:     n.Name,
			Level:    n.Level,
			Articles: n.ArticleCount,
			Children: snapshotForest(n.Children),
		})
	}
	return out
}

// groupSiblings partitions categories by parent, in first-appearance order.
func groupSiblings(cats []store.Category) [][]store.Category {
	byParent := make(map[int64][]store.Category)
	var order []int64
	for _, c := range cats {
		var key int64
		if c.ParentID != nil {
			key = *c.ParentID
		}
		if _, ok := byParent[key]; !ok {
			order = append(order, key)
		}
		byParent[key] = append(byParent[key], c)
	}
	out := make([][]store.Category, 0, len(order))
	for _, k := range order {
		out = append(out, byParent[k])
	}
	return out
}

func median(vals []int64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]int64, len(vals))
	copy(sorted, vals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}
