package taxonomy

import (
	"context"
	"reflect"
	"testing"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/store/memstore"
)

func newTestResolver(st store.Store, cfg ResolverConfig) *Resolver {
	if cfg.MaxLevels == 0 {
		cfg.MaxLevels = 3
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 0.6
	}
	if cfg.FallbackCategory == "" {
		cfg.FallbackCategory = "未分类"
	}
	if cfg.Language == "" {
		cfg.Language = "zh"
	}
	return NewResolver(st, cfg)
}

func TestResolveCreatesFullChain(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	r := newTestResolver(st, ResolverConfig{})

	got, err := r.Resolve(ctx, []string{"Technology", "Programming", "Go"}, 0.9)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got.Chain) != 3 {
		t.Fatalf("chain length = %d, want 3", len(got.Chain))
	}
	wantNames := []string{"技术", "编程", "Go"}
	if !reflect.DeepEqual(got.Names(), wantNames) {
		t.Errorf("chain names = %v, want %v", got.Names(), wantNames)
	}
	if !reflect.DeepEqual(got.Created, wantNames) {
		t.Errorf("created = %v, want %v", got.Created, wantNames)
	}
	for i, c := range got.Chain {
		if c.Level != i+1 {
			t.Errorf("level[%d] = %d, want %d", i, c.Level, i+1)
		}
		if i > 0 && (c.ParentID == nil || *c.ParentID != got.Chain[i-1].ID) {
			t.Errorf("node %q not linked to parent %q", c.Name, got.Chain[i-1].Name)
		}
	}
	if got.Truncated || got.Fallback {
		t.Errorf("unexpected truncated/fallback flags: %+v", got)
	}

	// Resolving again walks the existing nodes without creating.
	again, err := r.Resolve(ctx, []string{"技术", "编程", "Go"}, 0.9)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if len(again.Created) != 0 {
		t.Errorf("second resolve created %v", again.Created)
	}
	if !reflect.DeepEqual(again.IDs(), got.IDs()) {
		t.Errorf("second resolve IDs = %v, want %v", again.IDs(), got.IDs())
	}
}

func TestResolveTruncatesOnLowConfidence(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	if _, err := st.CreateCategory(ctx, "技术", nil, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := newTestResolver(st, ResolverConfig{})

	got, err := r.Resolve(ctx, []string{"技术", "新方向"}, 0.3)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Truncated {
		t.Fatalf("expected truncation, got %+v", got)
	}
	if len(got.Chain) != 1 || got.Chain[0].Name != "技术" {
		t.Fatalf("chain = %v, want just 技术", got.Names())
	}
	if len(got.Created) != 0 {
		t.Errorf("low confidence created nodes: %v", got.Created)
	}
}

func TestResolveInitialTrainingLiftsGate(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	r := newTestResolver(st, ResolverConfig{InitialTrainingSize: 100})

	got, err := r.Resolve(ctx, []string{"历史", "古代史"}, 0.2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Truncated || got.Fallback {
		t.Fatalf("training phase should create freely, got %+v", got)
	}
	if len(got.Chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(got.Chain))
	}
}

func TestResolveTrainingPhaseEnds(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	seed, err := st.CreateCategory(ctx, "技术", nil, 1)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := st.SaveClassification(ctx, store.Article{SourcePath: "a.md", Title: "t"}, []int64{seed.ID}, nil); err != nil {
		t.Fatalf("seed article: %v", err)
	}
	r := newTestResolver(st, ResolverConfig{InitialTrainingSize: 1})

	got, err := r.Resolve(ctx, []string{"历史"}, 0.2)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Fallback {
		t.Fatalf("expected fallback after training phase, got %+v", got)
	}
}

func TestResolveFallsBackWhenNothingMatches(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	if _, err := st.CreateCategory(ctx, "技术", nil, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := newTestResolver(st, ResolverConfig{})

	got, err := r.Resolve(ctx, []string{"历史"}, 0.1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !got.Fallback {
		t.Fatalf("expected fallback, got %+v", got)
	}
	if got.Leaf().Name != "未分类" || got.Leaf().Level != 1 {
		t.Fatalf("fallback leaf = %+v", got.Leaf())
	}
	if !reflect.DeepEqual(got.Created, []string{"未分类"}) {
		t.Errorf("created = %v, want [未分类]", got.Created)
	}

	// The fallback node is reused, not recreated.
	again, err := r.Resolve(ctx, []string{"地理"}, 0.1)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if len(again.Created) != 0 {
		t.Errorf("second fallback created %v", again.Created)
	}
	if again.Leaf().ID != got.Leaf().ID {
		t.Errorf("fallback IDs differ: %d vs %d", again.Leaf().ID, got.Leaf().ID)
	}
}

func TestResolveNormalizesBeforeLookup(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	seed, err := st.CreateCategory(ctx, "技术", nil, 1)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := newTestResolver(st, ResolverConfig{})

	got, err := r.Resolve(ctx, []string{"Technology"}, 0.9)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got.Created) != 0 {
		t.Fatalf("normalized name created a duplicate: %v", got.Created)
	}
	if got.Leaf().ID != seed.ID {
		t.Fatalf("leaf ID = %d, want %d", got.Leaf().ID, seed.ID)
	}
}

func TestResolveCapsPathDepth(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	r := newTestResolver(st, ResolverConfig{})

	got, err := r.Resolve(ctx, []string{"技术", "编程", "Go", "泛型"}, 0.9)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got.Chain) != 3 {
		t.Fatalf("chain length = %d, want 3", len(got.Chain))
	}
	if got.Leaf().Name != "Go" {
		t.Fatalf("leaf = %q, want Go", got.Leaf().Name)
	}
}
