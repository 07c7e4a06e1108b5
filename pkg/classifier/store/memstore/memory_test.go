package memstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
)

func TestSaveClassificationCounts(t *testing.T) {
	ctx := context.Background()
	st := New()
	defer st.Close()

	l1, _ := st.CreateCategory(ctx, "技术", nil, 1)
	l2, _ := st.CreateCategory(ctx, "编程", &l1.ID, 2)

	if _, err := st.SaveClassification(ctx, store.Article{
		SourcePath: "a.md",
		Confidence: 0.8,
	}, []int64{l1.ID, l2.ID}, []string{"go", "golang"}); err != nil {
		t.Fatalf("SaveClassification: %v", err)
	}

	got, err := st.GetCategory(ctx, l1.ID)
	if err != nil {
		t.Fatalf("GetCategory: %v", err)
	}
	if got.ArticleCount != 1 {
		t.Errorf("root count = %d, want 1", got.ArticleCount)
	}
	direct, _ := st.DirectArticleCount(ctx, l1.ID)
	if direct != 0 {
		t.Errorf("root direct count = %d, want 0", direct)
	}
	direct, _ = st.DirectArticleCount(ctx, l2.ID)
	if direct != 1 {
		t.Errorf("leaf direct count = %d, want 1", direct)
	}

	// Re-saving the same path replaces the links.
	if _, err := st.SaveClassification(ctx, store.Article{
		SourcePath: "a.md",
	}, []int64{l1.ID}, nil); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	got, _ = st.GetCategory(ctx, l2.ID)
	if got.ArticleCount != 0 {
		t.Errorf("old leaf count after re-save = %d, want 0", got.ArticleCount)
	}
	if n, _ := st.CountArticles(ctx); n != 1 {
		t.Errorf("articles = %d, want 1", n)
	}

	if _, err := st.SaveClassification(ctx, store.Article{SourcePath: "b.md"}, []int64{999}, nil); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("unknown chain node error = %v, want ErrNotFound", err)
	}
}

func TestSplitMovesLeafLinks(t *testing.T) {
	ctx := context.Background()
	st := New()
	defer st.Close()

	root, _ := st.CreateCategory(ctx, "技术", nil, 1)
	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := st.SaveClassification(ctx, store.Article{
			SourcePath: fmt.Sprintf("doc%d.md", i),
		}, []int64{root.ID}, nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	moves := []store.SplitMove{
		{ArticleID: ids[0], ChildName: "编程"},
		{ArticleID: ids[1], ChildName: "编程"},
		{ArticleID: ids[2], ChildName: "网络"},
	}
	children, err := st.SplitCategory(ctx, root.ID, moves)
	if err != nil {
		t.Fatalf("SplitCategory: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}

	direct, _ := st.DirectArticleCount(ctx, root.ID)
	if direct != 0 {
		t.Errorf("root direct count = %d, want 0", direct)
	}
	rootAfter, _ := st.GetCategory(ctx, root.ID)
	if rootAfter.ArticleCount != 3 {
		t.Errorf("root total count = %d, want 3", rootAfter.ArticleCount)
	}
	var sum int64
	for _, c := range children {
		sum += c.ArticleCount
	}
	if sum != 3 {
		t.Errorf("children counts sum = %d, want 3", sum)
	}

	// Replay is a no-op.
	if _, err := st.SplitCategory(ctx, root.ID, moves); err != nil {
		t.Fatalf("replay: %v", err)
	}
	rootAfter, _ = st.GetCategory(ctx, root.ID)
	if rootAfter.ArticleCount != 3 {
		t.Errorf("root count after replay = %d, want 3", rootAfter.ArticleCount)
	}
}

func TestMergeSumsCounts(t *testing.T) {
	ctx := context.Background()
	st := New()
	defer st.Close()

	a, _ := st.CreateCategory(ctx, "AI", nil, 1)
	b, _ := st.CreateCategory(ctx, "人工智能研究", nil, 1)
	for i := 0; i < 2; i++ {
		if _, err := st.SaveClassification(ctx, store.Article{SourcePath: fmt.Sprintf("a%d.md", i)}, []int64{a.ID}, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := st.SaveClassification(ctx, store.Article{SourcePath: "b0.md"}, []int64{b.ID}, nil); err != nil {
		t.Fatal(err)
	}

	target, err := st.MergeCategories(ctx, []int64{a.ID, b.ID}, "人工智能")
	if err != nil {
		t.Fatalf("MergeCategories: %v", err)
	}
	if target.ArticleCount != 3 {
		t.Errorf("target count = %d, want 3", target.ArticleCount)
	}
	if _, err := st.GetCategory(ctx, a.ID); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("source still present: %v", err)
	}

	cats, _ := st.ListCategories(ctx)
	if len(cats) != 1 {
		t.Errorf("categories = %d, want 1", len(cats))
	}
}

func TestTopKeywords(t *testing.T) {
	ctx := context.Background()
	st := New()
	defer st.Close()

	root, _ := st.CreateCategory(ctx, "技术", nil, 1)
	for i := 0; i < 3; i++ {
		kws := []string{"golang"}
		if i > 0 {
			kws = append(kws, "llm")
		}
		if _, err := st.SaveClassification(ctx, store.Article{SourcePath: fmt.Sprintf("k%d.md", i)}, []int64{root.ID}, kws); err != nil {
			t.Fatal(err)
		}
	}

	top, err := st.TopKeywords(ctx, 1)
	if err != nil {
		t.Fatalf("TopKeywords: %v", err)
	}
	if len(top) != 1 || top[0].Keyword != "golang" || top[0].UsageCount != 3 {
		t.Errorf("top = %+v", top)
	}
}
