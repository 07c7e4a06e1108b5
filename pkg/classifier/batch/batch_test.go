package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tangyongfeng/article-classifier/pkg/classifier"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/classify"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/docstore"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/optimize"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/store/memstore"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

const techResponse = `{"category_path": ["技术", "编程"], "summary": "测试摘要", "keywords": ["测试"], "confidence": 0.9}`

type scriptedGenerator struct {
	response string
	err      error
	calls    int
}

func (g *scriptedGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func newTestRunner(t *testing.T, gen classify.Generator) (*Runner, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	t.Cleanup(func() { ms.Close() })

	eng := classifier.New(classifier.Options{
		Store:    ms,
		Client:   classify.New(gen, classify.Config{MaxLevels: 3}),
		Resolver: taxonomy.NewResolver(ms, taxonomy.ResolverConfig{MinConfidence: 0.6}),
		Model:    "gpt-oss:20b",
	})
	r := &Runner{
		Engine:    eng,
		Store:     ms,
		Docs:      &docstore.DocStore{Root: t.TempDir()},
		ReportDir: t.TempDir(),
	}
	return r, ms
}

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("# "+name+"\n\n正文内容。\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return paths
}

func TestCollectFindsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b.md", "d.htm", "notes.markdown", "sub/a.html", "sub/deep/c.txt")
	writeFiles(t, dir, "skip.png", "skip.docx")

	files, err := Collect(dir, nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []string{
		filepath.Join(dir, "b.md"),
		filepath.Join(dir, "d.htm"),
		filepath.Join(dir, "notes.markdown"),
		filepath.Join(dir, "sub", "a.html"),
		filepath.Join(dir, "sub", "deep", "c.txt"),
	}
	if strings.Join(files, "\n") != strings.Join(want, "\n") {
		t.Errorf("Collect = %v, want %v", files, want)
	}
}

func TestCollectCustomExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.md", "b.txt", "c.html")

	files, err := Collect(dir, []string{"MD", ".txt"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "b.txt")}
	if strings.Join(files, "\n") != strings.Join(want, "\n") {
		t.Errorf("Collect = %v, want %v", files, want)
	}
}

func TestCollectMissingRoot(t *testing.T) {
	if _, err := Collect(filepath.Join(t.TempDir(), "absent"), nil); err == nil {
		t.Fatal("expected an error for a missing root")
	}
}

func TestRunProcessesDirectory(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{response: techResponse}
	r, ms := newTestRunner(t, gen)
	files := writeFiles(t, t.TempDir(), "a.md", "b.md", "c.md")

	sum, err := r.Run(ctx, files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Total != 3 || sum.Processed != 3 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.SuccessRate != 100 {
		t.Errorf("SuccessRate = %v", sum.SuccessRate)
	}
	if n, _ := ms.CountArticles(ctx); n != 3 {
		t.Errorf("CountArticles = %d, want 3", n)
	}
	if len(sum.Distribution) != 1 || sum.Distribution[0].Name != "技术" {
		t.Fatalf("Distribution = %+v", sum.Distribution)
	}
	if sum.Distribution[0].Articles != 3 || sum.Distribution[0].Percentage != 100 {
		t.Errorf("Distribution[0] = %+v", sum.Distribution[0])
	}
}

func TestRunWritesSummaryReport(t *testing.T) {
	gen := &scriptedGenerator{response: techResponse}
	r, _ := newTestRunner(t, gen)
	files := writeFiles(t, t.TempDir(), "a.md")

	sum, err := r.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.ReportPath == "" {
		t.Fatal("ReportPath empty")
	}
	if filepath.Base(sum.ReportPath) != "summary_"+sum.RunID+".json" {
		t.Errorf("report name = %s", filepath.Base(sum.ReportPath))
	}
	buf, err := os.ReadFile(sum.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var onDisk Summary
	if err := json.Unmarshal(buf, &onDisk); err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if onDisk.RunID != sum.RunID || onDisk.Processed != 1 {
		t.Errorf("report = %+v", onDisk)
	}
}

func TestRunSecondPassSkips(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{response: techResponse}
	r, _ := newTestRunner(t, gen)
	files := writeFiles(t, t.TempDir(), "a.md", "b.md")

	if _, err := r.Run(ctx, files); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := r.Run(ctx, files)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Skipped != 2 || sum.Processed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if gen.calls != 2 {
		t.Errorf("generator calls = %d, want no calls on the second pass", gen.calls)
	}
}

func TestRunRecordsFailureAndContinues(t *testing.T) {
	ctx := context.Background()
	gen := &scriptedGenerator{response: techResponse}
	r, ms := newTestRunner(t, gen)
	good := writeFiles(t, t.TempDir(), "good.md")[0]
	absent := filepath.Join(t.TempDir(), "absent.md")

	sum, err := r.Run(ctx, []string{absent, good})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Failed != 1 || sum.Processed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.Failures) != 1 || sum.Failures[0].Path != absent {
		t.Fatalf("Failures = %+v", sum.Failures)
	}
	if n, _ := ms.CountArticles(ctx); n != 1 {
		t.Errorf("CountArticles = %d", n)
	}

	recs, err := r.Docs.Failures()
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(recs) != 1 || recs[0].ErrorType != "missing_file" {
		t.Fatalf("failure log = %+v", recs)
	}
}

func TestRunAbortsOnConsecutiveFailures(t *testing.T) {
	gen := &scriptedGenerator{response: techResponse}
	r, _ := newTestRunner(t, gen)
	r.AbortAfter = 3

	dir := t.TempDir()
	files := []string{
		filepath.Join(dir, "a.md"),
		filepath.Join(dir, "b.md"),
		filepath.Join(dir, "c.md"),
		filepath.Join(dir, "d.md"),
	}
	sum, err := r.Run(context.Background(), files)
	if err == nil {
		t.Fatal("expected abort error")
	}
	if !strings.Contains(err.Error(), "consecutive") {
		t.Errorf("err = %v", err)
	}
	if sum.Failed != 3 {
		t.Errorf("Failed = %d, want abort at the third failure", sum.Failed)
	}
}

func TestRunOptimizerCadence(t *testing.T) {
	gen := &scriptedGenerator{response: techResponse}
	r, _ := newTestRunner(t, gen)
	r.OptimizeEvery = 2
	var optCalls int
	r.OnOptimize = func(rep optimize.Report, err error) {
		if err != nil {
			t.Errorf("optimize: %v", err)
		}
		optCalls++
	}
	files := writeFiles(t, t.TempDir(), "a.md", "b.md", "c.md", "d.md", "e.md")

	sum, err := r.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if optCalls != 2 || sum.OptimizerRuns != 2 {
		t.Errorf("optimizer runs = %d (callback %d), want 2", sum.OptimizerRuns, optCalls)
	}
}

func TestRunCheckpointExportsTree(t *testing.T) {
	gen := &scriptedGenerator{response: techResponse}
	r, _ := newTestRunner(t, gen)
	r.CheckpointEvery = 2
	files := writeFiles(t, t.TempDir(), "a.md", "b.md", "c.md", "d.md")

	sum, err := r.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(r.Docs.Root, "categories.json")); err != nil {
		t.Errorf("categories.json not exported: %v", err)
	}
	marker := filepath.Join(r.ReportDir, "progress_"+sum.RunID+".json")
	buf, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("progress marker: %v", err)
	}
	var p progressMarker
	if err := json.Unmarshal(buf, &p); err != nil {
		t.Fatalf("parse marker: %v", err)
	}
	if p.Handled != 4 || p.Total != 4 {
		t.Errorf("marker = %+v", p)
	}
}

func TestRunKeepsInputOrderWithParallelLoaders(t *testing.T) {
	gen := &scriptedGenerator{response: techResponse}
	r, _ := newTestRunner(t, gen)
	r.ParallelLoaders = 4
	var order []string
	r.OnDocument = func(path string, res classifier.Result, err error) {
		order = append(order, path)
	}
	files := writeFiles(t, t.TempDir(), "a.md", "b.md", "c.md", "d.md", "e.md", "f.md")

	if _, err := r.Run(context.Background(), files); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(order, "\n") != strings.Join(files, "\n") {
		t.Errorf("order = %v, want input order", order)
	}
}

func TestRunEmptyFileList(t *testing.T) {
	gen := &scriptedGenerator{response: techResponse}
	r, _ := newTestRunner(t, gen)

	sum, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Total != 0 || sum.Handled() != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.ReportPath == "" {
		t.Error("empty runs still write a report")
	}
}

func TestRunContextCanceled(t *testing.T) {
	gen := &scriptedGenerator{response: techResponse}
	r, _ := newTestRunner(t, gen)
	files := writeFiles(t, t.TempDir(), "a.md", "b.md")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := r.Run(ctx, files)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sum.Processed != 0 {
		t.Errorf("Processed = %d", sum.Processed)
	}
}

func TestErrorTypeBuckets(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: unsupported file format", internalerr.ErrInvalidInput), "invalid_input"},
		{fmt.Errorf("generate: %w", internalerr.ErrTransport), "transport"},
		{os.ErrNotExist, "missing_file"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "error"},
	}
	for _, tc := range cases {
		if got := errorType(tc.err); got != tc.want {
			t.Errorf("errorType(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
