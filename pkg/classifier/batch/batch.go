// Package batch drives whole directories of source documents through the
// classification engine: bounded parallel loading, sequential
// classification, periodic taxonomy optimization and checkpoints, and a
// JSON summary report per run.
package batch

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tangyongfeng/article-classifier/pkg/classifier"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/docstore"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/loader"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/optimize"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

const defaultAbortAfter = 10

// Collect walks root and returns the classifiable files under it, sorted
// so runs are deterministic. With no extensions the loader's registered
// formats decide what qualifies; otherwise only the given extensions do,
// case-insensitive, with or without the leading dot.
func Collect(root string, extensions []string) ([]string, error) {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts[e] = struct{}{}
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(exts) == 0 {
			if !loader.Supported(path) {
				return nil
			}
		} else {
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			if _, ok := exts[ext]; !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Runner executes one batch run over a collected file list.
type Runner struct {
	Engine *classifier.Engine
	Store  store.Store
	// Docs receives failure-log entries and checkpoint tree exports.
	// Optional; without it those side files are not written.
	Docs *docstore.DocStore

	// OptimizeEvery triggers a taxonomy optimization after this many newly
	// stored documents. Zero disables in-run optimization.
	OptimizeEvery int
	// CheckpointEvery exports the category tree and rewrites the progress
	// marker after this many handled documents. Zero disables checkpoints.
	CheckpointEvery int
	// ParallelLoaders sizes the content prefetch window, minimum 1. Only
	// loading is parallel; classification and tree mutation stay sequential.
	ParallelLoaders int
	// ReportDir receives summary_<run id>.json and the progress marker.
	// Empty disables both files.
	ReportDir string
	// AbortAfter stops the run once this many documents fail in a row,
	// the signature of a down service rather than bad input. Zero means 10.
	AbortAfter int

	// OnDocument, when set, receives every per-document outcome as it
	// happens. Classification is sequential, so calls never overlap.
	OnDocument func(path string, res classifier.Result, err error)
	// OnOptimize, when set, receives each in-run optimization report.
	OnOptimize func(rep optimize.Report, err error)

	entropy *ulid.MonotonicEntropy
}

// Failure is one per-document error kept in the run summary.
type Failure struct {
	Path string `json:"file_path"`
	Err  string `json:"error"`
}

// CategoryShare is one top-level category's slice of the stored corpus.
type CategoryShare struct {
	Name       string  `json:"name"`
	Articles   int64   `json:"article_count"`
	Percentage float64 `json:"percentage"`
}

// Summary is the final accounting of a run, also written as the report
// JSON when a report directory is configured.
type Summary struct {
	RunID           string          `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	Total           int             `json:"total_files"`
	Processed       int             `json:"processed"`
	Defaulted       int             `json:"defaulted"`
	Skipped         int             `json:"skipped"`
	Failed          int             `json:"failed"`
	SuccessRate     float64         `json:"success_rate"`
	DurationSeconds float64         `json:"duration_seconds"`
	OptimizerRuns   int             `json:"optimizer_runs"`
	OptimizerErrors []string        `json:"optimizer_errors,omitempty"`
	Distribution    []CategoryShare `json:"category_distribution,omitempty"`
	Failures        []Failure       `json:"failures,omitempty"`

	// ReportPath is where the summary JSON landed, empty when reports are
	// disabled or the write failed.
	ReportPath string `json:"-"`
}

// Handled is the number of documents accounted for so far.
func (s Summary) Handled() int {
	return s.Processed + s.Defaulted + s.Skipped + s.Failed
}

// Run processes files in order. Per-document failures are recorded and
// the run continues; only a dead store, a cancelled context or AbortAfter
// consecutive failures end it early.
func (r *Runner) Run(ctx context.Context, files []string) (Summary, error) {
	sum := Summary{
		RunID:     r.runID(),
		StartedAt: time.Now().UTC(),
		Total:     len(files),
	}
	if err := r.check(); err != nil {
		return sum, err
	}
	if _, err := r.Store.CountArticles(ctx); err != nil {
		return sum, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Cancelling on return unblocks the prefetch producer when the run
	// ends before the file list is drained.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	abortAfter := r.AbortAfter
	if abortAfter <= 0 {
		abortAfter = defaultAbortAfter
	}

	var stored, consecutive int
	for slot := range r.prefetch(ctx, files) {
		if err := ctx.Err(); err != nil {
			sum, _ = r.finish(ctx, sum)
			return sum, err
		}
		l := <-slot

		res, err := r.handle(ctx, l)
		if r.OnDocument != nil {
			r.OnDocument(l.path, res, err)
		}

		if err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{Path: l.path, Err: err.Error()})
			r.logFailure(l.path, err)
			consecutive++
			if consecutive >= abortAfter {
				sum, _ = r.finish(ctx, sum)
				return sum, fmt.Errorf("batch: aborted after %d consecutive failures, last: %w", consecutive, err)
			}
		} else {
			switch res.Outcome {
			case classifier.OutcomeProcessed:
				sum.Processed++
			case classifier.OutcomeDefaulted:
				sum.Defaulted++
			case classifier.OutcomeSkipped:
				// Skips say nothing about system health, so the
				// consecutive-failure counter carries across them.
				sum.Skipped++
			}
			if res.Outcome != classifier.OutcomeSkipped {
				consecutive = 0
				stored++
				if r.OptimizeEvery > 0 && stored%r.OptimizeEvery == 0 {
					r.optimize(ctx, &sum)
				}
			}
		}

		if r.CheckpointEvery > 0 && sum.Handled()%r.CheckpointEvery == 0 {
			r.checkpoint(ctx, sum)
		}
	}
	if err := ctx.Err(); err != nil {
		sum, _ = r.finish(ctx, sum)
		return sum, err
	}
	return r.finish(ctx, sum)
}

func (r *Runner) check() error {
	if r.Engine == nil || r.Store == nil {
		return errors.New("batch: engine and store required")
	}
	return nil
}

// loaded is one prefetched file, ready for sequential classification.
type loaded struct {
	path string
	doc  loader.Document
	skip bool
	err  error
}

// prefetch reads file contents ahead of the consumer, at most window at a
// time. Slots come out in input order so classification and category
// creation stay deterministic.
func (r *Runner) prefetch(ctx context.Context, files []string) <-chan chan loaded {
	window := r.ParallelLoaders
	if window < 1 {
		window = 1
	}
	queue := make(chan chan loaded, window)
	var g errgroup.Group
	g.SetLimit(window)

	go func() {
		defer close(queue)
		for _, path := range files {
			path := path
			slot := make(chan loaded, 1)
			select {
			case queue <- slot:
			case <-ctx.Done():
				return
			}
			g.Go(func() error {
				slot <- r.loadOne(ctx, path)
				return nil
			})
		}
		_ = g.Wait() // load errors travel inside the slots
	}()
	return queue
}

// loadOne runs the pre-classification steps that are safe to parallelize,
// the already-stored check and the disk read.
func (r *Runner) loadOne(ctx context.Context, path string) loaded {
	if _, found, err := r.Store.GetArticleByPath(ctx, path); err != nil {
		return loaded{path: path, err: err}
	} else if found {
		return loaded{path: path, skip: true}
	}
	doc, err := loader.Load(path)
	return loaded{path: path, doc: doc, err: err}
}

func (r *Runner) handle(ctx context.Context, l loaded) (classifier.Result, error) {
	switch {
	case l.err != nil:
		return classifier.Result{Outcome: classifier.OutcomeFailed}, l.err
	case l.skip:
		return classifier.Result{Outcome: classifier.OutcomeSkipped}, nil
	}
	res, err := r.Engine.ProcessDocument(ctx, l.doc)
	if err != nil {
		res.Outcome = classifier.OutcomeFailed
		return res, err
	}
	return res, nil
}

// optimize runs one in-run optimization pass. Optimizer trouble is
// recorded in the summary, never fatal to the batch.
func (r *Runner) optimize(ctx context.Context, sum *Summary) {
	rep, err := r.Engine.Optimize(ctx)
	sum.OptimizerRuns++
	if err != nil {
		sum.OptimizerErrors = append(sum.OptimizerErrors, err.Error())
	}
	if r.OnOptimize != nil {
		r.OnOptimize(rep, err)
	}
}

// checkpoint exports the current tree and rewrites the progress marker so
// a long run stays observable from outside. Checkpoint trouble is not
// fatal to the run.
func (r *Runner) checkpoint(ctx context.Context, sum Summary) {
	if r.Docs != nil {
		if cats, err := r.Store.ListCategories(ctx); err == nil {
			_ = r.Docs.ExportCategories(taxonomy.BuildTree(cats))
		}
	}
	if r.ReportDir != "" {
		_ = writeJSON(filepath.Join(r.ReportDir, "progress_"+sum.RunID+".json"), progressOf(sum))
	}
}

type progressMarker struct {
	RunID     string    `json:"run_id"`
	Total     int       `json:"total_files"`
	Handled   int       `json:"handled"`
	Processed int       `json:"processed"`
	Defaulted int       `json:"defaulted"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	UpdatedAt time.Time `json:"updated_at"`
}

func progressOf(sum Summary) progressMarker {
	return progressMarker{
		RunID:     sum.RunID,
		Total:     sum.Total,
		Handled:   sum.Handled(),
		Processed: sum.Processed,
		Defaulted: sum.Defaulted,
		Skipped:   sum.Skipped,
		Failed:    sum.Failed,
		UpdatedAt: time.Now().UTC(),
	}
}

// finish closes the accounting and writes the summary report.
func (r *Runner) finish(ctx context.Context, sum Summary) (Summary, error) {
	sum.FinishedAt = time.Now().UTC()
	sum.DurationSeconds = sum.FinishedAt.Sub(sum.StartedAt).Seconds()
	if sum.Total > 0 {
		sum.SuccessRate = round1(100 * float64(sum.Processed+sum.Defaulted) / float64(sum.Total))
	}
	if dist, err := Distribution(ctx, r.Store); err == nil {
		sum.Distribution = dist
	}
	if r.ReportDir == "" {
		return sum, nil
	}
	path := filepath.Join(r.ReportDir, "summary_"+sum.RunID+".json")
	if err := writeJSON(path, sum); err != nil {
		return sum, fmt.Errorf("write summary report: %w", err)
	}
	sum.ReportPath = path
	return sum, nil
}

// Distribution aggregates the top-level category shares of the stored
// corpus, largest first. Every article links exactly one root, so the
// shares add up to the article total.
func Distribution(ctx context.Context, st store.Store) ([]CategoryShare, error) {
	cats, err := st.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	total, err := st.CountArticles(ctx)
	if err != nil {
		return nil, err
	}
	var shares []CategoryShare
	for _, c := range cats {
		if c.Level != 1 {
			continue
		}
		share := CategoryShare{Name: c.Name, Articles: c.ArticleCount}
		if total > 0 {
			share.Percentage = round1(100 * float64(c.ArticleCount) / float64(total))
		}
		shares = append(shares, share)
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Articles != shares[j].Articles {
			return shares[i].Articles > shares[j].Articles
		}
		return shares[i].Name < shares[j].Name
	})
	return shares, nil
}

// logFailure appends to the on-disk failure log. Log trouble while
// handling a failure has nowhere useful to go.
func (r *Runner) logFailure(path string, err error) {
	if r.Docs == nil {
		return
	}
	_ = r.Docs.AppendFailure(docstore.FailureRecord{
		FilePath:     path,
		ErrorType:    errorType(err),
		ErrorMessage: err.Error(),
	})
}

// errorType buckets an error for the failure log.
func errorType(err error) string {
	switch {
	case errors.Is(err, internalerr.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, internalerr.ErrTransport):
		return "transport"
	case errors.Is(err, internalerr.ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, internalerr.ErrStoreUnavailable):
		return "storage"
	case errors.Is(err, os.ErrNotExist):
		return "missing_file"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (r *Runner) runID() string {
	if r.entropy == nil {
		r.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	return ulid.MustNew(ulid.Now(), r.entropy).String()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
