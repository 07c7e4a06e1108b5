// Package classifier is the document pipeline facade: load a file, ask the
// model for a category path, resolve that path against the stored tree and
// persist the article with its links, keywords and JSON mirror.
package classifier

import (
	"context"
	"time"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/classify"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/docstore"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/loader"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/optimize"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

// Outcome tells what happened to one document.
type Outcome string

const (
	// OutcomeProcessed means the model's classification was stored.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDefaulted means the fallback classification was stored because
	// the model output was unusable.
	OutcomeDefaulted Outcome = "defaulted"
	// OutcomeSkipped means the source path was already in the store.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed is assigned by callers when Process returns an error.
	OutcomeFailed Outcome = "failed"
)

// Options configures an Engine instance.
type Options struct {
	Store    store.Store
	Client   *classify.Client
	Resolver *taxonomy.Resolver
	// Optimizer is optional; without one Optimize is a no-op.
	Optimizer *optimize.Optimizer
	// Docs is the optional JSON mirror written alongside the store.
	Docs *docstore.DocStore
	// Model is recorded in each JSON document's processing info.
	Model string
	// TreeContextLines bounds the category summary embedded in prompts.
	TreeContextLines int
}

// Engine drives the per-document pipeline.
type Engine struct {
	store     store.Store
	client    *classify.Client
	resolver  *taxonomy.Resolver
	optimizer *optimize.Optimizer
	docs      *docstore.DocStore
	model     string
	ctxLines  int
}

// New creates an Engine with the given dependencies.
func New(opts Options) *Engine {
	return &Engine{
		store:     opts.Store,
		client:    opts.Client,
		resolver:  opts.Resolver,
		optimizer: opts.Optimizer,
		docs:      opts.Docs,
		model:     opts.Model,
		ctxLines:  opts.TreeContextLines,
	}
}

// Close shuts down the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Result describes one document's trip through the pipeline.
type Result struct {
	Outcome   Outcome
	ArticleID int64
	Title     string
	// Path is the resolved chain, root first.
	Path       []string
	Confidence float64
	// Created names the category nodes minted during resolution.
	Created   []string
	Truncated bool
	Fallback  bool
	Duration  time.Duration
}

// Process runs one file through load, classify, resolve and persist. Files
// whose source path is already stored are skipped, which makes re-runs over
// the same directory idempotent.
func (e *Engine) Process(ctx context.Context, path string) (Result, error) {
	if _, found, err := e.store.GetArticleByPath(ctx, path); err != nil {
		return Result{}, err
	} else if found {
		return Result{Outcome: OutcomeSkipped}, nil
	}

	doc, err := loader.Load(path)
	if err != nil {
		return Result{}, err
	}
	return e.ProcessDocument(ctx, doc)
}

// ProcessDocument classifies an already-loaded document. The batch runner
// uses this entry point when it prefetches file contents.
func (e *Engine) ProcessDocument(ctx context.Context, doc loader.Document) (Result, error) {
	start := time.Now()

	cats, err := e.store.ListCategories(ctx)
	if err != nil {
		return Result{}, err
	}
	treeContext := taxonomy.RenderContext(cats, e.ctxLines)

	res, err := e.client.Classify(ctx, doc.Title, doc.Content, treeContext)
	if err != nil {
		return Result{}, err
	}

	resolved, err := e.resolver.Resolve(ctx, res.Path, res.Confidence)
	if err != nil {
		return Result{}, err
	}

	article := store.Article{
		SourcePath:   doc.SourcePath,
		Title:        doc.Title,
		Summary:      res.Summary,
		Confidence:   res.Confidence,
		Defaulted:    res.Defaulted,
		ClassifiedAt: time.Now().UTC(),
	}
	id, err := e.store.SaveClassification(ctx, article, resolved.IDs(), res.Keywords)
	if err != nil {
		return Result{}, err
	}

	if e.docs != nil {
		if err := e.saveDocument(id, doc, res, resolved, time.Since(start)); err != nil {
			return Result{}, err
		}
	}

	outcome := OutcomeProcessed
	if res.Defaulted {
		outcome = OutcomeDefaulted
	}
	return Result{
		Outcome:    outcome,
		ArticleID:  id,
		Title:      doc.Title,
		Path:       resolved.Names(),
		Confidence: res.Confidence,
		Created:    resolved.Created,
		Truncated:  resolved.Truncated,
		Fallback:   resolved.Fallback,
		Duration:   time.Since(start),
	}, nil
}

// Optimize runs a taxonomy optimization pass when an optimizer is wired.
func (e *Engine) Optimize(ctx context.Context) (optimize.Report, error) {
	if e.optimizer == nil {
		return optimize.Report{}, nil
	}
	return e.optimizer.Run(ctx)
}

func (e *Engine) saveDocument(id int64, doc loader.Document, res classify.Result, resolved taxonomy.ResolvedPath, took time.Duration) error {
	_, err := e.docs.SaveArticle(docstore.ArticleDoc{
		ID: id,
		Metadata: docstore.Metadata{
			FilePath:    doc.SourcePath,
			Title:       doc.Title,
			CreatedAt:   doc.CreatedAt,
			ProcessedAt: time.Now().UTC(),
			FileFormat:  doc.Format,
			FileSize:    doc.FileSize,
		},
		Content: docstore.Content{Raw: doc.RawContent, Cleaned: doc.Content},
		Classification: docstore.ClassificationInfo{
			CategoryPath: resolved.Names(),
			CategoryIDs:  resolved.IDs(),
			Confidence:   res.Confidence,
			Keywords:     res.Keywords,
			Summary:      res.Summary,
		},
		Processing: docstore.ProcessingInfo{
			Model:           e.model,
			DurationSeconds: took.Seconds(),
		},
	})
	return err
}
