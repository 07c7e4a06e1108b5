package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tangyongfeng/article-classifier/internal/ollama"
	"github.com/tangyongfeng/article-classifier/pkg/classifier"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/batch"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/classify"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/config"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/docstore"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/optimize"
	optadvisor "github.com/tangyongfeng/article-classifier/pkg/classifier/optimize/llm"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/store"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/store/sqlite"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

// pipeline bundles everything a subcommand needs, wired from one config.
type pipeline struct {
	cfg    config.Config
	st     store.Store
	docs   *docstore.DocStore
	llm    *ollama.Client
	engine *classifier.Engine
	runner *batch.Runner
}

// openPipeline loads configuration and connects the store, the inference
// client and the JSON document mirror.
func openPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Storage.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := sqlite.OpenSQLite(ctx, cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Storage.DatabasePath, err)
	}

	gen := &ollama.Client{
		BaseURL:     cfg.Ollama.BaseURL,
		Model:       cfg.Ollama.Model,
		Temperature: cfg.Ollama.Temperature,
		MaxRetries:  cfg.Ollama.MaxRetries,
		HTTPClient:  &http.Client{Timeout: cfg.Ollama.Timeout()},
	}

	docs := &docstore.DocStore{
		Root:           cfg.Storage.JSONRoot,
		OrganizeByDate: cfg.Storage.OrganizeByDate,
		SaveRawContent: cfg.Storage.SaveRawContent,
	}

	opt := &optimize.Optimizer{
		Store:   st,
		Advisor: &optadvisor.Client{Gen: gen, Language: cfg.Classifier.CategoryLanguage},
		Thresholds: optimize.Thresholds{
			MaxLevels:           cfg.Classifier.MaxCategoryLevels,
			SplitMultiplier:     cfg.Optimizer.SplitMultiplier,
			SplitMin:            int64(cfg.Optimizer.SplitMin),
			MergeMaxArticles:    int64(cfg.Optimizer.MergeMaxArticles),
			SimilarityThreshold: cfg.Optimizer.SimilarityThreshold,
			EvolveMinCount:      int64(cfg.Optimizer.EvolveMinCount),
			SampleSize:          cfg.Optimizer.SampleSize,
			MinConfidence:       cfg.Classifier.MinConfidence,
		},
		Language: cfg.Classifier.CategoryLanguage,
		Fallback: cfg.Classifier.FallbackCategory,
	}

	eng := classifier.New(classifier.Options{
		Store: st,
		Client: classify.New(gen, classify.Config{
			MaxLevels:        cfg.Classifier.MaxCategoryLevels,
			FallbackCategory: cfg.Classifier.FallbackCategory,
			Language:         cfg.Classifier.CategoryLanguage,
			StrictTransport:  cfg.Classifier.StrictTransport,
		}),
		Resolver: taxonomy.NewResolver(st, taxonomy.ResolverConfig{
			MaxLevels:           cfg.Classifier.MaxCategoryLevels,
			MinConfidence:       cfg.Classifier.MinConfidence,
			InitialTrainingSize: cfg.Classifier.InitialTrainingSize,
			FallbackCategory:    cfg.Classifier.FallbackCategory,
			Language:            cfg.Classifier.CategoryLanguage,
		}),
		Optimizer: opt,
		Docs:      docs,
		Model:     cfg.Ollama.Model,
	})

	runner := &batch.Runner{
		Engine:          eng,
		Store:           st,
		Docs:            docs,
		CheckpointEvery: cfg.Processing.CheckpointInterval,
		ParallelLoaders: cfg.Processing.ParallelLoaders,
		ReportDir:       filepath.Join(cfg.Storage.JSONRoot, "reports"),
	}
	if cfg.Classifier.AutoOptimize {
		runner.OptimizeEvery = cfg.Classifier.OptimizationInterval
	}

	return &pipeline{cfg: cfg, st: st, docs: docs, llm: gen, engine: eng, runner: runner}, nil
}

func (p *pipeline) Close() {
	if err := p.st.Close(); err != nil {
		log.Printf("WARNING: close store: %v", err)
	}
}

func (p *pipeline) verbose() bool {
	return strings.EqualFold(p.cfg.Logging.Level, "debug")
}

// wireRunnerLogs attaches per-document and optimizer progress lines to the
// runner. A zero total prints a bare counter.
func wireRunnerLogs(r *batch.Runner, total int, verbose bool) {
	var handled int
	r.OnDocument = func(path string, res classifier.Result, err error) {
		handled++
		prefix := fmt.Sprintf("[%d]", handled)
		if total > 0 {
			prefix = fmt.Sprintf("[%d/%d]", handled, total)
		}
		switch {
		case err != nil:
			log.Printf("%s FAIL %s: %v", prefix, path, err)
		case res.Outcome == classifier.OutcomeSkipped:
			if verbose {
				log.Printf("%s skip %s (already stored)", prefix, path)
			}
		default:
			line := fmt.Sprintf("%s %s -> %s (%.2f)", prefix, filepath.Base(path), strings.Join(res.Path, "/"), res.Confidence)
			if res.Outcome == classifier.OutcomeDefaulted {
				line += " [defaulted]"
			}
			if len(res.Created) > 0 {
				line += " new: " + strings.Join(res.Created, ", ")
			}
			log.Print(line)
		}
	}
	r.OnOptimize = logOptimizeReport
}

func logOptimizeReport(rep optimize.Report, err error) {
	if err != nil {
		log.Printf("WARNING: optimizer: %v", err)
		return
	}
	for _, s := range rep.Splits {
		log.Printf("Optimizer: split %s into %s (%d articles reassigned)", s.Category, strings.Join(s.Children, ", "), s.Moved)
	}
	for _, m := range rep.Merges {
		log.Printf("Optimizer: merged %s into %s (%d articles)", strings.Join(m.From, ", "), m.Into, m.Articles)
	}
	for _, e := range rep.Evolved {
		log.Printf("Optimizer: new category %s from keyword %q (%d articles moved)", e.Category, e.Keyword, e.Moved)
	}
	for _, s := range rep.Skips {
		log.Printf("Optimizer: skipped %s of %s: %s", s.Op, s.Category, s.Reason)
	}
	if !rep.Changed() {
		log.Printf("Optimizer: no structural changes")
	}
}

func logSummary(sum batch.Summary) {
	log.Printf("=== Run %s: %d processed, %d defaulted, %d skipped, %d failed of %d (%.1f%% success, %.1fs) ===",
		sum.RunID, sum.Processed, sum.Defaulted, sum.Skipped, sum.Failed, sum.Total, sum.SuccessRate, sum.DurationSeconds)
	shares := sum.Distribution
	if len(shares) > 10 {
		shares = shares[:10]
	}
	for _, share := range shares {
		log.Printf("  %-16s %5d  %5.1f%%", share.Name, share.Articles, share.Percentage)
	}
	if sum.ReportPath != "" {
		log.Printf("Report written to %s", sum.ReportPath)
	}
}
