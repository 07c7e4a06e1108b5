// Package classify turns raw documents into category verdicts by prompting
// an inference model and validating its JSON output.
package classify

import (
	"context"
	"errors"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
)

// Classification is the model's verdict for one document.
type Classification struct {
	Path       []string
	Confidence float64
	Keywords   []string
	Summary    string
}

// Result wraps a classification with provenance.
type Result struct {
	Classification
	// Defaulted marks the fallback produced when the model output was
	// malformed or the service unreachable.
	Defaulted bool
	// Raw is the unparsed model text, kept for logging.
	Raw string
}

// Generator produces raw completion text for a prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Config controls prompt construction and fallback policy.
type Config struct {
	MaxLevels        int
	FallbackCategory string
	// Language selects the prompt set: zh (default) or en.
	Language string
	// StrictTransport reports exhausted transport failures as errors instead
	// of swallowing them into the default classification.
	StrictTransport bool
}

// Client classifies documents through a Generator.
type Client struct {
	gen Generator
	cfg Config
}

// New creates a classification client. Zero config fields fall back to
// three levels, the 未分类 category and Chinese prompts.
func New(gen Generator, cfg Config) *Client {
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = 3
	}
	if cfg.FallbackCategory == "" {
		cfg.FallbackCategory = "未分类"
	}
	return &Client{gen: gen, cfg: cfg}
}

// Classify prompts the model with the document and the current category
// summary. Malformed output and, unless strict, transport failure yield the
// default classification rather than an error.
func (c *Client) Classify(ctx context.Context, title, content, treeContext string) (Result, error) {
	prompt := buildPrompt(c.cfg.Language, title, truncateRunes(content, maxContentRunes), treeContext, c.cfg.MaxLevels)

	raw, err := c.gen.Generate(ctx, "", prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if c.cfg.StrictTransport && errors.Is(err, internalerr.ErrTransport) {
			return Result{}, err
		}
		return c.defaultResult(title, ""), nil
	}

	cl, err := Parse(raw, c.cfg.MaxLevels)
	if err != nil {
		return c.defaultResult(title, raw), nil
	}
	return Result{Classification: cl, Raw: raw}, nil
}

// Default returns the classification used when the model cannot be trusted.
func (c *Client) Default(title string) Classification {
	return Classification{
		Path:    []string{c.cfg.FallbackCategory},
		Summary: truncateRunes(title, maxSummaryRunes),
	}
}

func (c *Client) defaultResult(title, raw string) Result {
	return Result{
		Classification: c.Default(title),
		Defaulted:      true,
		Raw:            raw,
	}
}
