// Package llm implements optimize.Advisor on top of the same generation
// endpoint the classifier uses.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/classify"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
	"github.com/tangyongfeng/article-classifier/pkg/classifier/optimize"
)

// Generator produces one completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Client asks the model to name structural changes to the category tree.
type Client struct {
	Gen      Generator
	Language string
	Prompts  PromptTemplates
}

// PromptTemplates allow customization of the advisory prompt text. Split
// receives the category name and the article sample block, Merge the joined
// name list, Evolve the keyword and the title block.
type PromptTemplates struct {
	Split  string
	Merge  string
	Evolve string
}

type splitPayload struct {
	SubCategories *[]string `json:"sub_categories"`
}

type mergePayload struct {
	MergedName *string `json:"merged_name"`
}

type evolvePayload struct {
	CategoryName *string `json:"category_name"`
}

// SuggestSplit implements optimize.Advisor.
func (c *Client) SuggestSplit(ctx context.Context, category string, samples []optimize.ArticleSample) ([]string, error) {
	prompt := fmt.Sprintf(c.splitTemplate(), category, renderSamples(samples))
	raw, err := c.Gen.Generate(ctx, "", prompt)
	if err != nil {
		return nil, err
	}
	obj, err := classify.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload splitPayload
	if err := json.Unmarshal(obj, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrMalformedResponse, err)
	}
	if payload.SubCategories == nil {
		return nil, fmt.Errorf("%w: missing sub_categories", internalerr.ErrMalformedResponse)
	}
	return *payload.SubCategories, nil
}

// SuggestMergeName implements optimize.Advisor.
func (c *Client) SuggestMergeName(ctx context.Context, names []string) (string, error) {
	prompt := fmt.Sprintf(c.mergeTemplate(), strings.Join(names, "、"))
	raw, err := c.Gen.Generate(ctx, "", prompt)
	if err != nil {
		return "", err
	}
	obj, err := classify.ExtractJSON(raw)
	if err != nil {
		return "", err
	}
	var payload mergePayload
	if err := json.Unmarshal(obj, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", internalerr.ErrMalformedResponse, err)
	}
	if payload.MergedName == nil {
		return "", fmt.Errorf("%w: missing merged_name", internalerr.ErrMalformedResponse)
	}
	return *payload.MergedName, nil
}

// SuggestCategoryName implements optimize.Advisor.
func (c *Client) SuggestCategoryName(ctx context.Context, keyword string, titles []string) (string, error) {
	prompt := fmt.Sprintf(c.evolveTemplate(), keyword, renderTitles(titles))
	raw, err := c.Gen.Generate(ctx, "", prompt)
	if err != nil {
		return "", err
	}
	obj, err := classify.ExtractJSON(raw)
	if err != nil {
		return "", err
	}
	var payload evolvePayload
	if err := json.Unmarshal(obj, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", internalerr.ErrMalformedResponse, err)
	}
	if payload.CategoryName == nil {
		return "", fmt.Errorf("%w: missing category_name", internalerr.ErrMalformedResponse)
	}
	return *payload.CategoryName, nil
}

func (c *Client) splitTemplate() string {
	if c.Prompts.Split != "" {
		return c.Prompts.Split
	}
	if c.Language == "en" {
		return "Category \"%s\" holds too many articles and needs finer sub-categories.\n\nArticle sample:\n%s\nPropose 2 to 4 sub-category names. Return only JSON: {\"sub_categories\": [\"name1\", \"name2\"]}"
	}
	return "分类「%s」的文章过多，需要拆分为更细的子分类。\n\n文章样本：\n%s\n请提出2到4个子分类名称。只返回JSON：{\"sub_categories\": [\"子分类1\", \"子分类2\"]}"
}

func (c *Client) mergeTemplate() string {
	if c.Prompts.Merge != "" {
		return c.Prompts.Merge
	}
	if c.Language == "en" {
		return "These sibling categories mean nearly the same thing and will be merged: %s.\nPick or propose the single name to keep. Return only JSON: {\"merged_name\": \"name\"}"
	}
	return "以下同级分类含义相近，将被合并为一个：%s。\n请选择或提出一个最合适的保留名称。只返回JSON：{\"merged_name\": \"名称\"}"
}

func (c *Client) evolveTemplate() string {
	if c.Prompts.Evolve != "" {
		return c.Prompts.Evolve
	}
	if c.Language == "en" {
		return "Recent articles keep mentioning the keyword \"%s\" but no existing category covers it.\nRelated titles:\n%s\nPropose one top-level category name for them. Return only JSON: {\"category_name\": \"name\"}"
	}
	return "最近的文章中频繁出现关键词「%s」，但现有分类无法覆盖。\n相关文章标题：\n%s\n请为这类文章提出一个一级分类名称。只返回JSON：{\"category_name\": \"名称\"}"
}

func renderSamples(samples []optimize.ArticleSample) string {
	var b strings.Builder
	for _, s := range samples {
		if len(s.Keywords) > 0 {
			fmt.Fprintf(&b, "- %s (%s)\n", s.Title, strings.Join(s.Keywords, ", "))
			continue
		}
		fmt.Fprintf(&b, "- %s\n", s.Title)
	}
	return b.String()
}

func renderTitles(titles []string) string {
	var b strings.Builder
	for _, t := range titles {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	return b.String()
}
