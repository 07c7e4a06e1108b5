package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/batch"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus and taxonomy statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	stats, err := p.st.Stats(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Articles:       %d (%d defaulted)\n", stats.Articles, stats.Defaulted)
	fmt.Fprintf(out, "Categories:     %d%s\n", stats.Categories, levelBreakdown(stats.LevelCounts))
	fmt.Fprintf(out, "Keywords:       %d\n", stats.Keywords)
	fmt.Fprintf(out, "Avg confidence: %.2f\n", stats.AvgConfidence)

	dist, err := batch.Distribution(ctx, p.st)
	if err != nil {
		return err
	}
	if len(dist) > 0 {
		fmt.Fprintf(out, "\nTop categories:\n")
		if len(dist) > 10 {
			dist = dist[:10]
		}
		for _, share := range dist {
			fmt.Fprintf(out, "  %-16s %5d  %5.1f%%\n", share.Name, share.Articles, share.Percentage)
		}
	}

	kws, err := p.st.TopKeywords(ctx, 10)
	if err != nil {
		return err
	}
	if len(kws) > 0 {
		parts := make([]string, 0, len(kws))
		for _, kw := range kws {
			parts = append(parts, fmt.Sprintf("%s (%d)", kw.Keyword, kw.UsageCount))
		}
		fmt.Fprintf(out, "\nTop keywords: %s\n", strings.Join(parts, ", "))
	}
	return nil
}

func levelBreakdown(counts map[int]int64) string {
	if len(counts) == 0 {
		return ""
	}
	levels := make([]int, 0, len(counts))
	for lvl := range counts {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)
	parts := make([]string, 0, len(levels))
	for _, lvl := range levels {
		parts = append(parts, fmt.Sprintf("level %d: %d", lvl, counts[lvl]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
