package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/batch"
)

var processFlags struct {
	extensions []string
	limit      int
	noOptimize bool
	reportDir  string
}

var processCmd = &cobra.Command{
	Use:   "process <path>",
	Short: "Classify a directory of articles, or a single file",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func init() {
	f := processCmd.Flags()
	f.StringSliceVar(&processFlags.extensions, "extensions", nil, "File extensions to collect (default: every supported format)")
	f.IntVar(&processFlags.limit, "limit", 0, "Handle at most N files this run (0 = all; overrides processing.batch_size)")
	f.BoolVar(&processFlags.noOptimize, "no-optimize", false, "Disable in-run taxonomy optimization")
	f.StringVar(&processFlags.reportDir, "report-dir", "", "Summary report directory (default: <json_root>/reports)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	info, err := os.Stat(args[0])
	if err != nil {
		return err
	}
	var files []string
	if info.IsDir() {
		files, err = batch.Collect(args[0], processFlags.extensions)
		if err != nil {
			return err
		}
	} else {
		files = []string{args[0]}
	}
	if len(files) == 0 {
		log.Printf("No classifiable files under %s", args[0])
		return nil
	}

	limit := processFlags.limit
	if limit == 0 {
		limit = p.cfg.Processing.BatchSize
	}
	if limit > 0 && len(files) > limit {
		log.Printf("Limiting run to the first %d of %d files", limit, len(files))
		files = files[:limit]
	}

	r := p.runner
	if processFlags.noOptimize {
		r.OptimizeEvery = 0
	}
	if processFlags.reportDir != "" {
		r.ReportDir = processFlags.reportDir
	}
	wireRunnerLogs(r, len(files), p.verbose())

	if err := p.llm.Ping(ctx); err != nil {
		log.Printf("WARNING: ollama not reachable at %s: %v", p.cfg.Ollama.BaseURL, err)
	}

	log.Printf("Processing %d files from %s with model %s", len(files), args[0], p.cfg.Ollama.Model)
	sum, err := r.Run(ctx, files)
	logSummary(sum)
	return err
}
