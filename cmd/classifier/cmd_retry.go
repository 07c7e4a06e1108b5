package main

import (
	"log"

	"github.com/spf13/cobra"
)

var retryFlags struct {
	clear bool
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reprocess the files in the failure log",
	Args:  cobra.NoArgs,
	RunE:  runRetry,
}

func init() {
	retryCmd.Flags().BoolVar(&retryFlags.clear, "clear", false, "Empty the failure log before retrying")
}

func runRetry(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	recs, err := p.docs.Failures()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		log.Printf("Failure log is empty, nothing to retry")
		return nil
	}
	log.Printf("Retrying from %d failure records", len(recs))

	wireRunnerLogs(p.runner, 0, p.verbose())
	sum, err := p.runner.Retry(ctx, retryFlags.clear)
	logSummary(sum)
	return err
}
