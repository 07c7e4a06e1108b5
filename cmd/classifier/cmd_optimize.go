package main

import (
	"log"

	"github.com/spf13/cobra"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run one taxonomy optimization pass now",
	Args:  cobra.NoArgs,
	RunE:  runOptimize,
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	log.Printf("Optimizing category tree with model %s", p.cfg.Ollama.Model)
	rep, err := p.engine.Optimize(ctx)
	if err != nil {
		return err
	}
	logOptimizeReport(rep, nil)
	return nil
}
