package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config string
}

var rootCmd = &cobra.Command{
	Use:   "classifier",
	Short: "LLM-driven article classification with a self-evolving taxonomy",
	Long: "classifier files articles into a category tree maintained by a local\n" +
		"Ollama model. Documents are classified one at a time and the tree is\n" +
		"periodically split, merged and extended to follow the corpus.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.config, "config", "", "Path to the YAML config file (default: $ARTICLE_CLASSIFIER_CONFIG)")
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
