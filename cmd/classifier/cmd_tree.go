package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/taxonomy"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the category tree with article counts",
	Args:  cobra.NoArgs,
	RunE:  runTree,
}

func runTree(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	cats, err := p.st.ListCategories(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(cats) == 0 {
		fmt.Fprintln(out, "No categories yet. Run 'classifier process' first.")
		return nil
	}
	fmt.Fprintln(out, taxonomy.RenderTree(cats))
	return nil
}
