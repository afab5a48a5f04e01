package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"ArticlesDB/internal/domain"
	"ArticlesDB/internal/infrastructure/snapshot"
)

func newInspectCommand() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "inspect <snapshot.json>",
		Short: "Summarise a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articles, err := snapshot.Read(args[0])
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), articles, top)
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "number of most shared articles to list")
	return cmd
}

// printReport writes totals followed by the top most-shared articles. Ties keep
// snapshot order.
func printReport(w io.Writer, articles []domain.Article, top int) {
	posts := 0
	for _, a := range articles {
		posts += len(a.Posts)
	}
	fmt.Fprintf(w, "articles: %d\nposts: %d\n", len(articles), posts)

	ranked := make([]domain.Article, len(articles))
	copy(ranked, articles)
	sort.SliceStable(ranked, func(i, j int) bool {
		return len(ranked[i].Posts) > len(ranked[j].Posts)
	})

	if top > len(ranked) {
		top = len(ranked)
	}
	for i := 0; i < top; i++ {
		a := ranked[i]
		fmt.Fprintf(w, "%4d  %-24s  %s\n", len(a.Posts), a.Domain, a.Title)
	}
}
