package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "articlesdb",
		Short: "Build a database of articles shared by a topic's influencers",
		Long: `articlesdb lists the ranked influencers of a topic, walks their recent posts,
resolves every linked article once and writes the collection as one snapshot.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $ARTICLES_DB_CONFIG)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newInspectCommand())
	return cmd
}
