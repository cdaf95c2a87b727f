package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "fesoni",
		Short:         "Aesthetic shopping assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to a config file (environment variables prefixed FESONI_ override it)")

	cmd.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newStatusCmd(opts),
	)
	return cmd
}
