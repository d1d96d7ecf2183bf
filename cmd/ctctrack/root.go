package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

type commandContext struct {
	logLevel  string
	logFormat string
	logger    *slog.Logger
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "ctctrack",
		Short:         "Link segmented cell masks into CTC tracks and lineage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), ctx.logLevel, ctx.logFormat)
			if err != nil {
				return err
			}
			ctx.logger = logger
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormat, "log-format", "auto", "Log format (auto, text, json)")

	rootCmd.AddCommand(newTrackCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newLineageCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
