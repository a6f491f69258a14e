package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "onboardctl",
		Short:        "Tenant onboarding operator tools",
		SilenceUsage: true,
	}
	cmd.AddCommand(newTemplateCmd(), newImportCmd(), newMigrateCmd())
	return cmd
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
