package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"merkaz/internal/server/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand(config.Load())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "portalctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portalctl",
		Short: "Operator CLI for the upload portal",
		Long: `portalctl mints bearer tokens, submits files and folders for review,
and manages the user directory of an upload portal server.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newTokenCmd(cfg),
		newUploadCmd(cfg),
		newUsersCmd(cfg),
	)
	return cmd
}
