package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pawbase/petsync/contrib/feedtail"
)

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "feedtail",
		Short: "Tail a Pawbase chat session or notification feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := feedtail.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return feedtail.Run(cmd.Context(), conf, os.Stdout)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
