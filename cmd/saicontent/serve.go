package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saiset-co/sai-content/app"
	"github.com/saiset-co/sai-content/config"
	"github.com/saiset-co/sai-content/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mutation feed, maintenance jobs and metrics endpoint until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		configManager, err := config.NewConfigurationManager(cfgFile)
		if err != nil {
			return err
		}

		a, err := app.New(cmd.Context(), configManager)
		if err != nil {
			return types.WrapError(err, "failed to build content layer")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
