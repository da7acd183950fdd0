package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-content/app"
	"github.com/saiset-co/sai-content/config"
	"github.com/saiset-co/sai-content/types"
)

// withApp builds and starts the content layer for a one-shot command and
// stops it once the command returns.
func withApp(run func(cmd *cobra.Command, args []string, a *app.App) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		configManager, err := config.NewConfigurationManager(cfgFile)
		if err != nil {
			return err
		}

		a, err := app.New(cmd.Context(), configManager)
		if err != nil {
			return types.WrapError(err, "failed to build content layer")
		}

		if err := a.Start(); err != nil {
			return err
		}

		defer func() {
			if err := a.Stop(); err != nil {
				a.Logger.Error("Shutdown failed", zap.String("command", cmd.CommandPath()), zap.Error(err))
			}
		}()

		return run(cmd, args, a)
	}
}
