package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saiset-co/sai-content/app"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <entity_type> [entity_id]",
	Short: "Drop every cached view affected by a change to an entity",
	Args:  cobra.RangeArgs(1, 2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
		fields, _ := cmd.Flags().GetStringToString("field")

		entityID := ""
		if len(args) > 1 {
			entityID = args[1]
		}

		if err := a.Cache.Invalidate(cmd.Context(), args[0], entityID, fields); err != nil {
			return err
		}

		_, err := fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s %s\n", args[0], entityID)
		return err
	}),
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached entry under the configured namespace",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
		removed, err := a.Cache.Clear(cmd.Context())
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", removed)
		return err
	}),
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired and unreadable cache entries",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
		removed, err := a.Cache.Sweep(cmd.Context())
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "swept %d entries\n", removed)
		return err
	}),
}

func init() {
	rootCmd.AddCommand(invalidateCmd, clearCmd, sweepCmd)
	invalidateCmd.Flags().StringToString("field", nil, "Field values used by key templates, e.g. --field category=shabbat")
}
