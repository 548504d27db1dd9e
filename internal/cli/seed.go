package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fare-deal-alerts/internal/app"
)

var (
	seedPath   string
	seedDryRun bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import historical fare observations from a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedPath == "" {
			return fmt.Errorf("--file must be provided")
		}

		opts := app.SeedOptions{
			Path:   seedPath,
			DryRun: seedDryRun,
		}

		return getApp().Seed(cmd.Context(), opts)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedPath, "file", "", "Path to CSV file with historical observations")
	seedCmd.Flags().BoolVar(&seedDryRun, "dry-run", false, "Parse and validate without writing to storage")
}
