package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"collateral-oracle/internal/app"
)

var (
	showLimit  int
	showEvents bool
	showAlerts bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent valuation samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Events: showEvents,
			Alerts: showAlerts,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showEvents, "events", false, "Also display the config audit trail")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "Also display recent alerts")
}
