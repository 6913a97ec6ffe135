package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateVault        string
	simulateDeviationBps int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Simulate a guard trip and exercise the alert path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateVault == "" {
			return errors.New("--vault must be provided")
		}
		if simulateDeviationBps <= 0 {
			return errors.New("--deviation-bps must be greater than 0")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateVault, simulateDeviationBps)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateVault, "vault", "", "Vault address to report in the alert")
	simulateCmd.Flags().Int64Var(&simulateDeviationBps, "deviation-bps", 0, "Simulated tick deviation in basis points")
}
