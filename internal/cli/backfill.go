package cli

import (
	"github.com/spf13/cobra"

	"collateral-oracle/internal/app"
)

var (
	backfillFromBlock uint64
	backfillToBlock   uint64
	backfillStep      uint64
	backfillDryRun    bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Value vaults over a historical block range",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{
			FromBlock: backfillFromBlock,
			ToBlock:   backfillToBlock,
			Step:      backfillStep,
			DryRun:    backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().Uint64Var(&backfillFromBlock, "from-block", 0, "First block to value (inclusive)")
	backfillCmd.Flags().Uint64Var(&backfillToBlock, "to-block", 0, "Last block to value (inclusive)")
	backfillCmd.Flags().Uint64Var(&backfillStep, "step", 1, "Block stride between valuations")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing to storage")
}
