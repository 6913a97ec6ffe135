package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"collateral-oracle/internal/app"
)

var (
	priceAsset string
	priceBlock uint64
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Resolve one asset's USD price through the router",
	RunE: func(cmd *cobra.Command, args []string) error {
		if priceAsset == "" {
			return fmt.Errorf("--asset must be provided")
		}
		return getApp().Price(cmd.Context(), app.PriceOptions{
			Asset: priceAsset,
			Block: priceBlock,
		})
	},
}

func init() {
	priceCmd.Flags().StringVar(&priceAsset, "asset", "", "Asset address to price")
	priceCmd.Flags().Uint64Var(&priceBlock, "block", 0, "Pin the read to a historical block (0 = latest)")
}
