package app

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"collateral-oracle/internal/oracle"
)

// Price resolves one asset's USD price through the configured router and
// prints the result. A non-zero block pins the read to history.
func (a *App) Price(ctx context.Context, opts PriceOptions) error {
	if !common.IsHexAddress(opts.Asset) {
		return fmt.Errorf("--asset %q is not a hex address", opts.Asset)
	}
	asset := common.HexToAddress(opts.Asset)

	var block *big.Int
	if opts.Block > 0 {
		block = new(big.Int).SetUint64(opts.Block)
	}

	client := a.newChainClient()
	defer client.Close()

	stack, err := a.buildOracle(ctx, client, oracle.NewLogEventSink(a.Logger), block)
	if err != nil {
		return err
	}

	price, err := stack.router.GetPrice(ctx, asset)
	if err != nil {
		return err
	}

	source := ""
	if route, ok := stack.router.Route(asset); ok {
		source = route.Name()
	}
	threshold := ""
	if bps, ok := stack.router.LiquidationThreshold(asset); ok {
		threshold = fmt.Sprintf("%d bps", bps)
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Asset\tPrice (USD)\tSource\tLiquidation Threshold")
	fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", asset.Hex(), price.StringFixed(6), source, threshold)
	return writer.Flush()
}
