package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"collateral-oracle/internal/oracle"
)

// WrapperResolver resolves the underlying token of a wrapped position via
// the wrapper contract's own lookup.
type WrapperResolver struct {
	client *Client
	block  *big.Int
}

// NewWrapperResolver builds a wrapper lookup.
func NewWrapperResolver(client *Client) *WrapperResolver {
	return &WrapperResolver{client: client}
}

// AtBlock returns a view pinned to a historical block.
func (w *WrapperResolver) AtBlock(block *big.Int) *WrapperResolver {
	pinned := *w
	pinned.block = block
	return &pinned
}

// Underlying returns the priceable asset behind a wrapper position.
func (w *WrapperResolver) Underlying(ctx context.Context, wrapper common.Address, positionID *big.Int) (common.Address, error) {
	outputs, err := w.client.Call(ctx, wrapper, wrapperABI, w.block, "getUnderlyingToken", positionID)
	if err != nil {
		return common.Address{}, err
	}
	underlying, err := asAddress(outputs[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("underlying token: %w", err)
	}
	if underlying == (common.Address{}) {
		return common.Address{}, fmt.Errorf("wrapper %s position %s has no underlying token", wrapper.Hex(), positionID)
	}
	return underlying, nil
}

var _ oracle.WrapperResolver = (*WrapperResolver)(nil)
