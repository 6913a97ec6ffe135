package chain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

func TestCallMissingRPCURL(t *testing.T) {
	client := NewClient(Options{}, zerolog.Nop())
	_, err := client.Call(context.Background(), common.Address{}, erc20ABI, nil, "decimals")
	if err == nil {
		t.Fatal("expected error without a configured rpc url")
	}
}
