package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Options parameterise the chain client.
type Options struct {
	RPCURL  string
	Timeout time.Duration
}

// Client wraps an Ethereum RPC connection for read-only contract calls.
// The connection is dialed lazily on first use.
type Client struct {
	opts   Options
	logger zerolog.Logger

	mu  sync.Mutex
	eth *ethclient.Client
}

// NewClient builds a chain client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	return &Client{opts: opts, logger: logger.With().Str("component", "chain_client").Logger()}
}

func (c *Client) ethClient(ctx context.Context) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		return c.eth, nil
	}
	if c.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	eth, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.RPCURL, err)
	}
	c.eth = eth
	return eth, nil
}

// Call executes a read-only contract method at the given block (nil = latest)
// and returns the unpacked outputs.
func (c *Client) Call(ctx context.Context, to common.Address, contractABI abi.ABI, block *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	eth, err := c.ethClient(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}

	outputs, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return outputs, nil
}

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	eth, err := c.ethClient(ctx)
	if err != nil {
		return 0, err
	}
	return eth.BlockNumber(ctx)
}

// BlockTime returns the timestamp of the given block.
func (c *Client) BlockTime(ctx context.Context, block *big.Int) (time.Time, error) {
	eth, err := c.ethClient(ctx)
	if err != nil {
		return time.Time{}, err
	}
	header, err := eth.HeaderByNumber(ctx, block)
	if err != nil {
		return time.Time{}, fmt.Errorf("header %s: %w", block, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}

func asAddress(v interface{}) (common.Address, error) {
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("expected address, got %T", v)
	}
	return addr, nil
}

func asBigInt(v interface{}) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected *big.Int, got %T", v)
	}
	return n, nil
}
