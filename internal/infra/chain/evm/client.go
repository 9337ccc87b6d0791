package evm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/infra/chain"
	"github.com/vietddude/txmanager/internal/infra/rpc"
)

// Config holds the chain defaults applied to every transaction.
type Config struct {
	ChainID  uint64
	From     string
	Gas      uint64
	GasPrice *uint256.Int
}

// Client implements chain.Client over Ethereum JSON-RPC.
type Client struct {
	rpc rpc.Caller
	cfg Config
	log *slog.Logger
}

var _ chain.Client = (*Client)(nil)

func NewClient(caller rpc.Caller, cfg Config) *Client {
	return &Client{
		rpc: caller,
		cfg: cfg,
		log: slog.Default().With("component", "evm"),
	}
}

// TransactionSettings returns the configured defaults. The gas price is read
// from the node when not configured.
func (c *Client) TransactionSettings(ctx context.Context) (chain.TxOptions, error) {
	opts := chain.TxOptions{
		From:    c.cfg.From,
		Gas:     c.cfg.Gas,
		ChainID: c.cfg.ChainID,
	}
	if c.cfg.GasPrice != nil {
		opts.GasPrice = new(uint256.Int).Set(c.cfg.GasPrice)
		return opts, nil
	}

	result, err := c.rpc.Call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return chain.TxOptions{}, fmt.Errorf("eth_gasPrice failed: %w", err)
	}
	price, err := uint256.FromHex(getString(result))
	if err != nil {
		return chain.TxOptions{}, fmt.Errorf("invalid gas price %v: %w", result, err)
	}
	opts.GasPrice = price
	return opts, nil
}

func (c *Client) SendTransaction(ctx context.Context, opts chain.TxOptions) (string, error) {
	result, err := c.rpc.Call(ctx, "eth_sendTransaction", []any{encodeTx(opts)})
	if err != nil {
		return "", fmt.Errorf("eth_sendTransaction failed: %w", err)
	}
	hash := getString(result)
	if hash == "" {
		return "", fmt.Errorf("invalid transaction hash response: %v", result)
	}
	c.log.Debug("transaction sent", "hash", hash, "to", opts.To, "nonce", opts.Nonce)
	return hash, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*domain.Receipt, error) {
	result, err := c.rpc.Call(ctx, "eth_getTransactionReceipt", []any{hash})
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt failed: %w", err)
	}
	if result == nil {
		return nil, nil // not mined yet
	}

	raw, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid receipt format")
	}

	receipt := &domain.Receipt{
		TxHash:    getString(raw["transactionHash"]),
		BlockHash: getString(raw["blockHash"]),
	}
	if receipt.BlockNumber, err = parseHexString(getString(raw["blockNumber"])); err != nil {
		return nil, fmt.Errorf("invalid receipt block number: %w", err)
	}
	if receipt.Status, err = parseHexString(getString(raw["status"])); err != nil {
		return nil, fmt.Errorf("invalid receipt status: %w", err)
	}
	receipt.GasUsed, _ = parseHexString(getString(raw["gasUsed"]))
	return receipt, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.rpc.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	return parseHexString(getString(result))
}

func (c *Client) PendingNonceAt(ctx context.Context, addr string) (uint64, error) {
	result, err := c.rpc.Call(ctx, "eth_getTransactionCount", []any{addr, "pending"})
	if err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount failed: %w", err)
	}
	return parseHexString(getString(result))
}

func encodeTx(opts chain.TxOptions) map[string]any {
	tx := map[string]any{"from": opts.From}
	if opts.To != "" {
		tx["to"] = opts.To
	}
	if len(opts.Data) > 0 {
		tx["data"] = hexutil.Encode(opts.Data)
	}
	if opts.Value != nil {
		tx["value"] = opts.Value.Hex()
	}
	if opts.Gas != 0 {
		tx["gas"] = toHex(opts.Gas)
	}
	if opts.GasPrice != nil {
		tx["gasPrice"] = opts.GasPrice.Hex()
	}
	if opts.Nonce != nil {
		tx["nonce"] = toHex(*opts.Nonce)
	}
	if opts.ChainID != 0 {
		tx["chainId"] = toHex(opts.ChainID)
	}
	return tx
}

func toHex(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}

func parseHexString(hexStr string) (uint64, error) {
	if hexStr == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(hexStr, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex: %s", hexStr)
	}
	return n, nil
}

func getString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
