package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/vietddude/txmanager/internal/control"
	"github.com/vietddude/txmanager/internal/core/config"
	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/core/future"
	"github.com/vietddude/txmanager/internal/infra/chain"
	"github.com/vietddude/txmanager/internal/infra/chain/evm"
	"github.com/vietddude/txmanager/internal/manager"
	"github.com/vietddude/txmanager/internal/txstate"
)

var sendFlags struct {
	to            string
	data          string
	value         string
	gas           uint64
	method        string
	args          []string
	abi           string
	proxy         bool
	confirmations uint64
	timeout       time.Duration
}

// contractCall is a send routed through contract-method dispatch.
type contractCall struct {
	contract *evm.Contract
	method   string
	args     []any
	proxy    bool
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one transaction and follow it until confirmed",
	Run:   runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendFlags.to, "to", "", "recipient address")
	sendCmd.Flags().StringVar(&sendFlags.data, "data", "", "hex calldata")
	sendCmd.Flags().StringVar(&sendFlags.value, "value", "", "value in wei (decimal)")
	sendCmd.Flags().Uint64Var(&sendFlags.gas, "gas", 0, "gas limit (default from config)")
	sendCmd.Flags().StringVar(&sendFlags.method, "method", "", `contract method, e.g. "transfer(address,uint256)" (replaces --data)`)
	sendCmd.Flags().StringArrayVar(&sendFlags.args, "arg", nil, "method argument, repeat in order")
	sendCmd.Flags().StringVar(&sendFlags.abi, "abi", "", "JSON ABI file of the target contract")
	sendCmd.Flags().BoolVar(&sendFlags.proxy, "proxy", false, "route the call through the configured proxy contract")
	sendCmd.Flags().Uint64Var(&sendFlags.confirmations, "confirmations", 0, "confirmations to wait for (default from config)")
	sendCmd.Flags().DurationVar(&sendFlags.timeout, "timeout", 15*time.Minute, "give up after this long")
	_ = sendCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(sendCmd)
}

// parseTxFlags turns the send flags into transaction options.
func parseTxFlags(to, data, value string, gas uint64) (chain.TxOptions, error) {
	opts := chain.TxOptions{To: to, Gas: gas}
	if data != "" {
		if !strings.HasPrefix(data, "0x") {
			data = "0x" + data
		}
		b, err := hexutil.Decode(data)
		if err != nil {
			return opts, fmt.Errorf("invalid --data: %w", err)
		}
		opts.Data = b
	}
	if value != "" {
		v, err := uint256.FromDecimal(value)
		if err != nil {
			return opts, fmt.Errorf("invalid --value: %w", err)
		}
		opts.Value = v
	}
	return opts, nil
}

// parseContractCall binds to as a contract exposing method. Without an ABI
// file method must be a full signature. Arguments are passed as strings and
// converted by the ABI binding.
func parseContractCall(to, method, abiPath string, rawArgs []string) (*contractCall, error) {
	var (
		contract *evm.Contract
		err      error
	)
	if abiPath == "" {
		contract, err = evm.NewContract("cli", to, method)
	} else {
		var f *os.File
		f, err = os.Open(abiPath)
		if err != nil {
			return nil, fmt.Errorf("open --abi: %w", err)
		}
		defer f.Close()
		contract, err = evm.NewContractFromJSON(filepath.Base(abiPath), to, f)
	}
	if err != nil {
		return nil, err
	}
	if _, ok := contract.Method(method); !ok {
		return nil, fmt.Errorf("method %q not found in %s", method, contract.Name())
	}

	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = a
	}
	return &contractCall{contract: contract, method: method, args: args}, nil
}

func runSend(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	opts, err := parseTxFlags(sendFlags.to, sendFlags.data, sendFlags.value, sendFlags.gas)
	if err != nil {
		slog.Error("Invalid transaction", "error", err)
		os.Exit(1)
	}
	var call *contractCall
	if sendFlags.method != "" {
		call, err = parseContractCall(sendFlags.to, sendFlags.method, sendFlags.abi, sendFlags.args)
		if err != nil {
			slog.Error("Invalid contract call", "error", err)
			os.Exit(1)
		}
		call.proxy = sendFlags.proxy
	}
	confirmations := sendFlags.confirmations
	if confirmations == 0 {
		confirmations = cfg.Chain.Confirmations
	}

	if err := sendAndConfirm(cfg, opts, call, confirmations); err != nil {
		slog.Error("Transaction failed", "error", err)
		os.Exit(1)
	}
}

func sendAndConfirm(cfg *config.AppConfig, opts chain.TxOptions, call *contractCall, confirmations uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendFlags.timeout)
	defer cancel()

	app, err := control.NewService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize service: %w", err)
	}
	app.StartWorkers(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := app.Stop(stopCtx); err != nil {
			slog.Warn("Error during shutdown", "error", err)
		}
	}()

	mgr := app.Manager()
	callOpts := manager.CallOptions{
		Metadata: map[string]any{"source": "cli"},
	}
	var h *future.Future[*domain.Receipt]
	if call != nil {
		callOpts.Tx = opts
		if call.proxy {
			callOpts.Proxy = &manager.ProxyOption{}
		}
		h = mgr.SendContractCall(ctx, call.contract, call.method, append(call.args, callOpts)...)
	} else {
		h = mgr.SendTransaction(ctx, opts, callOpts)
	}
	err = mgr.ListenFunc(h, func(event domain.TxState, tx *txstate.Transaction, err error) {
		if err != nil {
			fmt.Printf("%-12s %s error=%v\n", event, tx.Hash(), err)
			return
		}
		fmt.Printf("%-12s %s\n", event, tx.Hash())
	})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if err := mgr.Confirm(ctx, h, confirmations); err != nil {
		return err
	}

	tx, err := mgr.GetTransaction(h)
	if err != nil {
		return err
	}
	receipt := tx.Receipt()
	fmt.Printf("confirmed %s in block %d (gas used %d, %d confirmations)\n",
		receipt.TxHash, receipt.BlockNumber, receipt.GasUsed, confirmations)
	return nil
}
