package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/txmanager/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chain head, pending nonce and RPC provider health",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rpcClient, client, err := control.NewChainClient(cfg)
	if err != nil {
		slog.Error("Failed to create chain client", "error", err)
		os.Exit(1)
	}
	defer rpcClient.Close()

	head, err := client.BlockNumber(ctx)
	if err != nil {
		slog.Error("Failed to read chain head", "error", err)
		os.Exit(1)
	}
	pending, err := client.PendingNonceAt(ctx, cfg.Chain.From)
	if err != nil {
		slog.Error("Failed to read pending nonce", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tHEAD\tFROM\tPENDING NONCE\tNONCE BACKEND")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\n", cfg.Chain.ID, head, cfg.Chain.From, pending, cfg.Nonce.Backend)
	_ = w.Flush()

	fmt.Println()
	fmt.Print(rpcClient.Dashboard())
}
