package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/txmanager/internal/control"
	"github.com/vietddude/txmanager/internal/core/domain"
	redisclient "github.com/vietddude/txmanager/internal/infra/redis"
)

var journalFlags struct {
	hashes      []string
	transaction string
	limit       int
	stream      bool
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print recorded transaction lifecycle events",
	Run:   runJournal,
}

func init() {
	journalCmd.Flags().StringSliceVar(&journalFlags.hashes, "hash", nil, "only events of these transaction hashes")
	journalCmd.Flags().StringVar(&journalFlags.transaction, "tx", "", "only events of this transaction id")
	journalCmd.Flags().IntVar(&journalFlags.limit, "limit", 20, "number of recent events to show")
	journalCmd.Flags().BoolVar(&journalFlags.stream, "stream", false, "read the Redis stream instead of the journal store")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if journalFlags.stream {
		if cfg.Journal.Stream == "" || cfg.Redis.URL == "" {
			slog.Error("Journal stream is not configured")
			os.Exit(1)
		}
		rdb, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		events, err := rdb.RecentEvents(ctx, redisclient.StreamKey(cfg.Journal.Stream), int64(journalFlags.limit))
		if err != nil {
			slog.Error("Failed to read stream", "error", err)
			os.Exit(1)
		}
		ptrs := make([]*domain.Event, len(events))
		for i := range events {
			ptrs[i] = &events[i]
		}
		printEvents(os.Stdout, ptrs)
		return
	}

	repo, _, err := control.OpenJournal(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open journal", "error", err)
		os.Exit(1)
	}
	if repo == nil {
		slog.Error("Journal is disabled", "backend", cfg.Journal.Backend)
		os.Exit(1)
	}
	defer repo.Close()

	var events []*domain.Event
	switch {
	case len(journalFlags.hashes) > 0:
		events, err = repo.ListByHash(ctx, journalFlags.hashes...)
	case journalFlags.transaction != "":
		events, err = repo.ListByTransaction(ctx, journalFlags.transaction)
	default:
		events, err = repo.Recent(ctx, journalFlags.limit)
	}
	if err != nil {
		slog.Error("Failed to query journal", "error", err)
		os.Exit(1)
	}
	printEvents(os.Stdout, events)
}

func printEvents(out io.Writer, events []*domain.Event) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TIME\tTX\tHASH\tSTATE\tBLOCK\tERROR")
	for _, ev := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			ev.OccurredAt.Format(time.RFC3339), ev.TransactionID, ev.TxHash, ev.State, ev.BlockNumber, ev.Error)
	}
	_ = w.Flush()
}
