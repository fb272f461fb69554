package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vietddude/burnrelay/internal/control"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/storage"
)

var (
	statusWallet string
	statusLimit  int
)

var statusCmd = &cobra.Command{
	Use:   "status [record-id]",
	Short: "Show recent burn records, or the steps of one record",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusWallet, "wallet", "", "only records of this wallet")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of records to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	store, db, err := control.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer func() {
			_ = db.Close()
		}()
	}

	if len(args) == 1 {
		rec, err := store.Get(ctx, args[0])
		if err != nil {
			slog.Error("Failed to load record", "error", err)
			os.Exit(1)
		}
		printRecord(rec)
		return
	}

	recs, err := store.List(ctx, storage.ListFilter{Wallet: statusWallet}, statusLimit, 0)
	if err != nil {
		slog.Error("Failed to list records", "error", err)
		os.Exit(1)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Chain", "Token", "Mode", "Status", "Created")
	for _, r := range recs {
		_ = table.Append([]string{
			r.ID,
			string(r.SourceChain),
			r.TokenSymbol,
			string(r.Mode),
			string(r.Status),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	_ = table.Render()
}

func printRecord(rec *domain.BurnRecord) {
	fmt.Printf("Record %s: %s\n\n", rec.ID, rec.Summary())
	if rec.Plan == nil {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Step", "Chain", "Status", "Attempt", "Tx", "Reason")
	for _, s := range rec.Plan.Steps {
		_ = table.Append([]string{
			s.ID,
			string(s.Chain),
			string(s.Status),
			strconv.Itoa(s.Attempt),
			s.TxRef,
			s.FailureReason,
		})
	}
	_ = table.Render()
}
