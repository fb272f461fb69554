package cli

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vietddude/burnrelay/internal/control"
)

var headsCmd = &cobra.Command{
	Use:   "heads",
	Short: "Query the latest head of every configured chain",
	Run:   runHeads,
}

func init() {
	rootCmd.AddCommand(headsCmd)
}

func runHeads(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	chains := control.BuildChains(cfg)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Chain", "Head", "Latency", "Error")
	failed := false
	for _, ch := range cfg.Chains {
		adapter, ok := chains.Get(ch.ID)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		start := time.Now()
		head, err := adapter.LatestHead(ctx)
		cancel()
		latency := time.Since(start).Round(time.Millisecond)
		if err != nil {
			failed = true
			_ = table.Append([]string{string(ch.ID), "-", latency.String(), err.Error()})
			continue
		}
		_ = table.Append([]string{string(ch.ID), strconv.FormatUint(head, 10), latency.String(), ""})
	}
	_ = table.Render()
	if failed {
		os.Exit(1)
	}
}
