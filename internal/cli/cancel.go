package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/burnrelay/internal/control"
	"github.com/vietddude/burnrelay/internal/core/domain"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [record-id]",
	Short: "Cancel a burn that has not submitted anything yet",
	Args:  cobra.ExactArgs(1),
	Run:   runCancel,
}

var classifyCmd = &cobra.Command{
	Use:   "classify [chain] [token]",
	Short: "Classify a token without starting a burn",
	Args:  cobra.ExactArgs(2),
	Run:   runClassify,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(classifyCmd)
}

// withApp builds the application without serving and stops it after fn.
func withApp(fn func(ctx context.Context, app *control.App) error) {
	cfg := loadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize burnrelay", "error", err)
		os.Exit(1)
	}
	runErr := fn(ctx, app)
	if err := app.Stop(ctx); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}
	if runErr != nil {
		slog.Error("Command failed", "error", runErr)
		os.Exit(1)
	}
}

func runCancel(cmd *cobra.Command, args []string) {
	withApp(func(ctx context.Context, app *control.App) error {
		rec, err := app.Burns.Cancel(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Record %s: %s\n", rec.ID, rec.Summary())
		return nil
	})
}

func runClassify(cmd *cobra.Command, args []string) {
	withApp(func(ctx context.Context, app *control.App) error {
		tc, err := app.Burns.Classify(ctx, domain.ChainID(args[0]), args[1])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tc)
	})
}
