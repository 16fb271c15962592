package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/syncer"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the index in sync while files change",
	Long: `Runs a sync, then watches the documents folder and re-syncs once it has
been quiet for the configured debounce interval. Stop with Ctrl+C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.engine.Sync(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		return err
	}

	w := syncer.NewWatcher(a.engine, a.watchDebounce(), a.logger)
	w.OnSync = func(r *syncer.Report, err error) {
		if r != nil && (r.Changed() || len(r.Failed) > 0) {
			printReport(r)
		}
	}
	return w.Run(ctx)
}
