package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/progress"
	"github.com/ziadkadry99/docqa/internal/syncer"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bring the index up to date with the documents folder",
	Long: `Scans the documents folder, indexes new and modified files and removes
deleted ones from the index. Unchanged files are not touched.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("quiet", false, "suppress the progress bar")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		a.engine.SetProgressFunc(progress.Func(progress.NewReporter()))
	}

	report, err := a.engine.Sync(ctx)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		var delErr *vectordb.IndexDeleteError
		if errors.As(err, &delErr) {
			return fmt.Errorf("%w\nThe index was not changed for the remaining files; run `docqa sync` again", err)
		}
		return err
	}
	return nil
}

// printReport prints a colored sync summary followed by any failed files.
func printReport(r *syncer.Report) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()

	if !r.Changed() {
		fmt.Printf("%s index is up to date (%d files)\n", green("ok"), r.Unchanged)
		return
	}

	fmt.Printf("%s %s, %d unchanged in %s\n", green("synced"), r, r.Unchanged, r.Duration.Round(time.Millisecond))
	for _, f := range r.Failed {
		fmt.Printf("  %s %s: %v\n", red("failed"), f.Path, f.Err)
	}
	if len(r.Failed) > 0 {
		fmt.Println(yellow("Failed files will be retried on the next sync."))
	}
}
