package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atcase/atcase-go/internal/history"
	"github.com/atcase/atcase-go/internal/testharness/reporter"
)

var historyFlags struct {
	db     string
	limit  int
	offset int
	json   bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect stored run results",
	Long:  `Run results are stored by "atcase run --history <db>".`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(historyFlags.db)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(historyFlags.limit, historyFlags.offset)
		if err != nil {
			return err
		}
		total, err := store.CountRuns()
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs, total)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(historyFlags.db)
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := store.GetResult(args[0])
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("run %s not found", args[0])
		}

		if historyFlags.json {
			reporter.NewJSONReporter(cmd.OutOrStdout(), true).ReportRun(result)
		} else {
			reporter.NewTextReporter(cmd.OutOrStdout(), true).ReportRun(result)
		}
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete one stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(historyFlags.db)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.DeleteRun(args[0])
	},
}

func printRuns(w io.Writer, runs []history.Run, total int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCASE\tSTATUS\tSTARTED\tDURATION\tPASSED\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d\n",
			r.ID, r.CaseID, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond),
			r.Passed, r.Total, r.Failed)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d of %d run(s)\n", len(runs), total)
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyFlags.db, "db", "atcase-history.db", "SQLite history database")
	historyListCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "Maximum number of runs")
	historyListCmd.Flags().IntVar(&historyFlags.offset, "offset", 0, "Number of runs to skip")
	historyShowCmd.Flags().BoolVar(&historyFlags.json, "json", false, "Print the run as JSON")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd)
	rootCmd.AddCommand(historyCmd)
}
