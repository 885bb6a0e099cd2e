package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atcase/atcase-go/cmd/atcase/commands"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View, analyze, export and filter capture files",
	Long: `Capture files are written by "atcase run --capture". They hold the raw
bytes, the decoded lines and the engine's step verdicts of every run.`,
}

var viewFlags struct {
	layer     string
	direction string
	category  string
	caseID    string
}

var logViewCmd = &cobra.Command{
	Use:   "view <file.alog>",
	Short: "View a capture file in human-readable format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := commands.ViewFilter{CaseID: viewFlags.caseID}
		if viewFlags.layer != "" {
			l, err := commands.ParseLayerFlag(viewFlags.layer)
			if err != nil {
				return err
			}
			filter.Layer = &l
		}
		if viewFlags.direction != "" {
			d, err := commands.ParseDirectionFlag(viewFlags.direction)
			if err != nil {
				return err
			}
			filter.Direction = &d
		}
		if viewFlags.category != "" {
			c, err := commands.ParseCategoryFlag(viewFlags.category)
			if err != nil {
				return err
			}
			filter.Category = &c
		}
		return commands.RunView(args[0], filter, cmd.OutOrStdout())
	},
}

var logStatsCmd = &cobra.Command{
	Use:   "stats <file.alog>",
	Short: "Show statistics about a capture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunStats(args[0], cmd.OutOrStdout())
	},
}

var exportFlags struct {
	format string
	output string
}

var logExportCmd = &cobra.Command{
	Use:   "export <file.alog>",
	Short: "Export a capture file to JSONL or CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunExport(args[0], exportFlags.format, exportFlags.output)
	},
}

var filterOpts commands.FilterOptions

var logFilterCmd = &cobra.Command{
	Use:   "filter <file.alog>",
	Short: "Filter a capture file and write matching events to a new file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := commands.RunFilter(args[0], filterOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", count, filterOpts.Output)
		return nil
	},
}

func init() {
	vf := logViewCmd.Flags()
	vf.StringVar(&viewFlags.layer, "layer", "", "Filter by layer (transport, line, engine)")
	vf.StringVar(&viewFlags.direction, "direction", "", "Filter by direction (in, out)")
	vf.StringVar(&viewFlags.category, "category", "", "Filter by category (message, step, state, error)")
	vf.StringVar(&viewFlags.caseID, "case", "", "Filter by case id")

	ef := logExportCmd.Flags()
	ef.StringVar(&exportFlags.format, "format", "jsonl", "Output format (jsonl, csv)")
	ef.StringVarP(&exportFlags.output, "output", "o", "", "Output file (default: stdout)")

	ff := logFilterCmd.Flags()
	ff.StringVarP(&filterOpts.Output, "output", "o", "", "Output file (required)")
	ff.StringVar(&filterOpts.ConnID, "conn-id", "", "Filter by connection ID")
	ff.StringVar(&filterOpts.RunID, "run-id", "", "Filter by run ID")
	ff.StringVar(&filterOpts.CaseID, "case", "", "Filter by case id")
	ff.StringVar(&filterOpts.CommandID, "command", "", "Filter by command id (step events only)")
	ff.StringVar(&filterOpts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	ff.StringVar(&filterOpts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	ff.StringVar(&filterOpts.Layer, "layer", "", "Filter by layer (transport, line, engine)")
	ff.StringVar(&filterOpts.Direction, "direction", "", "Filter by direction (in, out)")
	ff.StringVar(&filterOpts.Category, "category", "", "Filter by category (message, step, state, error)")
	_ = logFilterCmd.MarkFlagRequired("output")

	logCmd.AddCommand(logViewCmd, logStatsCmd, logExportCmd, logFilterCmd)
	rootCmd.AddCommand(logCmd)
}
