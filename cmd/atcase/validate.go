package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/atcase/atcase-go/internal/testharness/loader"
)

var validateCmd = &cobra.Command{
	Use:   "validate <paths...>",
	Short: "Check test case files for authoring mistakes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validatePaths(cmd.OutOrStdout(), args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validatePaths loads every path and prints each finding. Error-level
// findings fail the command; warnings and infos do not.
func validatePaths(w io.Writer, paths []string) error {
	var cases, errs int
	for _, path := range paths {
		loaded, err := loader.LoadPath(path)
		if err != nil {
			return err
		}
		for _, tc := range loaded {
			cases++
			findings := loader.Validate(tc)
			for _, f := range findings {
				fmt.Fprintf(w, "  [%s] %s\n", f.Level, f.Error())
				if f.Level == loader.ValidationLevelError {
					errs++
				}
			}
			if !loader.HasErrors(findings) {
				fmt.Fprintf(w, "ok   %s (%d commands)\n", tc.ID, loader.CountCommands(tc))
			} else {
				fmt.Fprintf(w, "FAIL %s\n", tc.ID)
			}
		}
	}

	if errs > 0 {
		return fmt.Errorf("validation failed with %d error(s)", errs)
	}
	fmt.Fprintf(w, "%d case(s) valid\n", cases)
	return nil
}
