// Command atcase runs AT command test cases against a cellular module or
// any other device that speaks a line-oriented AT dialect.
//
// The device is reached through a network serial bridge (a TCP port that
// forwards to the module's UART). Bridges announce themselves over mDNS as
// _atcase-bridge._tcp and can be found with "atcase discover".
//
// Usage:
//
//	atcase <command> [flags]
//
// Commands:
//
//	run       Run test cases against a device
//	validate  Check test case files for authoring mistakes
//	log       View, analyze, export and filter capture files
//	history   Inspect stored run results
//	discover  List serial bridges on the local network
//	simulate  Serve a scripted device on a TCP port
//
// Examples:
//
//	# Run every case in a directory against a bridge
//	atcase run --target 192.168.1.40:2323 cases/
//
//	# Find the bridge by model and run only the smoke cases
//	atcase run --discover --model BG95 --tags smoke cases/
//
//	# Run two commands of a case and capture the traffic
//	atcase run --target localhost:2323 --select c1,c4 --capture run.alog cases/csq.yaml
//
//	# Serve a simulated modem for local development
//	atcase simulate --listen :2323 testdata/modem.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "atcase",
	Short:         "AT command test case runner",
	Long:          "atcase runs scripted AT command test cases with URC handling, variable capture and jumps against a device behind a serial bridge.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "atcase %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger returns the operational logger writing to stderr.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", logLevel)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
