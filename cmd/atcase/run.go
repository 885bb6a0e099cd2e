package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/atcase/atcase-go/internal/testharness/loader"
	"github.com/atcase/atcase-go/internal/testharness/runner"
)

var runFlags struct {
	config          string
	target          string
	discover        bool
	model           string
	connectAttempts int
	pattern         string
	tags            []string
	excludeTags     []string
	selectIDs       []string
	output          string
	verbose         bool
	capture         string
	history         string
	trace           bool
	timeout         time.Duration
	autoConfirm     bool
	stopOnFailure   bool
}

var runCmd = &cobra.Command{
	Use:   "run [paths...]",
	Short: "Run test cases against a device",
	Long: `Run loads test cases from files and directories, connects to the device
through a serial bridge and executes the cases as one suite.

Flags override values from the --config file. The exit status is non-zero
when any case is not fully successful.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.config, "config", "c", "", "YAML config file")
	f.StringVarP(&runFlags.target, "target", "t", "", "Serial bridge address (host:port)")
	f.BoolVar(&runFlags.discover, "discover", false, "Find the bridge via mDNS when no target is set")
	f.StringVar(&runFlags.model, "model", "", "Only discover bridges whose model contains this text")
	f.IntVar(&runFlags.connectAttempts, "connect-attempts", 3, "Number of dial attempts")
	f.StringVarP(&runFlags.pattern, "pattern", "p", "", "Filter cases by id or name (comma-separated globs)")
	f.StringSliceVar(&runFlags.tags, "tags", nil, "Only run cases with one of these tags")
	f.StringSliceVar(&runFlags.excludeTags, "exclude-tags", nil, "Skip cases with any of these tags")
	f.StringSliceVar(&runFlags.selectIDs, "select", nil, "Only run these command ids")
	f.StringVarP(&runFlags.output, "output", "o", "text", "Output format (text, json, junit)")
	f.BoolVarP(&runFlags.verbose, "verbose", "v", false, "List every step")
	f.StringVar(&runFlags.capture, "capture", "", "Write a protocol capture file")
	f.StringVar(&runFlags.history, "history", "", "Store run results in this SQLite database")
	f.BoolVar(&runFlags.trace, "trace", false, "Log every capture event at debug level")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "Default response timeout")
	f.BoolVarP(&runFlags.autoConfirm, "yes", "y", false, "Confirm every operator prompt")
	f.BoolVar(&runFlags.stopOnFailure, "stop-on-failure", false, "Stop after the first unsuccessful case")
	rootCmd.AddCommand(runCmd)
}

// runConfig merges the config file with the flags that were set.
func runConfig(flags *pflag.FlagSet, paths []string) (*runner.Config, error) {
	cfg := runner.DefaultConfig()
	if runFlags.config != "" {
		var err error
		if cfg, err = runner.LoadConfig(runFlags.config); err != nil {
			return nil, err
		}
	}

	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("target", func() { cfg.Target = runFlags.target })
	set("discover", func() { cfg.Discover = runFlags.discover })
	set("model", func() { cfg.DiscoverModel = runFlags.model })
	set("connect-attempts", func() { cfg.ConnectAttempts = runFlags.connectAttempts })
	set("pattern", func() { cfg.Pattern = runFlags.pattern })
	set("tags", func() { cfg.Tags = runFlags.tags })
	set("exclude-tags", func() { cfg.ExcludeTags = runFlags.excludeTags })
	set("select", func() { cfg.Select = runFlags.selectIDs })
	set("output", func() { cfg.OutputFormat = runFlags.output })
	set("verbose", func() { cfg.Verbose = runFlags.verbose })
	set("capture", func() { cfg.CaptureLog = runFlags.capture })
	set("history", func() { cfg.HistoryDB = runFlags.history })
	set("trace", func() { cfg.Trace = runFlags.trace })
	set("yes", func() { cfg.AutoConfirm = runFlags.autoConfirm })
	set("stop-on-failure", func() { cfg.StopOnFirstFailure = runFlags.stopOnFailure })
	set("timeout", func() { cfg.Timeout = loader.Duration(runFlags.timeout) })

	if len(paths) > 0 {
		cfg.Paths = paths
	}
	if len(cfg.Paths) == 0 {
		return nil, fmt.Errorf("no test case paths given")
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := runConfig(cmd.Flags(), args)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	cfg.Logger = logger
	cfg.Output = cmd.OutOrStdout()

	if !cfg.AutoConfirm {
		prompter, err := newReadlinePrompter()
		if err != nil {
			return err
		}
		defer prompter.Close()
		cfg.Prompter = prompter
		cfg.Output = prompter.Stdout()
	}

	r, err := runner.New(cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := r.Run(ctx)
	if err != nil {
		return err
	}

	if notPassed := result.PartialCount + result.FailCount; notPassed > 0 {
		return fmt.Errorf("%d of %d case(s) did not pass", notPassed, len(result.Results)+len(result.Errors))
	}
	return nil
}
