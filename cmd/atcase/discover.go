package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atcase/atcase-go/pkg/discovery"
)

var discoverFlags struct {
	timeout   time.Duration
	model     string
	portLabel string
	iface     string
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List serial bridges on the local network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := discovery.DefaultBrowserConfig()
		cfg.Interface = discoverFlags.iface

		var filters []discovery.FilterFunc
		if discoverFlags.model != "" {
			filters = append(filters, discovery.FilterByModel(discoverFlags.model))
		}
		if discoverFlags.portLabel != "" {
			filters = append(filters, discovery.FilterByPortLabel(discoverFlags.portLabel))
		}
		if len(filters) > 0 {
			cfg.Filter = func(br *discovery.Bridge) bool {
				for _, f := range filters {
					if !f(br) {
						return false
					}
				}
				return true
			}
		}

		bridges, err := discovery.NewBrowser(cfg).Collect(cmd.Context(), discoverFlags.timeout)
		if err != nil {
			return err
		}
		printBridges(cmd.OutOrStdout(), bridges)
		return nil
	},
}

func printBridges(w io.Writer, bridges []*discovery.Bridge) {
	if len(bridges) == 0 {
		fmt.Fprintln(w, "No bridges found")
		return
	}
	sort.Slice(bridges, func(i, j int) bool { return bridges[i].Instance < bridges[j].Instance })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tADDRESS\tMODEL\tFIRMWARE\tPORT")
	for _, br := range bridges {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", br.Instance, br.Address(), br.Model(), br.Firmware(), br.PortLabel())
	}
	tw.Flush()
}

func init() {
	f := discoverCmd.Flags()
	f.DurationVar(&discoverFlags.timeout, "timeout", 3*time.Second, "How long to browse")
	f.StringVar(&discoverFlags.model, "model", "", "Only list bridges whose model contains this text")
	f.StringVar(&discoverFlags.portLabel, "port-label", "", "Only list bridges with this port label")
	f.StringVar(&discoverFlags.iface, "interface", "", "Network interface to browse on")
	rootCmd.AddCommand(discoverCmd)
}
