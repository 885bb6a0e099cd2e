package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/atcase/atcase-go/internal/testharness/mock"
	"github.com/atcase/atcase-go/pkg/discovery"
)

var simulateFlags struct {
	listen    string
	advertise string
	model     string
	firmware  string
	serial    string
	portLabel string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <script.yaml>",
	Short: "Serve a scripted device on a TCP port",
	Long: `Simulate serves the device described by a YAML script on a TCP port, the
same way a serial bridge would. With --advertise it is also announced over
mDNS so "atcase run --discover" finds it.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	script, err := mock.LoadScript(args[0])
	if err != nil {
		return err
	}
	device, err := mock.NewDeviceFromScript(script)
	if err != nil {
		return err
	}
	device.SetLogger(logger)
	defer device.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	server := mock.NewServer(device, simulateFlags.listen)
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	addr := server.Addr().String()
	fmt.Fprintf(cmd.OutOrStdout(), "Simulating %q on %s\n", script.Name, addr)

	if simulateFlags.advertise != "" {
		adv, err := advertiseSimulator(addr, script.Name)
		if err != nil {
			return err
		}
		defer adv.StopAll()
		fmt.Fprintf(cmd.OutOrStdout(), "Advertising %q as %s\n", simulateFlags.advertise, discovery.ServiceType)
	}

	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "Stopping...")
	return nil
}

func advertiseSimulator(addr, name string) (*discovery.Advertiser, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	model := simulateFlags.model
	if model == "" {
		model = name
	}

	adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
	err = adv.Advertise(&discovery.BridgeInfo{
		Instance:  simulateFlags.advertise,
		Port:      uint16(port),
		Model:     model,
		Firmware:  simulateFlags.firmware,
		Serial:    simulateFlags.serial,
		PortLabel: simulateFlags.portLabel,
		Version:   version,
	})
	if err != nil {
		return nil, err
	}
	return adv, nil
}

func init() {
	f := simulateCmd.Flags()
	f.StringVarP(&simulateFlags.listen, "listen", "l", ":2323", "Listen address")
	f.StringVar(&simulateFlags.advertise, "advertise", "", "Announce the simulator over mDNS with this instance name")
	f.StringVar(&simulateFlags.model, "model", "", "Advertised model (default: script name)")
	f.StringVar(&simulateFlags.firmware, "firmware", "", "Advertised firmware revision")
	f.StringVar(&simulateFlags.serial, "serial", "", "Advertised serial number")
	f.StringVar(&simulateFlags.portLabel, "port-label", "", "Advertised port label")
	rootCmd.AddCommand(simulateCmd)
}
