package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Browser finds serial bridges using zeroconf.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a new mDNS browser.
func NewBrowser(config BrowserConfig) *Browser {
	def := DefaultBrowserConfig()
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = def.BrowseTimeout
	}
	if config.ServiceType == "" {
		config.ServiceType = def.ServiceType
	}
	if config.Domain == "" {
		config.Domain = def.Domain
	}
	return &Browser{config: config}
}

// Browse searches for bridges until ctx is done. Each instance is emitted
// once, when first seen; later answers for it only add addresses. The
// returned channel is closed when ctx is done.
func (b *Browser) Browse(ctx context.Context) (<-chan *Bridge, error) {
	out := make(chan *Bridge)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	opts, err := b.browserOptions()
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(out)

		reg := newRegistry()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				br := entryToBridge(entry)
				if b.config.Filter != nil && !b.config.Filter(br) {
					continue
				}
				if !reg.add(br) {
					continue
				}
				select {
				case out <- br:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				reg.remove(entry.Instance, entryAddresses(entry))

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, b.config.ServiceType, b.config.Domain, entries, removed, opts...)
	}()

	return out, nil
}

// FindFirst returns the first bridge seen within the browse timeout.
func (b *Browser) FindFirst(ctx context.Context) (*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	found, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	return firstBridge(ctx, found)
}

// Collect gathers every bridge seen within d.
func (b *Browser) Collect(ctx context.Context, d time.Duration) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	found, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	var bridges []*Bridge
	for br := range found {
		bridges = append(bridges, br)
	}
	return bridges, nil
}

func firstBridge(ctx context.Context, found <-chan *Bridge) (*Bridge, error) {
	select {
	case br, ok := <-found:
		if !ok {
			return nil, ErrNotFound
		}
		return br, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrBrowseTimeout
		}
		return nil, ctx.Err()
	}
}

func (b *Browser) browserOptions() ([]zeroconf.ClientOption, error) {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err != nil {
			return nil, fmt.Errorf("interface %q: %w", b.config.Interface, err)
		}
		opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
	}
	return opts, nil
}

func entryToBridge(entry *zeroconf.ServiceEntry) *Bridge {
	return &Bridge{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      uint16(entry.Port),
		Addresses: entryAddresses(entry),
		Text:      StringsToTXTRecords(entry.Text),
	}
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one interface. Empty means all.
	Interface string

	// TTL overrides the record TTL. Zero keeps the library default.
	TTL time.Duration
}

// Advertiser publishes bridge instances using zeroconf.
type Advertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by instance
}

// NewAdvertiser creates a new mDNS advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	return &Advertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// Advertise starts advertising info, replacing an earlier registration of
// the same instance.
func (a *Advertiser) Advertise(info *BridgeInfo) error {
	if err := ValidateInstanceName(info.Instance); err != nil {
		return err
	}

	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	var ifaces []net.Interface
	if a.config.Interface != "" {
		iface, err := net.InterfaceByName(a.config.Interface)
		if err != nil {
			return fmt.Errorf("interface %q: %w", a.config.Interface, err)
		}
		ifaces = []net.Interface{*iface}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if server, exists := a.servers[info.Instance]; exists {
		server.Shutdown()
		delete(a.servers, info.Instance)
	}

	server, err := zeroconf.Register(
		info.Instance,
		ServiceType,
		Domain,
		port,
		TXTRecordsToStrings(EncodeBridgeTXT(info)),
		ifaces,
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register bridge service: %w", err)
	}

	a.servers[info.Instance] = server
	return nil
}

// Stop withdraws one instance.
func (a *Advertiser) Stop(instance string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if server, exists := a.servers[instance]; exists {
		server.Shutdown()
		delete(a.servers, instance)
	}
}

// StopAll withdraws every instance.
func (a *Advertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for instance, server := range a.servers {
		server.Shutdown()
		delete(a.servers, instance)
	}
}
