package discovery

import (
	"strings"
	"time"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindFirst.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// ServiceType overrides the browsed service type (default ServiceType).
	ServiceType string

	// Domain overrides the browsed domain (default Domain).
	Domain string

	// Filter drops bridges it returns false for. Nil accepts all.
	Filter FilterFunc
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
		ServiceType:   ServiceType,
		Domain:        Domain,
	}
}

// FilterFunc is a function that filters browse results.
type FilterFunc func(*Bridge) bool

// FilterByModel returns a filter that matches bridges whose model contains
// model, ignoring case.
func FilterByModel(model string) FilterFunc {
	want := strings.ToLower(model)
	return func(b *Bridge) bool {
		return strings.Contains(strings.ToLower(b.Model()), want)
	}
}

// FilterByPortLabel returns a filter that matches bridges with the given
// port label.
func FilterByPortLabel(label string) FilterFunc {
	return func(b *Bridge) bool {
		return strings.EqualFold(b.PortLabel(), label)
	}
}

// FilterByInstance returns a filter that matches one instance name.
func FilterByInstance(instance string) FilterFunc {
	return func(b *Bridge) bool {
		return b.Instance == instance
	}
}

// FilterBridges filters a channel of bridges.
func FilterBridges(in <-chan *Bridge, filter FilterFunc) <-chan *Bridge {
	out := make(chan *Bridge)
	go func() {
		defer close(out)
		for b := range in {
			if filter(b) {
				out <- b
			}
		}
	}()
	return out
}

// registry aggregates browse results by instance name. Addresses from
// several interfaces are merged into one entry.
type registry struct {
	bridges map[string]*Bridge
}

func newRegistry() *registry {
	return &registry{bridges: make(map[string]*Bridge)}
}

// add records b and reports whether the instance is new.
func (r *registry) add(b *Bridge) bool {
	if existing, found := r.bridges[b.Instance]; found {
		existing.Addresses = mergeAddresses(existing.Addresses, b.Addresses)
		return false
	}
	r.bridges[b.Instance] = b
	return true
}

// remove drops addrs from the instance and forgets it once none remain.
func (r *registry) remove(instance string, addrs []string) {
	existing, found := r.bridges[instance]
	if !found {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, addrs)
	if len(existing.Addresses) == 0 {
		delete(r.bridges, instance)
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses returns addresses without the entries in drop.
func removeAddresses(addresses, drop []string) []string {
	toRemove := make(map[string]bool, len(drop))
	for _, a := range drop {
		toRemove[a] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
