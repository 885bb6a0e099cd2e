package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the service type advertised by serial bridges.
	ServiceType = "_atcase-bridge._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is the default bridge port.
	DefaultPort = 2323
)

// TXT record key constants.
const (
	TXTKeyModel     = "md" // Modem model
	TXTKeyFirmware  = "fw" // Modem firmware revision
	TXTKeySerial    = "sn" // Modem serial number / IMEI
	TXTKeyPortLabel = "pl" // Port label (P1, P2)
	TXTKeyVersion   = "v"  // Bridge protocol version
)

// BrowseTimeout is the default timeout for mDNS browsing.
const BrowseTimeout = 10 * time.Second

// MaxInstanceNameLen is the DNS label limit.
const MaxInstanceNameLen = 63

// Errors.
var (
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrEmptyInstanceName   = errors.New("instance name is empty")
	ErrNotFound            = errors.New("bridge not found")
	ErrBrowseTimeout       = errors.New("browse timeout")
)

// Bridge is a discovered serial bridge.
type Bridge struct {
	// Instance is the mDNS instance name.
	Instance string

	// Host is the advertised host name.
	Host string

	// Port is the TCP port of the AT command link.
	Port uint16

	// Addresses holds the IPv4 and IPv6 addresses seen for the instance.
	Addresses []string

	// Text holds the decoded TXT records.
	Text TXTRecordMap
}

// Model returns the advertised modem model.
func (b *Bridge) Model() string { return b.Text[TXTKeyModel] }

// Firmware returns the advertised firmware revision.
func (b *Bridge) Firmware() string { return b.Text[TXTKeyFirmware] }

// Serial returns the advertised serial number.
func (b *Bridge) Serial() string { return b.Text[TXTKeySerial] }

// PortLabel returns the advertised port label.
func (b *Bridge) PortLabel() string { return b.Text[TXTKeyPortLabel] }

// Address returns a dialable "host:port". IPv4 addresses are preferred,
// then IPv6, then the advertised host name.
func (b *Bridge) Address() string {
	port := strconv.Itoa(int(b.Port))
	var v6 string
	for _, a := range b.Addresses {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			return net.JoinHostPort(a, port)
		}
		if v6 == "" {
			v6 = a
		}
	}
	if v6 != "" {
		return net.JoinHostPort(v6, port)
	}
	return net.JoinHostPort(b.Host, port)
}

// BridgeInfo describes a bridge to advertise.
type BridgeInfo struct {
	// Instance is the mDNS instance name.
	Instance string

	// Port is the TCP port of the AT command link (default DefaultPort).
	Port uint16

	Model     string
	Firmware  string
	Serial    string
	PortLabel string
	Version   string
}
