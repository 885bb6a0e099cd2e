// Package discovery implements mDNS/DNS-SD discovery of network serial
// bridges that expose a modem's AT command port over TCP.
//
// # Bridge Service (_atcase-bridge._tcp)
//
// A bridge advertises one instance per serial port it exposes. The instance
// name is free text chosen by the bridge (for example "lab-rig-1 P1").
// TXT records include:
//   - md: modem model (optional)
//   - fw: modem firmware revision (optional)
//   - sn: modem serial number or IMEI (optional)
//   - pl: port label, P1 or P2 on dual-port rigs (optional)
//   - v: bridge protocol version (optional)
//
// The simulator advertises itself the same way, so scripts can be pointed
// at a simulated modem without changing how the target is found.
package discovery
