// Package transport provides the byte-stream link to a device under test.
//
// A device speaks an AT-style line protocol over a serial port. The harness
// reaches the port through a network serial bridge (ser2net, ESP-Link, a
// terminal server or the built-in simulator), so the link is a plain TCP
// socket carrying raw serial bytes:
//
//	┌────────────────────────────────┐
//	│   Commands / responses / URCs  │
//	├────────────────────────────────┤
//	│   Line framing (CR, LF, CRLF)  │
//	├────────────────────────────────┤
//	│   Raw serial bytes over TCP    │
//	└────────────────────────────────┘
//
// Outgoing data is encoded per command (text or hex) and followed by the
// command's line terminator. Incoming bytes are split into lines on CR or
// LF; empty lines are dropped. Every decoded line is fanned out to all
// subscribers in receipt order, so several listeners (a synchronous wait
// and any number of background URC listeners) observe the same stream.
//
// Reconnection and health monitoring are the caller's concern; a Conn
// reports a read error once and then closes.
package transport
