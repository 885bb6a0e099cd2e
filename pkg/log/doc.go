// Package log provides structured capture of the traffic exchanged with a
// device under test.
//
// It defines the Logger interface and Event types for recording what happened
// on the link at several layers: raw bytes written to the transport, decoded
// lines read back from it, and the verdicts the test engine reached for each
// step. Capture is separate from operational logging (slog): a capture file
// is a complete, machine-readable trace that can be replayed and filtered
// after a run.
//
// # Basic Usage
//
//	// Development: mirror capture into the console via slog
//	cfg.Capture = log.NewSlogAdapter(slog.Default())
//
//	// CI: write a binary capture file
//	cfg.Capture, _ = log.NewFileLogger("run.alog")
//
//	// Both
//	cfg.Capture = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
//   - Transport: bytes written to or read from the link (FrameEvent)
//   - Line: decoded text lines (LineEvent)
//   - Engine: step verdicts, URC arming, jumps (StepEvent)
//
// State changes (connection, run) and errors have dedicated payloads.
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with integer map keys
// and use the .alog extension. "atcase log" views, filters and summarizes
// them.
package log
