package log

import "time"

// Event is a single capture record. Exactly one of the payload pointers is
// set. CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the link the event belongs to (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction of the data relative to the harness.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address, if the link is a network socket.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// RunID identifies the engine run (engine layer only).
	RunID string `cbor:"7,keyasint,omitempty"`

	// CaseID identifies the test case (engine layer only).
	CaseID string `cbor:"8,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Line        *LineEvent        `cbor:"11,keyasint,omitempty"` // Line layer
	Step        *StepEvent        `cbor:"12,keyasint,omitempty"` // Engine layer
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn is data received from the device.
	DirectionIn Direction = 0
	// DirectionOut is data sent to the device.
	DirectionOut Direction = 1
	// DirectionNone is used for events that carry no traffic.
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "-"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where an event was captured.
type Layer uint8

const (
	// LayerTransport is the raw byte stream.
	LayerTransport Layer = 0
	// LayerLine is the decoded line stream.
	LayerLine Layer = 1
	// LayerEngine is the test engine.
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerLine:
		return "LINE"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer converts a layer name (case-insensitive) to a Layer.
func ParseLayer(s string) (Layer, bool) {
	switch s {
	case "transport", "TRANSPORT":
		return LayerTransport, true
	case "line", "LINE":
		return LayerLine, true
	case "engine", "ENGINE":
		return LayerEngine, true
	}
	return 0, false
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage is traffic (bytes or lines).
	CategoryMessage Category = 0
	// CategoryStep is an engine step verdict.
	CategoryStep Category = 1
	// CategoryState is a state change.
	CategoryState Category = 2
	// CategoryError is an error.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryStep:
		return "STEP"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw bytes at the transport layer.
type FrameEvent struct {
	// Size is the number of bytes written or read.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated for large writes).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// LineEvent captures one decoded line.
type LineEvent struct {
	// Text is the line without its terminator.
	Text string `cbor:"1,keyasint"`

	// Encoding is the encoding the line was sent with ("text" or "hex").
	// Empty for received lines.
	Encoding string `cbor:"2,keyasint,omitempty"`
}

// StepEvent captures an engine decision about one command.
type StepEvent struct {
	// CommandID is the command identifier.
	CommandID string `cbor:"1,keyasint"`

	// CommandIndex is the index of the command inside its case.
	CommandIndex int `cbor:"2,keyasint"`

	// Kind is "execution" or "urc".
	Kind string `cbor:"3,keyasint"`

	// Attempt is the 1-based attempt number (0 when not applicable).
	Attempt int `cbor:"4,keyasint,omitempty"`

	// Verdict is what happened.
	Verdict Verdict `cbor:"5,keyasint"`

	// Message carries details (error text, jump target, ...).
	Message string `cbor:"6,keyasint,omitempty"`
}

// Verdict is the outcome recorded in a StepEvent.
type Verdict uint8

const (
	VerdictPass Verdict = 0
	VerdictFail Verdict = 1
	VerdictSkip Verdict = 2
	VerdictArm  Verdict = 3
	VerdictJump Verdict = 4
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "PASS"
	case VerdictFail:
		return "FAIL"
	case VerdictSkip:
		return "SKIP"
	case VerdictArm:
		return "ARM"
	case VerdictJump:
		return "JUMP"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection and run lifecycle changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityConnection is the transport link.
	StateEntityConnection StateEntity = 0
	// StateEntityRun is an engine run.
	StateEntityRun StateEntity = 1
	// StateEntityCase is a test case inside a run.
	StateEntityCase StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityRun:
		return "RUN"
	case StateEntityCase:
		return "CASE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
