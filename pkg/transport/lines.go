package transport

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/atcase/atcase-go/pkg/log"
)

const (
	// DefaultMaxLineSize bounds a single received line (8 KB).
	DefaultMaxLineSize = 8192

	// MaxLogFrameDataSize bounds the bytes copied into a capture event.
	MaxLogFrameDataSize = 4096
)

// ErrLineTooLong indicates a line exceeded the configured maximum size.
var ErrLineTooLong = errors.New("line too long")

// Line is one decoded line received from the device.
type Line struct {
	// Text is the line without its terminator.
	Text string

	// Timestamp is when the terminator (or prompt) was received.
	Timestamp time.Time
}

// LineReader splits a byte stream into lines on CR or LF.
type LineReader struct {
	r           *bufio.Reader
	buf         []byte
	maxLineSize int

	// emitPrompt makes a bare "> " (the SMS/data-mode prompt, which is not
	// followed by a terminator) count as a complete line.
	emitPrompt bool

	logger log.Logger
	connID string
}

// NewLineReader creates a LineReader with default limits.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:           bufio.NewReader(r),
		maxLineSize: DefaultMaxLineSize,
		emitPrompt:  true,
		logger:      log.NoopLogger{},
	}
}

// SetMaxLineSize changes the maximum line size.
func (lr *LineReader) SetMaxLineSize(n int) {
	if n > 0 {
		lr.maxLineSize = n
	}
}

// SetEmitPrompt toggles prompt detection.
func (lr *LineReader) SetEmitPrompt(on bool) {
	lr.emitPrompt = on
}

// SetLogger configures capture for received lines.
func (lr *LineReader) SetLogger(logger log.Logger, connID string) {
	lr.logger = log.OrNoop(logger)
	lr.connID = connID
}

// ReadLine returns the next non-empty line. A partial line pending at EOF
// is returned before io.EOF.
func (lr *LineReader) ReadLine() (Line, error) {
	for {
		c, err := lr.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(lr.buf) > 0 {
				return lr.flush(), nil
			}
			return Line{}, err
		}

		switch c {
		case '\r', '\n':
			if strings.TrimSpace(string(lr.buf)) == "" {
				lr.buf = lr.buf[:0]
				continue
			}
			return lr.flush(), nil
		default:
			if len(lr.buf) >= lr.maxLineSize {
				lr.buf = lr.buf[:0]
				return Line{}, ErrLineTooLong
			}
			lr.buf = append(lr.buf, c)
			if lr.emitPrompt && c == ' ' && len(lr.buf) == 2 && lr.buf[0] == '>' && lr.r.Buffered() == 0 {
				return lr.flush(), nil
			}
		}
	}
}

func (lr *LineReader) flush() Line {
	text := strings.TrimRight(string(lr.buf), " \t")
	lr.buf = lr.buf[:0]
	line := Line{Text: text, Timestamp: time.Now()}
	lr.logger.Log(log.Event{
		Timestamp:    line.Timestamp,
		ConnectionID: lr.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerLine,
		Category:     log.CategoryMessage,
		Line:         &log.LineEvent{Text: line.Text},
	})
	return line
}

// frameEvent builds a transport-layer capture event for raw bytes.
func frameEvent(connID string, data []byte, dir log.Direction) log.Event {
	frameData := data
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      append([]byte(nil), frameData...),
			Truncated: truncated,
		},
	}
}
