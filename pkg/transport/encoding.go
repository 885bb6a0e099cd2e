package transport

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Encoding selects how command text is converted to bytes.
type Encoding string

const (
	// EncodingText sends the text as UTF-8 bytes.
	EncodingText Encoding = "text"
	// EncodingHex interprets the text as hex digits ("41 54" or "4154").
	EncodingHex Encoding = "hex"
)

// Valid reports whether e is a known encoding. The empty value means text.
func (e Encoding) Valid() bool {
	switch e {
	case "", EncodingText, EncodingHex:
		return true
	}
	return false
}

// Terminator is the line ending appended after a command.
type Terminator string

const (
	TerminatorNone Terminator = "none"
	TerminatorLF   Terminator = "lf"
	TerminatorCR   Terminator = "cr"
	TerminatorCRLF Terminator = "crlf"
)

// Bytes returns the terminator bytes. The empty value means CRLF, which is
// what AT command interpreters expect.
func (t Terminator) Bytes() []byte {
	switch t {
	case TerminatorNone:
		return nil
	case TerminatorLF:
		return []byte{'\n'}
	case TerminatorCR:
		return []byte{'\r'}
	default:
		return []byte{'\r', '\n'}
	}
}

// Valid reports whether t is a known terminator.
func (t Terminator) Valid() bool {
	switch t {
	case "", TerminatorNone, TerminatorLF, TerminatorCR, TerminatorCRLF:
		return true
	}
	return false
}

// ErrInvalidHex indicates hex-encoded command text that cannot be decoded.
var ErrInvalidHex = errors.New("invalid hex data")

// Encode converts rendered command text into the bytes put on the wire.
func Encode(text string, enc Encoding, term Terminator) ([]byte, error) {
	var payload []byte
	switch enc {
	case "", EncodingText:
		payload = []byte(text)
	case EncodingHex:
		b, err := decodeHex(text)
		if err != nil {
			return nil, err
		}
		payload = b
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
	return append(payload, term.Bytes()...), nil
}

// decodeHex accepts hex digits optionally separated by whitespace, commas
// or colons, with an optional 0x prefix per byte.
func decodeHex(text string) ([]byte, error) {
	var b strings.Builder
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == ':' || r == '\r' || r == '\n'
	}) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		b.WriteString(field)
	}
	out, err := hex.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return out, nil
}
