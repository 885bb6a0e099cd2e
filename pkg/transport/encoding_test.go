package transport

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		text string
		enc  Encoding
		term Terminator
		want []byte
	}{
		{name: "text default terminator", text: "AT", want: []byte("AT\r\n")},
		{name: "text cr", text: "AT+CSQ", enc: EncodingText, term: TerminatorCR, want: []byte("AT+CSQ\r")},
		{name: "text lf", text: "AT", term: TerminatorLF, want: []byte("AT\n")},
		{name: "text none", text: "hello", term: TerminatorNone, want: []byte("hello")},
		{name: "hex spaced", text: "41 54", enc: EncodingHex, term: TerminatorNone, want: []byte("AT")},
		{name: "hex packed", text: "4154", enc: EncodingHex, term: TerminatorCRLF, want: []byte("AT\r\n")},
		{name: "hex prefixed", text: "0x41,0x54", enc: EncodingHex, term: TerminatorNone, want: []byte("AT")},
		{name: "hex ctrl-z", text: "1A", enc: EncodingHex, term: TerminatorNone, want: []byte{0x1a}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.text, tt.enc, tt.term)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeInvalidHex(t *testing.T) {
	for _, in := range []string{"4", "zz", "41 5"} {
		if _, err := Encode(in, EncodingHex, TerminatorNone); !errors.Is(err, ErrInvalidHex) {
			t.Errorf("Encode(%q) error = %v, want ErrInvalidHex", in, err)
		}
	}
}

func TestEncodingAndTerminatorValid(t *testing.T) {
	if !Encoding("").Valid() || !EncodingHex.Valid() || Encoding("base64").Valid() {
		t.Error("unexpected Encoding.Valid result")
	}
	if !Terminator("").Valid() || !TerminatorCR.Valid() || Terminator("crcr").Valid() {
		t.Error("unexpected Terminator.Valid result")
	}
}
