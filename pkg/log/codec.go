package log

import (
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// A capture file is a bare sequence of CBOR data items, one per Event,
// keyed by the integers in the Event struct tags. There is no header, so
// files can be concatenated and appended to.

type eventCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var loadCodec = sync.OnceValues(func() (*eventCodec, error) {
	enc, err := cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("capture encoder: %w", err)
	}

	// Unknown keys and repeated keys are tolerated so that files written
	// by newer versions still load.
	dec, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyQuiet,
		MaxNestedLevels: 16,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("capture decoder: %w", err)
	}
	return &eventCodec{enc: enc, dec: dec}, nil
})

// EncodeEvent returns the CBOR form of event as stored in capture files.
func EncodeEvent(event Event) ([]byte, error) {
	c, err := loadCodec()
	if err != nil {
		return nil, err
	}
	return c.enc.Marshal(event)
}

// DecodeEvent parses one event in capture-file form.
func DecodeEvent(data []byte) (Event, error) {
	c, err := loadCodec()
	if err != nil {
		return Event{}, err
	}
	var event Event
	if err := c.dec.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("decode capture event: %w", err)
	}
	return event, nil
}

func newStreamEncoder(w io.Writer) (*cbor.Encoder, error) {
	c, err := loadCodec()
	if err != nil {
		return nil, err
	}
	return c.enc.NewEncoder(w), nil
}

func newStreamDecoder(r io.Reader) (*cbor.Decoder, error) {
	c, err := loadCodec()
	if err != nil {
		return nil, err
	}
	return c.dec.NewDecoder(r), nil
}
