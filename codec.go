package ticketregistry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnsupportedCodec is returned by CodecByName for unknown codec names.
var ErrUnsupportedCodec = errors.New("ticketregistry: unsupported codec")

// Codec turns tickets into the bytes kept by a registry and back.
type Codec interface {
	Marshal(t Ticket) ([]byte, error)
	Unmarshal(data []byte) (Ticket, error)
}

// JSONCodec stores tickets as JSON.
type JSONCodec struct{}

// Marshal implements Codec.
func (JSONCodec) Marshal(t Ticket) ([]byte, error) {
	d, err := toTicketData(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// Unmarshal implements Codec.
func (JSONCodec) Unmarshal(data []byte) (Ticket, error) {
	var t TicketData
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// cborEnc uses Core Deterministic Encoding so equal tickets encode to
// equal bytes.
var cborEnc cbor.EncMode

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	cborEnc, err = opts.EncMode()
	if err != nil {
		panic("ticketregistry: CBOR encoder initialization failed: " + err.Error())
	}
}

// CBORCodec stores tickets as CBOR.
type CBORCodec struct{}

// Marshal implements Codec.
func (CBORCodec) Marshal(t Ticket) ([]byte, error) {
	d, err := toTicketData(t)
	if err != nil {
		return nil, err
	}
	return cborEnc.Marshal(d)
}

// Unmarshal implements Codec.
func (CBORCodec) Unmarshal(data []byte) (Ticket, error) {
	var t TicketData
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CodecByName returns the codec for "json" (or "") and "cbor".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
}
