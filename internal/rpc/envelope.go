package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the only unit exchanged with the proxy. Data keeps the raw
// payload; its shape depends on Event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (e Envelope) Unmarshal(v any) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(e.Data, v)
}

// HasData is false for null or missing payloads.
func (e Envelope) HasData() bool {
	trimmed := bytes.TrimSpace(e.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

type EncodingError struct {
	Event string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode %q payload: %v", e.Event, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse a message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func Encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, &EncodingError{Event: event, Err: err}
	}
	out, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return nil, &EncodingError{Event: event, Err: err}
	}
	return out, nil
}

func Decode(raw []byte) (Envelope, error) {
	var wire struct {
		Event *json.RawMessage `json:"event"`
		Data  json.RawMessage  `json:"data"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Envelope{}, &ParseError{Raw: append([]byte(nil), raw...), Err: err}
	}
	if wire.Event == nil {
		return Envelope{}, &ParseError{Raw: append([]byte(nil), raw...), Err: fmt.Errorf("missing event name")}
	}
	var name string
	if err := json.Unmarshal(*wire.Event, &name); err != nil {
		return Envelope{}, &ParseError{Raw: append([]byte(nil), raw...), Err: fmt.Errorf("event name is not a string")}
	}
	return Envelope{Event: name, Data: wire.Data}, nil
}
