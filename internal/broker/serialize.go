// Package broker implements the pub/sub transport that glues separate
// Timeflux worker processes together: a last-value-cache (LVC) proxy
// between an ingress socket publishers connect to and an egress socket
// subscribers connect to, plus the Publisher/Subscriber node
// pair that exercises it, and a monitored variant that watchdogs silence.
package broker

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Serializer encodes and decodes the opaque data/meta blobs carried on
// the wire. gob handles values exchanged only between processes built
// from this codebase; the interface exists so a second serializer, e.g.
// a cross-language one, can be added without touching the broker or the
// Publisher/Subscriber nodes.
type Serializer interface {
	// Tag names this serializer on the wire; a broker instance fixes one
	// tag for its lifetime.
	Tag() string
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

// GobSerializer is the default Serializer, registered under tag "gob".
type GobSerializer struct{}

func (GobSerializer) Tag() string { return "gob" }

func (GobSerializer) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("broker: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobSerializer) Decode(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("broker: gob decode: %w", err)
	}
	return nil
}

// Payload is what a Publisher node encodes and a Subscriber node decodes:
// the frame carried on one topic in one cycle (meta travels as its own
// wire frame). gob needs a concrete, registered type to decode into an
// interface{} field, so Payload wraps the value in a named struct rather
// than exchanging bare interface{} values. Data stays absent for a
// meta-only message.
type Payload struct {
	Data interface{}
}
