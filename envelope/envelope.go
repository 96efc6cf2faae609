// Package envelope encodes and decodes the wire form of queue messages.
//
// A message body is a JSON object carrying a type tag and an opaque string
// payload:
//
//	{"MessageType":"SendEmail","Payload":"..."}
//
// Keys are matched case-insensitively on decode; Encode always writes the
// form above.
package envelope

import (
	"strings"
	"unicode/utf8"

	"github.com/segmentio/encoding/json"
)

// Envelope is a decoded queue message. The zero value is not a valid envelope;
// values are obtained from New or Decode and never change afterwards.
type Envelope struct {
	messageType string
	payload     string
}

// New builds an envelope. messageType must not be empty and both fields must
// be valid UTF-8, so that Decode(Encode(e)) returns e unchanged.
func New(messageType, payload string) (Envelope, error) {
	if messageType == "" {
		return Envelope{}, ErrEmptyMessageType
	}
	if !utf8.ValidString(messageType) || !utf8.ValidString(payload) {
		return Envelope{}, ErrInvalidUTF8
	}
	return Envelope{messageType: messageType, payload: payload}, nil
}

func (e Envelope) MessageType() string { return e.messageType }
func (e Envelope) Payload() string     { return e.payload }

// wire mirrors the JSON object. Pointers distinguish a missing key (or null)
// from an empty string.
type wire struct {
	MessageType *string `json:"MessageType"`
	Payload     *string `json:"Payload"`
}

// Encode returns the canonical body for e.
func Encode(e Envelope) string {
	b, err := json.Marshal(wire{MessageType: &e.messageType, Payload: &e.payload})
	if err != nil {
		// two strings always marshal
		panic(err)
	}
	return string(b)
}

// Decode parses a message body. Any failure is reported as *DecodeError and
// no partially populated envelope is returned.
func Decode(body string) (Envelope, error) {
	if strings.TrimSpace(body) == "" {
		return Envelope{}, &DecodeError{Reason: "empty body"}
	}
	if !utf8.ValidString(body) {
		return Envelope{}, &DecodeError{Reason: "body is not valid UTF-8", Err: ErrInvalidUTF8}
	}

	var w wire
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return Envelope{}, &DecodeError{Reason: "malformed body", Err: err}
	}

	switch {
	case w.MessageType == nil:
		return Envelope{}, &DecodeError{Reason: "missing MessageType"}
	case *w.MessageType == "":
		return Envelope{}, &DecodeError{Reason: "message type is empty"}
	case w.Payload == nil:
		return Envelope{}, &DecodeError{Reason: "missing Payload"}
	}

	return Envelope{messageType: *w.MessageType, payload: *w.Payload}, nil
}
