package envelope

import "errors"

var (
	// ErrInvalidEnvelope matches every *DecodeError via errors.Is.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	ErrEmptyMessageType = errors.New("envelope message type is empty")
	ErrInvalidUTF8      = errors.New("envelope field is not valid UTF-8")
)

// DecodeError reports a body that is not a valid envelope.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decode envelope: " + e.Reason + ": " + e.Err.Error()
	}
	return "decode envelope: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrInvalidEnvelope }
