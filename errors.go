package ppv2

import (
	"errors"
	"fmt"
)

// Sentinel decode errors, one per §4.1 failure kind. Callers use errors.Is;
// DecodeError wraps these with offset context via %w.
var (
	ErrInsufficientData = errors.New("ppv2: insufficient data")
	ErrInvalidSignature = errors.New("ppv2: invalid signature")
	ErrInvalidVersion   = errors.New("ppv2: invalid version")
	ErrInvalidCommand   = errors.New("ppv2: invalid command")
	ErrInvalidFamily    = errors.New("ppv2: invalid family")
	ErrInvalidTransport = errors.New("ppv2: invalid transport")
	ErrTruncatedAddress = errors.New("ppv2: truncated address block")
	ErrTruncatedTlv     = errors.New("ppv2: truncated tlv")
	ErrInvalidAddress   = errors.New("ppv2: invalid address")
	ErrInvalidArgument  = errors.New("ppv2: invalid argument")
	errUint16Overflow   = errors.New("ppv2: tlv vector exceeds uint16 length")
)

// DecodeError wraps one of the sentinel errors above with the byte offset
// at which decoding failed, for diagnostics. errors.Is still matches the
// wrapped sentinel.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ppv2: decode at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(offset int, err error) error {
	return &DecodeError{Offset: offset, Err: err}
}
