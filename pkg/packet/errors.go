package packet

import (
	"errors"
	"fmt"
)

var (
	ErrPacketTooShort      = errors.New("pktkit: packet too short")
	ErrInvalidLength       = errors.New("pktkit: invalid length field")
	ErrInvalidVersion      = errors.New("pktkit: invalid protocol version")
	ErrUnknownTypeCode     = errors.New("pktkit: unknown type/code")
	ErrTruncatedOption     = errors.New("pktkit: truncated option")
	ErrUnsupportedLinkType = errors.New("pktkit: unsupported link type")
	ErrNoNetworkLayer      = errors.New("pktkit: no enclosing network layer")
	ErrNoDecoder           = errors.New("pktkit: no decoder for layer")
)

// errNotApplicable is returned by heuristic decoders when the bytes do not look
// like their protocol; the payload then stays opaque.
var errNotApplicable = errors.New("pktkit: payload does not match heuristic")

// DecodeError reports the layer and absolute buffer offset at which decoding failed.
type DecodeError struct {
	Layer  LayerType
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Layer, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func tooShort(layer LayerType, offset, have, need int) error {
	return &DecodeError{
		Layer:  layer,
		Offset: offset,
		Err:    fmt.Errorf("%w: have %d bytes, need %d", ErrPacketTooShort, have, need),
	}
}

func invalid(layer LayerType, offset int, sentinel error, format string, args ...interface{}) error {
	return &DecodeError{
		Layer:  layer,
		Offset: offset,
		Err:    fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// mismatch is the error of a heuristic decoder rejecting its input. Inside a
// tree the payload stays opaque; at the top of DecodeLayer the error surfaces
// and matches sentinel.
func mismatch(layer LayerType, offset int, sentinel error, format string, args ...interface{}) error {
	return &DecodeError{
		Layer:  layer,
		Offset: offset,
		Err:    fmt.Errorf("%w: %w: %s", errNotApplicable, sentinel, fmt.Sprintf(format, args...)),
	}
}
