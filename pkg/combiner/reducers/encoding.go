package reducers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedValue is returned when a stored value cannot be decoded
var ErrMalformedValue = errors.New("malformed value")

// Encoding names accepted by the "encoding" option
const (
	EncodingString   = "string"
	EncodingVarLen   = "varlen"
	EncodingFixedLen = "fixedlen"
)

// Encoder converts integers to and from stored values
type Encoder interface {
	Name() string
	Encode(v int64) []byte
	Decode(b []byte) (int64, error)
}

// EncoderFor returns the encoder registered under name. An empty name
// selects the string encoding.
func EncoderFor(name string) (Encoder, error) {
	switch name {
	case "", EncodingString:
		return StringEncoder{}, nil
	case EncodingVarLen:
		return VarLenEncoder{}, nil
	case EncodingFixedLen:
		return FixedLenEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}

// StringEncoder stores integers as decimal ASCII
type StringEncoder struct{}

func (StringEncoder) Name() string { return EncodingString }

func (StringEncoder) Encode(v int64) []byte {
	return strconv.AppendInt(nil, v, 10)
}

func (StringEncoder) Decode(b []byte) (int64, error) {
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal integer", ErrMalformedValue, b)
	}
	return v, nil
}

// VarLenEncoder stores integers as zig-zag varints
type VarLenEncoder struct{}

func (VarLenEncoder) Name() string { return EncodingVarLen }

func (VarLenEncoder) Encode(v int64) []byte {
	return binary.AppendVarint(nil, v)
}

func (VarLenEncoder) Decode(b []byte) (int64, error) {
	v, n := binary.Varint(b)
	if n <= 0 || n != len(b) {
		return 0, fmt.Errorf("%w: invalid varint of %d bytes", ErrMalformedValue, len(b))
	}
	return v, nil
}

// FixedLenEncoder stores integers as 8 big-endian bytes
type FixedLenEncoder struct{}

func (FixedLenEncoder) Name() string { return EncodingFixedLen }

func (FixedLenEncoder) Encode(v int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(v))
}

func (FixedLenEncoder) Decode(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: fixed length value has %d bytes, want 8", ErrMalformedValue, len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
