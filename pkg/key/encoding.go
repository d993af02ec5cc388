package key

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	escapeByte     byte = 0x00
	escapedZero    byte = 0xff
	terminatorByte byte = 0x01

	flagDeleted byte = 0x00
	flagLive    byte = 0x01
)

// ErrMalformedKey is returned when an encoded key cannot be decoded
var ErrMalformedKey = errors.New("malformed encoded key")

// Encode serializes k so that bytes.Compare on encoded keys agrees with
// Key.Compare. Byte components are escaped and terminated, the version is
// stored inverted so newer versions sort first, and the deletion flag is
// stored last with deletion markers before live records.
func Encode(k Key) []byte {
	return AppendEncoded(nil, k)
}

// AppendEncoded appends the encoding of k to dst
func AppendEncoded(dst []byte, k Key) []byte {
	dst = appendComponent(dst, k.Row)
	dst = appendComponent(dst, k.Family)
	dst = appendComponent(dst, k.Qualifier)
	dst = appendComponent(dst, k.Visibility)
	dst = binary.BigEndian.AppendUint64(dst, ^k.Version)
	if k.Deleted {
		return append(dst, flagDeleted)
	}
	return append(dst, flagLive)
}

// EncodePrimary encodes only the row and family of k. Every encoded key in
// the same primary group starts with this prefix.
func EncodePrimary(k Key) []byte {
	dst := appendComponent(nil, k.Row)
	return appendComponent(dst, k.Family)
}

// Decode parses a key produced by Encode. The returned key does not alias b.
func Decode(b []byte) (Key, error) {
	var k Key
	var err error
	parts := [4]*[]byte{&k.Row, &k.Family, &k.Qualifier, &k.Visibility}
	for i, part := range parts {
		*part, b, err = decodeComponent(b)
		if err != nil {
			return Key{}, fmt.Errorf("%w: component %d: %v", ErrMalformedKey, i, err)
		}
	}
	if len(b) != 9 {
		return Key{}, fmt.Errorf("%w: expected 9 trailing bytes, got %d", ErrMalformedKey, len(b))
	}
	k.Version = ^binary.BigEndian.Uint64(b[:8])
	switch b[8] {
	case flagDeleted:
		k.Deleted = true
	case flagLive:
	default:
		return Key{}, fmt.Errorf("%w: invalid flag byte 0x%02x", ErrMalformedKey, b[8])
	}
	return k, nil
}

func appendComponent(dst, c []byte) []byte {
	for _, b := range c {
		if b == escapeByte {
			dst = append(dst, escapeByte, escapedZero)
			continue
		}
		dst = append(dst, b)
	}
	return append(dst, escapeByte, terminatorByte)
}

func decodeComponent(b []byte) ([]byte, []byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != escapeByte {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			return nil, nil, errors.New("truncated escape sequence")
		}
		switch b[i+1] {
		case escapedZero:
			out = append(out, 0)
			i++
		case terminatorByte:
			return out, b[i+2:], nil
		default:
			return nil, nil, fmt.Errorf("invalid escape 0x%02x", b[i+1])
		}
	}
	return nil, nil, errors.New("missing terminator")
}
