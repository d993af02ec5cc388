// Package snapshot dumps versioned records to a portable, compressed stream
// and reads them back.
//
// A stream starts with an uncompressed 8-byte magic. Everything after it is
// a zstd stream of frames:
//
//	header: checksum (8 bytes, xxhash64 of payload) | payload length (4 bytes)
//	payload: key length (4 bytes) | encoded key | value
//
// Integers are little-endian.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/KevoDB/combiner/pkg/common/iterator"
	"github.com/KevoDB/combiner/pkg/key"
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	// HeaderSize is the size of a frame header
	HeaderSize = 12

	// MaxPayloadSize bounds a single frame
	MaxPayloadSize = 64 << 20
)

var magic = []byte("CMBSNAP1")

var (
	// ErrChecksum is returned when a frame's payload does not match its checksum
	ErrChecksum = errors.New("snapshot frame checksum mismatch")

	// ErrBadMagic is returned when a stream does not start with the snapshot magic
	ErrBadMagic = errors.New("not a snapshot stream")

	// ErrCorrupt is returned for frames that cannot be parsed
	ErrCorrupt = errors.New("corrupt snapshot frame")
)

// Writer appends records to a snapshot stream
type Writer struct {
	enc     *zstd.Encoder
	buf     *bufio.Writer
	header  [HeaderSize]byte
	payload []byte
	count   int
	bytes   int64
}

// NewWriter writes the stream magic to w and returns a Writer. Close must be
// called to flush the stream; it does not close w.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := w.Write(magic); err != nil {
		return nil, fmt.Errorf("failed to write snapshot magic: %w", err)
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	return &Writer{enc: enc, buf: bufio.NewWriter(enc)}, nil
}

// Append writes one record
func (w *Writer) Append(rec iterator.Record) error {
	encoded := key.Encode(rec.Key)
	size := 4 + len(encoded) + len(rec.Value)
	if size > MaxPayloadSize {
		return fmt.Errorf("record of %d bytes exceeds the %d byte frame limit", size, MaxPayloadSize)
	}

	w.payload = binary.LittleEndian.AppendUint32(w.payload[:0], uint32(len(encoded)))
	w.payload = append(w.payload, encoded...)
	w.payload = append(w.payload, rec.Value...)

	binary.LittleEndian.PutUint64(w.header[0:8], xxhash.Sum64(w.payload))
	binary.LittleEndian.PutUint32(w.header[8:12], uint32(len(w.payload)))

	if _, err := w.buf.Write(w.header[:]); err != nil {
		return err
	}
	if _, err := w.buf.Write(w.payload); err != nil {
		return err
	}
	w.count++
	w.bytes += int64(HeaderSize + len(w.payload))
	return nil
}

// Count returns the number of records appended
func (w *Writer) Count() int {
	return w.count
}

// Bytes returns the uncompressed size of the frames appended
func (w *Writer) Bytes() int64 {
	return w.bytes
}

// Close flushes buffered frames and ends the compressed stream
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		_ = w.enc.Close()
		return err
	}
	return w.enc.Close()
}

// Reader reads records from a snapshot stream
type Reader struct {
	dec    *zstd.Decoder
	header [HeaderSize]byte
}

// NewReader checks the stream magic and returns a Reader
func NewReader(r io.Reader) (*Reader, error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, err
	}
	if !bytes.Equal(head, magic) {
		return nil, ErrBadMagic
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	return &Reader{dec: dec}, nil
}

// Next returns the next record. It returns io.EOF after the last one.
func (r *Reader) Next() (iterator.Record, error) {
	if _, err := io.ReadFull(r.dec, r.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return iterator.Record{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return iterator.Record{}, fmt.Errorf("%w: truncated header", ErrCorrupt)
		}
		return iterator.Record{}, err
	}

	sum := binary.LittleEndian.Uint64(r.header[0:8])
	size := binary.LittleEndian.Uint32(r.header[8:12])
	if size < 4 || size > MaxPayloadSize {
		return iterator.Record{}, fmt.Errorf("%w: payload size %d", ErrCorrupt, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.dec, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return iterator.Record{}, fmt.Errorf("%w: truncated payload", ErrCorrupt)
		}
		return iterator.Record{}, err
	}
	if xxhash.Sum64(payload) != sum {
		return iterator.Record{}, ErrChecksum
	}

	keyLen := binary.LittleEndian.Uint32(payload[0:4])
	if uint64(keyLen) > uint64(len(payload)-4) {
		return iterator.Record{}, fmt.Errorf("%w: key length %d", ErrCorrupt, keyLen)
	}
	k, err := key.Decode(payload[4 : 4+keyLen])
	if err != nil {
		return iterator.Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var value []byte
	if rest := payload[4+keyLen:]; len(rest) > 0 {
		value = rest
	}
	return iterator.Record{Key: k, Value: value}, nil
}

// Close releases the decompressor
func (r *Reader) Close() {
	r.dec.Close()
}

// Dump writes every record from src's current position until it is
// exhausted and returns how many were written
func Dump(src iterator.SortedSource, w io.Writer) (int, error) {
	sw, err := NewWriter(w)
	if err != nil {
		return 0, err
	}
	for src.Valid() {
		rec, _ := iterator.CurrentRecord(src)
		if err := sw.Append(rec); err != nil {
			_ = sw.Close()
			return sw.Count(), err
		}
		if err := src.Next(); err != nil {
			_ = sw.Close()
			return sw.Count(), err
		}
	}
	return sw.Count(), sw.Close()
}

// Load reads every record of a stream and hands it to apply
func Load(r io.Reader, apply func(iterator.Record) error) (int, error) {
	sr, err := NewReader(r)
	if err != nil {
		return 0, err
	}
	defer sr.Close()

	n := 0
	for {
		rec, err := sr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := apply(rec); err != nil {
			return n, err
		}
		n++
	}
}
