package jce

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// FrameConfig fixes a framer instance's length header layout and resource
// bounds. The zero value means: 4-byte header counting itself, big-endian,
// 10 MiB ingest buffer.
type FrameConfig struct {
	// LengthType is the header byte width: 1, 2 or 4. Zero selects 4.
	LengthType int
	// ExclusiveLength makes the length value count the payload only. By
	// default the header's own bytes are included.
	ExclusiveLength bool
	// LittleEndianLength flips the byte order of the length field. It is
	// independent of the payload's endian option.
	LittleEndianLength bool
	// MaxBufferSize bounds the reader's ingest buffer. Zero selects 10 MiB.
	MaxBufferSize int
	// Options is the payload encode/decode option word.
	Options Option
	// BytesMode controls byte-run post-processing for generic targets.
	BytesMode BytesMode
	// Context is passed to field hooks during payload encode/decode.
	Context Context
}

const defaultMaxBufferSize = 10 * 1024 * 1024

func (c FrameConfig) lengthType() int {
	if c.LengthType == 0 {
		return 4
	}
	return c.LengthType
}

func (c FrameConfig) maxBuffer() int {
	if c.MaxBufferSize == 0 {
		return defaultMaxBufferSize
	}
	return c.MaxBufferSize
}

func (c FrameConfig) validate() error {
	switch c.LengthType {
	case 0, 1, 2, 4:
		return nil
	}
	return fmt.Errorf("jce: invalid frame length type %d: must be 1, 2 or 4", c.LengthType)
}

func (c FrameConfig) maxFrame() uint64 {
	switch c.lengthType() {
	case 1:
		return math.MaxUint8
	case 2:
		return math.MaxUint16
	default:
		return math.MaxUint32
	}
}

// FrameWriter emits length-prefixed records into an internal buffer. Not
// safe for concurrent use.
type FrameWriter struct {
	cfg FrameConfig
	buf []byte
}

// NewFrameWriter returns a writer for the given framing configuration.
func NewFrameWriter(cfg FrameConfig) (*FrameWriter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &FrameWriter{cfg: cfg}, nil
}

// Pack encodes v as a payload and appends [header][payload] atomically.
func (w *FrameWriter) Pack(v any) error {
	payload, err := MarshalWithContext(v, w.cfg.Context, w.cfg.Options)
	if err != nil {
		return err
	}
	return w.PackBytes(payload)
}

// PackBytes frames an already-encoded payload.
func (w *FrameWriter) PackBytes(payload []byte) error {
	lt := w.cfg.lengthType()
	length := uint64(len(payload))
	if !w.cfg.ExclusiveLength {
		length += uint64(lt)
	}
	if length > w.cfg.maxFrame() {
		return encodeErrorf("packet too large: %d bytes exceed %d-byte length header", length, lt)
	}

	switch lt {
	case 1:
		w.buf = append(w.buf, byte(length))
	case 2:
		if w.cfg.LittleEndianLength {
			w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(length))
		} else {
			w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(length))
		}
	default:
		if w.cfg.LittleEndianLength {
			w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(length))
		} else {
			w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(length))
		}
	}
	w.buf = append(w.buf, payload...)
	return nil
}

// Buffer returns a copy of the accumulated frames.
func (w *FrameWriter) Buffer() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Len returns the number of buffered bytes.
func (w *FrameWriter) Len() int {
	return len(w.buf)
}

// Clear empties the buffer, retaining its capacity.
func (w *FrameWriter) Clear() {
	w.buf = w.buf[:0]
}

// FrameReader is a streaming parser for length-prefixed records. Feed
// appends arbitrary chunks; Next yields complete messages in feed order,
// decoded into T. Use TagDict as T for generic decoding. Not safe for
// concurrent use.
type FrameReader[T any] struct {
	cfg    FrameConfig
	buf    []byte
	schema *Schema // nil for generic targets
}

// NewFrameReader returns a reader for the given framing configuration,
// compiling T's schema up front when T is a struct type.
func NewFrameReader[T any](cfg FrameConfig) (*FrameReader[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &FrameReader[T]{cfg: cfg}

	var zero T
	if _, ok := any(zero).(TagDict); !ok {
		schema, err := Compile(zero)
		if err != nil {
			return nil, err
		}
		r.schema = schema
	}
	return r, nil
}

// Feed appends a chunk to the ingest buffer. It never parses; call Next to
// drain complete messages.
func (r *FrameReader[T]) Feed(chunk []byte) error {
	if len(r.buf)+len(chunk) > r.cfg.maxBuffer() {
		return &BufferOverflowError{Size: len(r.buf) + len(chunk), Max: r.cfg.maxBuffer()}
	}
	r.buf = append(r.buf, chunk...)
	return nil
}

// Buffered returns the number of bytes awaiting a complete frame.
func (r *FrameReader[T]) Buffered() int {
	return len(r.buf)
}

// Next advances the framing state machine one whole message. ok is false
// when no complete frame is buffered yet. A decode failure inside a complete
// frame is returned after the frame's bytes have been consumed, so
// subsequent frames remain parsable.
func (r *FrameReader[T]) Next() (msg T, ok bool, err error) {
	var zero T

	lt := r.cfg.lengthType()
	if len(r.buf) < lt {
		return zero, false, nil
	}

	var total uint64
	switch lt {
	case 1:
		total = uint64(r.buf[0])
	case 2:
		if r.cfg.LittleEndianLength {
			total = uint64(binary.LittleEndian.Uint16(r.buf))
		} else {
			total = uint64(binary.BigEndian.Uint16(r.buf))
		}
	default:
		if r.cfg.LittleEndianLength {
			total = uint64(binary.LittleEndian.Uint32(r.buf))
		} else {
			total = uint64(binary.BigEndian.Uint32(r.buf))
		}
	}

	bodyLen := total
	if !r.cfg.ExclusiveLength {
		if total < uint64(lt) {
			// header bytes are unrecoverable; drop them so the stream can
			// resynchronize on the next frame
			r.consume(lt)
			return zero, false, decodeErrorf("frame length %d smaller than its %d-byte header", total, lt)
		}
		bodyLen = total - uint64(lt)
	}

	if uint64(len(r.buf)) < uint64(lt)+bodyLen {
		return zero, false, nil
	}

	payload := make([]byte, bodyLen)
	copy(payload, r.buf[lt:uint64(lt)+bodyLen])
	r.consume(lt + int(bodyLen))

	msg, err = r.decodePayload(payload)
	if err != nil {
		return zero, false, err
	}
	return msg, true, nil
}

// Drain returns every complete message currently buffered, stopping at the
// first decode failure.
func (r *FrameReader[T]) Drain() ([]T, error) {
	var out []T
	for {
		msg, ok, err := r.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, msg)
	}
}

func (r *FrameReader[T]) consume(n int) {
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
}

func (r *FrameReader[T]) decodePayload(payload []byte) (T, error) {
	var zero T

	if r.schema == nil {
		dict, err := DecodeBytesMode(payload, r.cfg.BytesMode, r.cfg.Options)
		if err != nil {
			return zero, err
		}
		return any(dict).(T), nil
	}

	var msg T
	target := reflect.ValueOf(&msg).Elem()
	if target.Kind() == reflect.Pointer {
		target.Set(reflect.New(target.Type().Elem()))
		target = target.Elem()
	}

	rd := NewReader(payload, r.cfg.Options)
	sd := &schemaDecoder{
		gd:  genericDecoder{r: rd, opt: r.cfg.Options, limits: DefaultLimits},
		ctx: r.cfg.Context,
	}
	if err := sd.decodeInto(target, r.schema); err != nil {
		return zero, err
	}
	return msg, nil
}
