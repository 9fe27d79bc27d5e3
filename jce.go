// Package jce implements the JCE / Tars tag-typed binary serialization protocol
package jce

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// TypeID identifies the physical encoding of a value on the wire. It occupies
// the low 4 bits of a head byte.
type TypeID byte

const (
	TypeInt1        TypeID = 0
	TypeInt2        TypeID = 1
	TypeInt4        TypeID = 2
	TypeInt8        TypeID = 3
	TypeFloat       TypeID = 4
	TypeDouble      TypeID = 5
	TypeString1     TypeID = 6
	TypeString4     TypeID = 7
	TypeMap         TypeID = 8
	TypeList        TypeID = 9
	TypeStructBegin TypeID = 10
	TypeStructEnd   TypeID = 11
	TypeZeroTag     TypeID = 12
	TypeSimpleList  TypeID = 13
)

func (t TypeID) String() string {
	switch t {
	case TypeInt1:
		return "Int1"
	case TypeInt2:
		return "Int2"
	case TypeInt4:
		return "Int4"
	case TypeInt8:
		return "Int8"
	case TypeFloat:
		return "Float"
	case TypeDouble:
		return "Double"
	case TypeString1:
		return "String1"
	case TypeString4:
		return "String4"
	case TypeMap:
		return "Map"
	case TypeList:
		return "List"
	case TypeStructBegin:
		return "StructBegin"
	case TypeStructEnd:
		return "StructEnd"
	case TypeZeroTag:
		return "ZeroTag"
	case TypeSimpleList:
		return "SimpleList"
	}
	return "TypeID(" + strconv.Itoa(int(t)) + ")"
}

// MaxTag is the largest tag a head can carry. Tags 0..14 fit in a single head
// byte; 15..255 need the two-byte form.
const MaxTag = 255

// Option is a bit flag word controlling encode and decode behavior. Combine
// flags with |.
type Option uint32

const (
	// LittleEndian reads and writes integers and floats little-endian. The
	// String4 length field and framer length prefixes are unaffected; they
	// carry their own byte order.
	LittleEndian Option = 0x0001

	// StrictMap rejects map pairs whose key tag is not 0 or value tag is not 1.
	StrictMap Option = 0x0002

	// SerializeNone writes nil schema fields as their zero value instead of
	// omitting them.
	SerializeNone Option = 0x0004

	// ZeroCopy makes byte reads return subslices of the input buffer rather
	// than copies. The slices are only valid while the input is.
	ZeroCopy Option = 0x0010

	// OmitDefault skips schema fields whose value equals the zero value.
	OmitDefault Option = 0x0020

	// ExcludeUnset skips optional (pointer) schema fields that are nil.
	ExcludeUnset Option = 0x0040

	// StrictFloat disables the mis-endian float rescue heuristic, for interop
	// with producers known to be well-formed.
	StrictFloat Option = 0x0080
)

func (o Option) has(flag Option) bool { return o&flag != 0 }

func combine(opts []Option) Option {
	var o Option
	for _, f := range opts {
		o |= f
	}
	return o
}

// BytesMode selects how decoded byte runs are post-processed by the generic
// decoder before being returned.
type BytesMode int

const (
	// BytesAuto attempts a UTF-8 decode; if the text is printable it is used,
	// otherwise the bytes are probed as a nested payload, and failing that
	// returned raw. This is the default.
	BytesAuto BytesMode = iota
	// BytesRaw leaves byte runs untouched.
	BytesRaw
	// BytesString attempts a UTF-8 decode and falls back to raw bytes.
	BytesString
)

// Context carries caller state through an encode or decode call. It is passed
// opaquely to registered field hooks.
type Context map[string]any

// DecodeLimits configures bounds checking during decoding to prevent memory
// exhaustion from hostile input
type DecodeLimits struct {
	MaxStringLen    int // maximum String4 payload length
	MaxContainerLen int // maximum list/map/byte-run element count
	MaxDepth        int // maximum container nesting depth
}

// DefaultLimits provides sensible defaults for most use cases
var DefaultLimits = DecodeLimits{
	MaxStringLen:    100 * 1024 * 1024, // 100MB
	MaxContainerLen: 10_000_000,
	MaxDepth:        100,
}

// Marshal encodes a value as a JCE payload. Schema struct instances are
// encoded field by field in tag order; a TagDict becomes a bare struct body;
// generic maps, slices and primitives are encoded under tag 0.
func Marshal(v any, opts ...Option) ([]byte, error) {
	return MarshalWithContext(v, nil, opts...)
}

// MarshalWithContext is Marshal with a caller context made available to
// registered field serializers.
func MarshalWithContext(v any, ctx Context, opts ...Option) ([]byte, error) {
	e := newEncodeState(combine(opts), ctx)
	return e.encode(v)
}

// Unmarshal decodes a JCE payload into v. A *TagDict target selects generic
// decoding; a pointer to a schema struct selects schema decoding.
func Unmarshal(data []byte, v any, opts ...Option) error {
	return UnmarshalWithContext(data, v, nil, opts...)
}

// UnmarshalWithContext is Unmarshal with a caller context made available to
// registered field deserializers.
func UnmarshalWithContext(data []byte, v any, ctx Context, opts ...Option) error {
	opt := combine(opts)

	if d, ok := v.(*TagDict); ok {
		dict, err := Decode(data, opts...)
		if err != nil {
			return err
		}
		*d = dict
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &DecodeError{Msg: fmt.Sprintf("unmarshal target must be a non-nil pointer, got %T", v)}
	}
	if rv.Elem().Kind() != reflect.Struct {
		return &DecodeError{Msg: fmt.Sprintf("unmarshal target must be *TagDict or a struct pointer, got %T", v)}
	}

	schema, err := Compile(rv.Elem().Interface())
	if err != nil {
		return err
	}

	r := NewReader(data, opt)
	sd := &schemaDecoder{
		gd:  genericDecoder{r: r, opt: opt, limits: DefaultLimits},
		ctx: ctx,
	}
	return sd.decodeInto(rv.Elem(), schema)
}

// Decode parses a payload schema-lessly into a TagDict using BytesAuto
// post-processing.
func Decode(data []byte, opts ...Option) (TagDict, error) {
	return DecodeBytesMode(data, BytesAuto, opts...)
}

// DecodeBytesMode is Decode with explicit control over byte-run handling.
func DecodeBytesMode(data []byte, mode BytesMode, opts ...Option) (TagDict, error) {
	opt := combine(opts)
	r := NewReader(data, opt)
	gd := genericDecoder{r: r, opt: opt, limits: DefaultLimits}

	dict, err := gd.decode()
	if err != nil {
		return TagDict{}, err
	}
	return convertDictBytes(dict, mode, opt), nil
}

// Encoder is a compiled, reusable encoder for type T. Create one per type;
// it is safe for concurrent use.
type Encoder[T any] struct {
	schema *Schema
}

// NewEncoder compiles the schema for T and returns an encoder bound to it.
func NewEncoder[T any]() (*Encoder[T], error) {
	var zero T
	schema, err := Compile(zero)
	if err != nil {
		return nil, err
	}
	return &Encoder[T]{schema: schema}, nil
}

// Marshal encodes v using the compiled schema.
func (e *Encoder[T]) Marshal(v *T, opts ...Option) ([]byte, error) {
	return e.MarshalWithContext(v, nil, opts...)
}

// MarshalWithContext encodes v, passing ctx to field serializers.
func (e *Encoder[T]) MarshalWithContext(v *T, ctx Context, opts ...Option) ([]byte, error) {
	es := newEncodeState(combine(opts), ctx)
	if err := es.encodeSchemaFields(reflect.ValueOf(v).Elem(), e.schema); err != nil {
		return nil, err
	}
	return es.buf.Bytes, nil
}

// Schema exposes the compiled schema backing this encoder.
func (e *Encoder[T]) Schema() *Schema { return e.schema }

// Decoder is a compiled, reusable decoder for type T. Create one per type;
// it is safe for concurrent use.
type Decoder[T any] struct {
	schema *Schema
}

// NewDecoder compiles the schema for T and returns a decoder bound to it.
func NewDecoder[T any]() (*Decoder[T], error) {
	var zero T
	schema, err := Compile(zero)
	if err != nil {
		return nil, err
	}
	return &Decoder[T]{schema: schema}, nil
}

// Unmarshal decodes data into v using the compiled schema.
func (d *Decoder[T]) Unmarshal(data []byte, v *T, opts ...Option) error {
	return d.UnmarshalWithContext(data, v, nil, opts...)
}

// UnmarshalWithContext decodes data into v, passing ctx to field
// deserializers.
func (d *Decoder[T]) UnmarshalWithContext(data []byte, v *T, ctx Context, opts ...Option) error {
	opt := combine(opts)
	r := NewReader(data, opt)
	sd := &schemaDecoder{
		gd:  genericDecoder{r: r, opt: opt, limits: DefaultLimits},
		ctx: ctx,
	}
	return sd.decodeInto(reflect.ValueOf(v).Elem(), d.schema)
}

// Schema exposes the compiled schema backing this decoder.
func (d *Decoder[T]) Schema() *Schema { return d.schema }

// tagOptions represents the comma-separated options in a struct tag.
// Empty string if no options present.
//
// this is jacked from the stdlib to remain compatible with that syntax.
type tagOptions string

// parseTag extracts the tag number and options from a struct field tag.
func parseTag(tag string) (string, tagOptions) {
	if idx := strings.Index(tag, ","); idx != -1 {
		return tag[:idx], tagOptions(tag[idx+1:])
	}
	return tag, tagOptions("")
}

// Contains reports whether a comma-separated list of options
// contains a particular substr flag. substr must be surrounded by a
// string boundary or commas.
func (o tagOptions) Contains(optionName string) bool {
	if len(o) == 0 {
		return false
	}
	s := string(o)
	for s != "" {
		var next string
		i := strings.Index(s, ",")
		if i >= 0 {
			s, next = s[:i], s[i+1:]
		}
		if s == optionName {
			return true
		}
		s = next
	}
	return false
}

// Value extracts the value of a key=value option, if present.
func (o tagOptions) Value(key string) (string, bool) {
	s := string(o)
	for s != "" {
		var next string
		i := strings.Index(s, ",")
		if i >= 0 {
			s, next = s[:i], s[i+1:]
		}
		if rest, found := strings.CutPrefix(s, key+"="); found {
			return rest, true
		}
		s = next
	}
	return "", false
}
