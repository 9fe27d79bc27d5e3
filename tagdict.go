package jce

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// TagDict is the canonical schema-less form: an insertion-ordered mapping
// from integer tag to a decoded value. It encodes as struct wire fields, not
// as a Map. Iteration order follows insertion; equality ignores order.
//
// Value variants are int64, float32, float64, string, []byte, []any (List),
// map[any]any (Map) and TagDict (nested struct).
type TagDict struct {
	tags   []int
	values map[int]any
}

// NewTagDict returns an empty dict.
func NewTagDict() TagDict {
	return TagDict{values: map[int]any{}}
}

// DictOf builds a dict from alternating tag, value pairs. It panics on an
// odd pair count or a non-int tag; it is intended for literals in tests and
// tooling.
func DictOf(pairs ...any) TagDict {
	if len(pairs)%2 != 0 {
		panic("jce: DictOf requires tag, value pairs")
	}
	d := NewTagDict()
	for i := 0; i < len(pairs); i += 2 {
		tag, ok := pairs[i].(int)
		if !ok {
			panic(fmt.Sprintf("jce: DictOf tag must be int, got %T", pairs[i]))
		}
		d.Set(tag, pairs[i+1])
	}
	return d
}

// Set stores v under tag, preserving the tag's original insertion position
// when overwriting.
func (d *TagDict) Set(tag int, v any) {
	if d.values == nil {
		d.values = map[int]any{}
	}
	if _, ok := d.values[tag]; !ok {
		d.tags = append(d.tags, tag)
	}
	d.values[tag] = v
}

// Get retrieves the value stored under tag.
func (d *TagDict) Get(tag int) (any, bool) {
	v, ok := d.values[tag]
	return v, ok
}

// Has reports whether tag is present.
func (d *TagDict) Has(tag int) bool {
	_, ok := d.values[tag]
	return ok
}

// Len returns the number of entries.
func (d *TagDict) Len() int {
	return len(d.tags)
}

// Tags returns the tags in insertion order. The slice is shared; callers
// must not modify it.
func (d *TagDict) Tags() []int {
	return d.tags
}

// Range calls fn for each entry in insertion order until fn returns false.
func (d *TagDict) Range(fn func(tag int, v any) bool) {
	for _, tag := range d.tags {
		if !fn(tag, d.values[tag]) {
			return
		}
	}
}

// Int retrieves an integer stored under tag, tolerating any decoded integer
// width.
func (d *TagDict) Int(tag int) (int64, bool) {
	v, ok := d.values[tag]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// String retrieves a string stored under tag. Byte runs that were left raw
// are not converted.
func (d *TagDict) String(tag int) (string, bool) {
	v, ok := d.values[tag]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bytes retrieves a byte run stored under tag.
func (d *TagDict) Bytes(tag int) ([]byte, bool) {
	v, ok := d.values[tag]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Dict retrieves a nested struct stored under tag.
func (d *TagDict) Dict(tag int) (TagDict, bool) {
	v, ok := d.values[tag]
	if !ok {
		return TagDict{}, false
	}
	sub, ok := v.(TagDict)
	return sub, ok
}

// Equal reports deep equality with other, ignoring insertion order.
func (d TagDict) Equal(other TagDict) bool {
	if len(d.values) != len(other.values) {
		return false
	}
	for tag, v := range d.values {
		ov, ok := other.values[tag]
		if !ok || !valueEqual(v, ov) {
			return false
		}
	}
	return true
}

// GoString renders the dict for debugging, tags in insertion order.
func (d TagDict) GoString() string {
	var sb strings.Builder
	sb.WriteString("TagDict{")
	for i, tag := range d.tags {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d: %#v", tag, d.values[tag])
	}
	sb.WriteString("}")
	return sb.String()
}

// valueEqual compares two decoded values structurally. Integer widths were
// already normalized to int64 by the decoder; floats compare by value within
// their own width.
func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case TagDict:
		bv, ok := b.(TagDict)
		return ok && av.Equal(bv)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[any]any:
		bv, ok := b.(map[any]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, ok := bv[k]
			if !ok || !valueEqual(v, ov) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// freezeKey canonicalizes a decoded value so it can key a Go map. Scalars
// pass through; composites collapse to a stable textual form with map
// entries sorted by the string form of their keys.
func freezeKey(v any) any {
	switch v.(type) {
	case nil, int64, float32, float64, string, bool:
		return v
	case []byte:
		return string(v.([]byte))
	}
	return frozenKey(freezeString(v))
}

// frozenKey marks a canonicalized composite key, keeping it distinct from
// decoded strings that happen to share the same text.
type frozenKey string

func freezeString(v any) string {
	switch val := v.(type) {
	case []byte:
		return fmt.Sprintf("0x%x", val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = freezeString(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[any]any:
		parts := make([]string, 0, len(val))
		for k, item := range val {
			parts = append(parts, freezeString(k)+":"+freezeString(item))
		}
		sort.Strings(parts)
		return "{" + strings.Join(parts, ",") + "}"
	case TagDict:
		parts := make([]string, 0, val.Len())
		val.Range(func(tag int, item any) bool {
			parts = append(parts, fmt.Sprintf("%d:%s", tag, freezeString(item)))
			return true
		})
		sort.Strings(parts)
		return "(" + strings.Join(parts, ",") + ")"
	default:
		return fmt.Sprintf("%v", val)
	}
}
