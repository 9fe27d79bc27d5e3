package jce

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

// genericDecoder parses a payload schema-lessly into a TagDict, dispatching
// on the type ID of each headed value. One instance is scoped to a single
// decode call.
type genericDecoder struct {
	r      *Reader
	opt    Option
	limits DecodeLimits
	depth  int
}

// decode consumes headed values until StructEnd or end of input and returns
// the accumulated tag dictionary.
func (d *genericDecoder) decode() (TagDict, error) {
	log.Debugf("generic decode of %d bytes", d.r.BytesLeft())

	result := NewTagDict()
	for !d.r.EOF() {
		tag, typeID, err := d.readHead()
		if err != nil {
			return TagDict{}, err
		}
		if typeID == TypeStructEnd {
			break
		}
		v, err := d.readValue(typeID)
		if err != nil {
			return TagDict{}, err
		}
		result.Set(tag, v)
	}
	return result, nil
}

// readHead extracts the tag and type of the next value.
func (d *genericDecoder) readHead() (int, TypeID, error) {
	b, err := d.r.ReadU8()
	if err != nil {
		return 0, 0, err
	}
	typeID := TypeID(b & 0x0F)
	tag := int(b&0xF0) >> 4
	if tag == 15 {
		ext, err := d.r.ReadU8()
		if err != nil {
			return 0, 0, err
		}
		tag = int(ext)
	}
	return tag, typeID, nil
}

func (d *genericDecoder) readValue(typeID TypeID) (any, error) {
	switch typeID {
	case TypeZeroTag:
		return int64(0), nil
	case TypeInt1:
		return d.r.ReadInt1()
	case TypeInt2:
		return d.r.ReadInt2()
	case TypeInt4:
		return d.r.ReadInt4()
	case TypeInt8:
		return d.r.ReadInt8()
	case TypeFloat:
		return d.r.ReadFloat32()
	case TypeDouble:
		return d.r.ReadFloat64()
	case TypeString1:
		n, err := d.r.ReadU8()
		if err != nil {
			return nil, err
		}
		return d.r.ReadBytes(int(n))
	case TypeString4:
		n, err := d.readString4Len()
		if err != nil {
			return nil, err
		}
		return d.r.ReadBytes(n)
	case TypeList:
		return d.readList()
	case TypeMap:
		return d.readMap()
	case TypeStructBegin:
		return d.readStruct()
	case TypeSimpleList:
		return d.readSimpleList()
	}
	return nil, decodeErrorf("unknown type ID: %d", typeID)
}

func (d *genericDecoder) readString4Len() (int, error) {
	n, err := d.r.ReadLen4()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, decodeErrorf("String4 length cannot be negative: %d", n)
	}
	if n > d.limits.MaxStringLen {
		return 0, decodeErrorf("String4 length %d exceeds max %d", n, d.limits.MaxStringLen)
	}
	return n, nil
}

func (d *genericDecoder) enter() error {
	d.depth++
	if d.depth > d.limits.MaxDepth {
		return decodeErrorf("recursion depth exceeds %d", d.limits.MaxDepth)
	}
	return nil
}

func (d *genericDecoder) leave() {
	d.depth--
}

func (d *genericDecoder) readList() ([]any, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	n, err := d.readLength()
	if err != nil {
		return nil, err
	}
	result := make([]any, 0, min(n, 4096))
	for i := 0; i < n; i++ {
		_, typeID, err := d.readHead()
		if err != nil {
			return nil, err
		}
		v, err := d.readValue(typeID)
		if err != nil {
			return nil, annotate(err, strconv.Itoa(i))
		}
		result = append(result, v)
	}
	return result, nil
}

func (d *genericDecoder) readMap() (map[any]any, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	n, err := d.readLength()
	if err != nil {
		return nil, err
	}
	strict := d.opt.has(StrictMap)
	result := make(map[any]any, min(n, 4096))
	for i := 0; i < n; i++ {
		kTag, kType, err := d.readHead()
		if err != nil {
			return nil, err
		}
		if strict && kTag != 0 {
			return nil, decodeErrorf("expected map key tag 0, got %d", kTag)
		}
		key, err := d.readValue(kType)
		if err != nil {
			return nil, err
		}

		vTag, vType, err := d.readHead()
		if err != nil {
			return nil, err
		}
		if strict && vTag != 1 {
			return nil, decodeErrorf("expected map value tag 1, got %d", vTag)
		}
		val, err := d.readValue(vType)
		if err != nil {
			return nil, err
		}

		result[freezeKey(key)] = val
	}
	return result, nil
}

func (d *genericDecoder) readStruct() (TagDict, error) {
	if err := d.enter(); err != nil {
		return TagDict{}, err
	}
	defer d.leave()

	result := NewTagDict()
	for {
		b, err := d.r.PeekU8()
		if err != nil {
			return TagDict{}, err
		}
		if TypeID(b&0x0F) == TypeStructEnd {
			d.r.ReadU8()
			break
		}
		tag, typeID, err := d.readHead()
		if err != nil {
			return TagDict{}, err
		}
		v, err := d.readValue(typeID)
		if err != nil {
			return TagDict{}, err
		}
		result.Set(tag, v)
	}
	return result, nil
}

// readSimpleList extracts a byte run: a nested Int1 head (tag ignored), an
// encoded-integer length, then the raw bytes.
func (d *genericDecoder) readSimpleList() ([]byte, error) {
	_, typeID, err := d.readHead()
	if err != nil {
		return nil, err
	}
	if typeID != TypeInt1 {
		return nil, decodeErrorf("SimpleList expected byte element type, got %s", typeID)
	}
	n, err := d.readLength()
	if err != nil {
		return nil, err
	}
	return d.r.ReadBytes(n)
}

// readLength extracts a container length written as an encoded integer and
// bounds checks it.
func (d *genericDecoder) readLength() (int, error) {
	_, typeID, err := d.readHead()
	if err != nil {
		return 0, err
	}
	v, err := d.readValue(typeID)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, decodeErrorf("expected integer length, got %T", v)
	}
	if n < 0 {
		return 0, decodeErrorf("container length cannot be negative: %d", n)
	}
	if n > int64(d.limits.MaxContainerLen) {
		return 0, decodeErrorf("container length %d exceeds max %d", n, d.limits.MaxContainerLen)
	}
	return int(n), nil
}

// skipValue consumes a value without materializing it, recursing through
// containers. Used for unknown tags during schema decode.
func (d *genericDecoder) skipValue(typeID TypeID) error {
	switch typeID {
	case TypeZeroTag:
		return nil
	case TypeInt1:
		return d.r.Skip(1)
	case TypeInt2:
		return d.r.Skip(2)
	case TypeInt4, TypeFloat:
		return d.r.Skip(4)
	case TypeInt8, TypeDouble:
		return d.r.Skip(8)
	case TypeString1:
		n, err := d.r.ReadU8()
		if err != nil {
			return err
		}
		return d.r.Skip(int(n))
	case TypeString4:
		n, err := d.readString4Len()
		if err != nil {
			return err
		}
		return d.r.Skip(n)
	case TypeList:
		return d.skipList()
	case TypeMap:
		return d.skipMap()
	case TypeStructBegin:
		return d.skipStruct()
	case TypeSimpleList:
		return d.skipSimpleList()
	}
	return decodeErrorf("unknown type ID: %d", typeID)
}

func (d *genericDecoder) skipList() error {
	n, err := d.readLength()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		_, typeID, err := d.readHead()
		if err != nil {
			return err
		}
		if err := d.skipValue(typeID); err != nil {
			return err
		}
	}
	return nil
}

func (d *genericDecoder) skipMap() error {
	n, err := d.readLength()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		for j := 0; j < 2; j++ {
			_, typeID, err := d.readHead()
			if err != nil {
				return err
			}
			if err := d.skipValue(typeID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *genericDecoder) skipStruct() error {
	for {
		b, err := d.r.PeekU8()
		if err != nil {
			return err
		}
		if TypeID(b&0x0F) == TypeStructEnd {
			d.r.ReadU8()
			return nil
		}
		_, typeID, err := d.readHead()
		if err != nil {
			return err
		}
		if err := d.skipValue(typeID); err != nil {
			return err
		}
	}
}

func (d *genericDecoder) skipSimpleList() error {
	_, _, err := d.readHead()
	if err != nil {
		return err
	}
	n, err := d.readLength()
	if err != nil {
		return err
	}
	return d.r.Skip(n)
}

// convertDictBytes applies the bytes-mode post-processing pass to a decoded
// tree, once, at the top level.
func convertDictBytes(d TagDict, mode BytesMode, opt Option) TagDict {
	if mode == BytesRaw {
		return d
	}
	out := NewTagDict()
	d.Range(func(tag int, v any) bool {
		out.Set(tag, convertBytes(v, mode, opt))
		return true
	})
	return out
}

func convertBytes(v any, mode BytesMode, opt Option) any {
	switch val := v.(type) {
	case []byte:
		switch mode {
		case BytesString:
			if utf8.Valid(val) {
				return string(val)
			}
			return val
		case BytesAuto:
			if utf8.Valid(val) && isSafeText(string(val)) {
				return string(val)
			}
			if len(val) > 0 {
				if nested, ok := probeNested(val, opt); ok {
					return convertDictBytes(nested, mode, opt)
				}
			}
			return val
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = convertBytes(item, mode, opt)
		}
		return val
	case map[any]any:
		out := make(map[any]any, len(val))
		for k, item := range val {
			out[freezeKey(convertBytes(k, mode, opt))] = convertBytes(item, mode, opt)
		}
		return out
	case TagDict:
		return convertDictBytes(val, mode, opt)
	}
	return v
}

// probeNested attempts to parse a byte run as an embedded payload. Only a
// non-empty dictionary counts as a hit.
func probeNested(data []byte, opt Option) (TagDict, bool) {
	r := NewReader(data, opt&^ZeroCopy)
	gd := genericDecoder{r: r, opt: opt, limits: DefaultLimits}
	dict, err := gd.decode()
	if err != nil || dict.Len() == 0 {
		return TagDict{}, false
	}
	return dict, true
}

// isSafeText reports whether s contains only printable characters plus the
// common whitespace controls.
func isSafeText(s string) bool {
	for _, c := range s {
		if c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		if !unicode.IsPrint(c) {
			return false
		}
	}
	return true
}
