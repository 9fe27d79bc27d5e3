package jce

import (
	"errors"
	"reflect"
	"strconv"
	"unicode/utf8"
)

// schemaDecoder decodes headed values directly into a target struct using a
// compiled schema. Unknown tags are skipped without materializing; per-field
// failures carry the field name in their location trail.
type schemaDecoder struct {
	gd  genericDecoder
	ctx Context
}

// decodeInto populates rv (an addressable struct value) from the reader,
// stopping at StructEnd or end of input.
func (sd *schemaDecoder) decodeInto(rv reflect.Value, s *Schema) error {
	log.Debugf("schema decode of %s", s.typ)

	if rv.CanAddr() {
		if def, ok := rv.Addr().Interface().(Defaulter); ok {
			def.SetDefaults()
		}
	}

	var seen [MaxTag + 1]bool
	for !sd.gd.r.EOF() {
		tag, typeID, err := sd.gd.readHead()
		if err != nil {
			return err
		}
		if typeID == TypeStructEnd {
			break
		}

		f := s.lookup(tag)
		if f == nil {
			log.Debugf("skipping unknown tag %d (type %s)", tag, typeID)
			if err := sd.gd.skipValue(typeID); err != nil {
				return err
			}
			continue
		}

		if err := sd.decodeField(rv.Field(f.index), f, s, typeID); err != nil {
			return annotate(err, f.name)
		}
		seen[tag] = true
	}

	for _, f := range s.fields {
		if f.required && !seen[f.tag] {
			return &DecodeError{Msg: "missing required field", Loc: []string{f.name}}
		}
	}
	return nil
}

func (sd *schemaDecoder) decodeField(fv reflect.Value, f *field, s *Schema, typeID TypeID) error {
	target := fv
	if fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		target = fv.Elem()
	}

	if err := sd.decodeValue(target, f.wt, typeID); err != nil {
		return err
	}

	if hook := s.deserializer(f.name); hook != nil {
		out, err := hook(target.Interface(), FieldInfo{
			Field:   f.name,
			Tag:     f.tag,
			Option:  sd.gd.opt,
			Context: sd.ctx,
		})
		if err != nil {
			return err
		}
		ov := reflect.ValueOf(out)
		if !ov.IsValid() || !ov.Type().AssignableTo(target.Type()) {
			if ov.IsValid() && ov.Type().ConvertibleTo(target.Type()) {
				ov = ov.Convert(target.Type())
			} else {
				return decodeErrorf("deserializer returned %T, want %s", out, target.Type())
			}
		}
		target.Set(ov)
	}

	return runValidators(f, target)
}

// decodeValue materializes one wire value into target per the declared
// logical type.
func (sd *schemaDecoder) decodeValue(target reflect.Value, wt *wireType, typeID TypeID) error {
	switch wt.kind {
	case kindBool:
		n, err := sd.readInteger(typeID)
		if err != nil {
			return err
		}
		target.SetBool(n != 0)
		return nil

	case kindInt:
		n, err := sd.readInteger(typeID)
		if err != nil {
			return err
		}
		return setInt(target, n)

	case kindFloat, kindDouble:
		f, err := sd.readFloating(typeID)
		if err != nil {
			return err
		}
		if target.OverflowFloat(f) {
			return decodeErrorf("float %v overflows %s", f, target.Type())
		}
		target.SetFloat(f)
		return nil

	case kindString:
		b, err := sd.readStringBytes(typeID)
		if err != nil {
			return err
		}
		if !utf8.Valid(b) {
			return decodeErrorf("invalid UTF-8 in string field")
		}
		target.SetString(string(b))
		return nil

	case kindBytes:
		b, err := sd.readBlob(typeID)
		if err != nil {
			return err
		}
		if target.Kind() == reflect.String {
			target.SetString(string(b))
		} else {
			target.SetBytes(b)
		}
		return nil

	case kindList:
		return sd.decodeList(target, wt, typeID)

	case kindMap:
		return sd.decodeMap(target, wt, typeID)

	case kindStruct:
		switch typeID {
		case TypeStructBegin:
			if err := sd.gd.enter(); err != nil {
				return err
			}
			defer sd.gd.leave()
			return sd.decodeInto(target, wt.sub)
		case TypeSimpleList:
			// Some senders opaque-box nested structs as byte blobs; unpack
			// the blob as a payload of its own.
			blob, err := sd.gd.readSimpleList()
			if err != nil {
				return err
			}
			inner := &schemaDecoder{
				gd:  genericDecoder{r: NewReader(blob, sd.gd.opt), opt: sd.gd.opt, limits: sd.gd.limits},
				ctx: sd.ctx,
			}
			return inner.decodeInto(target, wt.sub)
		}
		// Senders that box nested structs in some other wire form degrade to
		// a generic decode, remapped onto the declared fields.
		v, err := sd.gd.readValue(typeID)
		if err != nil {
			return err
		}
		return sd.fallbackStruct(target, wt.sub, v)
	}
	return decodeErrorf("unhandled field kind %s", wt.kind)
}

// fallbackStruct maps a generically decoded value onto a declared struct
// target. Dict-shaped values remap their integer tags to field names; other
// values are kept on a RawValue field when the type declares one.
func (sd *schemaDecoder) fallbackStruct(target reflect.Value, sub *Schema, v any) error {
	assignTag := func(tag int, item any) error {
		if tag < 0 || tag > MaxTag {
			return nil
		}
		f := sub.lookup(tag)
		if f == nil {
			return nil
		}
		fv := target.Field(f.index)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			fv = fv.Elem()
		}
		if err := sd.assignGeneric(fv, f.wt, item); err != nil {
			return annotate(err, f.name)
		}
		return nil
	}

	switch val := v.(type) {
	case TagDict:
		var err error
		val.Range(func(tag int, item any) bool {
			err = assignTag(tag, item)
			return err == nil
		})
		return err
	case map[any]any:
		for k, item := range val {
			tag, ok := k.(int64)
			if !ok {
				continue
			}
			if err := assignTag(int(tag), item); err != nil {
				return err
			}
		}
		return nil
	default:
		if rf := target.FieldByName("RawValue"); rf.IsValid() && rf.CanSet() {
			ov := reflect.ValueOf(v)
			if ov.IsValid() && ov.Type().AssignableTo(rf.Type()) {
				rf.Set(ov)
			}
		}
		return nil
	}
}

// assignGeneric converts a generically decoded value into a declared typed
// target. It backs fallbackStruct, so values arrive in the generic decoder's
// variants rather than off the wire.
func (sd *schemaDecoder) assignGeneric(target reflect.Value, wt *wireType, v any) error {
	switch wt.kind {
	case kindBool:
		if n, ok := v.(int64); ok {
			target.SetBool(n != 0)
			return nil
		}

	case kindInt:
		if n, ok := v.(int64); ok {
			return setInt(target, n)
		}

	case kindFloat, kindDouble:
		switch f := v.(type) {
		case float32:
			target.SetFloat(float64(f))
			return nil
		case float64:
			target.SetFloat(f)
			return nil
		case int64:
			target.SetFloat(float64(f))
			return nil
		}

	case kindString:
		switch s := v.(type) {
		case string:
			target.SetString(s)
			return nil
		case []byte:
			if !utf8.Valid(s) {
				return decodeErrorf("invalid UTF-8 in string field")
			}
			target.SetString(string(s))
			return nil
		}

	case kindBytes:
		switch b := v.(type) {
		case []byte:
			if target.Kind() == reflect.String {
				target.SetString(string(b))
			} else {
				target.SetBytes(b)
			}
			return nil
		case string:
			if target.Kind() == reflect.String {
				target.SetString(b)
			} else {
				target.SetBytes([]byte(b))
			}
			return nil
		}

	case kindList:
		if items, ok := v.([]any); ok {
			out := reflect.MakeSlice(target.Type(), len(items), len(items))
			for i, item := range items {
				ev := out.Index(i)
				if ev.Kind() == reflect.Pointer {
					ev.Set(reflect.New(ev.Type().Elem()))
					ev = ev.Elem()
				}
				if err := sd.assignGeneric(ev, wt.elem, item); err != nil {
					return annotate(err, strconv.Itoa(i))
				}
			}
			target.Set(out)
			return nil
		}

	case kindMap:
		if m, ok := v.(map[any]any); ok {
			out := reflect.MakeMapWithSize(target.Type(), len(m))
			for k, item := range m {
				key := reflect.New(target.Type().Key()).Elem()
				kv := key
				if kv.Kind() == reflect.Pointer {
					kv.Set(reflect.New(kv.Type().Elem()))
					kv = kv.Elem()
				}
				if err := sd.assignGeneric(kv, wt.key, k); err != nil {
					return err
				}
				val := reflect.New(target.Type().Elem()).Elem()
				vv := val
				if vv.Kind() == reflect.Pointer {
					vv.Set(reflect.New(vv.Type().Elem()))
					vv = vv.Elem()
				}
				if err := sd.assignGeneric(vv, wt.val, item); err != nil {
					return err
				}
				out.SetMapIndex(key, val)
			}
			target.Set(out)
			return nil
		}

	case kindStruct:
		return sd.fallbackStruct(target, wt.sub, v)
	}
	return decodeErrorf("cannot map %T onto %s field", v, wt.kind)
}

func (sd *schemaDecoder) decodeList(target reflect.Value, wt *wireType, typeID TypeID) error {
	if typeID != TypeList {
		return decodeErrorf("cannot decode %s into list field", typeID)
	}
	if err := sd.gd.enter(); err != nil {
		return err
	}
	defer sd.gd.leave()

	n, err := sd.gd.readLength()
	if err != nil {
		return err
	}
	out := reflect.MakeSlice(target.Type(), n, n)
	for i := 0; i < n; i++ {
		_, elemType, err := sd.gd.readHead()
		if err != nil {
			return err
		}
		ev := out.Index(i)
		if ev.Kind() == reflect.Pointer {
			ev.Set(reflect.New(ev.Type().Elem()))
			ev = ev.Elem()
		}
		if err := sd.decodeValue(ev, wt.elem, elemType); err != nil {
			return annotate(err, strconv.Itoa(i))
		}
	}
	target.Set(out)
	return nil
}

func (sd *schemaDecoder) decodeMap(target reflect.Value, wt *wireType, typeID TypeID) error {
	if typeID != TypeMap {
		return decodeErrorf("cannot decode %s into map field", typeID)
	}
	if err := sd.gd.enter(); err != nil {
		return err
	}
	defer sd.gd.leave()

	n, err := sd.gd.readLength()
	if err != nil {
		return err
	}
	strict := sd.gd.opt.has(StrictMap)
	out := reflect.MakeMapWithSize(target.Type(), n)
	for i := 0; i < n; i++ {
		kTag, kType, err := sd.gd.readHead()
		if err != nil {
			return err
		}
		if strict && kTag != 0 {
			return decodeErrorf("expected map key tag 0, got %d", kTag)
		}
		key := reflect.New(target.Type().Key()).Elem()
		kv := key
		if kv.Kind() == reflect.Pointer {
			kv.Set(reflect.New(kv.Type().Elem()))
			kv = kv.Elem()
		}
		if err := sd.decodeValue(kv, wt.key, kType); err != nil {
			return err
		}

		vTag, vType, err := sd.gd.readHead()
		if err != nil {
			return err
		}
		if strict && vTag != 1 {
			return decodeErrorf("expected map value tag 1, got %d", vTag)
		}
		val := reflect.New(target.Type().Elem()).Elem()
		vv := val
		if vv.Kind() == reflect.Pointer {
			vv.Set(reflect.New(vv.Type().Elem()))
			vv = vv.Elem()
		}
		if err := sd.decodeValue(vv, wt.val, vType); err != nil {
			return err
		}
		out.SetMapIndex(key, val)
	}
	target.Set(out)
	return nil
}

// readInteger accepts any integer wire width; integers are read
// width-polymorphically.
func (sd *schemaDecoder) readInteger(typeID TypeID) (int64, error) {
	switch typeID {
	case TypeZeroTag:
		return 0, nil
	case TypeInt1:
		return sd.gd.r.ReadInt1()
	case TypeInt2:
		return sd.gd.r.ReadInt2()
	case TypeInt4:
		return sd.gd.r.ReadInt4()
	case TypeInt8:
		return sd.gd.r.ReadInt8()
	}
	return 0, decodeErrorf("cannot decode %s into integer field", typeID)
}

// readFloating accepts both float widths and widens integer wire values.
func (sd *schemaDecoder) readFloating(typeID TypeID) (float64, error) {
	switch typeID {
	case TypeFloat:
		f, err := sd.gd.r.ReadFloat32()
		return float64(f), err
	case TypeDouble:
		return sd.gd.r.ReadFloat64()
	}
	n, err := sd.readInteger(typeID)
	if err != nil {
		if errors.Is(err, ErrPartialData) {
			return 0, err
		}
		return 0, decodeErrorf("cannot decode %s into float field", typeID)
	}
	return float64(n), nil
}

func (sd *schemaDecoder) readStringBytes(typeID TypeID) ([]byte, error) {
	switch typeID {
	case TypeString1:
		n, err := sd.gd.r.ReadU8()
		if err != nil {
			return nil, err
		}
		return sd.gd.r.ReadBytes(int(n))
	case TypeString4:
		n, err := sd.gd.readString4Len()
		if err != nil {
			return nil, err
		}
		return sd.gd.r.ReadBytes(n)
	}
	return nil, decodeErrorf("cannot decode %s into string field", typeID)
}

// readBlob accepts a SimpleList or, for senders that string-box binary
// payloads, either string form.
func (sd *schemaDecoder) readBlob(typeID TypeID) ([]byte, error) {
	switch typeID {
	case TypeSimpleList:
		return sd.gd.readSimpleList()
	case TypeString1, TypeString4:
		return sd.readStringBytes(typeID)
	}
	return nil, decodeErrorf("cannot decode %s into bytes field", typeID)
}

func setInt(target reflect.Value, n int64) error {
	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if target.OverflowInt(n) {
			return decodeErrorf("integer %d overflows %s", n, target.Type())
		}
		target.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n < 0 || target.OverflowUint(uint64(n)) {
			return decodeErrorf("integer %d overflows %s", n, target.Type())
		}
		target.SetUint(uint64(n))
	default:
		return decodeErrorf("cannot assign integer to %s", target.Type())
	}
	return nil
}
