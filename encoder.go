package jce

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// maxEncodeDepth bounds container nesting during encoding, mirroring the
// decoder's recursion limit.
const maxEncodeDepth = 100

// FallbackFunc converts a value the encoder cannot handle into one it can.
// The encoder recurses on the result.
type FallbackFunc func(v any) (any, error)

// MarshalWithFallback is Marshal with a converter for otherwise-unencodable
// types.
func MarshalWithFallback(v any, fallback FallbackFunc, ctx Context, opts ...Option) ([]byte, error) {
	e := newEncodeState(combine(opts), ctx)
	e.fallback = fallback
	return e.encode(v)
}

// encodeState carries one encode call: the output buffer, the in-flight
// identity set for cycle detection, and the caller context for hooks.
type encodeState struct {
	buf      *Buffer
	opt      Option
	ctx      Context
	depth    int
	inflight map[uintptr]struct{}
	fallback FallbackFunc
}

func newEncodeState(opt Option, ctx Context) *encodeState {
	return &encodeState{
		buf: NewBuffer(opt),
		opt: opt,
		ctx: ctx,
	}
}

// encode dispatches on the top-level value. Schema instances and TagDicts
// emit a bare struct body; everything else is encoded as a headed value
// under tag 0.
func (e *encodeState) encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case TagDict:
		if err := e.encodeDictFields(val); err != nil {
			return nil, err
		}
		return e.buf.Bytes, nil
	case *TagDict:
		if err := e.encodeDictFields(*val); err != nil {
			return nil, err
		}
		return e.buf.Bytes, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		schema, err := Compile(v)
		if err != nil {
			return nil, err
		}
		if err := e.encodeSchemaFields(rv, schema); err != nil {
			return nil, err
		}
		return e.buf.Bytes, nil
	}

	if err := e.encodeValue(0, v, nil); err != nil {
		return nil, err
	}
	return e.buf.Bytes, nil
}

// encodeSchemaFields walks a compiled schema in tag order and emits each
// present field.
func (e *encodeState) encodeSchemaFields(rv reflect.Value, s *Schema) error {
	for _, f := range s.fields {
		fv := rv.Field(f.index)

		if fv.Kind() == reflect.Pointer && fv.IsNil() {
			if e.opt.has(ExcludeUnset) || !e.opt.has(SerializeNone) {
				continue
			}
			fv = reflect.Zero(fv.Type().Elem())
		} else if fv.Kind() == reflect.Pointer {
			fv = fv.Elem()
		}

		if e.opt.has(OmitDefault) && fv.IsZero() {
			continue
		}

		val := fv.Interface()
		if hook := s.serializer(f.name); hook != nil {
			out, err := hook(val, FieldInfo{
				Field:   f.name,
				Tag:     f.tag,
				Option:  e.opt,
				Context: e.ctx,
			})
			if err != nil {
				return err
			}
			val = out
		}

		if err := e.encodeValue(f.tag, val, f.wt); err != nil {
			return fmt.Errorf("field %s: %w", f.name, err)
		}
	}
	return nil
}

func (e *encodeState) encodeDictFields(d TagDict) error {
	var encErr error
	d.Range(func(tag int, v any) bool {
		if tag < 0 || tag > MaxTag {
			encErr = encodeErrorf("tag %d out of range 0..%d", tag, MaxTag)
			return false
		}
		encErr = e.encodeValue(tag, v, nil)
		return encErr == nil
	})
	return encErr
}

// encodeValue emits one headed value. declared, when non-nil, is the
// schema-declared logical type and drives coercion.
func (e *encodeState) encodeValue(tag int, v any, declared *wireType) error {
	if v == nil {
		// the protocol has no null; absent optionals are skipped upstream, a
		// nil at value position degrades to integer zero
		e.buf.WriteInt(tag, 0)
		return nil
	}

	if declared != nil {
		done, err := e.coerceDeclared(tag, v, declared)
		if done || err != nil {
			return err
		}
	}

	switch val := v.(type) {
	case bool:
		n := int64(0)
		if val {
			n = 1
		}
		e.buf.WriteInt(tag, n)
		return nil
	case int:
		e.buf.WriteInt(tag, int64(val))
		return nil
	case int8:
		e.buf.WriteInt(tag, int64(val))
		return nil
	case int16:
		e.buf.WriteInt(tag, int64(val))
		return nil
	case int32:
		e.buf.WriteInt(tag, int64(val))
		return nil
	case int64:
		e.buf.WriteInt(tag, val)
		return nil
	case uint:
		return e.writeUint(tag, uint64(val))
	case uint8:
		e.buf.WriteInt(tag, int64(val))
		return nil
	case uint16:
		e.buf.WriteInt(tag, int64(val))
		return nil
	case uint32:
		e.buf.WriteInt(tag, int64(val))
		return nil
	case uint64:
		return e.writeUint(tag, val)
	case float32:
		e.buf.WriteFloat32(tag, val)
		return nil
	case float64:
		e.buf.WriteFloat64(tag, val)
		return nil
	case string:
		return e.buf.WriteString(tag, val)
	case []byte:
		e.buf.WriteBytes(tag, val)
		return nil
	case TagDict:
		return e.encodeNestedDict(tag, val)
	case *TagDict:
		return e.encodeNestedDict(tag, *val)
	}

	return e.encodeReflect(tag, reflect.ValueOf(v))
}

// coerceDeclared applies the schema-declared type to a value whose concrete
// type differs, per the protocol's coercion rules. Returns done=true when it
// emitted the value itself.
func (e *encodeState) coerceDeclared(tag int, v any, declared *wireType) (bool, error) {
	switch declared.kind {
	case kindBytes:
		switch val := v.(type) {
		case []byte:
			e.buf.WriteBytes(tag, val)
			return true, nil
		case string:
			e.buf.WriteBytes(tag, []byte(val))
			return true, nil
		case int64, int, int8, uint8:
			n, _ := numericValue(reflect.ValueOf(val))
			if n < 0 || n > 255 {
				return false, encodeErrorf("cannot box %v as a single byte", val)
			}
			e.buf.WriteBytes(tag, []byte{byte(n)})
			return true, nil
		default:
			// structured values are blob-boxed: recursively encoded, then
			// wrapped as a SimpleList
			blob, err := MarshalWithContext(v, e.ctx, e.opt)
			if err != nil {
				return false, encodeErrorf("cannot convert %T to bytes: %v", v, err)
			}
			e.buf.WriteBytes(tag, blob)
			return true, nil
		}

	case kindFloat:
		if f, ok := numericValue(reflect.ValueOf(v)); ok {
			if math.Abs(f) > math.MaxFloat32 {
				return false, encodeErrorf("value %v overflows 4-byte float", f)
			}
			e.buf.WriteFloat32(tag, float32(f))
			return true, nil
		}

	case kindDouble:
		if f, ok := numericValue(reflect.ValueOf(v)); ok {
			e.buf.WriteFloat64(tag, f)
			return true, nil
		}
	}
	return false, nil
}

func (e *encodeState) writeUint(tag int, v uint64) error {
	if v > math.MaxInt64 {
		return encodeErrorf("integer %d exceeds signed 64-bit range", v)
	}
	e.buf.WriteInt(tag, int64(v))
	return nil
}

func (e *encodeState) encodeNestedDict(tag int, d TagDict) error {
	if d.values != nil {
		p := reflect.ValueOf(d.values).Pointer()
		if err := e.track(p); err != nil {
			return err
		}
		defer e.untrack(p)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	e.buf.WriteStructBegin(tag)
	if err := e.encodeDictFields(d); err != nil {
		return err
	}
	e.buf.WriteStructEnd()
	return nil
}

// encodeReflect handles containers, schema structs and anything else not
// expressible as a direct type switch case.
func (e *encodeState) encodeReflect(tag int, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			e.buf.WriteInt(tag, 0)
			return nil
		}
		if rv.Kind() == reflect.Pointer {
			p := rv.Pointer()
			if err := e.track(p); err != nil {
				return err
			}
			defer e.untrack(p)
		}
		return e.encodeValue(tag, rv.Elem().Interface(), nil)

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			e.buf.WriteBytes(tag, rv.Bytes())
			return nil
		}
		if rv.Kind() == reflect.Slice && rv.Len() > 0 {
			p := rv.Pointer()
			if err := e.track(p); err != nil {
				return err
			}
			defer e.untrack(p)
		}
		if err := e.enter(); err != nil {
			return err
		}
		defer e.leave()

		n := rv.Len()
		e.buf.WriteListHead(tag, n)
		for i := 0; i < n; i++ {
			if err := e.encodeValue(0, rv.Index(i).Interface(), nil); err != nil {
				return err
			}
		}
		return nil

	case reflect.Map:
		p := rv.Pointer()
		if err := e.track(p); err != nil {
			return err
		}
		defer e.untrack(p)
		if err := e.enter(); err != nil {
			return err
		}
		defer e.leave()

		keys := rv.MapKeys()
		sortMapKeys(keys)
		e.buf.WriteMapHead(tag, len(keys))
		for _, k := range keys {
			if err := e.encodePairMember(0, k.Interface()); err != nil {
				return err
			}
			if err := e.encodePairMember(1, rv.MapIndex(k).Interface()); err != nil {
				return err
			}
		}
		return nil

	case reflect.Struct:
		schema, err := Compile(rv.Interface())
		if err != nil {
			return err
		}
		if err := e.enter(); err != nil {
			return err
		}
		defer e.leave()

		e.buf.WriteStructBegin(tag)
		if err := e.encodeSchemaFields(rv, schema); err != nil {
			return err
		}
		e.buf.WriteStructEnd()
		return nil

	// named scalar types (including canonicalized map keys) reduce to their
	// underlying kind
	case reflect.Bool:
		n := int64(0)
		if rv.Bool() {
			n = 1
		}
		e.buf.WriteInt(tag, n)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteInt(tag, rv.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.writeUint(tag, rv.Uint())
	case reflect.Float32:
		e.buf.WriteFloat32(tag, float32(rv.Float()))
		return nil
	case reflect.Float64:
		e.buf.WriteFloat64(tag, rv.Float())
		return nil
	case reflect.String:
		return e.buf.WriteString(tag, rv.String())
	}

	if e.fallback != nil {
		converted, err := e.fallback(rv.Interface())
		if err != nil {
			return err
		}
		return e.encodeValue(tag, converted, nil)
	}
	return encodeErrorf("cannot encode type %s", rv.Type())
}

// encodePairMember writes one half of a map pair. Map pairs keep integer
// zeros in Int1 form rather than collapsing them to ZeroTag.
func (e *encodeState) encodePairMember(tag int, v any) error {
	if isIntZero(v) {
		e.buf.WriteHead(tag, TypeInt1)
		e.buf.Bytes = append(e.buf.Bytes, 0)
		return nil
	}
	return e.encodeValue(tag, v, nil)
}

func isIntZero(v any) bool {
	switch val := v.(type) {
	case int:
		return val == 0
	case int8:
		return val == 0
	case int16:
		return val == 0
	case int32:
		return val == 0
	case int64:
		return val == 0
	case uint:
		return val == 0
	case uint8:
		return val == 0
	case uint16:
		return val == 0
	case uint32:
		return val == 0
	case uint64:
		return val == 0
	}
	return false
}

func (e *encodeState) track(p uintptr) error {
	if e.inflight == nil {
		e.inflight = map[uintptr]struct{}{}
	}
	if _, ok := e.inflight[p]; ok {
		return encodeErrorf("circular reference detected")
	}
	e.inflight[p] = struct{}{}
	return nil
}

func (e *encodeState) untrack(p uintptr) {
	delete(e.inflight, p)
}

func (e *encodeState) enter() error {
	e.depth++
	if e.depth > maxEncodeDepth {
		return encodeErrorf("recursion depth exceeds %d", maxEncodeDepth)
	}
	return nil
}

func (e *encodeState) leave() {
	e.depth--
}

// sortMapKeys orders map keys deterministically so identical maps produce
// identical payloads across runs.
func sortMapKeys(keys []reflect.Value) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Kind() != b.Kind() {
			return a.Kind() < b.Kind()
		}
		switch a.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return a.Int() < b.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return a.Uint() < b.Uint()
		case reflect.String:
			return a.String() < b.String()
		case reflect.Float32, reflect.Float64:
			return a.Float() < b.Float()
		}
		return fmt.Sprint(a.Interface()) < fmt.Sprint(b.Interface())
	})
}
