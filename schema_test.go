package jce

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inner struct {
	X int64 `jce:"0"`
}

type outer struct {
	ID   int64             `jce:"0"`
	Name string            `jce:"1"`
	Blob []byte            `jce:"2"`
	Sub  inner             `jce:"3"`
	List []int32           `jce:"4"`
	Dict map[string]int64  `jce:"5"`
	Opt  *int64            `jce:"6,optional"`
	F32  float32           `jce:"7"`
	F64  float64           `jce:"8"`
	Flag bool              `jce:"9"`
	Subs []inner           `jce:"10"`
}

func TestSchemaRoundTrip(t *testing.T) {
	six := int64(6)
	in := outer{
		ID:   1001,
		Name: "alice",
		Blob: []byte{1, 2, 3},
		Sub:  inner{X: -5},
		List: []int32{10, 20, 30},
		Dict: map[string]int64{"a": 1, "b": 2},
		Opt:  &six,
		F32:  1.5,
		F64:  2.25,
		Flag: true,
		Subs: []inner{{X: 1}, {X: 2}},
	}

	payload, err := Marshal(in)
	require.NoError(t, err)

	var got outer
	require.NoError(t, Unmarshal(payload, &got))
	assert.Empty(t, cmp.Diff(in, got))
}

func TestSchemaSkipsUnknownTags(t *testing.T) {
	type twoFields struct {
		A int64 `jce:"0"`
		B int64 `jce:"2"`
	}
	// tag 1 carries a list of two int1s the schema does not declare
	payload := mustHex(t, "000a190002000100022014")

	var got twoFields
	require.NoError(t, Unmarshal(payload, &got))
	assert.Equal(t, int64(10), got.A)
	assert.Equal(t, int64(20), got.B)
}

func TestSchemaUnknownTagEquivalentToAbsent(t *testing.T) {
	type twoFields struct {
		A int64 `jce:"0"`
		B int64 `jce:"2"`
	}
	withUnknown := mustHex(t, "000a190002000100022014")
	withoutUnknown := mustHex(t, "000a2014")

	var a, b twoFields
	require.NoError(t, Unmarshal(withUnknown, &a))
	require.NoError(t, Unmarshal(withoutUnknown, &b))
	assert.Equal(t, b, a)
}

func TestSchemaWidthPolymorphicIntegers(t *testing.T) {
	type wide struct {
		N int64 `jce:"0"`
	}
	for _, h := range []string{"0c", "0007", "010007", "0200000007", "030000000000000007"} {
		var got wide
		require.NoError(t, Unmarshal(mustHex(t, h), &got))
		if h == "0c" {
			assert.Equal(t, int64(0), got.N)
		} else {
			assert.Equal(t, int64(7), got.N, "input %s", h)
		}
	}
}

func TestSchemaIntegerOverflow(t *testing.T) {
	type narrow struct {
		N int8 `jce:"0"`
	}
	var got narrow
	err := Unmarshal(mustHex(t, "010100"), &got) // 256 does not fit int8
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "N")
}

func TestSchemaRequiredField(t *testing.T) {
	type req struct {
		A int64 `jce:"0,required"`
		B int64 `jce:"1"`
	}
	var got req
	err := Unmarshal(mustHex(t, "1c"), &got) // only tag 1 present
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "A")

	require.NoError(t, Unmarshal(mustHex(t, "0c"), &got))
}

type defaulted struct {
	N int64  `jce:"0"`
	S string `jce:"1"`
}

func (d *defaulted) SetDefaults() {
	if d.S == "" {
		d.S = "fallback"
	}
}

func TestSchemaDefaults(t *testing.T) {
	var got defaulted
	require.NoError(t, Unmarshal(mustHex(t, "0005"), &got))
	assert.Equal(t, int64(5), got.N)
	assert.Equal(t, "fallback", got.S)

	// a present field overwrites the default
	payload, err := Marshal(defaulted{N: 5, S: "explicit"})
	require.NoError(t, err)
	got = defaulted{}
	require.NoError(t, Unmarshal(payload, &got))
	assert.Equal(t, "explicit", got.S)
}

func TestSchemaAutoUnpack(t *testing.T) {
	blob, err := Marshal(inner{X: 7})
	require.NoError(t, err)

	// the nested struct arrives opaque-boxed as a SimpleList
	b := NewBuffer(0)
	b.WriteBytes(0, blob)

	type holder struct {
		Sub inner `jce:"0"`
	}
	var got holder
	require.NoError(t, Unmarshal(b.Bytes, &got))
	assert.Equal(t, int64(7), got.Sub.X)
}

func TestSchemaListOfStructsFallback(t *testing.T) {
	type item struct {
		A int64  `jce:"0"`
		B string `jce:"1"`
	}
	type holder struct {
		Items []item `jce:"0"`
	}

	// two declared-struct elements that arrive unboxed: a Map keyed by tag,
	// then a bare scalar
	b := NewBuffer(0)
	b.WriteListHead(0, 2)
	b.WriteMapHead(0, 2)
	b.WriteInt(0, 0) // key: tag 0
	b.WriteInt(1, 7)
	b.WriteInt(0, 1) // key: tag 1
	require.NoError(t, b.WriteString(1, "x"))
	b.WriteInt(0, 5) // second element, a plain int

	var got holder
	require.NoError(t, Unmarshal(b.Bytes, &got))
	require.Len(t, got.Items, 2)
	assert.Equal(t, item{A: 7, B: "x"}, got.Items[0], "tag-keyed map remaps onto the declared fields")
	assert.Equal(t, item{}, got.Items[1], "scalar elements degrade to the zero struct")
}

func TestSchemaStructFallbackRawValue(t *testing.T) {
	type loose struct {
		A        int64 `jce:"0"`
		RawValue any   `jce:"-"`
	}
	type holder struct {
		Sub loose `jce:"0"`
	}

	// the declared struct arrives as a bare string
	b := NewBuffer(0)
	require.NoError(t, b.WriteString(0, "opaque"))

	var got holder
	require.NoError(t, Unmarshal(b.Bytes, &got))
	assert.Equal(t, []byte("opaque"), got.Sub.RawValue)
}

func TestSchemaStringBytesCoercion(t *testing.T) {
	type boxed struct {
		S string `jce:"0,bytes"`
	}
	payload, err := Marshal(boxed{S: "hi"})
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "0d0000026869"), payload)

	var got boxed
	require.NoError(t, Unmarshal(payload, &got))
	assert.Equal(t, "hi", got.S)
}

func TestSchemaBytesAcceptsWireString(t *testing.T) {
	type blob struct {
		B []byte `jce:"0"`
	}
	// a sender string-boxed the binary payload
	b := NewBuffer(0)
	require.NoError(t, b.WriteString(0, "raw"))

	var got blob
	require.NoError(t, Unmarshal(b.Bytes, &got))
	assert.Equal(t, []byte("raw"), got.B)
}

func TestSchemaInvalidUTF8String(t *testing.T) {
	type s struct {
		S string `jce:"0"`
	}
	var got s
	err := Unmarshal(mustHex(t, "0602ff00"), &got)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestSchemaForcedFloat(t *testing.T) {
	type f struct {
		V float64 `jce:"0,float"`
	}
	payload, err := Marshal(f{V: 1.5})
	require.NoError(t, err)
	assert.Equal(t, byte(TypeFloat), payload[0]&0x0F, "float option selects the 4-byte encoding")

	var got f
	require.NoError(t, Unmarshal(payload, &got))
	assert.Equal(t, 1.5, got.V)
}

func TestSchemaValidators(t *testing.T) {
	type person struct {
		Age  int64  `jce:"0,gt=0,lt=150"`
		Name string `jce:"1,minlen=1,maxlen=8"`
	}

	good, err := Marshal(person{Age: 30, Name: "bob"})
	require.NoError(t, err)
	var got person
	require.NoError(t, Unmarshal(good, &got))

	bad, err := Marshal(person{Age: 200, Name: "bob"})
	require.NoError(t, err)
	err = Unmarshal(bad, &got)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Age", ve.Field)
	assert.Equal(t, "lt=150", ve.Constraint)

	empty, err := Marshal(person{Age: 30, Name: ""})
	require.NoError(t, err)
	err = Unmarshal(empty, &got)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Name", ve.Field)
}

func TestSchemaPatternValidator(t *testing.T) {
	type id struct {
		Code string `jce:"0,pattern=^[a-z]+$"`
	}
	good, err := Marshal(id{Code: "abc"})
	require.NoError(t, err)
	var got id
	require.NoError(t, Unmarshal(good, &got))

	bad, err := Marshal(id{Code: "ABC"})
	require.NoError(t, err)
	err = Unmarshal(bad, &got)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCompileRejectsDuplicateTags(t *testing.T) {
	type dup struct {
		A int64 `jce:"0"`
		B int64 `jce:"0"`
	}
	_, err := Compile(dup{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tag")
}

func TestCompileRejectsOutOfRangeTag(t *testing.T) {
	type oor struct {
		A int64 `jce:"256"`
	}
	_, err := Compile(oor{})
	require.Error(t, err)
}

func TestCompileRejectsUnsupportedType(t *testing.T) {
	type bad struct {
		C chan int `jce:"0"`
	}
	_, err := Compile(bad{})
	require.Error(t, err)
}

func TestCompileAutoAssignsTags(t *testing.T) {
	type auto struct {
		A int64
		B string
		C int64 `jce:"5"`
		D int64
	}
	s, err := Compile(auto{})
	require.NoError(t, err)
	require.Equal(t, 4, s.NumFields())
	assert.Equal(t, 0, s.fields[0].tag)
	assert.Equal(t, 1, s.fields[1].tag)
	assert.Equal(t, 5, s.fields[2].tag)
	assert.Equal(t, 6, s.fields[3].tag)
}

func TestCompileIgnoresExcludedFields(t *testing.T) {
	type part struct {
		A int64 `jce:"0"`
		B int64 `jce:"-"`
	}
	s, err := Compile(part{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.NumFields())
}

func TestSchemaOmitDefault(t *testing.T) {
	type opt struct {
		A int64  `jce:"0"`
		B string `jce:"1"`
	}
	payload, err := Marshal(opt{A: 0, B: ""}, OmitDefault)
	require.NoError(t, err)
	assert.Empty(t, payload)

	payload, err = Marshal(opt{A: 1, B: ""}, OmitDefault)
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "0001"), payload)
}

func TestSchemaNilPointerHandling(t *testing.T) {
	type opt struct {
		A int64  `jce:"0"`
		B *int64 `jce:"1"`
	}

	payload, err := Marshal(opt{})
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "0c"), payload, "nil optionals are skipped by default")

	payload, err = Marshal(opt{}, SerializeNone)
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "0c1c"), payload, "SerializeNone writes the zero value")

	payload, err = Marshal(opt{}, SerializeNone|ExcludeUnset)
	require.NoError(t, err)
	assert.Equal(t, mustHex(t, "0c"), payload, "ExcludeUnset wins over SerializeNone")
}

func TestFieldHooks(t *testing.T) {
	type secret struct {
		Token []byte `jce:"0"`
	}
	xor := func(b []byte) []byte {
		out := make([]byte, len(b))
		for i, c := range b {
			out[i] = c ^ 0x5A
		}
		return out
	}

	require.NoError(t, RegisterSerializer(secret{}, "Token", func(v any, info FieldInfo) (any, error) {
		return xor(v.([]byte)), nil
	}))
	require.NoError(t, RegisterDeserializer(secret{}, "Token", func(v any, info FieldInfo) (any, error) {
		return xor(v.([]byte)), nil
	}))

	in := secret{Token: []byte("hello")}
	payload, err := Marshal(in)
	require.NoError(t, err)

	// on the wire the token is masked
	dict, err := DecodeBytesMode(payload, BytesRaw)
	require.NoError(t, err)
	raw, _ := dict.Bytes(0)
	assert.Equal(t, xor([]byte("hello")), raw)

	var got secret
	require.NoError(t, Unmarshal(payload, &got))
	assert.Equal(t, in.Token, got.Token)
}

func TestFieldHookContext(t *testing.T) {
	type traced struct {
		V int64 `jce:"0"`
	}
	var seen any
	require.NoError(t, RegisterDeserializer(traced{}, "V", func(v any, info FieldInfo) (any, error) {
		seen = info.Context["conn"]
		return v, nil
	}))

	payload, err := Marshal(traced{V: 1})
	require.NoError(t, err)
	var got traced
	require.NoError(t, UnmarshalWithContext(payload, &got, Context{"conn": "db-7"}))
	assert.Equal(t, "db-7", seen)
}

func TestRegisterHookUnknownField(t *testing.T) {
	type small struct {
		A int64 `jce:"0"`
	}
	err := RegisterSerializer(small{}, "Nope", func(v any, info FieldInfo) (any, error) { return v, nil })
	require.Error(t, err)
}

func TestUnmarshalTargetValidation(t *testing.T) {
	var n int
	err := Unmarshal([]byte{0x0c}, &n)
	require.Error(t, err)

	err = Unmarshal([]byte{0x0c}, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPartialData))
}

func TestSelfReferentialSchema(t *testing.T) {
	type node struct {
		V    int64 `jce:"0"`
		Next *node `jce:"1,optional"`
	}
	in := node{V: 1, Next: &node{V: 2, Next: &node{V: 3}}}

	payload, err := Marshal(in)
	require.NoError(t, err)

	var got node
	require.NoError(t, Unmarshal(payload, &got))
	assert.Empty(t, cmp.Diff(in, got))
}

func TestTypedEncoderDecoder(t *testing.T) {
	enc, err := NewEncoder[inner]()
	require.NoError(t, err)
	dec, err := NewDecoder[inner]()
	require.NoError(t, err)

	payload, err := enc.Marshal(&inner{X: 9})
	require.NoError(t, err)

	var got inner
	require.NoError(t, dec.Unmarshal(payload, &got))
	assert.Equal(t, int64(9), got.X)
}
