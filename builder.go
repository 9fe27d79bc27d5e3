package jce

// DocumentBuilder is a simple inline progressive builder for schema-less
// payloads. You add tagged values and it builds the encoded struct body up
// as you go along.
type DocumentBuilder struct {
	body Buffer
	err  error
}

// NewDocumentBuilder returns a builder that writes integers and floats in the
// byte order the option word selects. Other flags are not applied; AppendValue
// encodes with an empty option word.
func NewDocumentBuilder(opts ...Option) *DocumentBuilder {
	return &DocumentBuilder{body: Buffer{little: combine(opts).has(LittleEndian)}}
}

// AppendInt adds an integer field under the given tag
func (d *DocumentBuilder) AppendInt(tag int, value int64) *DocumentBuilder {
	d.body.WriteInt(tag, value)
	return d
}

// AppendBool adds a boolean field under the given tag
func (d *DocumentBuilder) AppendBool(tag int, value bool) *DocumentBuilder {
	n := int64(0)
	if value {
		n = 1
	}
	d.body.WriteInt(tag, n)
	return d
}

// AppendFloat32 adds a 4-byte float field under the given tag
func (d *DocumentBuilder) AppendFloat32(tag int, value float32) *DocumentBuilder {
	d.body.WriteFloat32(tag, value)
	return d
}

// AppendFloat64 adds an 8-byte float field under the given tag
func (d *DocumentBuilder) AppendFloat64(tag int, value float64) *DocumentBuilder {
	d.body.WriteFloat64(tag, value)
	return d
}

// AppendString adds a string field under the given tag
func (d *DocumentBuilder) AppendString(tag int, value string) *DocumentBuilder {
	if err := d.body.WriteString(tag, value); err != nil && d.err == nil {
		d.err = err
	}
	return d
}

// AppendBytes adds a byte-run field under the given tag
func (d *DocumentBuilder) AppendBytes(tag int, value []byte) *DocumentBuilder {
	d.body.WriteBytes(tag, value)
	return d
}

// AppendNestedDocument appends another document within this one. Equivalent
// of a nested struct.
func (d *DocumentBuilder) AppendNestedDocument(tag int, value *DocumentBuilder) *DocumentBuilder {
	if value.err != nil && d.err == nil {
		d.err = value.err
	}
	d.body.WriteStructBegin(tag)
	d.body.Bytes = append(d.body.Bytes, value.body.Bytes...)
	d.body.WriteStructEnd()
	return d
}

// AppendValue adds any encodable value under the given tag, dispatching the
// way the encoder does.
func (d *DocumentBuilder) AppendValue(tag int, value any) *DocumentBuilder {
	e := &encodeState{buf: &d.body, opt: 0}
	if err := e.encodeValue(tag, value, nil); err != nil && d.err == nil {
		d.err = err
	}
	return d
}

// Bytes returns the encoded payload and the first error encountered while
// building, if any.
func (d *DocumentBuilder) Bytes() ([]byte, error) {
	return d.body.Bytes, d.err
}
