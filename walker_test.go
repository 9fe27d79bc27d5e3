package jce

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder collects walk events as strings for easy assertions.
type eventRecorder struct {
	events   []string
	skipList bool
}

func (e *eventRecorder) VisitValue(tag int, typeID TypeID, v any) error {
	e.events = append(e.events, fmt.Sprintf("value %d %s %v", tag, typeID, v))
	return nil
}

func (e *eventRecorder) VisitListStart(tag, length int) error {
	e.events = append(e.events, fmt.Sprintf("list %d len %d", tag, length))
	if e.skipList {
		return ErrSkipVisit
	}
	return nil
}

func (e *eventRecorder) VisitListEnd(tag int) error {
	e.events = append(e.events, fmt.Sprintf("listend %d", tag))
	return nil
}

func (e *eventRecorder) VisitMapStart(tag, length int) error {
	e.events = append(e.events, fmt.Sprintf("map %d len %d", tag, length))
	return nil
}

func (e *eventRecorder) VisitMapEnd(tag int) error {
	e.events = append(e.events, fmt.Sprintf("mapend %d", tag))
	return nil
}

func (e *eventRecorder) VisitStructStart(tag int) error {
	e.events = append(e.events, fmt.Sprintf("struct %d", tag))
	return nil
}

func (e *eventRecorder) VisitStructEnd(tag int) error {
	e.events = append(e.events, fmt.Sprintf("structend %d", tag))
	return nil
}

func TestWalk(t *testing.T) {
	payload, err := Marshal(DictOf(0, 10, 1, []any{int64(1), int64(2)}, 2, DictOf(0, "x")))
	require.NoError(t, err)

	rec := &eventRecorder{}
	require.NoError(t, Walk(payload, rec))
	assert.Equal(t, []string{
		"value 0 Int1 10",
		"list 1 len 2",
		"value 0 Int1 1",
		"value 0 Int1 2",
		"listend 1",
		"struct 2",
		"value 0 String1 [120]",
		"structend 2",
	}, rec.events)
}

func TestWalkSkipsContainers(t *testing.T) {
	payload, err := Marshal(DictOf(0, []any{int64(1), int64(2)}, 1, 7))
	require.NoError(t, err)

	rec := &eventRecorder{skipList: true}
	require.NoError(t, Walk(payload, rec))
	assert.Equal(t, []string{
		"list 0 len 2",
		"listend 0",
		"value 1 Int1 7",
	}, rec.events)
}

func TestWalkUnterminatedStruct(t *testing.T) {
	err := Walk(mustHex(t, "0a0001"), &eventRecorder{})
	assert.ErrorIs(t, err, ErrPartialData)
}

func TestPrinterRendersTree(t *testing.T) {
	payload, err := Marshal(DictOf(0, 100, 1, "hi", 2, DictOf(0, 1)))
	require.NoError(t, err)

	out, err := Sprint(payload)
	require.NoError(t, err)
	assert.Contains(t, out, "0: int 100")
	assert.Contains(t, out, `1: string "hi"`)
	assert.Contains(t, out, "2: struct {")
}

func TestDocumentBuilder(t *testing.T) {
	nested := NewDocumentBuilder().AppendInt(0, 7)
	payload, err := NewDocumentBuilder().
		AppendInt(0, 100).
		AppendString(1, "hi").
		AppendBytes(2, []byte{0xCA}).
		AppendNestedDocument(3, nested).
		Bytes()
	require.NoError(t, err)

	dict, err := Decode(payload)
	require.NoError(t, err)
	n, _ := dict.Int(0)
	assert.Equal(t, int64(100), n)
	s, _ := dict.String(1)
	assert.Equal(t, "hi", s)
	sub, ok := dict.Dict(3)
	require.True(t, ok)
	x, _ := sub.Int(0)
	assert.Equal(t, int64(7), x)
}

func TestDocumentBuilderMatchesEncoder(t *testing.T) {
	built, err := NewDocumentBuilder().AppendInt(0, 256).AppendString(1, "a").Bytes()
	require.NoError(t, err)
	encoded, err := Marshal(DictOf(0, 256, 1, "a"))
	require.NoError(t, err)
	assert.Equal(t, encoded, built)
}
