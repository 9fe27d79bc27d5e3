package jce

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// The code for Printer and its supporting parts is not written with the same
// strict performance concerns as the rest of the codec. It provides
// easy-to-read renderings of decoded payloads for tooling such as
// commandline utilities.

// Printer renders decoded payloads as an indented tree.
type Printer struct {
	Indent string    // defaults to two spaces
	Color  bool      // ANSI-colored tags and types
	Mode   BytesMode // byte-run handling for raw payload prints
}

// Sprint decodes payload schema-lessly and renders it.
func Sprint(payload []byte, opts ...Option) (string, error) {
	var sb strings.Builder
	if err := (Printer{}).Fprint(&sb, payload, opts...); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Fprint decodes payload schema-lessly and renders it to w.
func (p Printer) Fprint(w io.Writer, payload []byte, opts ...Option) error {
	dict, err := DecodeBytesMode(payload, p.Mode, opts...)
	if err != nil {
		return err
	}
	p.FprintDict(w, dict)
	return nil
}

// FprintDict renders an already-decoded dictionary to w.
func (p Printer) FprintDict(w io.Writer, d TagDict) {
	p.printDict(w, d, 0)
}

func (p Printer) indent() string {
	if p.Indent == "" {
		return "  "
	}
	return p.Indent
}

func (p Printer) tagLabel(tag int) string {
	s := fmt.Sprintf("%d:", tag)
	if p.Color {
		return color.New(color.FgCyan).Sprint(s)
	}
	return s
}

func (p Printer) typeLabel(name string) string {
	if p.Color {
		return color.New(color.FgYellow).Sprint(name)
	}
	return name
}

func (p Printer) printDict(w io.Writer, d TagDict, depth int) {
	pad := strings.Repeat(p.indent(), depth)
	d.Range(func(tag int, v any) bool {
		fmt.Fprintf(w, "%s%s ", pad, p.tagLabel(tag))
		p.printValue(w, v, depth)
		fmt.Fprintln(w)
		return true
	})
}

func (p Printer) printValue(w io.Writer, v any, depth int) {
	pad := strings.Repeat(p.indent(), depth)
	switch val := v.(type) {
	case TagDict:
		fmt.Fprintf(w, "%s {\n", p.typeLabel("struct"))
		p.printDict(w, val, depth+1)
		fmt.Fprintf(w, "%s}", pad)
	case []any:
		fmt.Fprintf(w, "%s[%d] [\n", p.typeLabel("list"), len(val))
		for _, item := range val {
			fmt.Fprintf(w, "%s%s", pad, p.indent())
			p.printValue(w, item, depth+1)
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s]", pad)
	case map[any]any:
		fmt.Fprintf(w, "%s[%d] {\n", p.typeLabel("map"), len(val))
		keys := make([]string, 0, len(val))
		byKey := make(map[string]any, len(val))
		for k, item := range val {
			ks := fmt.Sprintf("%v", k)
			keys = append(keys, ks)
			byKey[ks] = item
		}
		sort.Strings(keys)
		for _, ks := range keys {
			fmt.Fprintf(w, "%s%s%v => ", pad, p.indent(), ks)
			p.printValue(w, byKey[ks], depth+1)
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s}", pad)
	case []byte:
		fmt.Fprintf(w, "%s(%d) %x", p.typeLabel("bytes"), len(val), val)
	case string:
		fmt.Fprintf(w, "%s %q", p.typeLabel("string"), val)
	case int64:
		fmt.Fprintf(w, "%s %d", p.typeLabel("int"), val)
	case float32:
		fmt.Fprintf(w, "%s %g", p.typeLabel("float"), val)
	case float64:
		fmt.Fprintf(w, "%s %g", p.typeLabel("double"), val)
	default:
		fmt.Fprintf(w, "%v", val)
	}
}
