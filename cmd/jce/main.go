package main

/*
* CLI to inspect JCE payloads
 */

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli"

	"github.com/tarsio/jce"
)

func main() {
	app := cli.NewApp()
	app.Name = "jce"
	app.Usage = "inspect JCE/Tars binary payloads"
	app.Commands = []cli.Command{
		{
			Name:      "inspect",
			Usage:     "decode a payload and print it as a tree",
			ArgsUsage: "[hex string]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "file, f", Usage: "read the payload from a file instead of a hex argument"},
				cli.BoolFlag{Name: "little-endian, l", Usage: "decode integers and floats little-endian"},
				cli.StringFlag{Name: "bytes-mode, b", Value: "auto", Usage: "byte-run handling: auto, string or raw"},
				cli.BoolFlag{Name: "no-color", Usage: "disable colored output"},
			},
			Action: inspectCommand,
		},
		{
			Name:      "walk",
			Usage:     "print the raw wire structure of a payload, head by head",
			ArgsUsage: "[hex string]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "file, f", Usage: "read the payload from a file instead of a hex argument"},
			},
			Action: walkCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readPayload(c *cli.Context) ([]byte, error) {
	if path := c.String("file"); path != "" {
		return os.ReadFile(path)
	}
	if c.NArg() > 0 {
		clean := strings.NewReplacer(" ", "", "\n", "", "\t", "").Replace(strings.Join(c.Args(), ""))
		return hex.DecodeString(clean)
	}
	return io.ReadAll(os.Stdin)
}

func inspectCommand(c *cli.Context) error {
	payload, err := readPayload(c)
	if err != nil {
		return err
	}

	var mode jce.BytesMode
	switch c.String("bytes-mode") {
	case "auto":
		mode = jce.BytesAuto
	case "string":
		mode = jce.BytesString
	case "raw":
		mode = jce.BytesRaw
	default:
		return fmt.Errorf("unknown bytes-mode %q", c.String("bytes-mode"))
	}

	var opts []jce.Option
	if c.Bool("little-endian") {
		opts = append(opts, jce.LittleEndian)
	}

	p := jce.Printer{Color: !c.Bool("no-color"), Mode: mode}
	return p.Fprint(os.Stdout, payload, opts...)
}

func walkCommand(c *cli.Context) error {
	payload, err := readPayload(c)
	if err != nil {
		return err
	}
	return jce.Walk(payload, &structureDumper{out: os.Stdout})
}

// structureDumper prints one line per head, indenting into containers.
type structureDumper struct {
	out   io.Writer
	depth int
}

func (d *structureDumper) pad() string {
	return strings.Repeat("  ", d.depth)
}

func (d *structureDumper) VisitValue(tag int, typeID jce.TypeID, v any) error {
	if b, ok := v.([]byte); ok {
		fmt.Fprintf(d.out, "%stag %d %s (%d bytes) %x\n", d.pad(), tag, typeID, len(b), b)
		return nil
	}
	fmt.Fprintf(d.out, "%stag %d %s %v\n", d.pad(), tag, typeID, v)
	return nil
}

func (d *structureDumper) VisitListStart(tag, length int) error {
	fmt.Fprintf(d.out, "%stag %d List[%d]\n", d.pad(), tag, length)
	d.depth++
	return nil
}

func (d *structureDumper) VisitListEnd(int) error {
	d.depth--
	return nil
}

func (d *structureDumper) VisitMapStart(tag, length int) error {
	fmt.Fprintf(d.out, "%stag %d Map[%d]\n", d.pad(), tag, length)
	d.depth++
	return nil
}

func (d *structureDumper) VisitMapEnd(int) error {
	d.depth--
	return nil
}

func (d *structureDumper) VisitStructStart(tag int) error {
	fmt.Fprintf(d.out, "%stag %d Struct\n", d.pad(), tag)
	d.depth++
	return nil
}

func (d *structureDumper) VisitStructEnd(int) error {
	d.depth--
	return nil
}
