package jce_test

import (
	"fmt"

	"github.com/tarsio/jce"
)

func Example() {
	// Define your struct with jce tags
	type Person struct {
		Name string   `jce:"0"`
		Age  int64    `jce:"1"`
		Tags []string `jce:"2"`
	}

	alice := Person{
		Name: "Alice",
		Age:  32,
		Tags: []string{"go", "jce"},
	}

	// Encode to binary
	encoded, err := jce.Marshal(alice)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("Encoded %d bytes\n", len(encoded))

	// Decode from binary
	var decoded Person
	if err := jce.Unmarshal(encoded, &decoded); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("Decoded: %+v\n", decoded)
	// Output:
	// Encoded 21 bytes
	// Decoded: {Name:Alice Age:32 Tags:[go jce]}
}

func ExampleDecode() {
	// Decode a payload without a schema
	dict, err := jce.Decode([]byte{0x00, 0x64})
	if err != nil {
		fmt.Println(err)
		return
	}
	n, _ := dict.Int(0)
	fmt.Println(n)
	// Output:
	// 100
}

func ExampleDocumentBuilder() {
	// Build payloads without structs
	payload, err := jce.NewDocumentBuilder().
		AppendString(0, "sample").
		AppendInt(1, 25).
		Bytes()
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("% x\n", payload)
	// Output:
	// 06 06 73 61 6d 70 6c 65 10 19
}

func ExampleFrameReader() {
	cfg := jce.FrameConfig{LengthType: 2, ExclusiveLength: true}

	w, _ := jce.NewFrameWriter(cfg)
	w.Pack(jce.DictOf(0, 1))
	w.Pack(jce.DictOf(0, 2))

	r, _ := jce.NewFrameReader[jce.TagDict](cfg)
	r.Feed(w.Buffer())
	for {
		msg, ok, err := r.Next()
		if err != nil || !ok {
			break
		}
		n, _ := msg.Int(0)
		fmt.Println(n)
	}
	// Output:
	// 1
	// 2
}
