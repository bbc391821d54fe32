// Command objectdb is a manual exercise harness for the storage core, the
// Go equivalent of the reference implementation's interactive REPL (out of
// scope per spec.md §6, which leaves the harness unstandardized). It opens
// a repository directory, upserts a handful of fixed-width rows, and
// prints them back out in key order.
package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"objectdb/pkg/objectdb"
	"objectdb/pkg/rowtraits"
)

func buildTraits() (rowtraits.RowTraits, uint16, uint16) {
	builder := rowtraits.NewBuilder()
	key := builder.AddUint32Field()
	builder.AddSpanField(16)
	layout := builder.Build()
	traits := rowtraits.CompositeRowTraits(layout, []int{key})
	return traits, uint16(4), uint16(16)
}

func encodeEntry(id uint32, value string) []byte {
	entry := make([]byte, 20)
	entry[0] = byte(id >> 24)
	entry[1] = byte(id >> 16)
	entry[2] = byte(id >> 8)
	entry[3] = byte(id)
	copy(entry[4:], value)
	return entry
}

func main() {
	dir, err := os.MkdirTemp("", "objectdb-demo-")
	if err != nil {
		fmt.Fprintln(os.Stderr, "mkdir:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	db, err := objectdb.Open(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	traits, keySize, valSize := buildTraits()
	tree := db.NewTree(traits, keySize, valSize)

	tx, err := db.CreateTransaction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "create transaction:", err)
		os.Exit(1)
	}

	rows := []struct {
		id  uint32
		val string
	}{
		{1, "alpha"},
		{2, "bravo"},
		{3, "charlie"},
	}
	for _, row := range rows {
		if _, err := tree.Upsert(tx, encodeEntry(row.id, row.val)); err != nil {
			fmt.Fprintln(os.Stderr, "upsert:", err)
			os.Exit(1)
		}
	}

	it, err := tree.Begin()
	if err != nil {
		fmt.Fprintln(os.Stderr, "begin:", err)
		os.Exit(1)
	}
	for !it.IsEnd() {
		entry, err := tree.GetEntry(it)
		if err != nil {
			fmt.Fprintln(os.Stderr, "get_entry:", err)
			os.Exit(1)
		}
		id := binary.BigEndian.Uint32(traits.KeyTraits.Project(entry))
		fmt.Printf("%d -> %s\n", id, entry[keySize:])
		it, err = tree.Next(it)
		if err != nil {
			fmt.Fprintln(os.Stderr, "next:", err)
			os.Exit(1)
		}
	}
}
