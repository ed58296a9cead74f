package store

import (
	"fmt"
	"strings"
)

var dumpSep = strings.Repeat("=", 80)

// Dump formats the collection's rows in order, one per line, for debugging
// and tests.
func Dump[R any](tx *Tx, c *Collection[R]) string {
	var buf strings.Builder
	dataB, indexB := c.buckets(tx)
	fmt.Fprintln(&buf, dumpSep)
	fmt.Fprintf(&buf, "%s (%d rows) @ v%d\n", c.name, dataB.KeyCount(), tx.Version())
	cur := indexB.Cursor()
	var pos int
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		pos++
		row, token, err := c.decode(string(v), dataB.Get(v))
		if err != nil {
			fmt.Fprintf(&buf, "%s.%d = ** ERROR: %v\n", c.name, pos, err)
			continue
		}
		fmt.Fprintf(&buf, "%s.%d = [%s] t=%x %s\n", c.name, pos, formatIndexKey(k), token, c.loggable(row))
	}
	return buf.String()
}
