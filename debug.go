package sectioned

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DumpFlags uint64

const (
	DumpSectionHeaders = DumpFlags(1 << iota)
	DumpRecords
	DumpTokens

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var dumpSep = strings.Repeat("-", 60)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump formats the view for debugging and tests.
func (v *View[R, K]) Dump(f DumpFlags) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "v%d: %d sections, %d records\n", v.versionOrZero(), v.SectionCount(), v.Len())
	for s, sec := range v.Sections() {
		if f.Contains(DumpSectionHeaders) {
			fmt.Fprintln(&buf, dumpSep)
			fmt.Fprintf(&buf, "[%d] %v (%d)\n", s, sec.key, len(sec.records))
		}
		if f.Contains(DumpRecords) {
			for r, rec := range sec.records {
				fmt.Fprintf(&buf, "  %d.%d #%d %s", s, r, sec.offset+r, rec.ID)
				if f.Contains(DumpTokens) {
					fmt.Fprintf(&buf, " t=%x", rec.Token)
				}
				fmt.Fprintf(&buf, " %s\n", loggableVal(rec.Value))
			}
		}
	}
	return buf.String()
}

func loggableVal(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
