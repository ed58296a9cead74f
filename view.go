package sectioned

import (
	"fmt"
	"iter"
)

// Version identifies one committed state of a backing collection. Versions
// only grow; zero means nothing has been committed yet.
type Version uint64

// Record is a single member of a view. ID must identify the same logical
// record across versions; Token must change whenever the record's content
// changes.
type Record[R any] struct {
	ID    string
	Token uint64
	Value R
}

// IndexPath addresses a record by section and row within the section.
type IndexPath struct {
	Section int
	Row     int
}

func (ip IndexPath) String() string {
	return fmt.Sprintf("(%d,%d)", ip.Section, ip.Row)
}

// Section is an ordered run of records sharing one key.
type Section[R any, K comparable] struct {
	key     K
	offset  int
	records []Record[R]
}

func (s *Section[R, K]) Key() K {
	return s.key
}

func (s *Section[R, K]) Len() int {
	return len(s.records)
}

// Offset returns the flat index of the first member of the section.
func (s *Section[R, K]) Offset() int {
	return s.offset
}

func (s *Section[R, K]) At(row int) R {
	return s.records[row].Value
}

func (s *Section[R, K]) Record(row int) Record[R] {
	return s.records[row]
}

func (s *Section[R, K]) All() iter.Seq2[int, R] {
	return func(yield func(int, R) bool) {
		for i, rec := range s.records {
			if !yield(i, rec.Value) {
				return
			}
		}
	}
}

// View is an immutable materialization of one version of a sectioned
// collection. Flattening sections in order, then members in order, gives the
// flat index space used by At, Record and change sets.
//
// Views are never modified after Derive returns them and are safe to share
// between goroutines.
type View[R any, K comparable] struct {
	version  Version
	sections []*Section[R, K]
	flat     []Record[R]
	byKey    map[K]int
}

func (v *View[R, K]) Version() Version {
	return v.version
}

// Len returns the total number of records across all sections.
func (v *View[R, K]) Len() int {
	if v == nil {
		return 0
	}
	return len(v.flat)
}

func (v *View[R, K]) SectionCount() int {
	if v == nil {
		return 0
	}
	return len(v.sections)
}

func (v *View[R, K]) At(i int) R {
	return v.flat[i].Value
}

func (v *View[R, K]) Record(i int) Record[R] {
	return v.flat[i]
}

func (v *View[R, K]) Section(s int) *Section[R, K] {
	return v.sections[s]
}

func (v *View[R, K]) AtPath(ip IndexPath) R {
	return v.sections[ip.Section].records[ip.Row].Value
}

// SectionIndex returns the position of the section with the given key.
func (v *View[R, K]) SectionIndex(key K) (int, bool) {
	s, ok := v.byKey[key]
	return s, ok
}

// FlatIndex converts an index path into a flat index.
func (v *View[R, K]) FlatIndex(ip IndexPath) int {
	sec := v.sections[ip.Section]
	if ip.Row < 0 || ip.Row >= len(sec.records) {
		panic(fmt.Errorf("row %d out of range for section %d of length %d", ip.Row, ip.Section, len(sec.records)))
	}
	return sec.offset + ip.Row
}

// PathOf converts a flat index into an index path.
func (v *View[R, K]) PathOf(i int) IndexPath {
	if i < 0 || i >= len(v.flat) {
		panic(fmt.Errorf("flat index %d out of range [0,%d)", i, len(v.flat)))
	}
	lo, hi := 0, len(v.sections)
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if v.sections[mid].offset <= i {
			lo = mid
		} else {
			hi = mid
		}
	}
	return IndexPath{lo, i - v.sections[lo].offset}
}

// Sections returns a finite, restartable iterator over the sections.
func (v *View[R, K]) Sections() iter.Seq2[int, *Section[R, K]] {
	return func(yield func(int, *Section[R, K]) bool) {
		if v == nil {
			return
		}
		for i, sec := range v.sections {
			if !yield(i, sec) {
				return
			}
		}
	}
}

// Records iterates over all records in flat order.
func (v *View[R, K]) Records() iter.Seq2[int, Record[R]] {
	return func(yield func(int, Record[R]) bool) {
		if v == nil {
			return
		}
		for i, rec := range v.flat {
			if !yield(i, rec) {
				return
			}
		}
	}
}

func (v *View[R, K]) Keys() []K {
	keys := make([]K, len(v.sections))
	for i, sec := range v.sections {
		keys[i] = sec.key
	}
	return keys
}

// IDs returns record identities in flat order.
func (v *View[R, K]) IDs() []string {
	if v == nil {
		return nil
	}
	ids := make([]string, len(v.flat))
	for i, rec := range v.flat {
		ids[i] = rec.ID
	}
	return ids
}
