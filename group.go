package sectioned

import (
	"slices"
)

// KeyFunc extracts the grouping key of a record. Returning an error excludes
// the record from the view; use ErrEmptyKey when the underlying field is
// absent.
type KeyFunc[R any, K comparable] func(row R) (K, error)

type GroupOptions[K comparable] struct {
	// Compare, if set, orders sections by key. Otherwise sections appear in
	// the order their keys are first encountered, which matches key order
	// whenever the input is sorted by key.
	Compare func(a, b K) int

	// Descending reverses the section order.
	Descending bool
}

// Derive groups records into sections.
//
// Members keep their relative input order. Records with equal keys end up in
// the same section even when they are not adjacent in the input. Records whose
// key cannot be extracted are skipped and reported as *KeyExtractionError.
func Derive[R any, K comparable](ver Version, records []Record[R], keyFn KeyFunc[R, K], opt GroupOptions[K]) (*View[R, K], []error) {
	var diags []error
	var sections []*Section[R, K]
	byKey := make(map[K]int)

	for _, rec := range records {
		key, err := keyFn(rec.Value)
		if err != nil {
			diags = append(diags, &KeyExtractionError{ID: rec.ID, Err: err})
			continue
		}
		s, found := byKey[key]
		if !found {
			s = len(sections)
			byKey[key] = s
			sections = append(sections, &Section[R, K]{key: key})
		}
		sec := sections[s]
		sec.records = append(sec.records, rec)
	}

	if opt.Compare != nil {
		slices.SortStableFunc(sections, func(a, b *Section[R, K]) int {
			return opt.Compare(a.key, b.key)
		})
	}
	if opt.Descending {
		slices.Reverse(sections)
	}

	return assemble(ver, sections), diags
}

func assemble[R any, K comparable](ver Version, sections []*Section[R, K]) *View[R, K] {
	var n int
	for _, sec := range sections {
		n += len(sec.records)
	}
	v := &View[R, K]{
		version:  ver,
		sections: sections,
		flat:     make([]Record[R], 0, n),
		byKey:    make(map[K]int, len(sections)),
	}
	for i, sec := range sections {
		sec.offset = len(v.flat)
		v.flat = append(v.flat, sec.records...)
		// members share the flat backing array from here on
		sec.records = v.flat[sec.offset:len(v.flat):len(v.flat)]
		v.byKey[sec.key] = i
	}
	return v
}

// Empty returns a view with no sections.
func Empty[R any, K comparable](ver Version) *View[R, K] {
	return assemble[R, K](ver, nil)
}
