package sectioned

import (
	"fmt"
	"slices"
	"strings"
)

// ChangeSet describes how to get from one version of a view to another.
// Deletions index into the old version, Insertions and Modifications into the
// new one. All three are strictly ascending.
type ChangeSet struct {
	Deletions     []int
	Insertions    []int
	Modifications []int
}

func (cs ChangeSet) IsEmpty() bool {
	return len(cs.Deletions) == 0 && len(cs.Insertions) == 0 && len(cs.Modifications) == 0
}

func (cs ChangeSet) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "del=%v ins=%v mod=%v", cs.Deletions, cs.Insertions, cs.Modifications)
	return buf.String()
}

// SectionChanges lists whole sections that appeared or disappeared, by key.
// Deletions index into the old version's sections, Insertions into the new.
type SectionChanges struct {
	Deletions  []int
	Insertions []int
}

func (sc SectionChanges) IsEmpty() bool {
	return len(sc.Deletions) == 0 && len(sc.Insertions) == 0
}

// Diff computes the change set between two versions of a view, matching
// records by ID.
//
// Records present in both versions stay in place when their relative order is
// preserved; the largest such set is kept, preferring records whose content
// did not change, and every other common record is reported as a deletion at
// its old index plus an insertion at its new index.
// Kept records whose Token changed are reported as modifications. Moves are
// never reported as modifications.
func Diff[R any, K comparable](old, new *View[R, K]) ChangeSet {
	oldIdx := identityIndex(old, "old")
	newIdx := identityIndex(new, "new")

	var cs ChangeSet

	for i, rec := range old.flatRecords() {
		if _, found := newIdx[rec.ID]; !found {
			cs.Deletions = append(cs.Deletions, i)
		}
	}

	// old positions of common records, in new order
	var common []int
	var commonNew []int
	var unchanged []bool
	for j, rec := range new.flatRecords() {
		if i, found := oldIdx[rec.ID]; found {
			common = append(common, i)
			commonNew = append(commonNew, j)
			unchanged = append(unchanged, old.flat[i].Token == rec.Token)
		} else {
			cs.Insertions = append(cs.Insertions, j)
		}
	}

	kept := longestIncreasing(common, unchanged)
	for p, i := range common {
		j := commonNew[p]
		if kept[p] {
			if !unchanged[p] {
				cs.Modifications = append(cs.Modifications, j)
			}
		} else {
			cs.Deletions = append(cs.Deletions, i)
			cs.Insertions = append(cs.Insertions, j)
		}
	}

	cs.Deletions = sortedUnique(cs.Deletions)
	cs.Insertions = sortedUnique(cs.Insertions)
	cs.Modifications = sortedUnique(cs.Modifications)
	return cs
}

// DiffSections reports sections whose key exists in only one of the versions.
func DiffSections[R any, K comparable](old, new *View[R, K]) SectionChanges {
	var sc SectionChanges
	for i, sec := range old.sectionList() {
		if _, found := new.byKeyMap()[sec.key]; !found {
			sc.Deletions = append(sc.Deletions, i)
		}
	}
	for j, sec := range new.sectionList() {
		if _, found := old.byKeyMap()[sec.key]; !found {
			sc.Insertions = append(sc.Insertions, j)
		}
	}
	return sc
}

func (v *View[R, K]) flatRecords() []Record[R] {
	if v == nil {
		return nil
	}
	return v.flat
}

func (v *View[R, K]) sectionList() []*Section[R, K] {
	if v == nil {
		return nil
	}
	return v.sections
}

func (v *View[R, K]) byKeyMap() map[K]int {
	if v == nil {
		return nil
	}
	return v.byKey
}

func identityIndex[R any, K comparable](v *View[R, K], which string) map[string]int {
	recs := v.flatRecords()
	m := make(map[string]int, len(recs))
	for i, rec := range recs {
		if prev, dup := m[rec.ID]; dup {
			panic(&InvariantViolation{
				Msg: fmt.Sprintf("%s version %d has record %q at both %d and %d", which, v.version, rec.ID, prev, i),
			})
		}
		m[rec.ID] = i
	}
	return m
}

// longestIncreasing marks the elements of a longest strictly increasing
// subsequence of a, whose values must be distinct and non-negative. Among
// subsequences of that length it picks one with the most stable elements.
func longestIncreasing(a []int, stable []bool) []bool {
	n := len(a)
	kept := make([]bool, n)
	if n == 0 {
		return kept
	}

	// Fenwick tree over values holding the best-scoring subsequence ending at
	// or below each value. Length dominates the score, stability breaks ties.
	type scored struct {
		score int
		end   int // position+1 of the last element, 0 if none
	}
	size := slices.Max(a) + 1
	tree := make([]scored, size+1)
	prev := make([]int, n)
	var best scored
	for p, v := range a {
		var q scored
		for i := v; i > 0; i -= i & -i {
			if tree[i].score > q.score {
				q = tree[i]
			}
		}
		w := n + 1
		if stable != nil && stable[p] {
			w++
		}
		cur := scored{q.score + w, p + 1}
		prev[p] = q.end - 1
		for i := v + 1; i <= size; i += i & -i {
			if cur.score > tree[i].score {
				tree[i] = cur
			}
		}
		if cur.score > best.score {
			best = cur
		}
	}
	for p := best.end - 1; p >= 0; p = prev[p] {
		kept[p] = true
	}
	return kept
}

func sortedUnique(a []int) []int {
	slices.Sort(a)
	return slices.Compact(a)
}
