package sectioned

import (
	"errors"
	"hash/fnv"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

type row struct {
	ID    string
	Group string
	Text  string
}

func groupKey(r row) (string, error) {
	if r.Group == "" {
		return "", ErrEmptyKey
	}
	return r.Group, nil
}

func tokenOf(r row) uint64 {
	h := fnv.New64a()
	h.Write([]byte(r.Group))
	h.Write([]byte{0})
	h.Write([]byte(r.Text))
	return h.Sum64()
}

func recordsOf(rows ...row) []Record[row] {
	recs := make([]Record[row], len(rows))
	for i, r := range rows {
		recs[i] = Record[row]{ID: r.ID, Token: tokenOf(r), Value: r}
	}
	return recs
}

func derive(t testing.TB, ver Version, rows ...row) *View[row, string] {
	t.Helper()
	v, diags := Derive(ver, recordsOf(rows...), groupKey, GroupOptions[string]{})
	if len(diags) != 0 {
		t.Fatalf("** unexpected diagnostics: %v", diags)
	}
	return v
}

// sortRows orders rows the way a source sorted by group would.
func sortRows(rows []row) {
	slices.SortStableFunc(rows, func(a, b row) int {
		if c := strings.Compare(a.Group, b.Group); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// applyIDs replays cs on old: deletions highest first, then insertions lowest
// first taking identities from new.
func applyIDs(old, new []string, cs ChangeSet) []string {
	ids := slices.Clone(old)
	for i := len(cs.Deletions) - 1; i >= 0; i-- {
		d := cs.Deletions[i]
		ids = slices.Delete(ids, d, d+1)
	}
	for _, j := range cs.Insertions {
		ids = slices.Insert(ids, j, new[j])
	}
	return ids
}

var errBroken = errors.New("snapshot broken")

type fakeSource struct {
	mu       sync.Mutex
	ver      Version
	rows     []row
	hooks    map[int]func(Version)
	lastHook int
	failWith error
	opened   int
}

func newFakeSource(rows ...row) *fakeSource {
	s := &fakeSource{hooks: make(map[int]func(Version))}
	s.rows = slices.Clone(rows)
	sortRows(s.rows)
	if len(rows) > 0 {
		s.ver = 1
	}
	return s
}

func (s *fakeSource) CurrentVersion() Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ver
}

func (s *fakeSource) OnCommit(f func(Version)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHook++
	id := s.lastHook
	s.hooks[id] = f
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.hooks, id)
	}
}

func (s *fakeSource) OpenSnapshot(ver Version) (Snapshot[row], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	if s.failWith != nil {
		return nil, s.failWith
	}
	return &fakeSnapshot{ver: s.ver, recs: recordsOf(s.rows...)}, nil
}

func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *fakeSource) hookCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hooks)
}

// commit upserts rows by ID, deletes rows passed as del(id), bumps the
// version and fires hooks.
func (s *fakeSource) commit(changes ...row) Version {
	s.mu.Lock()
	for _, c := range changes {
		i := slices.IndexFunc(s.rows, func(r row) bool { return r.ID == c.ID })
		switch {
		case c.Text == "-":
			if i >= 0 {
				s.rows = slices.Delete(s.rows, i, i+1)
			}
		case i >= 0:
			s.rows[i] = c
		default:
			s.rows = append(s.rows, c)
		}
	}
	sortRows(s.rows)
	s.ver++
	ver := s.ver
	var hooks []func(Version)
	for _, f := range s.hooks {
		hooks = append(hooks, f)
	}
	s.mu.Unlock()

	for _, f := range hooks {
		f(ver)
	}
	return ver
}

func del(id string) row {
	return row{ID: id, Text: "-"}
}

type fakeSnapshot struct {
	ver    Version
	recs   []Record[row]
	closed bool
}

func (s *fakeSnapshot) Version() Version { return s.ver }
func (s *fakeSnapshot) OrderedRecords() ([]Record[row], error) { return s.recs, nil }
func (s *fakeSnapshot) Close() { s.closed = true }

type recorder struct {
	mu     sync.Mutex
	events []Event[row, string]
	ch     chan Event[row, string]
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event[row, string], 100)}
}

func (r *recorder) callback(ev Event[row, string]) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) all() []Event[row, string] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) next(t testing.TB) Event[row, string] {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("** timed out waiting for event")
		panic("unreachable")
	}
}

func (r *recorder) none(t testing.TB, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-r.ch:
		t.Errorf("** got unexpected %v event: %v", ev.Kind, ev.Changes)
	case <-time.After(wait):
	}
}

// manualExec queues functions until run is called.
type manualExec struct {
	mu      sync.Mutex
	pending []func()
}

func (e *manualExec) Execute(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, f)
}

func (e *manualExec) run() int {
	var n int
	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.mu.Unlock()
			return n
		}
		f := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()
		f()
		n++
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) != 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty", a)
	}
}
