package store

import (
	"errors"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/andreyvit/sectioned"
)

type Note struct {
	ID    string `msgpack:"id"`
	Group string `msgpack:"g"`
	Text  string `msgpack:"t"`
}

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func addNotes(t testing.TB, db *DB) *Collection[Note] {
	t.Helper()
	c, err := AddCollection(db, "notes", CollectionOptions[Note]{
		ID:    func(n *Note) string { return n.ID },
		Order: func(n *Note) []byte { return OrderString(n.Group) },
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func setup(t testing.TB) *DB {
	t.Helper()
	return openFile(t, tempFile(t))
}

func tempFile(t testing.TB) string {
	t.Helper()
	dbFile := must(os.CreateTemp("", "store_test_*.db"))
	t.Logf("DB: %s", dbFile.Name())
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	return dbFile.Name()
}

func openFile(t testing.TB, path string) *DB {
	t.Helper()
	db := must(Open(path, Options{IsTesting: true, Verbose: true}))
	t.Cleanup(func() { db.Close() })
	return db
}

func setupMemory(t testing.TB) *DB {
	db := OpenMemory(Options{Verbose: true})
	t.Cleanup(func() { db.Close() })
	return db
}

// eachBackend runs f against a Bolt file and an in-memory database.
func eachBackend(t *testing.T, f func(t *testing.T, db *DB)) {
	t.Run("bolt", func(t *testing.T) { f(t, setup(t)) })
	t.Run("mem", func(t *testing.T) { f(t, setupMemory(t)) })
}

func ids(rows []*Note) []string {
	var r []string
	for _, n := range rows {
		r = append(r, n.ID)
	}
	return r
}

func TestPutGetDelete(t *testing.T) {
	eachBackend(t, func(t *testing.T, db *DB) {
		c := addNotes(t, db)
		db.Write(func(tx *Tx) {
			Put(tx, c, &Note{ID: "n1", Group: "B", Text: "first"})
			Put(tx, c, &Note{ID: "n2", Group: "A", Text: "second"})
		})
		deepEqual(t, db.Version(), sectioned.Version(1))

		db.Read(func(tx *Tx) {
			n := Get(tx, c, "n1")
			if n == nil {
				t.Fatalf("** n1 not found")
			}
			deepEqual(t, n.Group, "B")
			deepEqual(t, n.Text, "first")
			deepEqual(t, Get(tx, c, "zz"), (*Note)(nil))
			deepEqual(t, Count(tx, c), 2)
		})

		db.Write(func(tx *Tx) {
			deepEqual(t, Delete(tx, c, "n1"), true)
			deepEqual(t, Delete(tx, c, "n1"), false)
		})
		deepEqual(t, db.Version(), sectioned.Version(2))
		db.Read(func(tx *Tx) {
			deepEqual(t, Get(tx, c, "n1"), (*Note)(nil))
			deepEqual(t, Count(tx, c), 1)
		})
	})
}

func TestAll_order(t *testing.T) {
	eachBackend(t, func(t *testing.T, db *DB) {
		c := addNotes(t, db)
		db.Write(func(tx *Tx) {
			Put(tx, c, &Note{ID: "c", Group: "B"})
			Put(tx, c, &Note{ID: "a", Group: "B"})
			Put(tx, c, &Note{ID: "b", Group: "A"})
			Put(tx, c, &Note{ID: "d", Group: "AB"})
			Put(tx, c, &Note{ID: "e", Group: ""})
		})
		db.Read(func(tx *Tx) {
			deepEqual(t, ids(All(tx, c)), []string{"e", "b", "d", "a", "c"})
			deepEqual(t, ids(WithOrder(tx, c, OrderString("B"))), []string{"a", "c"})
			deepEqual(t, ids(WithOrder(tx, c, OrderString("A"))), []string{"b"})
			isempty(t, WithOrder(tx, c, OrderString("Z")))
		})

		// regrouping moves the index entry
		db.Write(func(tx *Tx) {
			Put(tx, c, &Note{ID: "c", Group: "0"})
		})
		db.Read(func(tx *Tx) {
			deepEqual(t, ids(All(tx, c)), []string{"e", "c", "b", "d", "a"})
			deepEqual(t, ids(WithOrder(tx, c, OrderString("B"))), []string{"a"})
		})
	})
}

func TestPut_noopKeepsVersion(t *testing.T) {
	eachBackend(t, func(t *testing.T, db *DB) {
		c := addNotes(t, db)
		var fired []sectioned.Version
		db.OnCommit(func(ver sectioned.Version) {
			fired = append(fired, ver)
		})

		db.Write(func(tx *Tx) {
			Put(tx, c, &Note{ID: "n1", Group: "A", Text: "x"})
		})
		db.Write(func(tx *Tx) {
			Put(tx, c, &Note{ID: "n1", Group: "A", Text: "x"})
			Delete(tx, c, "missing")
		})
		deepEqual(t, db.Version(), sectioned.Version(1))
		deepEqual(t, fired, []sectioned.Version{1})

		db.Write(func(tx *Tx) {
			Put(tx, c, &Note{ID: "n1", Group: "A", Text: "y"})
		})
		deepEqual(t, db.Version(), sectioned.Version(2))
		deepEqual(t, fired, []sectioned.Version{1, 2})
	})
}

func TestUpdate_errorRollsBack(t *testing.T) {
	eachBackend(t, func(t *testing.T, db *DB) {
		c := addNotes(t, db)
		errFoo := errors.New("foo")
		err := db.Update(func(tx *Tx) error {
			Put(tx, c, &Note{ID: "n1", Group: "A"})
			return errFoo
		})
		if err != errFoo {
			t.Fatalf("** got %v, wanted %v", err, errFoo)
		}

		err = db.Update(func(tx *Tx) error {
			Put(tx, c, &Note{ID: "n2", Group: "A"})
			panic("boom")
		})
		var p panicked
		if !errors.As(err, &p) {
			t.Fatalf("** got %v, wanted a panic error", err)
		}

		deepEqual(t, db.Version(), sectioned.Version(0))
		db.Read(func(tx *Tx) {
			deepEqual(t, Count(tx, c), 0)
		})
	})
}

func TestClear(t *testing.T) {
	eachBackend(t, func(t *testing.T, db *DB) {
		c := addNotes(t, db)
		db.Write(func(tx *Tx) {
			Put(tx, c, &Note{ID: "n1", Group: "A"})
			Put(tx, c, &Note{ID: "n2", Group: "B"})
		})
		db.Write(func(tx *Tx) {
			deepEqual(t, Clear(tx, c), 2)
		})
		deepEqual(t, db.Version(), sectioned.Version(2))
		db.Write(func(tx *Tx) {
			deepEqual(t, Clear(tx, c), 0)
			Put(tx, c, &Note{ID: "n3", Group: "C"})
		})
		db.Read(func(tx *Tx) {
			deepEqual(t, ids(All(tx, c)), []string{"n3"})
		})
	})
}

func TestVersion_persists(t *testing.T) {
	path := tempFile(t)
	db := must(Open(path, Options{IsTesting: true}))
	c := addNotes(t, db)
	db.Write(func(tx *Tx) {
		Put(tx, c, &Note{ID: "n1", Group: "A", Text: "hello"})
	})
	db.Write(func(tx *Tx) {
		Put(tx, c, &Note{ID: "n2", Group: "A"})
	})
	ensure(db.Close())

	db = openFile(t, path)
	deepEqual(t, db.Version(), sectioned.Version(2))
	c = addNotes(t, db)
	db.Read(func(tx *Tx) {
		deepEqual(t, tx.Version(), sectioned.Version(2))
		deepEqual(t, Get(tx, c, "n1").Text, "hello")
	})
}

func TestClosed(t *testing.T) {
	db := setupMemory(t)
	c := addNotes(t, db)
	ensure(db.Close())
	ensure(db.Close())

	err := db.Update(func(tx *Tx) error { return nil })
	if err != ErrClosed {
		t.Errorf("** Update: got %v, wanted ErrClosed", err)
	}
	_, err = c.OpenSnapshot(0)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("** OpenSnapshot: got %v, wanted ErrClosed", err)
	}
	var cerr *CollectionError
	if !errors.As(err, &cerr) || cerr.Collection != "notes" {
		t.Errorf("** OpenSnapshot: got %v, wanted CollectionError", err)
	}
}

func TestHooks_remove(t *testing.T) {
	db := setupMemory(t)
	c := addNotes(t, db)
	var n int
	remove := db.OnCommit(func(sectioned.Version) { n++ })
	db.Write(func(tx *Tx) { Put(tx, c, &Note{ID: "n1"}) })
	remove()
	db.Write(func(tx *Tx) { Put(tx, c, &Note{ID: "n2"}) })
	deepEqual(t, n, 1)
}

func TestDump(t *testing.T) {
	db := setupMemory(t)
	c := addNotes(t, db)
	db.Write(func(tx *Tx) {
		Put(tx, c, &Note{ID: "n1", Group: "A", Text: "hi"})
	})
	db.Read(func(tx *Tx) {
		s := Dump(tx, c)
		for _, want := range []string{"notes (1 rows) @ v1", "notes.1 = [41|n1]", `"Text":"hi"`} {
			if !strings.Contains(s, want) {
				t.Errorf("** dump missing %q:\n%s", want, s)
			}
		}
	})
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isempty[T any, S ~[]T](t testing.TB, a S) {
	if len(a) > 0 {
		t.Helper()
		t.Errorf("** got %v, wanted empty slice", a)
	}
}

func TestStats(t *testing.T) {
	eachBackend(t, func(t *testing.T, db *DB) {
		c := addNotes(t, db)
		db.Write(func(tx *Tx) {
			Put(tx, c, &Note{ID: "n1", Group: "A", Text: "hello"})
			Put(tx, c, &Note{ID: "n2", Group: "B"})
			Put(tx, c, &Note{ID: "n1", Group: "C", Text: "hello"})
		})
		db.Read(func(tx *Tx) {
			st := Stats(tx, c)
			deepEqual(t, st.Rows, 2)
			deepEqual(t, st.IndexRows, 2)
			if st.DataSize <= 0 || st.TotalSize() < st.DataSize || st.TotalAlloc() <= 0 {
				t.Errorf("** implausible stats %+v", st)
			}
		})
	})
}
