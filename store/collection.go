package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/andreyvit/sectioned"
)

const (
	dataSub  = "data"
	indexSub = "order"
)

type CollectionOptions[R any] struct {
	// ID returns the row's identity. Must be non-empty.
	ID func(row *R) string

	// Order returns the row's grouping order; rows are kept sorted by it,
	// then by ID. Use the Order* helpers to build it. If nil, rows are
	// ordered by ID.
	Order func(row *R) []byte

	SuppressContentWhenLogging bool
}

// Collection is an ordered set of rows of type R. It implements
// sectioned.Source, so a sectioned.Live can follow it.
type Collection[R any] struct {
	db   *DB
	name string
	opt  CollectionOptions[R]
}

var _ sectioned.Source[*struct{}] = (*Collection[struct{}])(nil)

func AddCollection[R any](db *DB, name string, opt CollectionOptions[R]) (*Collection[R], error) {
	if opt.ID == nil {
		panic(fmt.Errorf("%s: ID func is required", name))
	}
	if name == "" || name == metaBucket {
		panic(fmt.Errorf("invalid collection name %q", name))
	}
	if db.colls[name] {
		panic(fmt.Errorf("collection %s already added", name))
	}
	err := db.prepare(func(stx storageTx) error {
		if _, err := stx.CreateBucket(name, dataSub); err != nil {
			return err
		}
		_, err := stx.CreateBucket(name, indexSub)
		return err
	})
	if err != nil {
		return nil, collErrf(name, "", err, "creating buckets")
	}
	db.colls[name] = true
	return &Collection[R]{db: db, name: name, opt: opt}, nil
}

func (c *Collection[R]) Name() string {
	return c.name
}

func (c *Collection[R]) DB() *DB {
	return c.db
}

func (c *Collection[R]) idOf(row *R) string {
	id := c.opt.ID(row)
	if id == "" {
		panic(collErrf(c.name, "", nil, "attempt to store row with empty ID"))
	}
	return id
}

func (c *Collection[R]) indexKeyOf(row *R, id string) []byte {
	var order []byte
	if c.opt.Order != nil {
		order = c.opt.Order(row)
	}
	return encodeIndexKey(nil, order, id)
}

func (c *Collection[R]) buckets(tx *Tx) (data, index storageBucket) {
	data = tx.stx.Bucket(c.name, dataSub)
	index = tx.stx.Bucket(c.name, indexSub)
	if data == nil || index == nil {
		panic(collErrf(c.name, "", nil, "missing buckets"))
	}
	return
}

func (c *Collection[R]) loggable(row *R) string {
	if c.opt.SuppressContentWhenLogging {
		return "<suppressed>"
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(raw)
}

// Put inserts or replaces a row. Saving a row identical to the stored one is
// a no-op and does not produce a new version.
func Put[R any](tx *Tx, c *Collection[R], row *R) {
	if !tx.IsWritable() {
		panic("Put in a read-only tx")
	}
	dataB, indexB := c.buckets(tx)
	id := c.idOf(row)
	idRaw := []byte(id)
	newVal := value{
		Flags:    vfVer1,
		IndexKey: c.indexKeyOf(row, id),
		Data:     encodeRow(row),
	}

	if oldRaw := dataB.Get(idRaw); oldRaw != nil {
		var old value
		if err := old.decode(oldRaw); err != nil {
			panic(collErrf(c.name, id, err, "decoding old value"))
		}
		sameIndex := bytes.Equal(old.IndexKey, newVal.IndexKey)
		if sameIndex && bytes.Equal(old.Data, newVal.Data) {
			if tx.db.verbose {
				tx.db.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: PUT.NOOP", slog.String("coll", c.name), slog.String("id", id))
			}
			return
		}
		if !sameIndex {
			ensure(indexB.Delete(bytes.Clone(old.IndexKey)))
		}
	}

	ensure(dataB.Put(idRaw, newVal.encode()))
	ensure(indexB.Put(newVal.IndexKey, idRaw))
	tx.markWritten()
	if tx.db.verbose {
		tx.db.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: PUT", slog.String("coll", c.name), slog.String("id", id), slog.String("row", c.loggable(row)))
	}
}

// Delete removes the row with the given ID and reports whether it existed.
func Delete[R any](tx *Tx, c *Collection[R], id string) bool {
	if !tx.IsWritable() {
		panic("Delete in a read-only tx")
	}
	dataB, indexB := c.buckets(tx)
	idRaw := []byte(id)
	oldRaw := dataB.Get(idRaw)
	if oldRaw == nil {
		if tx.db.verbose {
			tx.db.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: DELETE.NOOP", slog.String("coll", c.name), slog.String("id", id))
		}
		return false
	}
	var old value
	if err := old.decode(oldRaw); err != nil {
		panic(collErrf(c.name, id, err, "decoding old value"))
	}
	ensure(indexB.Delete(bytes.Clone(old.IndexKey)))
	ensure(dataB.Delete(idRaw))
	tx.markWritten()
	if tx.db.verbose {
		tx.db.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: DELETE", slog.String("coll", c.name), slog.String("id", id))
	}
	return true
}

// Get returns the row with the given ID, or nil.
func Get[R any](tx *Tx, c *Collection[R], id string) *R {
	dataB, _ := c.buckets(tx)
	raw := dataB.Get([]byte(id))
	if raw == nil {
		return nil
	}
	row, _, err := c.decode(id, raw)
	if err != nil {
		panic(err)
	}
	return row
}

// Count returns the number of rows.
func Count[R any](tx *Tx, c *Collection[R]) int {
	dataB, _ := c.buckets(tx)
	return dataB.KeyCount()
}

// All returns all rows in collection order.
func All[R any](tx *Tx, c *Collection[R]) []*R {
	recs, err := c.records(tx)
	if err != nil {
		panic(err)
	}
	rows := make([]*R, len(recs))
	for i, rec := range recs {
		rows[i] = rec.Value
	}
	return rows
}

// WithOrder returns the rows whose order key equals order, sorted by ID.
func WithOrder[R any](tx *Tx, c *Collection[R], order []byte) []*R {
	dataB, indexB := c.buckets(tx)
	prefix := appendEscaped(nil, order)
	var rows []*R
	cur := indexB.Cursor()
	for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
		row, _, err := c.decode(string(v), dataB.Get(v))
		if err != nil {
			panic(err)
		}
		rows = append(rows, row)
	}
	return rows
}

// Clear deletes all rows and reports how many there were.
func Clear[R any](tx *Tx, c *Collection[R]) int {
	if !tx.IsWritable() {
		panic("Clear in a read-only tx")
	}
	n := Count(tx, c)
	if n == 0 {
		return 0
	}
	for _, sub := range []string{dataSub, indexSub} {
		ensure(tx.stx.DeleteBucket(c.name, sub))
		must(tx.stx.CreateBucket(c.name, sub))
	}
	tx.markWritten()
	if tx.db.verbose {
		tx.db.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: CLEAR", slog.String("coll", c.name), slog.Int("rows", n))
	}
	return n
}

func (c *Collection[R]) decode(id string, raw []byte) (*R, uint64, error) {
	var vle value
	if err := vle.decode(raw); err != nil {
		return nil, 0, collErrf(c.name, id, err, "decoding value")
	}
	row := new(R)
	if err := decodeRow(vle.Data, row); err != nil {
		return nil, 0, collErrf(c.name, id, err, "decoding row")
	}
	return row, vle.Token(), nil
}

func (c *Collection[R]) records(tx *Tx) ([]sectioned.Record[*R], error) {
	dataB, indexB := c.buckets(tx)
	var recs []sectioned.Record[*R]
	cur := indexB.Cursor()
	for k, v := cur.First(); k != nil; k, v = cur.Next() {
		id := string(v)
		raw := dataB.Get(v)
		if raw == nil {
			return nil, collErrf(c.name, id, nil, "index entry %s points to missing row", formatIndexKey(k))
		}
		row, token, err := c.decode(id, raw)
		if err != nil {
			return nil, err
		}
		recs = append(recs, sectioned.Record[*R]{ID: id, Token: token, Value: row})
	}
	return recs, nil
}

// CurrentVersion implements sectioned.Source.
func (c *Collection[R]) CurrentVersion() sectioned.Version {
	return c.db.Version()
}

// OnCommit implements sectioned.Source. Hooks fire for commits to any
// collection of the database.
func (c *Collection[R]) OnCommit(f func(ver sectioned.Version)) (remove func()) {
	return c.db.OnCommit(f)
}

// OpenSnapshot implements sectioned.Source. The snapshot reads the latest
// committed version, which is ver or later.
func (c *Collection[R]) OpenSnapshot(ver sectioned.Version) (sectioned.Snapshot[*R], error) {
	tx, err := c.db.beginRead()
	if err != nil {
		return nil, collErrf(c.name, "", err, "opening snapshot of version %d", ver)
	}
	return &snapshot[R]{c: c, tx: tx, ver: tx.Version()}, nil
}

type snapshot[R any] struct {
	c   *Collection[R]
	tx  *Tx
	ver sectioned.Version
}

func (s *snapshot[R]) Version() sectioned.Version {
	return s.ver
}

func (s *snapshot[R]) OrderedRecords() ([]sectioned.Record[*R], error) {
	return s.c.records(s.tx)
}

func (s *snapshot[R]) Close() {
	s.tx.Close()
}
