package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/andreyvit/sectioned"
)

const (
	metaBucket = "_meta"
	versionKey = "version"
)

// DB is a versioned store of ordered collections. Every write transaction that
// changes something commits a new version.
type DB struct {
	stg     storage
	logger  *slog.Logger
	verbose bool

	writeMu sync.Mutex
	version atomic.Uint64
	closed  atomic.Bool

	hooksMu    sync.Mutex
	hooks      map[uint64]func(ver sectioned.Version)
	lastHookID uint64

	colls map[string]bool
}

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	MmapSize  int
}

// Open opens or creates a Bolt database file.
func Open(path string, opt Options) (*DB, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 64
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	db, err := newDB(newBoltStorage(bdb), opt)
	if err != nil {
		bdb.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory returns a transient in-memory database.
func OpenMemory(opt Options) *DB {
	return must(newDB(newMemStorage(), opt))
}

func newDB(stg storage, opt Options) (*DB, error) {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	db := &DB{
		stg:     stg,
		logger:  opt.Logger,
		verbose: opt.Verbose,
		hooks:   make(map[uint64]func(sectioned.Version)),
		colls:   make(map[string]bool),
	}

	err := db.prepare(func(stx storageTx) error {
		b, err := stx.CreateBucket(metaBucket, "")
		if err != nil {
			return err
		}
		if raw := b.Get([]byte(versionKey)); raw != nil {
			if len(raw) != 8 {
				return dataErrf(raw, 0, nil, "invalid version")
			}
			db.version.Store(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: init: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return db.stg.Close()
}

// Version returns the latest committed version.
func (db *DB) Version() sectioned.Version {
	return sectioned.Version(db.version.Load())
}

// OnCommit registers f to be called after every committed version. f runs on
// the committing goroutine after the commit, in version order, and must not
// write to db.
func (db *DB) OnCommit(f func(ver sectioned.Version)) (remove func()) {
	db.hooksMu.Lock()
	defer db.hooksMu.Unlock()
	db.lastHookID++
	id := db.lastHookID
	db.hooks[id] = f
	return func() {
		db.hooksMu.Lock()
		defer db.hooksMu.Unlock()
		delete(db.hooks, id)
	}
}

func (db *DB) fireHooks(ver sectioned.Version) {
	db.hooksMu.Lock()
	hooks := make([]func(sectioned.Version), 0, len(db.hooks))
	for _, f := range db.hooks {
		hooks = append(hooks, f)
	}
	db.hooksMu.Unlock()

	for _, f := range hooks {
		f(ver)
	}
}

// prepare runs schema setup that must not bump the version.
func (db *DB) prepare(f func(stx storageTx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	stx, err := db.stg.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()
	err = f(stx)
	if err != nil {
		return err
	}
	return stx.Commit()
}

// Update runs f in a write transaction and commits it unless f returns an
// error or panics. If f wrote anything, the commit gets a new version and
// OnCommit hooks are called.
func (db *DB) Update(f func(tx *Tx) error) error {
	if db.closed.Load() {
		return ErrClosed
	}
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	stx, err := db.stg.BeginTx(true)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer stx.Rollback()

	tx := &Tx{db: db, stx: stx}
	err = safelyCall(f, tx)
	if err != nil {
		return err
	}
	if !tx.written {
		return nil
	}

	ver := db.version.Load() + 1
	meta := nonNil(stx.Bucket(metaBucket, ""))
	ensure(meta.Put([]byte(versionKey), binary.BigEndian.AppendUint64(nil, ver)))
	err = stx.Commit()
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	db.version.Store(ver)
	if db.verbose {
		db.logger.LogAttrs(context.Background(), slog.LevelDebug, "store: COMMIT", slog.Uint64("version", ver))
	}

	db.fireHooks(sectioned.Version(ver))
	return nil
}

// View runs f in a read transaction.
func (db *DB) View(f func(tx *Tx) error) error {
	tx, err := db.beginRead()
	if err != nil {
		return err
	}
	defer tx.Close()
	return f(tx)
}

// Write is like Update but panics on error.
func (db *DB) Write(f func(tx *Tx)) {
	ensure(db.Update(func(tx *Tx) error {
		f(tx)
		return nil
	}))
}

// Read is like View but panics if the transaction cannot be started.
func (db *DB) Read(f func(tx *Tx)) {
	ensure(db.View(func(tx *Tx) error {
		f(tx)
		return nil
	}))
}

func (db *DB) beginRead() (*Tx, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	stx, err := db.stg.BeginTx(false)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return &Tx{db: db, stx: stx}, nil
}

type Tx struct {
	db      *DB
	stx     storageTx
	written bool
}

func (tx *Tx) DB() *DB {
	return tx.db
}

func (tx *Tx) IsWritable() bool {
	return tx.stx.Writable()
}

// Version returns the version this transaction reads.
func (tx *Tx) Version() sectioned.Version {
	raw := nonNil(tx.stx.Bucket(metaBucket, "")).Get([]byte(versionKey))
	if raw == nil {
		return 0
	}
	return sectioned.Version(binary.BigEndian.Uint64(raw))
}

func (tx *Tx) Close() {
	ensure(tx.stx.Rollback())
}

func (tx *Tx) markWritten() {
	tx.written = true
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*Tx) error, tx *Tx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func nonNil[T any](v T) T {
	if any(v) == nil {
		panic("nil")
	}
	return v
}
