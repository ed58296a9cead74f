package sectioned

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

const DefaultHistory = 8

type Options[K comparable] struct {
	// Compare and Descending control section order, see GroupOptions.
	Compare    func(a, b K) int
	Descending bool

	// Background runs materialization after commits. Defaults to Goroutines.
	Background Executor

	// History is the number of recent views kept for ViewAt.
	History int

	Logger  *slog.Logger
	Verbose bool
}

// Live keeps a sectioned view of a Source up to date and notifies
// subscribers about changes.
type Live[R any, K comparable] struct {
	src     Source[R]
	keyFn   KeyFunc[R, K]
	group   GroupOptions[K]
	bg      Executor
	logger  *slog.Logger
	verbose bool

	refreshMu sync.Mutex
	latest    atomic.Pointer[materialized[R, K]]
	history   *lru.Cache[Version, *View[R, K]]

	observers *xsync.MapOf[uint64, *observer[R, K]]
	lastObsID atomic.Uint64

	unhook func()
	closed atomic.Bool
}

type materialized[R any, K comparable] struct {
	view  *View[R, K]
	diags []error
}

func New[R any, K comparable](src Source[R], keyFn KeyFunc[R, K], opt Options[K]) *Live[R, K] {
	if keyFn == nil {
		panic("sectioned.New: nil key func")
	}
	if opt.Background == nil {
		opt.Background = Goroutines
	}
	if opt.History <= 0 {
		opt.History = DefaultHistory
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	l := &Live[R, K]{
		src:       src,
		keyFn:     keyFn,
		group:     GroupOptions[K]{Compare: opt.Compare, Descending: opt.Descending},
		bg:        opt.Background,
		logger:    opt.Logger,
		verbose:   opt.Verbose,
		history:   must(lru.New[Version, *View[R, K]](opt.History)),
		observers: xsync.NewMapOf[uint64, *observer[R, K]](),
	}
	l.unhook = src.OnCommit(l.committed)
	return l
}

func (l *Live[R, K]) committed(ver Version) {
	if l.closed.Load() {
		return
	}
	l.bg.Execute(func() {
		l.refresh(ver)
	})
}

// Latest returns the most recently materialized view, or nil if nothing has
// been materialized yet.
func (l *Live[R, K]) Latest() *View[R, K] {
	if cur := l.latest.Load(); cur != nil {
		return cur.view
	}
	return nil
}

// Snapshot returns a view of the source's current version, materializing it
// on the calling goroutine if needed.
func (l *Live[R, K]) Snapshot() (*View[R, K], error) {
	ver := l.src.CurrentVersion()
	if cur := l.latest.Load(); cur != nil && cur.view.version >= ver {
		return cur.view, nil
	}
	return l.refresh(ver)
}

// ViewAt returns a recently materialized view by version.
func (l *Live[R, K]) ViewAt(ver Version) (*View[R, K], bool) {
	return l.history.Get(ver)
}

// Diagnostics returns the key extraction errors of the latest view.
func (l *Live[R, K]) Diagnostics() []error {
	if cur := l.latest.Load(); cur != nil {
		return cur.diags
	}
	return nil
}

func (l *Live[R, K]) refresh(ver Version) (*View[R, K], error) {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	if l.closed.Load() {
		return nil, ErrClosed
	}
	if cur := l.latest.Load(); cur != nil && cur.view.version >= ver {
		return cur.view, nil
	}

	snap, err := l.src.OpenSnapshot(ver)
	if err != nil {
		return nil, l.fail(ver, err)
	}
	defer snap.Close()
	actual := snap.Version()
	if cur := l.latest.Load(); cur != nil && cur.view.version >= actual {
		return cur.view, nil
	}

	recs, err := snap.OrderedRecords()
	if err != nil {
		return nil, l.fail(actual, err)
	}

	view, diags := Derive(actual, recs, l.keyFn, l.group)
	for _, err := range diags {
		KeyErrorCount.Inc()
		l.logger.LogAttrs(context.Background(), slog.LevelWarn, "sectioned: record excluded", slog.Uint64("version", uint64(actual)), slog.Any("err", err))
	}
	l.latest.Store(&materialized[R, K]{view, diags})
	l.history.Add(actual, view)
	RefreshCount.WithLabelValues("ok").Inc()
	if l.verbose {
		l.logger.LogAttrs(context.Background(), slog.LevelDebug, "sectioned: REFRESH", slog.Uint64("version", uint64(actual)), slog.Int("sections", view.SectionCount()), slog.Int("records", view.Len()))
	}

	l.observers.Range(func(_ uint64, o *observer[R, K]) bool {
		o.schedule()
		return true
	})
	return view, nil
}

func (l *Live[R, K]) fail(ver Version, err error) error {
	serr := &SnapshotOpenError{Version: ver, Err: err}
	RefreshCount.WithLabelValues("error").Inc()
	l.logger.LogAttrs(context.Background(), slog.LevelError, "sectioned: materialization failed", slog.Uint64("version", uint64(ver)), slog.Any("err", err))
	l.observers.Range(func(_ uint64, o *observer[R, K]) bool {
		o.fail(serr)
		return true
	})
	return serr
}

// Subscribe registers cb to receive an initial event, then update events for
// every later version that changes the view. If exec is nil, events are
// delivered on a queue dedicated to this subscription.
func (l *Live[R, K]) Subscribe(exec Executor, cb func(ev Event[R, K])) *Token {
	if cb == nil {
		panic("sectioned.Subscribe: nil callback")
	}
	o := &observer[R, K]{
		id:   l.lastObsID.Add(1),
		live: l,
		exec: exec,
		cb:   cb,
	}
	if exec == nil {
		o.queue = NewQueue()
		o.exec = o.queue
	}
	tok := &Token{cancel: o.cancel}
	if l.closed.Load() {
		tok.Cancel()
		return tok
	}

	l.observers.Store(o.id, o)
	SubscriberGauge.Inc()
	if l.verbose {
		l.logger.LogAttrs(context.Background(), slog.LevelDebug, "sectioned: SUBSCRIBE", slog.Uint64("observer", o.id))
	}

	if l.latest.Load() != nil {
		o.schedule()
	} else {
		l.bg.Execute(func() {
			l.refresh(l.src.CurrentVersion())
		})
	}
	return tok
}

func (l *Live[R, K]) remove(o *observer[R, K]) {
	if _, loaded := l.observers.LoadAndDelete(o.id); loaded {
		SubscriberGauge.Dec()
	}
}

// SubscriberCount returns the number of active subscriptions.
func (l *Live[R, K]) SubscriberCount() int {
	return l.observers.Size()
}

// Close stops following the source and cancels all subscriptions.
func (l *Live[R, K]) Close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	l.unhook()
	l.observers.Range(func(_ uint64, o *observer[R, K]) bool {
		o.cancel()
		return true
	})
}

func (l *Live[R, K]) String() string {
	return fmt.Sprintf("Live(v%d, %d subscribers)", l.Latest().versionOrZero(), l.SubscriberCount())
}

func (v *View[R, K]) versionOrZero() Version {
	if v == nil {
		return 0
	}
	return v.version
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
