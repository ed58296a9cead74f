package sectioned

import (
	"sync"
	"sync/atomic"
	"time"
)

type EventKind int

const (
	EventInitial EventKind = iota + 1
	EventUpdate
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventInitial:
		return "initial"
	case EventUpdate:
		return "update"
	case EventError:
		return "error"
	default:
		return "invalid"
	}
}

// Event is delivered to subscribers. Initial events carry only View; update
// events carry View, Changes and Sections; error events carry only Err and are
// always the last event of a subscription.
type Event[R any, K comparable] struct {
	Kind     EventKind
	View     *View[R, K]
	Changes  ChangeSet
	Sections SectionChanges
	Err      error
}

// Token cancels a subscription.
type Token struct {
	once   sync.Once
	cancel func()
}

// Cancel stops deliveries to the subscription. After Cancel returns, no new
// delivery starts, even one that was already scheduled. A delivery that is
// running at the time is not interrupted. Cancel is safe to call more than
// once and from within the callback.
func (t *Token) Cancel() {
	t.once.Do(t.cancel)
}

type observer[R any, K comparable] struct {
	id    uint64
	live  *Live[R, K]
	exec  Executor
	queue *Queue
	cb    func(ev Event[R, K])

	pending   atomic.Bool
	cancelled atomic.Bool
	failure   atomic.Pointer[SnapshotOpenError]

	mu   sync.Mutex // held while delivering
	last *View[R, K]
}

func (o *observer[R, K]) schedule() {
	if o.cancelled.Load() {
		return
	}
	if o.pending.CompareAndSwap(false, true) {
		o.exec.Execute(o.deliver)
	}
}

func (o *observer[R, K]) fail(err *SnapshotOpenError) {
	if o.failure.CompareAndSwap(nil, err) {
		o.live.remove(o)
		o.schedule()
	}
}

func (o *observer[R, K]) cancel() {
	o.cancelled.Store(true)
	o.live.remove(o)
	if o.queue != nil {
		o.queue.Close()
	}
}

// deliver brings the subscriber up to date with the latest view. Several
// commits between two deliveries coalesce into one update computed against the
// last delivered view.
func (o *observer[R, K]) deliver() {
	o.pending.Store(false)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelled.Load() {
		return
	}

	if err := o.failure.Load(); err != nil {
		o.invoke(Event[R, K]{Kind: EventError, Err: err})
		o.cancel()
		return
	}

	cur := o.live.latest.Load()
	if cur == nil {
		return
	}
	if o.last == nil {
		o.last = cur.view
		o.invoke(Event[R, K]{Kind: EventInitial, View: cur.view})
		return
	}
	if cur.view.version <= o.last.version {
		return
	}

	start := time.Now()
	cs := Diff(o.last, cur.view)
	sc := DiffSections(o.last, cur.view)
	DiffDuration.Observe(float64(time.Since(start).Microseconds()) / 1000)
	o.last = cur.view
	if cs.IsEmpty() {
		return
	}
	o.invoke(Event[R, K]{Kind: EventUpdate, View: cur.view, Changes: cs, Sections: sc})
}

func (o *observer[R, K]) invoke(ev Event[R, K]) {
	if o.cancelled.Load() {
		return
	}
	DeliveryCount.WithLabelValues(ev.Kind.String()).Inc()
	o.cb(ev)
}
