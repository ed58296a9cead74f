package sectioned

// Source is a change-tracked, ordered collection that a Live view is derived
// from.
type Source[R any] interface {
	// CurrentVersion returns the latest committed version.
	CurrentVersion() Version

	// OnCommit registers f to be called after each commit. f may be called on
	// any goroutine. The returned function unregisters f.
	OnCommit(f func(ver Version)) (remove func())

	// OpenSnapshot opens a consistent read of the collection at ver or at a
	// later version. Snapshot.Version reports which one.
	OpenSnapshot(ver Version) (Snapshot[R], error)
}

type Snapshot[R any] interface {
	Version() Version

	// OrderedRecords returns the records in grouping order. Sources should
	// return them sorted by grouping key, so that grouping is a single pass
	// and sections come out in key order.
	OrderedRecords() ([]Record[R], error)

	Close()
}
