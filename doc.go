/*
Package sectioned maintains sectioned live views over ordered, change-tracked
collections.

A view groups the records of one version of a collection into sections of
records sharing a key. A Live view follows the collection as it is committed
to and tells subscribers exactly what changed between the versions it
delivers.

We implement:

1. Grouping (Derive): a single pass over records in the collection's order.
Sections appear in order of first encounter of their key, which is key order
when the collection is sorted by key (the expected setup; see store).

2. Diffing (Diff): flat-index deletions, insertions and modifications between
two versions, matched by record identity.

3. Notification (Live.Subscribe): an initial event, then update events in
version order, on the subscriber's own Executor.

# Technical Details

**Flat index.** Concatenating all sections in order gives one index space.
ChangeSet indices, View.At and View.Record use it; IndexPath addresses
(section, row) and converts with View.FlatIndex and View.PathOf.

**Identity and tokens.** Each Record carries an ID, stable across versions,
and a Token that changes whenever the content changes.

**Moves.** A record whose relative order changed is reported as a deletion at
its old index and an insertion at its new one, never as a modification. Among
the records present in both versions, the largest set whose relative order is
unchanged stays in place, so inserting a section or moving one record to
another section reports just those records.

**Coalescing.** A subscriber has at most one delivery pending. When it runs, it
diffs the last view delivered to that subscriber against the latest view, so
several quick commits may arrive as one update.

**Failures.** If a version cannot be materialized, each subscriber gets one
error event wrapping *SnapshotOpenError, and the subscription ends.
*/
package sectioned
