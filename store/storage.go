package store

import "errors"

// ErrBucketNotFound is returned by storageTx.DeleteBucket when the bucket doesn't exist.
var ErrBucketNotFound = errors.New("bucket not found")

// storage is a key-value backend (Bolt or in-memory).
type storage interface {
	// BeginTx starts a new transaction. Only one writable transaction can be
	// open at a time; read transactions see a consistent snapshot.
	BeginTx(writable bool) (storageTx, error)
	Close() error
}

type storageTx interface {
	Writable() bool

	// Bucket returns a bucket. Use sub="" for a root bucket, non-empty for a nested bucket.
	// Returns nil if the bucket doesn't exist.
	Bucket(name, sub string) storageBucket

	// CreateBucket creates a bucket if it doesn't exist.
	// For sub != "", it must also ensure the root bucket exists.
	CreateBucket(name, sub string) (storageBucket, error)

	// DeleteBucket deletes a nested bucket (sub must be non-empty).
	DeleteBucket(name, sub string) error

	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple times.
	Rollback() error
}

// storageBucket is a sorted key-value collection.
type storageBucket interface {
	// Get retrieves a value by key. Returns nil if not found. The returned
	// slice is only valid until the transaction ends.
	Get(key []byte) []byte

	Put(key, value []byte) error

	Delete(key []byte) error

	Cursor() storageCursor

	KeyCount() int

	Stats() bucketStats
}

type bucketStats struct {
	Keys  int
	Inuse int
	Alloc int
}

// storageCursor iterates over a sorted bucket.
type storageCursor interface {
	First() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	Next() (key, value []byte)
}
