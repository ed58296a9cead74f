package store

type CollectionStats struct {
	Rows      int
	IndexRows int

	DataSize   int
	DataAlloc  int
	IndexSize  int
	IndexAlloc int
}

func (cs *CollectionStats) TotalSize() int {
	return cs.DataSize + cs.IndexSize
}

func (cs *CollectionStats) TotalAlloc() int {
	return cs.DataAlloc + cs.IndexAlloc
}

// Stats reports row counts and storage usage. Sizes are backend-specific:
// Bolt reports page usage, the in-memory backend reports key and value bytes.
func Stats[R any](tx *Tx, c *Collection[R]) CollectionStats {
	dataB, indexB := c.buckets(tx)
	ds, is := dataB.Stats(), indexB.Stats()
	return CollectionStats{
		Rows:       ds.Keys,
		IndexRows:  is.Keys,
		DataSize:   ds.Inuse,
		DataAlloc:  ds.Alloc,
		IndexSize:  is.Inuse,
		IndexAlloc: is.Alloc,
	}
}
