package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Value format: flags (uvarint), index key size (uvarint), index key, msgpack
// data. The index key is kept with the row so that an update can find and
// drop the row's previous index entry.
const (
	vfVer1          = 1
	vfSupportedMask = vfVer1
)

type value struct {
	Flags    uint64
	IndexKey []byte
	Data     []byte
}

func (vle value) Token() uint64 {
	return xxhash.Sum64(vle.Data)
}

func (vle value) encode() []byte {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(vle.IndexKey)+len(vle.Data))
	buf = binary.AppendUvarint(buf, vle.Flags)
	buf = binary.AppendUvarint(buf, uint64(len(vle.IndexKey)))
	buf = append(buf, vle.IndexKey...)
	return append(buf, vle.Data...)
}

func (vle *value) decode(raw []byte) error {
	flags, n := binary.Uvarint(raw)
	if n <= 0 {
		return dataErrf(raw, 0, nil, "invalid flags")
	}
	if flags&^vfSupportedMask != 0 {
		return dataErrf(raw, 0, nil, "unsupported flags %x", flags)
	}
	off := n
	size, n := binary.Uvarint(raw[off:])
	if n <= 0 {
		return dataErrf(raw, off, nil, "invalid index key size")
	}
	off += n
	if uint64(len(raw)-off) < size {
		return dataErrf(raw, off, nil, "index key size %d exceeds value", size)
	}
	vle.Flags = flags
	vle.IndexKey = raw[off : off+int(size)]
	vle.Data = raw[off+int(size):]
	return nil
}

func encodeRow(row any) []byte {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(row)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %T using MsgPack: %w", row, err))
	}
	return buf.Bytes()
}

func decodeRow(data []byte, rowPtr any) error {
	var r bytes.Reader
	r.Reset(data)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	err := dec.Decode(rowPtr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(data, 0, err, "failed to decode msgpack into %T", rowPtr)
	}
	return nil
}
