package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Order keys are compared bytewise, so every helper below produces an
// encoding whose byte order matches the natural order of its input.

func OrderString(s string) []byte {
	return []byte(s)
}

func OrderUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func OrderInt64(v int64) []byte {
	return OrderUint64(uint64(v) ^ (1 << 63))
}

func OrderFloat64(v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return OrderUint64(bits)
}

func OrderTime(t time.Time) []byte {
	return OrderInt64(t.UnixNano())
}

// OrderConcat joins several order keys so that the result sorts by the first
// component, then the second, and so on.
func OrderConcat(comps ...[]byte) []byte {
	var buf []byte
	for _, c := range comps {
		buf = appendEscaped(buf, c)
	}
	return buf
}

// An index key is escape(order) 0x00 0x01 id. Inside escape(), 0x00 becomes
// 0x00 0xFF, so the terminator sorts before any continuation and a shorter
// order key sorts before any longer key it prefixes.
const (
	escByte  = 0x00
	escZero  = 0xFF
	escTerm  = 0x01
	minIDLen = 1
)

func appendEscaped(buf, raw []byte) []byte {
	for _, b := range raw {
		if b == escByte {
			buf = append(buf, escByte, escZero)
		} else {
			buf = append(buf, b)
		}
	}
	return append(buf, escByte, escTerm)
}

func encodeIndexKey(buf, order []byte, id string) []byte {
	buf = appendEscaped(buf, order)
	return append(buf, id...)
}

func decodeIndexKey(key []byte) (order []byte, id string, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] != escByte {
			order = append(order, key[i])
			continue
		}
		if i+1 >= len(key) {
			return nil, "", dataErrf(key, i, nil, "truncated escape")
		}
		switch key[i+1] {
		case escZero:
			order = append(order, escByte)
			i++
		case escTerm:
			id = string(key[i+2:])
			if len(id) < minIDLen {
				return nil, "", dataErrf(key, i, nil, "missing id")
			}
			return order, id, nil
		default:
			return nil, "", dataErrf(key, i, nil, "invalid escape 0x%02x", key[i+1])
		}
	}
	return nil, "", dataErrf(key, len(key), nil, "unterminated order key")
}

func formatIndexKey(key []byte) string {
	order, id, err := decodeIndexKey(key)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return fmt.Sprintf("%x|%s", order, id)
}
