package store

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"
)

func TestOrder_preservesOrder(t *testing.T) {
	tests := []struct {
		name string
		keys [][]byte
	}{
		{"uint64", [][]byte{OrderUint64(0), OrderUint64(1), OrderUint64(255), OrderUint64(256), OrderUint64(math.MaxUint64)}},
		{"int64", [][]byte{OrderInt64(math.MinInt64), OrderInt64(-256), OrderInt64(-1), OrderInt64(0), OrderInt64(1), OrderInt64(math.MaxInt64)}},
		{"float64", [][]byte{OrderFloat64(math.Inf(-1)), OrderFloat64(-2.5), OrderFloat64(-0.1), OrderFloat64(0), OrderFloat64(0.1), OrderFloat64(3), OrderFloat64(math.Inf(1))}},
		{"time", [][]byte{
			OrderTime(time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC)),
			OrderTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			OrderTime(time.Date(2024, 1, 1, 0, 0, 0, 1, time.UTC)),
		}},
		{"string", [][]byte{OrderString(""), OrderString("a"), OrderString("a\x00"), OrderString("ab"), OrderString("b")}},
		{"concat", [][]byte{
			OrderConcat(OrderString(""), OrderUint64(5)),
			OrderConcat(OrderString("a"), OrderUint64(1)),
			OrderConcat(OrderString("a"), OrderUint64(2)),
			OrderConcat(OrderString("a\x00"), OrderUint64(0)),
			OrderConcat(OrderString("ab"), OrderUint64(0)),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 1; i < len(tt.keys); i++ {
				if bytes.Compare(tt.keys[i-1], tt.keys[i]) >= 0 {
					t.Errorf("** key %d (%x) does not sort before key %d (%x)", i-1, tt.keys[i-1], i, tt.keys[i])
				}
			}
		})
	}
}

func TestIndexKey_sortsByOrderThenID(t *testing.T) {
	keys := [][]byte{
		encodeIndexKey(nil, nil, "z"),
		encodeIndexKey(nil, []byte("A"), "a"),
		encodeIndexKey(nil, []byte("A"), "b"),
		encodeIndexKey(nil, []byte("A\x00"), "a"),
		encodeIndexKey(nil, []byte("A\x01"), "a"),
		encodeIndexKey(nil, []byte("AB"), "a"),
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			t.Errorf("** key %d (%x) does not sort before key %d (%x)", i-1, keys[i-1], i, keys[i])
		}
	}
}

func TestIndexKey_roundTrip(t *testing.T) {
	for _, order := range [][]byte{nil, []byte("x"), {0, 0, 1, 0xFF}, OrderConcat(OrderString("g"), OrderInt64(-3))} {
		key := encodeIndexKey(nil, order, "id\x00x")
		gotOrder, gotID, err := decodeIndexKey(key)
		if err != nil {
			t.Fatalf("** decodeIndexKey(%x): %v", key, err)
		}
		if !bytes.Equal(gotOrder, order) {
			t.Errorf("** order: got %x, wanted %x", gotOrder, order)
		}
		deepEqual(t, gotID, "id\x00x")
	}
}

func TestIndexKey_invalid(t *testing.T) {
	for _, key := range [][]byte{
		nil,
		[]byte("abc"),
		{'a', 0},
		{'a', 0, 7, 'x'},
		{'a', 0, 1},
	} {
		_, _, err := decodeIndexKey(key)
		var derr *DataError
		if !errors.As(err, &derr) {
			t.Errorf("** decodeIndexKey(%x): got %v, wanted DataError", key, err)
		}
	}
	deepEqual(t, formatIndexKey([]byte("abc"))[0], '<')
}

func TestValue_decode(t *testing.T) {
	vle := value{Flags: vfVer1, IndexKey: encodeIndexKey(nil, []byte("g"), "n1"), Data: encodeRow(&Note{ID: "n1", Text: "t"})}
	var got value
	if err := got.decode(vle.encode()); err != nil {
		t.Fatal(err)
	}
	deepEqual(t, got, vle)
	deepEqual(t, got.Token(), vle.Token())

	other := value{Flags: vfVer1, IndexKey: vle.IndexKey, Data: encodeRow(&Note{ID: "n1", Text: "u"})}
	if other.Token() == vle.Token() {
		t.Errorf("** token did not change with data")
	}

	for _, raw := range [][]byte{nil, {0x80}, {0x02, 0}, {0x01, 5, 'a'}} {
		var v value
		if err := v.decode(raw); err == nil {
			t.Errorf("** decode(%x) succeeded, wanted error", raw)
		}
	}
}
