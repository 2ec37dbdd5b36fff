package codec

import (
	"bytes"
	"math/big"
	"net"
	"time"

	"github.com/gocql/gocql"
	"gopkg.in/inf.v0"
)

// Value is one typed column value. The payload field used depends on Kind;
// a null Value carries only its kind.
type Value struct {
	kind  Kind
	null  bool
	i     int64
	f     float64
	b     bool
	s     string
	raw   []byte
	t     time.Time
	dur   time.Duration
	big   *big.Int
	dec   *inf.Dec
	uuid  gocql.UUID
	ip    net.IP
	keys  []Value
	elems []Value
}

// Row is an ordered sequence of values, one per target column.
type Row []Value

// Null returns a null value of the given kind.
func Null(kind Kind) Value { return Value{kind: kind, null: true} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Int returns a 32-bit integer value.
func Int(v int32) Value { return Value{kind: KindInt, i: int64(v)} }

// BigInt returns a 64-bit integer value.
func BigInt(v int64) Value { return Value{kind: KindBigInt, i: v} }

// SmallInt returns a 16-bit integer value.
func SmallInt(v int16) Value { return Value{kind: KindSmallInt, i: int64(v)} }

// TinyInt returns an 8-bit integer value.
func TinyInt(v int8) Value { return Value{kind: KindTinyInt, i: int64(v)} }

// VarInt returns an arbitrary precision integer value.
func VarInt(v *big.Int) Value { return Value{kind: KindVarInt, big: v} }

// Float returns a 32-bit float value.
func Float(v float32) Value { return Value{kind: KindFloat, f: float64(v)} }

// Double returns a 64-bit float value.
func Double(v float64) Value { return Value{kind: KindDouble, f: v} }

// Decimal returns an arbitrary precision decimal value.
func Decimal(v *inf.Dec) Value { return Value{kind: KindDecimal, dec: v} }

// Boolean returns a boolean value.
func Boolean(v bool) Value { return Value{kind: KindBoolean, b: v} }

// Timestamp returns a timestamp value.
func Timestamp(v time.Time) Value { return Value{kind: KindTimestamp, t: v} }

// Date returns a date value; the time of day is ignored.
func Date(v time.Time) Value {
	return Value{kind: KindDate, t: time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)}
}

// TimeOfDay returns a time value as nanoseconds since midnight.
func TimeOfDay(v time.Duration) Value { return Value{kind: KindTime, dur: v} }

// UUID returns a uuid value.
func UUID(v gocql.UUID) Value { return Value{kind: KindUUID, uuid: v} }

// TimeUUID returns a timeuuid value.
func TimeUUID(v gocql.UUID) Value { return Value{kind: KindTimeUUID, uuid: v} }

// Inet returns an inet value.
func Inet(v net.IP) Value { return Value{kind: KindInet, ip: v} }

// Blob returns a blob value.
func Blob(v []byte) Value { return Value{kind: KindBlob, raw: v} }

// Set returns a set value. Duplicate elements are the caller's concern.
func Set(elems ...Value) Value { return Value{kind: KindSet, elems: elems} }

// List returns a list value.
func List(elems ...Value) Value { return Value{kind: KindList, elems: elems} }

// Map returns a map value from parallel key and value slices.
func Map(keys, vals []Value) Value { return Value{kind: KindMap, keys: keys, elems: vals} }

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.null }

// Int64 returns the payload of integer kinds.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the payload of float and double values.
func (v Value) Float64() float64 { return v.f }

// Bool returns the payload of boolean values.
func (v Value) Bool() bool { return v.b }

// Str returns the payload of text values.
func (v Value) Str() string { return v.s }

// Bytes returns the payload of blob values.
func (v Value) Bytes() []byte { return v.raw }

// Time returns the payload of timestamp and date values.
func (v Value) Time() time.Time { return v.t }

// Duration returns the payload of time values.
func (v Value) Duration() time.Duration { return v.dur }

// BigInt returns the payload of varint values.
func (v Value) BigInt() *big.Int { return v.big }

// Dec returns the payload of decimal values.
func (v Value) Dec() *inf.Dec { return v.dec }

// UUIDValue returns the payload of uuid and timeuuid values.
func (v Value) UUIDValue() gocql.UUID { return v.uuid }

// IP returns the payload of inet values.
func (v Value) IP() net.IP { return v.ip }

// Elems returns the elements of a set or list, or the values of a map.
func (v Value) Elems() []Value { return v.elems }

// Keys returns the keys of a map.
func (v Value) Keys() []Value { return v.keys }

// Native converts the value to the Go type the driver binds for its kind.
func (v Value) Native() interface{} {
	if v.null {
		return nil
	}
	switch v.kind {
	case KindText:
		return v.s
	case KindInt:
		return int32(v.i)
	case KindBigInt:
		return v.i
	case KindSmallInt:
		return int16(v.i)
	case KindTinyInt:
		return int8(v.i)
	case KindVarInt:
		return v.big
	case KindFloat:
		return float32(v.f)
	case KindDouble:
		return v.f
	case KindDecimal:
		return v.dec
	case KindBoolean:
		return v.b
	case KindTimestamp, KindDate:
		return v.t
	case KindTime:
		return v.dur
	case KindUUID, KindTimeUUID:
		return v.uuid
	case KindInet:
		return v.ip
	case KindBlob:
		return v.raw
	case KindSet, KindList:
		out := make([]interface{}, len(v.elems))
		for i, e := range v.elems {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[interface{}]interface{}, len(v.keys))
		for i, k := range v.keys {
			key := k.Native()
			if b, ok := key.([]byte); ok {
				key = string(b)
			}
			out[key] = v.elems[i].Native()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || v.null != o.null {
		return false
	}
	if v.null {
		return true
	}
	switch v.kind {
	case KindText:
		return v.s == o.s
	case KindInt, KindBigInt, KindSmallInt, KindTinyInt:
		return v.i == o.i
	case KindVarInt:
		return v.big != nil && o.big != nil && v.big.Cmp(o.big) == 0
	case KindFloat, KindDouble:
		return v.f == o.f
	case KindDecimal:
		return v.dec != nil && o.dec != nil && v.dec.Cmp(o.dec) == 0
	case KindBoolean:
		return v.b == o.b
	case KindTimestamp, KindDate:
		return v.t.Equal(o.t)
	case KindTime:
		return v.dur == o.dur
	case KindUUID, KindTimeUUID:
		return v.uuid == o.uuid
	case KindInet:
		return v.ip.Equal(o.ip)
	case KindBlob:
		return bytes.Equal(v.raw, o.raw)
	case KindList:
		if len(v.elems) != len(o.elems) {
			return false
		}
		for i := range v.elems {
			if !v.elems[i].Equal(o.elems[i]) {
				return false
			}
		}
		return true
	case KindSet:
		return len(v.elems) == len(o.elems) && sameElements(v.elems, o.elems)
	case KindMap:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for i, k := range v.keys {
			j := indexOfValue(o.keys, k)
			if j < 0 || !v.elems[i].Equal(o.elems[j]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// sameElements reports whether a and b hold the same elements in any order.
func sameElements(a, b []Value) bool {
	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if !used[j] && x.Equal(y) {
				used[j], found = true, true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Equal reports whether two rows hold equal values in order.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Natives converts every value of the row with Native.
func (r Row) Natives() []interface{} {
	out := make([]interface{}, len(r))
	for i, v := range r {
		out[i] = v.Native()
	}
	return out
}
