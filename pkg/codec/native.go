package codec

import (
	"fmt"
	"math/big"
	"net"
	"reflect"
	"time"

	"github.com/gocql/gocql"
	"gopkg.in/inf.v0"

	"github.com/DerMene/cassandra-loader/pkg/errors"
)

// FromNative converts a driver value read from a column of type t into a
// Value. A nil v, or a nil pointer, yields a null value.
func FromNative(t *Type, v interface{}) (Value, error) {
	if v == nil {
		return Null(t.Kind), nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return Null(t.Kind), nil
		}
		switch rv.Interface().(type) {
		case *big.Int, *inf.Dec:
			return fromScalar(t, rv.Interface())
		}
		rv = rv.Elem()
	}

	if t.Kind.IsCollection() {
		return fromCollection(t, rv)
	}
	return fromScalar(t, rv.Interface())
}

func fromScalar(t *Type, v interface{}) (Value, error) {
	switch t.Kind {
	case KindText:
		switch x := v.(type) {
		case string:
			return Text(x), nil
		case []byte:
			return Text(string(x)), nil
		}
	case KindInt, KindBigInt, KindSmallInt, KindTinyInt:
		n, ok := toInt64(v)
		if !ok {
			break
		}
		switch t.Kind {
		case KindInt:
			return Int(int32(n)), nil
		case KindSmallInt:
			return SmallInt(int16(n)), nil
		case KindTinyInt:
			return TinyInt(int8(n)), nil
		default:
			return BigInt(n), nil
		}
	case KindVarInt:
		switch x := v.(type) {
		case *big.Int:
			return VarInt(x), nil
		case big.Int:
			return VarInt(&x), nil
		}
		if n, ok := toInt64(v); ok {
			return VarInt(big.NewInt(n)), nil
		}
	case KindFloat:
		switch x := v.(type) {
		case float32:
			return Float(x), nil
		case float64:
			return Float(float32(x)), nil
		}
	case KindDouble:
		switch x := v.(type) {
		case float64:
			return Double(x), nil
		case float32:
			return Double(float64(x)), nil
		}
	case KindDecimal:
		switch x := v.(type) {
		case *inf.Dec:
			return Decimal(x), nil
		case inf.Dec:
			return Decimal(&x), nil
		}
	case KindBoolean:
		if x, ok := v.(bool); ok {
			return Boolean(x), nil
		}
	case KindTimestamp:
		if x, ok := v.(time.Time); ok {
			return Timestamp(x), nil
		}
	case KindDate:
		if x, ok := v.(time.Time); ok {
			return Date(x), nil
		}
	case KindTime:
		switch x := v.(type) {
		case time.Duration:
			return TimeOfDay(x), nil
		case int64:
			return TimeOfDay(time.Duration(x)), nil
		}
	case KindUUID, KindTimeUUID:
		switch x := v.(type) {
		case gocql.UUID:
			if t.Kind == KindTimeUUID {
				return TimeUUID(x), nil
			}
			return UUID(x), nil
		case [16]byte:
			return FromNative(t, gocql.UUID(x))
		}
	case KindInet:
		switch x := v.(type) {
		case net.IP:
			return Inet(x), nil
		case string:
			if ip := net.ParseIP(x); ip != nil {
				return Inet(ip), nil
			}
		}
	case KindBlob:
		if x, ok := v.([]byte); ok {
			return Blob(x), nil
		}
	}
	return Value{}, nativeErr(t, v)
}

func fromCollection(t *Type, rv reflect.Value) (Value, error) {
	switch t.Kind {
	case KindSet, KindList:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return Value{}, nativeErr(t, rv.Interface())
		}
		elems := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			e, err := FromNative(t.Elem, rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, e)
		}
		if t.Kind == KindSet {
			return Set(elems...), nil
		}
		return List(elems...), nil
	case KindMap:
		if rv.Kind() != reflect.Map {
			return Value{}, nativeErr(t, rv.Interface())
		}
		keys := make([]Value, 0, rv.Len())
		vals := make([]Value, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := FromNative(t.Key, iter.Key().Interface())
			if err != nil {
				return Value{}, err
			}
			v, err := FromNative(t.Elem, iter.Value().Interface())
			if err != nil {
				return Value{}, err
			}
			keys = append(keys, k)
			vals = append(vals, v)
		}
		return Map(keys, vals), nil
	}
	return Value{}, nativeErr(t, rv.Interface())
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func nativeErr(t *Type, v interface{}) error {
	return errors.New(errors.ErrorTypeInternal, fmt.Sprintf("cannot read %T as %s", v, t))
}
