package codec

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"net"
	"strconv"
	"strings"

	"github.com/gocql/gocql"
	"gopkg.in/inf.v0"

	"github.com/DerMene/cassandra-loader/pkg/errors"
)

type textCodec struct{ typ *Type }

func (c textCodec) Type() *Type { return c.typ }

func (c textCodec) Parse(field string) (Value, error) { return Text(field), nil }

func (c textCodec) Format(v Value) (string, error) {
	if v.Kind() != KindText {
		return "", kindErr(c.typ, v)
	}
	return v.Str(), nil
}

type intCodec struct{ typ *Type }

func (c intCodec) Type() *Type { return c.typ }

func (c intCodec) bits() int {
	switch c.typ.Kind {
	case KindInt:
		return 32
	case KindSmallInt:
		return 16
	case KindTinyInt:
		return 8
	default:
		return 64
	}
}

func (c intCodec) Parse(field string) (Value, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(field), 10, c.bits())
	if err != nil {
		return Value{}, parseErr(c.typ, field, err)
	}
	switch c.typ.Kind {
	case KindInt:
		return Int(int32(n)), nil
	case KindSmallInt:
		return SmallInt(int16(n)), nil
	case KindTinyInt:
		return TinyInt(int8(n)), nil
	default:
		return BigInt(n), nil
	}
}

func (c intCodec) Format(v Value) (string, error) {
	if v.Kind() != c.typ.Kind {
		return "", kindErr(c.typ, v)
	}
	return strconv.FormatInt(v.Int64(), 10), nil
}

type varIntCodec struct{ typ *Type }

func (c varIntCodec) Type() *Type { return c.typ }

func (c varIntCodec) Parse(field string) (Value, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(field), 10)
	if !ok {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("not an integer: %q", field))
	}
	return VarInt(n), nil
}

func (c varIntCodec) Format(v Value) (string, error) {
	if v.Kind() != KindVarInt || v.BigInt() == nil {
		return "", kindErr(c.typ, v)
	}
	return v.BigInt().String(), nil
}

// localize swaps the decimal separator of a number for '.'; grouping
// characters are not accepted.
func localize(field string, sep rune) string {
	field = strings.TrimSpace(field)
	if sep == '.' {
		return field
	}
	return strings.Replace(field, string(sep), ".", 1)
}

func delocalize(s string, sep rune) string {
	if sep == '.' {
		return s
	}
	return strings.Replace(s, ".", string(sep), 1)
}

type floatCodec struct {
	typ *Type
	sep rune
}

func (c floatCodec) Type() *Type { return c.typ }

func (c floatCodec) bits() int {
	if c.typ.Kind == KindFloat {
		return 32
	}
	return 64
}

func (c floatCodec) Parse(field string) (Value, error) {
	if c.sep != '.' && strings.ContainsRune(strings.TrimSpace(field), '.') {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("unexpected '.' with decimal separator %q", c.sep))
	}
	f, err := strconv.ParseFloat(localize(field, c.sep), c.bits())
	if err != nil {
		return Value{}, parseErr(c.typ, field, err)
	}
	if c.typ.Kind == KindFloat {
		return Float(float32(f)), nil
	}
	return Double(f), nil
}

func (c floatCodec) Format(v Value) (string, error) {
	if v.Kind() != c.typ.Kind {
		return "", kindErr(c.typ, v)
	}
	return delocalize(formatFloat(v.Float64(), c.bits()), c.sep), nil
}

// formatFloat renders f in plain notation unless the exponent is extreme.
func formatFloat(f float64, bits int) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}

type decimalCodec struct {
	typ *Type
	sep rune
}

func (c decimalCodec) Type() *Type { return c.typ }

func (c decimalCodec) Parse(field string) (Value, error) {
	d, ok := new(inf.Dec).SetString(localize(field, c.sep))
	if !ok {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("not a decimal: %q", field))
	}
	return Decimal(d), nil
}

func (c decimalCodec) Format(v Value) (string, error) {
	if v.Kind() != KindDecimal || v.Dec() == nil {
		return "", kindErr(c.typ, v)
	}
	return delocalize(v.Dec().String(), c.sep), nil
}

// BoolStyle names the pair of tokens that spell true and false.
type BoolStyle struct {
	Name  string
	True  string
	False string
}

var (
	// BoolTrueFalse spells booleans TRUE and FALSE
	BoolTrueFalse = BoolStyle{Name: "TRUE_FALSE", True: "TRUE", False: "FALSE"}
	// Bool10 spells booleans 1 and 0
	Bool10 = BoolStyle{Name: "1_0", True: "1", False: "0"}
	// BoolTF spells booleans T and F
	BoolTF = BoolStyle{Name: "T_F", True: "T", False: "F"}
	// BoolYN spells booleans Y and N
	BoolYN = BoolStyle{Name: "Y_N", True: "Y", False: "N"}
	// BoolYesNo spells booleans YES and NO
	BoolYesNo = BoolStyle{Name: "YES_NO", True: "YES", False: "NO"}
)

var boolStyles = []BoolStyle{Bool10, BoolTF, BoolYN, BoolTrueFalse, BoolYesNo}

// ParseBoolStyle looks up a style by name, ignoring case.
func ParseBoolStyle(name string) (BoolStyle, error) {
	for _, s := range boolStyles {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return BoolStyle{}, errors.Newf(errors.ErrorTypeConfig,
		"bad boolean style %q, options are: %s", name, BoolStyleOptions())
}

// BoolStyleOptions lists the style names for usage messages.
func BoolStyleOptions() string {
	names := make([]string, len(boolStyles))
	for i, s := range boolStyles {
		names[i] = "'" + s.Name + "'"
	}
	return strings.Join(names, ", ")
}

type boolCodec struct {
	typ   *Type
	style BoolStyle
}

func (c boolCodec) Type() *Type { return c.typ }

func (c boolCodec) Parse(field string) (Value, error) {
	field = strings.TrimSpace(field)
	if strings.EqualFold(c.style.True, field) {
		return Boolean(true), nil
	}
	if strings.EqualFold(c.style.False, field) {
		return Boolean(false), nil
	}
	return Value{}, errors.Newf(errors.ErrorTypeParse,
		"Boolean was not TRUE (%s) or FALSE (%s)", c.style.True, c.style.False).
		WithDetail("field", field)
}

func (c boolCodec) Format(v Value) (string, error) {
	if v.Kind() != KindBoolean {
		return "", kindErr(c.typ, v)
	}
	if v.Bool() {
		return c.style.True, nil
	}
	return c.style.False, nil
}

type uuidCodec struct{ typ *Type }

func (c uuidCodec) Type() *Type { return c.typ }

func (c uuidCodec) Parse(field string) (Value, error) {
	u, err := gocql.ParseUUID(strings.TrimSpace(field))
	if err != nil {
		return Value{}, parseErr(c.typ, field, err)
	}
	if c.typ.Kind == KindTimeUUID {
		if u.Version() != 1 {
			return Value{}, parseErr(c.typ, field, fmt.Errorf("not a time-based uuid"))
		}
		return TimeUUID(u), nil
	}
	return UUID(u), nil
}

func (c uuidCodec) Format(v Value) (string, error) {
	if v.Kind() != c.typ.Kind {
		return "", kindErr(c.typ, v)
	}
	return v.UUIDValue().String(), nil
}

type inetCodec struct{ typ *Type }

func (c inetCodec) Type() *Type { return c.typ }

func (c inetCodec) Parse(field string) (Value, error) {
	ip := net.ParseIP(strings.TrimSpace(field))
	if ip == nil {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("not an IP address: %q", field))
	}
	return Inet(ip), nil
}

func (c inetCodec) Format(v Value) (string, error) {
	if v.Kind() != KindInet || v.IP() == nil {
		return "", kindErr(c.typ, v)
	}
	return v.IP().String(), nil
}

type blobCodec struct{ typ *Type }

func (c blobCodec) Type() *Type { return c.typ }

func (c blobCodec) Parse(field string) (Value, error) {
	s := strings.TrimSpace(field)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Value{}, parseErr(c.typ, field, err)
	}
	return Blob(b), nil
}

func (c blobCodec) Format(v Value) (string, error) {
	if v.Kind() != KindBlob {
		return "", kindErr(c.typ, v)
	}
	return "0x" + hex.EncodeToString(v.Bytes()), nil
}
