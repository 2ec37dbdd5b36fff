package codec

import (
	"fmt"
	"strings"

	"github.com/DerMene/cassandra-loader/pkg/errors"
)

// Kind enumerates the column value kinds the loader understands.
type Kind uint8

const (
	KindText Kind = iota
	KindInt
	KindBigInt
	KindSmallInt
	KindTinyInt
	KindVarInt
	KindFloat
	KindDouble
	KindDecimal
	KindBoolean
	KindTimestamp
	KindDate
	KindTime
	KindUUID
	KindTimeUUID
	KindInet
	KindBlob
	KindSet
	KindList
	KindMap
)

var kindNames = map[Kind]string{
	KindText:      "text",
	KindInt:       "int",
	KindBigInt:    "bigint",
	KindSmallInt:  "smallint",
	KindTinyInt:   "tinyint",
	KindVarInt:    "varint",
	KindFloat:     "float",
	KindDouble:    "double",
	KindDecimal:   "decimal",
	KindBoolean:   "boolean",
	KindTimestamp: "timestamp",
	KindDate:      "date",
	KindTime:      "time",
	KindUUID:      "uuid",
	KindTimeUUID:  "timeuuid",
	KindInet:      "inet",
	KindBlob:      "blob",
	KindSet:       "set",
	KindList:      "list",
	KindMap:       "map",
}

// String returns the CQL name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsCollection reports whether values of this kind hold elements.
func (k Kind) IsCollection() bool {
	return k == KindSet || k == KindList || k == KindMap
}

// scalarKinds maps CQL type names to kinds.
var scalarKinds = map[string]Kind{
	"ascii":     KindText,
	"text":      KindText,
	"varchar":   KindText,
	"int":       KindInt,
	"bigint":    KindBigInt,
	"counter":   KindBigInt,
	"smallint":  KindSmallInt,
	"tinyint":   KindTinyInt,
	"varint":    KindVarInt,
	"float":     KindFloat,
	"double":    KindDouble,
	"decimal":   KindDecimal,
	"boolean":   KindBoolean,
	"timestamp": KindTimestamp,
	"date":      KindDate,
	"time":      KindTime,
	"uuid":      KindUUID,
	"timeuuid":  KindTimeUUID,
	"inet":      KindInet,
	"blob":      KindBlob,
}

// Type is a parsed CQL column type.
type Type struct {
	Kind Kind
	// Key is the key type of a map
	Key *Type
	// Elem is the element type of a set or list, or the value type of a map
	Elem *Type
	// Name is the CQL name as written in the schema
	Name string
}

// String renders the type in CQL syntax.
func (t *Type) String() string {
	switch t.Kind {
	case KindSet, KindList:
		return fmt.Sprintf("%s<%s>", t.Kind, t.Elem)
	case KindMap:
		return fmt.Sprintf("map<%s, %s>", t.Key, t.Elem)
	}
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

// ParseType parses a CQL type such as "int", "set<text>" or
// "frozen<map<text, int>>".
func ParseType(s string) (*Type, error) {
	p := &typeParser{src: strings.ToLower(strings.TrimSpace(s))}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, errors.Newf(errors.ErrorTypeCapability, "unexpected trailing characters in type %q", s)
	}
	return t, nil
}

// MustParseType is ParseType panicking on error; for tests and constants.
func MustParseType(s string) *Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '<' || c == '>' || c == ',' || c == ' ' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *typeParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return errors.Newf(errors.ErrorTypeCapability, "expected %q in type %q", c, p.src)
	}
	p.pos++
	return nil
}

func (p *typeParser) parse() (*Type, error) {
	name := p.ident()
	if name == "" {
		return nil, errors.Newf(errors.ErrorTypeCapability, "empty type in %q", p.src)
	}

	switch name {
	case "frozen":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		inner, err := p.parse()
		if err != nil {
			return nil, err
		}
		return inner, p.expect('>')
	case "set", "list":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		elem, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		kind := KindSet
		if name == "list" {
			kind = KindList
		}
		return &Type{Kind: kind, Elem: elem, Name: name}, nil
	case "map":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		key, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		val, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		return &Type{Kind: KindMap, Key: key, Elem: val, Name: name}, nil
	}

	kind, ok := scalarKinds[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeCapability, "unsupported CQL type %q", name)
	}
	return &Type{Kind: kind, Name: name}, nil
}
