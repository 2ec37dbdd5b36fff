package codec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/DerMene/cassandra-loader/pkg/delim"
	"github.com/DerMene/cassandra-loader/pkg/errors"
)

const (
	collectionQuote  = '"'
	collectionEscape = '\\'
	mapKeyDelimiter  = ':'
)

// errNullElement is returned for an empty element inside a collection.
var errNullElement = fmt.Errorf("collections may not contain nulls")

type collectionCodec struct {
	typ        *Type
	begin, end byte
	elems      delim.Dialect
	entries    delim.Dialect
	key        Codec
	elem       Codec
}

func newCollectionCodec(t *Type, opts Options) (Codec, error) {
	if t.Elem == nil || (t.Kind == KindMap && t.Key == nil) {
		return nil, errors.Newf(errors.ErrorTypeCapability, "incomplete collection type %s", t)
	}
	c := &collectionCodec{
		typ:     t,
		begin:   '{',
		end:     '}',
		elems:   delim.Dialect{Delimiter: opts.CollectionDelimiter, Quote: collectionQuote, Escape: collectionEscape},
		entries: delim.Dialect{Delimiter: mapKeyDelimiter, Quote: collectionQuote, Escape: collectionEscape},
	}
	if t.Kind == KindList {
		c.begin, c.end = '[', ']'
	}

	var err error
	if c.elem, err = New(t.Elem, opts); err != nil {
		return nil, err
	}
	if t.Kind == KindMap {
		if c.key, err = New(t.Key, opts); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *collectionCodec) Type() *Type { return c.typ }

func (c *collectionCodec) Parse(field string) (Value, error) {
	s := strings.TrimSpace(field)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		unquoted, err := unescapeJava(s[1 : len(s)-1])
		if err != nil {
			return Value{}, parseErr(c.typ, field, err)
		}
		s = strings.TrimSpace(unquoted)
	}
	if s == "" || s[0] != c.begin {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("must begin with %c", c.begin))
	}
	if len(s) < 2 || s[len(s)-1] != c.end {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("must end with %c", c.end))
	}

	inner := s[1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return c.empty(), nil
	}
	if c.typ.Kind == KindMap {
		return c.parseMap(field, inner)
	}

	parts, err := c.elems.Split(inner)
	if err != nil {
		return Value{}, parseErr(c.typ, field, err)
	}
	elems := make([]Value, 0, len(parts))
	for _, p := range parts {
		if p.Null {
			return Value{}, parseErr(c.typ, field, errNullElement)
		}
		v, err := c.elem.Parse(p.Text)
		if err != nil {
			return Value{}, err
		}
		if c.typ.Kind == KindSet && containsValue(elems, v) {
			continue
		}
		elems = append(elems, v)
	}
	if c.typ.Kind == KindSet {
		return Set(elems...), nil
	}
	return List(elems...), nil
}

func (c *collectionCodec) parseMap(field, inner string) (Value, error) {
	raw, err := c.elems.SplitRaw(inner)
	if err != nil {
		return Value{}, parseErr(c.typ, field, err)
	}
	keys := make([]Value, 0, len(raw))
	vals := make([]Value, 0, len(raw))
	for _, entry := range raw {
		kv, err := c.entries.Split(entry)
		if err != nil {
			return Value{}, parseErr(c.typ, field, err)
		}
		if len(kv) != 2 {
			return Value{}, parseErr(c.typ, field, fmt.Errorf("map entry %q is not key%cvalue", strings.TrimSpace(entry), mapKeyDelimiter))
		}
		if kv[0].Null || kv[1].Null {
			return Value{}, parseErr(c.typ, field, errNullElement)
		}
		k, err := c.key.Parse(kv[0].Text)
		if err != nil {
			return Value{}, err
		}
		v, err := c.elem.Parse(kv[1].Text)
		if err != nil {
			return Value{}, err
		}
		if i := indexOfValue(keys, k); i >= 0 {
			vals[i] = v
			continue
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	return Map(keys, vals), nil
}

func (c *collectionCodec) empty() Value {
	switch c.typ.Kind {
	case KindSet:
		return Set()
	case KindList:
		return List()
	default:
		return Map(nil, nil)
	}
}

func (c *collectionCodec) Format(v Value) (string, error) {
	if v.Kind() != c.typ.Kind {
		return "", kindErr(c.typ, v)
	}
	if c.typ.Kind == KindMap {
		return c.formatMap(v)
	}

	parts := make([]string, len(v.Elems()))
	for i, e := range v.Elems() {
		if e.IsNull() {
			return "", errNullElement
		}
		s, err := c.elem.Format(e)
		if err != nil {
			return "", err
		}
		parts[i] = c.quoteElem(s)
	}
	return string(c.begin) + c.elems.Join(parts) + string(c.end), nil
}

func (c *collectionCodec) formatMap(v Value) (string, error) {
	keys, vals := v.Keys(), v.Elems()
	if len(keys) != len(vals) {
		return "", errors.Newf(errors.ErrorTypeInternal, "map has %d keys and %d values", len(keys), len(vals))
	}

	type entry struct{ key, val string }
	entries := make([]entry, len(keys))
	for i := range keys {
		if keys[i].IsNull() || vals[i].IsNull() {
			return "", errNullElement
		}
		k, err := c.key.Format(keys[i])
		if err != nil {
			return "", err
		}
		val, err := c.elem.Format(vals[i])
		if err != nil {
			return "", err
		}
		entries[i] = entry{key: c.quoteEntryPart(k), val: c.quoteEntryPart(val)}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = e.key + string(mapKeyDelimiter) + e.val
	}
	return string(c.begin) + c.elems.Join(parts) + string(c.end), nil
}

// quoteElem quotes an element that would not survive Split, including the
// empty string, which would otherwise read back as null.
func (c *collectionCodec) quoteElem(s string) string {
	if s == "" || c.elems.NeedsQuote(s) {
		return c.elems.QuoteField(s)
	}
	return s
}

// quoteEntryPart quotes a map key or value that would be split by either
// the element or the key delimiter.
func (c *collectionCodec) quoteEntryPart(s string) string {
	if s == "" || c.elems.NeedsQuote(s) || c.entries.NeedsQuote(s) {
		return c.entries.QuoteField(s)
	}
	return s
}

func containsValue(vals []Value, v Value) bool {
	return indexOfValue(vals, v) >= 0
}

func indexOfValue(vals []Value, v Value) int {
	for i := range vals {
		if vals[i].Equal(v) {
			return i
		}
	}
	return -1
}

// unescapeJava resolves backslash escapes as written by Java string
// escaping: \t \b \n \r \f \' \" \\ and \uXXXX.
func unescapeJava(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' || i+1 == len(s) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch s[i] {
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'f':
			b.WriteByte('\f')
		case '\'', '"', '\\':
			b.WriteByte(s[i])
		case 'u':
			if i+5 > len(s) {
				return "", fmt.Errorf("truncated unicode escape")
			}
			r, err := strconv.ParseUint(s[i+1:i+5], 16, 32)
			if err != nil {
				return "", fmt.Errorf("bad unicode escape %q", s[i-1:i+5])
			}
			b.WriteRune(rune(r))
			i += 4
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}
