// Package codec converts between text fields and typed column values.
//
// Every CQL column type gets a Codec that parses a raw field into a Value
// and formats a Value back into text. A Chain composes one codec per column
// of a schema string such as "ks.table(a, b, c)", in line order, and marks
// skip columns that are read from the input but never bound.
//
// Codecs never see null fields: the record layer maps empty and null-sentinel
// fields to null values before a codec runs, and renders null values itself.
package codec

import (
	"github.com/DerMene/cassandra-loader/pkg/errors"
)

// Codec parses and formats the values of one column type.
type Codec interface {
	// Parse converts a raw, non-null field into a value
	Parse(field string) (Value, error)
	// Format renders a non-null value as text
	Format(v Value) (string, error)
	// Type returns the column type handled by the codec
	Type() *Type
}

// Options configure locale and style dependent codecs.
type Options struct {
	// DecimalSeparator is '.' or ','
	DecimalSeparator rune
	// BoolStyle selects the true/false tokens
	BoolStyle BoolStyle
	// TimestampLayout is a Go time layout for timestamp columns
	TimestampLayout string
	// CollectionDelimiter separates collection elements
	CollectionDelimiter rune
}

// DefaultTimestampLayout is used when no date format is configured.
const DefaultTimestampLayout = "2006-01-02 15:04:05.000-0700"

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		DecimalSeparator:    '.',
		BoolStyle:           BoolTrueFalse,
		TimestampLayout:     DefaultTimestampLayout,
		CollectionDelimiter: ',',
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.DecimalSeparator == 0 {
		o.DecimalSeparator = def.DecimalSeparator
	}
	if o.BoolStyle.True == "" {
		o.BoolStyle = def.BoolStyle
	}
	if o.TimestampLayout == "" {
		o.TimestampLayout = def.TimestampLayout
	}
	if o.CollectionDelimiter == 0 {
		o.CollectionDelimiter = def.CollectionDelimiter
	}
	return o
}

// New returns the codec for t.
func New(t *Type, opts Options) (Codec, error) {
	opts = opts.withDefaults()
	switch t.Kind {
	case KindText:
		return textCodec{typ: t}, nil
	case KindInt, KindBigInt, KindSmallInt, KindTinyInt:
		return intCodec{typ: t}, nil
	case KindVarInt:
		return varIntCodec{typ: t}, nil
	case KindFloat, KindDouble:
		return floatCodec{typ: t, sep: opts.DecimalSeparator}, nil
	case KindDecimal:
		return decimalCodec{typ: t, sep: opts.DecimalSeparator}, nil
	case KindBoolean:
		return boolCodec{typ: t, style: opts.BoolStyle}, nil
	case KindTimestamp:
		return timestampCodec{typ: t, layout: opts.TimestampLayout}, nil
	case KindDate:
		return dateCodec{typ: t}, nil
	case KindTime:
		return timeCodec{typ: t}, nil
	case KindUUID, KindTimeUUID:
		return uuidCodec{typ: t}, nil
	case KindInet:
		return inetCodec{typ: t}, nil
	case KindBlob:
		return blobCodec{typ: t}, nil
	case KindSet, KindList, KindMap:
		return newCollectionCodec(t, opts)
	default:
		return nil, errors.Newf(errors.ErrorTypeCapability, "no codec for type %s", t)
	}
}

// parseErr builds the error returned for a malformed field.
func parseErr(t *Type, field string, cause error) error {
	return errors.Wrap(cause, errors.ErrorTypeParse, "invalid "+t.String()+" value").
		WithDetail("field", field)
}

// kindErr builds the error returned when a value does not match the codec.
func kindErr(t *Type, v Value) error {
	return errors.Newf(errors.ErrorTypeInternal, "cannot format %s value as %s", v.Kind(), t)
}
