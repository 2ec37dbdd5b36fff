// Package delim splits delimited text lines into fields and quotes fields
// back for output.
//
// A Dialect names three characters: the field delimiter, the quote character
// and the escape character. Inside a quoted field the escape character makes
// the following quote or escape character literal, and a doubled quote is a
// literal quote. Unquoted fields are trimmed of surrounding whitespace, and an
// unquoted empty field is reported as null so callers can tell it apart from
// the quoted empty string "".
package delim

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultDelimiter separates fields when no delimiter is configured
	DefaultDelimiter = ','
	// DefaultQuote encloses fields containing special characters
	DefaultQuote = '"'
	// DefaultEscape escapes quote characters inside quoted fields
	DefaultEscape = '\\'
)

// Dialect describes how fields are separated and quoted.
type Dialect struct {
	Delimiter rune
	Quote     rune
	Escape    rune
}

// Field is one raw field of a line.
type Field struct {
	Text string
	// Null is set for an unquoted empty field
	Null bool
	// Quoted is set when the field was enclosed in quote characters
	Quoted bool
}

// DefaultDialect returns the comma/double-quote/backslash dialect.
func DefaultDialect() Dialect {
	return Dialect{Delimiter: DefaultDelimiter, Quote: DefaultQuote, Escape: DefaultEscape}
}

// ParseDelimiter converts a configured delimiter string to a rune. The
// two-character sequence `\t` selects a tab.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return DefaultDelimiter, nil
	case `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r, nil
}

// ParseChar converts a configured quote or escape string to a rune.
func ParseChar(name, s string, def rune) (rune, error) {
	if s == "" {
		return def, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, fmt.Errorf("bad %s parameter, must be single character: %q", name, s)
	}
	return r, nil
}

// Validate checks that the three characters are distinct.
func (d Dialect) Validate() error {
	if d.Delimiter == d.Quote {
		return fmt.Errorf("delimiter and quote must differ")
	}
	if d.Delimiter == d.Escape {
		return fmt.Errorf("delimiter and escape must differ")
	}
	if d.Delimiter == '\n' || d.Quote == '\n' || d.Escape == '\n' {
		return fmt.Errorf("newline cannot be a delimiter, quote or escape")
	}
	return nil
}

// NeedsQuote reports whether s must be quoted to survive Split unchanged.
func (d Dialect) NeedsQuote(s string) bool {
	if s == "" {
		return false
	}
	if strings.TrimSpace(s) != s {
		return true
	}
	for _, r := range s {
		if r == d.Delimiter || r == d.Quote || r == d.Escape || r == '\n' || r == '\r' {
			return true
		}
	}
	return false
}

// QuoteField encloses s in quote characters, escaping embedded quote and escape
// characters. When the quote and escape characters are equal the quote is
// doubled.
func (d Dialect) QuoteField(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteRune(d.Quote)
	for _, r := range s {
		if r == d.Quote || (r == d.Escape && d.Escape != d.Quote) {
			b.WriteRune(d.Escape)
		}
		b.WriteRune(r)
	}
	b.WriteRune(d.Quote)
	return b.String()
}

// QuoteIfNeeded quotes s only when NeedsQuote reports true.
func (d Dialect) QuoteIfNeeded(s string) string {
	if d.NeedsQuote(s) {
		return d.QuoteField(s)
	}
	return s
}

// Join formats fields separated by the delimiter without quoting.
func (d Dialect) Join(fields []string) string {
	return strings.Join(fields, string(d.Delimiter))
}
