package delim

import (
	"fmt"
	"strings"
	"unicode"
)

// Split breaks line into fields. It fails only on an unterminated quoted
// field. Characters following a closing quote up to the next delimiter are
// kept as part of the field.
func (d Dialect) Split(line string) ([]Field, error) {
	runes := []rune(line)
	n := len(runes)
	fields := make([]Field, 0, 16)

	i := 0
	for {
		for i < n && runes[i] != d.Delimiter && d.isSpace(runes[i]) {
			i++
		}

		var (
			b      strings.Builder
			quoted bool
		)
		if i < n && runes[i] == d.Quote {
			quoted = true
			i++
			closed := false
			for i < n {
				r := runes[i]
				switch {
				case r == d.Escape && d.Escape != d.Quote && i+1 < n && (runes[i+1] == d.Quote || runes[i+1] == d.Escape):
					b.WriteRune(runes[i+1])
					i += 2
				case r == d.Quote && i+1 < n && runes[i+1] == d.Quote:
					b.WriteRune(d.Quote)
					i += 2
				case r == d.Quote:
					closed = true
					i++
				default:
					b.WriteRune(r)
					i++
				}
				if closed {
					break
				}
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quoted field %d", len(fields)+1)
			}
			start := i
			for i < n && runes[i] != d.Delimiter {
				i++
			}
			if rest := strings.TrimRightFunc(string(runes[start:i]), d.isSpace); rest != "" {
				b.WriteString(rest)
			}
			fields = append(fields, Field{Text: b.String(), Quoted: quoted})
		} else {
			start := i
			for i < n && runes[i] != d.Delimiter {
				i++
			}
			text := strings.TrimRightFunc(string(runes[start:i]), d.isSpace)
			fields = append(fields, Field{Text: text, Null: text == ""})
		}

		if i >= n {
			return fields, nil
		}
		// skip the delimiter
		i++
	}
}

// SplitStrings is Split returning plain strings; null fields become "".
func (d Dialect) SplitStrings(line string) ([]string, error) {
	fields, err := d.Split(line)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Text
	}
	return out, nil
}

func (d Dialect) isSpace(r rune) bool {
	return r != d.Delimiter && r != '\n' && unicode.IsSpace(r)
}

// SplitRaw breaks line at unquoted delimiters and returns each segment as
// written, quotes and escapes included.
func (d Dialect) SplitRaw(line string) ([]string, error) {
	runes := []rune(line)
	var (
		out     []string
		start   int
		inQuote bool
	)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuote && r == d.Escape && d.Escape != d.Quote && i+1 < len(runes):
			i++
		case r == d.Quote:
			inQuote = !inQuote
		case !inQuote && r == d.Delimiter:
			out = append(out, string(runes[start:i]))
			start = i + 1
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quoted field %d", len(out)+1)
	}
	return append(out, string(runes[start:])), nil
}
