package codec

import (
	"strings"

	"github.com/DerMene/cassandra-loader/pkg/errors"
)

// Schema is the parsed form of "keyspace.table(col1, col2, ...)".
type Schema struct {
	Keyspace string
	Table    string
	// Columns lists the column names in line order
	Columns []string
}

// ParseSchema parses a schema string. Unquoted identifiers are lowercased;
// identifiers in double quotes keep their case.
func ParseSchema(s string) (*Schema, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, schemaErr(s, "expected keyspace.table(col1, col2, ...)")
	}

	names, err := splitIdentifiers(s[:open], '.')
	if err != nil {
		return nil, schemaErr(s, err.Error())
	}
	if len(names) != 2 || names[0] == "" || names[1] == "" {
		return nil, schemaErr(s, "table must be qualified as keyspace.table")
	}

	cols, err := splitIdentifiers(s[open+1:len(s)-1], ',')
	if err != nil {
		return nil, schemaErr(s, err.Error())
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c == "" {
			return nil, schemaErr(s, "empty column name")
		}
		if seen[c] {
			return nil, schemaErr(s, "duplicate column "+c)
		}
		seen[c] = true
	}
	return &Schema{Keyspace: names[0], Table: names[1], Columns: cols}, nil
}

// QualifiedTable returns keyspace.table quoted as needed for CQL.
func (s *Schema) QualifiedTable() string {
	return QuoteIdentifier(s.Keyspace) + "." + QuoteIdentifier(s.Table)
}

// ParseColumnList parses a comma separated list of identifiers such as the
// skip column option.
func ParseColumnList(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	cols, err := splitIdentifiers(s, ',')
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "bad column list")
	}
	return cols, nil
}

// QuoteIdentifier double-quotes an identifier unless it is plain lowercase.
func QuoteIdentifier(id string) string {
	plain := id != ""
	for i, r := range id {
		if !(r >= 'a' && r <= 'z' || r == '_' || (i > 0 && r >= '0' && r <= '9')) {
			plain = false
			break
		}
	}
	if plain {
		return id
	}
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func splitIdentifiers(s string, sep byte) ([]string, error) {
	var (
		out []string
		cur strings.Builder
		// quoted is set once the current identifier opened a quote
		quoted  bool
		inQuote bool
	)
	flush := func() {
		id := strings.TrimSpace(cur.String())
		if !quoted {
			id = strings.ToLower(id)
		}
		out = append(out, id)
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote && c == '"' && i+1 < len(s) && s[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			inQuote = !inQuote
			quoted = true
		case !inQuote && c == sep:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, errors.New(errors.ErrorTypeConfig, "unterminated quoted identifier")
	}
	flush()
	return out, nil
}

func schemaErr(s, reason string) error {
	return errors.Newf(errors.ErrorTypeConfig, "bad schema %q: %s", s, reason)
}
