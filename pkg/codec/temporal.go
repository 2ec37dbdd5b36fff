package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"
	day        = 24 * time.Hour
)

type timestampCodec struct {
	typ    *Type
	layout string
}

func (c timestampCodec) Type() *Type { return c.typ }

func (c timestampCodec) Parse(field string) (Value, error) {
	s := strings.TrimSpace(field)
	if isInteger(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, parseErr(c.typ, field, err)
		}
		return Timestamp(time.UnixMilli(ms).UTC()), nil
	}
	t, err := time.Parse(c.layout, s)
	if err != nil {
		return Value{}, parseErr(c.typ, field, err)
	}
	return Timestamp(t), nil
}

func (c timestampCodec) Format(v Value) (string, error) {
	if v.Kind() != KindTimestamp {
		return "", kindErr(c.typ, v)
	}
	return v.Time().UTC().Format(c.layout), nil
}

type dateCodec struct{ typ *Type }

func (c dateCodec) Type() *Type { return c.typ }

func (c dateCodec) Parse(field string) (Value, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(field))
	if err != nil {
		return Value{}, parseErr(c.typ, field, err)
	}
	return Date(t), nil
}

func (c dateCodec) Format(v Value) (string, error) {
	if v.Kind() != KindDate {
		return "", kindErr(c.typ, v)
	}
	return v.Time().UTC().Format(dateLayout), nil
}

type timeCodec struct{ typ *Type }

func (c timeCodec) Type() *Type { return c.typ }

// Parse accepts hh:mm:ss with an optional fraction of up to nine digits.
func (c timeCodec) Parse(field string) (Value, error) {
	s := strings.TrimSpace(field)
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("expected hh:mm:ss"))
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("bad hour %q", parts[0]))
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("bad minute %q", parts[1]))
	}
	secPart, fracPart, _ := strings.Cut(parts[2], ".")
	sec, err := strconv.Atoi(secPart)
	if err != nil || sec < 0 || sec > 59 {
		return Value{}, parseErr(c.typ, field, fmt.Errorf("bad second %q", secPart))
	}
	var nanos int64
	if fracPart != "" {
		if len(fracPart) > 9 || !isInteger(fracPart) {
			return Value{}, parseErr(c.typ, field, fmt.Errorf("bad fraction %q", fracPart))
		}
		nanos, _ = strconv.ParseInt(fracPart+strings.Repeat("0", 9-len(fracPart)), 10, 64)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(nanos)
	return TimeOfDay(d), nil
}

func (c timeCodec) Format(v Value) (string, error) {
	if v.Kind() != KindTime {
		return "", kindErr(c.typ, v)
	}
	d := v.Duration()
	if d < 0 || d >= day {
		return "", fmt.Errorf("time of day out of range: %s", d)
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%09d", int64(h), int64(m), int64(s), int64(d)), nil
}

func isInteger(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// javaLayoutTokens maps runs of java.text.SimpleDateFormat pattern letters
// to Go layout fragments.
var javaLayoutTokens = map[string]string{
	"yyyy": "2006", "yy": "06", "y": "2006",
	"MMMM": "January", "MMM": "Jan", "MM": "01", "M": "1",
	"dd": "02", "d": "2",
	"EEEE": "Monday", "EEE": "Mon",
	"HH": "15", "H": "15",
	"hh": "03", "h": "3",
	"mm": "04", "m": "4",
	"ss": "05", "s": "5",
	"a":   "PM",
	"XXX": "Z07:00", "XX": "Z0700", "X": "Z07",
	"ZZZ": "-0700", "ZZ": "-0700", "Z": "-0700",
	"zzz": "MST", "zz": "MST", "z": "MST",
}

// TimestampLayout converts a configured date format to a Go layout. Formats
// already written as Go layouts (containing "2006") pass through; anything
// else is read as a SimpleDateFormat pattern such as "yyyy-MM-dd HH:mm:ss".
func TimestampLayout(format string) string {
	if format == "" {
		return DefaultTimestampLayout
	}
	if strings.Contains(format, "2006") {
		return format
	}

	var b strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); {
		r := runes[i]
		if r == '\'' {
			j := i + 1
			for j < len(runes) && runes[j] != '\'' {
				b.WriteRune(runes[j])
				j++
			}
			i = j + 1
			continue
		}
		if !isPatternLetter(r) {
			b.WriteRune(r)
			i++
			continue
		}
		j := i
		for j < len(runes) && runes[j] == r {
			j++
		}
		run := string(runes[i:j])
		switch {
		case r == 'S':
			b.WriteString(strings.Repeat("0", len(run)))
		default:
			if frag, ok := javaLayoutTokens[run]; ok {
				b.WriteString(frag)
			} else if frag, ok := javaLayoutTokens[string(r)]; ok {
				b.WriteString(frag)
			} else {
				b.WriteString(run)
			}
		}
		i = j
	}
	return b.String()
}

func isPatternLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
