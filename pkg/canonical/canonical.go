// Package canonical renders values in the exact text form produced by a
// default json.dumps call: ", " and ": " separators, ASCII-only output with
// lowercase \uXXXX escapes, and repr-style floats. Hash rules that predate
// this module were defined over that text, so the byte layout is fixed.
package canonical

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned when a string value cannot be rendered as text.
var ErrInvalidUTF8 = errors.New("canonical: string is not valid UTF-8")

// UnsupportedTypeError reports a value with no canonical text form.
type UnsupportedTypeError struct {
	Value any
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("canonical: unsupported type %T", e.Value)
}

// Field is one key/value pair of an Object.
type Field struct {
	Key   string
	Value any
}

// Object is a JSON object whose fields are emitted in insertion order
// unless encoded with EncodeSorted.
type Object []Field

// Encode renders v keeping Object field order. Plain maps have no order of
// their own and are always emitted with sorted keys.
func Encode(v any) (string, error) {
	var b strings.Builder
	if err := encode(&b, v, false); err != nil {
		return "", err
	}
	return b.String(), nil
}

// EncodeSorted renders v with the keys of every object sorted.
func EncodeSorted(v any) (string, error) {
	var b strings.Builder
	if err := encode(&b, v, true); err != nil {
		return "", err
	}
	return b.String(), nil
}

// FormatFloat renders f the way repr(float) does: shortest round-trip
// digits, a trailing ".0" for integral values and exponent notation outside
// [1e-4, 1e16).
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

func encode(b *strings.Builder, v any, sorted bool) error {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if val {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		return writeString(b, val)
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case float64:
		b.WriteString(FormatFloat(val))
	case Object:
		fields := val
		if sorted {
			fields = make(Object, len(val))
			copy(fields, val)
			sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
		}
		return writeObject(b, fields, sorted)
	case map[string]any:
		fields := make(Object, 0, len(val))
		for k, fv := range val {
			fields = append(fields, Field{Key: k, Value: fv})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
		return writeObject(b, fields, sorted)
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := encode(b, item, sorted); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		return &UnsupportedTypeError{Value: v}
	}
	return nil
}

func writeObject(b *strings.Builder, fields Object, sorted bool) error {
	b.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeString(b, f.Key); err != nil {
			return err
		}
		b.WriteString(": ")
		if err := encode(b, f.Value, sorted); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

func writeString(b *strings.Builder, s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			switch {
			case r >= 0x20 && r <= 0x7e:
				b.WriteRune(r)
			case r < 0x10000:
				writeEscape(b, r)
			default:
				r -= 0x10000
				writeEscape(b, 0xd800|((r>>10)&0x3ff))
				writeEscape(b, 0xdc00|(r&0x3ff))
			}
		}
	}
	b.WriteByte('"')
	return nil
}

func writeEscape(b *strings.Builder, r rune) {
	b.WriteString(`\u`)
	b.WriteByte(hexDigits[(r>>12)&0xf])
	b.WriteByte(hexDigits[(r>>8)&0xf])
	b.WriteByte(hexDigits[(r>>4)&0xf])
	b.WriteByte(hexDigits[r&0xf])
}
