// Package wire implements the smk line protocol: one Message per line of
// UTF-8 text, terminated by '\n'.
//
// A line looks like
//
//	{"type":"READY","client":"c1","dish":"Pizza","ts":1,"lamport":2,"text":"queued"}
//
// Keys appear only when the field is present (non-empty string, non-zero
// timestamp). Decoding is deliberately permissive: a bad line must never
// bring down a long-lived connection loop, so unknown keys are ignored,
// unparseable integers become 0 and an unknown type leaves Kind empty.
// Callers check Kind before dispatching.
package wire

import (
	"errors"
	"strconv"
	"strings"

	"github.com/smartkitchen/smk/pkg/model"
)

// ErrEmbeddedNewline is returned for messages whose text fields contain a
// line terminator, which would break framing.
var ErrEmbeddedNewline = errors.New("wire: field contains a line terminator")

// Wire keys, in encoding order.
const (
	keyType    = "type"
	keyClient  = "client"
	keyDish    = "dish"
	keyTS      = "ts"
	keyLamport = "lamport"
	keyText    = "text"
)

// Encode renders m as a single line without the trailing newline.
func Encode(m model.Message) string {
	var b strings.Builder
	b.WriteByte('{')
	writeString(&b, keyType, string(m.Kind))
	if m.ClientID != "" {
		b.WriteByte(',')
		writeString(&b, keyClient, m.ClientID)
	}
	if m.Dish != "" {
		b.WriteByte(',')
		writeString(&b, keyDish, m.Dish)
	}
	if m.SenderTS != 0 {
		b.WriteByte(',')
		writeInt(&b, keyTS, m.SenderTS)
	}
	if m.FusedTS != 0 {
		b.WriteByte(',')
		writeInt(&b, keyLamport, m.FusedTS)
	}
	if m.Note != "" {
		b.WriteByte(',')
		writeString(&b, keyText, m.Note)
	}
	b.WriteByte('}')
	return b.String()
}

// Validate reports whether m can be framed as a single line.
func Validate(m model.Message) error {
	for _, s := range []string{string(m.Kind), m.ClientID, m.Dish, m.Note} {
		if strings.ContainsAny(s, "\r\n") {
			return ErrEmbeddedNewline
		}
	}
	return nil
}

// Decode parses one line. It never fails; see the package doc for how
// malformed input is treated.
func Decode(line string) model.Message {
	var m model.Message
	s := strings.TrimSpace(line)
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		s = s[1 : len(s)-1]
	}
	for _, part := range splitFields(s) {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		switch unquote(k) {
		case keyType:
			m.Kind = model.ParseKind(unquote(v))
		case keyClient:
			m.ClientID = unquote(v)
		case keyDish:
			m.Dish = unquote(v)
		case keyTS:
			m.SenderTS = parseInt(v)
		case keyLamport:
			m.FusedTS = parseInt(v)
		case keyText:
			m.Note = unquote(v)
		}
	}
	return m
}

func writeString(b *strings.Builder, key, val string) {
	b.WriteByte('"')
	b.WriteString(key)
	b.WriteString(`":"`)
	for i := 0; i < len(val); i++ {
		if c := val[i]; c == '\\' || c == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(val[i])
	}
	b.WriteByte('"')
}

func writeInt(b *strings.Builder, key string, val int64) {
	b.WriteByte('"')
	b.WriteString(key)
	b.WriteString(`":`)
	b.WriteString(strconv.FormatInt(val, 10))
}

// splitFields splits on commas that are not inside a quoted string.
func splitFields(s string) []string {
	var parts []string
	inQuote, escaped := false, false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inQuote:
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case c == ',' && !inQuote:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// unquote trims whitespace, drops one pair of surrounding quotes and
// reverses backslash escaping.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// parseInt keeps only digits and '-' before parsing, so `"12"` and ` 12 `
// both read as 12. Anything still unparseable is 0.
func parseInt(s string) int64 {
	digits := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, s)
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
