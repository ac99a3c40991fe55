package startup

import (
	"errors"
	"strings"
)

// ChunkSize is the number of message bytes carried by a single client
// message.
const ChunkSize = 20

// Verb is the command word at the start of a startup notification message.
type Verb int

const (
	VerbNew Verb = iota
	VerbChange
	VerbRemove
)

var verbNames = []string{"new", "change", "remove"}

func (v Verb) String() string {
	return verbNames[v]
}

// Command is a parsed startup notification message.
type Command struct {
	Verb   Verb
	Fields Fields

	// Set when TIMESTAMP was taken from the ID rather than the message.
	derivedTimestamp bool
}

// Parse errors
var (
	ErrUnknownVerb       = errors.New("unknown message verb")
	ErrUnterminatedQuote = errors.New("unterminated quote")
	ErrMissingID         = errors.New("missing ID field")
)

const timeMarker = "_TIME"

// ParseCommand parses a complete startup notification message of the form
// "verb: KEY=value KEY="quoted value" ...".
func ParseCommand(msg string) (Command, error) {
	cmd := Command{}
	verb, rest, ok := strings.Cut(msg, ":")
	if !ok {
		return cmd, ErrUnknownVerb
	}
	switch verb {
	case "new":
		cmd.Verb = VerbNew
	case "change":
		cmd.Verb = VerbChange
	case "remove":
		cmd.Verb = VerbRemove
	default:
		return cmd, ErrUnknownVerb
	}

	for {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			break
		}
		key, value, remaining, err := nextPair(rest)
		if err != nil {
			return Command{}, err
		}
		rest = remaining
		if field, ok := LookupField(key); ok {
			cmd.Fields.Set(field, value)
		}
	}

	id, ok := cmd.Fields.Get(FieldID)
	if !ok {
		return Command{}, ErrMissingID
	}
	if !cmd.Fields.Has(FieldTimestamp) {
		if ts := timestampFromID(id); ts != "" {
			cmd.Fields.Set(FieldTimestamp, ts)
			cmd.derivedTimestamp = true
		}
	}
	return cmd, nil
}

// nextPair reads a single KEY=value token from the start of s. A token with no
// '=' yields an empty key, which matches no field.
func nextPair(s string) (key, value, rest string, err error) {
	i := 0
	for i < len(s) && s[i] != '=' && s[i] != ' ' {
		i++
	}
	key = s[:i]
	if i == len(s) || s[i] == ' ' {
		return "", "", s[i:], nil
	}
	i++ // '='

	var b strings.Builder
	quoted := false
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 == len(s) {
				return "", "", "", ErrUnterminatedQuote
			}
			i++
			b.WriteByte(s[i])
		case c == '"':
			quoted = !quoted
		case c == ' ' && !quoted:
			return key, b.String(), s[i:], nil
		default:
			b.WriteByte(c)
		}
	}
	if quoted {
		return "", "", "", ErrUnterminatedQuote
	}
	return key, b.String(), "", nil
}

// timestampFromID extracts the decimal digits following the _TIME marker in
// a startup ID, if any.
func timestampFromID(id string) string {
	idx := strings.Index(id, timeMarker)
	if idx < 0 {
		return ""
	}
	digits := id[idx+len(timeMarker):]
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	return digits[:end]
}

// EncodeCommand serializes the given fields as a message with the given verb.
// Remove messages only ever carry the ID.
func EncodeCommand(verb Verb, f *Fields) string {
	var b strings.Builder
	b.WriteString(verb.String())
	b.WriteByte(':')
	for _, k := range f.Keys() {
		if verb == VerbRemove && k != FieldID {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(k.String())
		b.WriteByte('=')
		b.WriteString(quoteValue(f.values[k]))
	}
	return b.String()
}

// quoteValue wraps values containing spaces, quotes or backslashes in quotes
// and escapes the quotes and backslashes within.
func quoteValue(v string) string {
	if !strings.ContainsAny(v, " \"\\") {
		return v
	}
	var b strings.Builder
	b.Grow(len(v) + 4)
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		if v[i] == '"' || v[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(v[i])
	}
	b.WriteByte('"')
	return b.String()
}

// Chunks splits a message into NUL terminated, zero padded client message
// payloads. A message whose length is a multiple of ChunkSize gets a final
// all-zero chunk so the receiver can tell it has ended.
func Chunks(msg string) [][ChunkSize]byte {
	n := len(msg)/ChunkSize + 1
	chunks := make([][ChunkSize]byte, n)
	for i := range chunks {
		start := i * ChunkSize
		if start < len(msg) {
			copy(chunks[i][:], msg[start:])
		}
	}
	return chunks
}
