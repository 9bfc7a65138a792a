package feature

import (
	"bytes"
	"errors"
	"fmt"
)

// Wire markers inside a feature list.
const (
	Separator byte = ';'
	MarkYes   byte = '+'
	MarkNo    byte = '-'
	MarkMaybe byte = '?'
	MarkValue byte = '='
)

var ErrMalformedEntry = errors.New("feature: malformed feature entry")

// Support is the status half of a feature entry.
type Support uint8

const (
	Yes Support = iota + 1
	No
	// Maybe is reserved; the entry grammar never produces it.
	Maybe
	Value
)

func (s Support) String() string {
	switch s {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Maybe:
		return "maybe"
	case Value:
		return "value"
	default:
		return fmt.Sprintf("support(%d)", uint8(s))
	}
}

// Status is a Support plus the value carried by name=value entries.
type Status struct {
	Support Support
	Value   string
}

// Supported is one parsed feature entry.
type Supported struct {
	Feature Known
	Status  Status
}

// String renders the entry in wire form.
func (s Supported) String() string {
	switch s.Status.Support {
	case Yes:
		return s.Feature.Name + string(MarkYes)
	case No:
		return s.Feature.Name + string(MarkNo)
	case Maybe:
		return s.Feature.Name + string(MarkMaybe)
	default:
		return s.Feature.Name + string(MarkValue) + s.Status.Value
	}
}

// ParseEntry parses one entry. A trailing '+' or '-' marks the name as
// supported or not; otherwise the entry must be name=value.
func ParseEntry(entry []byte) (Supported, error) {
	if len(entry) == 0 {
		return Supported{}, fmt.Errorf("%w: empty entry", ErrMalformedEntry)
	}
	name, last := entry[:len(entry)-1], entry[len(entry)-1]
	switch last {
	case MarkYes:
		return Supported{Feature: Resolve(string(name)), Status: Status{Support: Yes}}, nil
	case MarkNo:
		return Supported{Feature: Resolve(string(name)), Status: Status{Support: No}}, nil
	}
	eq := bytes.IndexByte(entry, MarkValue)
	if eq < 0 {
		return Supported{}, fmt.Errorf("%w: %q has no +, - or =", ErrMalformedEntry, entry)
	}
	return Supported{
		Feature: Resolve(string(entry[:eq])),
		Status:  Status{Support: Value, Value: string(entry[eq+1:])},
	}, nil
}

// ParseList parses a ';'-separated list of entries, preserving order. Any bad
// entry fails the whole list.
func ParseList(list []byte) ([]Supported, error) {
	out := make([]Supported, 0)
	if len(list) == 0 {
		return out, nil
	}
	for i, entry := range bytes.Split(list, []byte{Separator}) {
		s, err := ParseEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// FormatList renders entries as a ';'-separated list.
func FormatList(entries []Supported) string {
	var b bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			b.WriteByte(Separator)
		}
		b.WriteString(e.String())
	}
	return b.String()
}
