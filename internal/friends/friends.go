// Package friends encodes and decodes the friend list stored in a social
// record's Friends property: "country;name" pairs joined by "|".
package friends

import (
	"errors"
	"fmt"
	"strings"
)

const (
	pairSep  = "|"
	fieldSep = ";"
)

// ErrFormat is returned when a pair lacks the country/name delimiter.
var ErrFormat = errors.New("friends: malformed friend list")

// Friend identifies another user's social record by its partition and row.
type Friend struct {
	Country string
	Name    string
}

func (f Friend) String() string {
	return f.Country + fieldSep + f.Name
}

// List is an ordered friend list. Duplicates are allowed.
type List []Friend

// Parse decodes s. A single leading "|" is skipped, a trailing "|" is
// tolerated, and anything after the last pair that contains no ";" is
// ignored. A pair whose ";" falls after the next "|", or whose name is
// empty, is an ErrFormat.
func Parse(s string) (List, error) {
	var list List
	start := 0
	if strings.HasPrefix(s, pairSep) {
		start = 1
	}
	for start < len(s) {
		delim := strings.Index(s[start:], fieldSep)
		if delim < 0 {
			break
		}
		delim += start

		end := len(s)
		if i := strings.Index(s[start:], pairSep); i >= 0 {
			end = start + i
		}
		if end <= delim+1 {
			return nil, fmt.Errorf("%w: %q", ErrFormat, s)
		}

		list = append(list, Friend{Country: s[start:delim], Name: s[delim+1 : end]})
		start = end + 1
	}
	return list, nil
}

// String encodes the list without leading or trailing separators.
func (l List) String() string {
	parts := make([]string, len(l))
	for i, f := range l {
		parts[i] = f.String()
	}
	return strings.Join(parts, pairSep)
}

// Add appends f, even if it is already present.
func (l List) Add(f Friend) List {
	return append(l, f)
}

// Remove drops every entry equal to f.
func (l List) Remove(f Friend) List {
	out := l[:0:0]
	for _, g := range l {
		if g != f {
			out = append(out, g)
		}
	}
	return out
}
