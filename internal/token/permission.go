package token

import "strings"

// Permission is a set of rights a capability token grants on its entity.
type Permission uint8

const (
	Read Permission = 1 << iota
	Update

	ReadOnly   = Read
	ReadUpdate = Read | Update
)

// Has reports whether p includes every right in need.
func (p Permission) Has(need Permission) bool {
	return p&need == need
}

func (p Permission) String() string {
	var b strings.Builder
	if p.Has(Read) {
		b.WriteByte('r')
	}
	if p.Has(Update) {
		b.WriteByte('u')
	}
	return b.String()
}

func parsePermission(s string) Permission {
	var p Permission
	for _, c := range s {
		switch c {
		case 'r':
			p |= Read
		case 'u':
			p |= Update
		}
	}
	return p
}
