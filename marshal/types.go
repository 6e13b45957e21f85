// Package marshal reads and writes the Ruby Marshal 4.8 format used by
// RPG Maker data files (Scripts.rxdata, Map001.rxdata, ...).
package marshal

import (
	"errors"
	"math/big"
)

const (
	MajorVersion = 4
	MinorVersion = 8
)

const (
	typeNil         = '0'
	typeTrue        = 'T'
	typeFalse       = 'F'
	typeFixnum      = 'i'
	typeExtended    = 'e'
	typeUClass      = 'C'
	typeObject      = 'o'
	typeData        = 'd'
	typeUserDef     = 'u'
	typeUserMarshal = 'U'
	typeFloat       = 'f'
	typeBignum      = 'l'
	typeString      = '"'
	typeRegexp      = '/'
	typeArray       = '['
	typeHash        = '{'
	typeHashDef     = '}'
	typeStruct      = 'S'
	typeModuleOld   = 'M'
	typeClass       = 'c'
	typeModule      = 'm'
	typeSymbol      = ':'
	typeSymlink     = ';'
	typeIvar        = 'I'
	typeLink        = '@'
)

// ErrFormat wraps every decoding failure.
var ErrFormat = errors.New("marshal: malformed data")

// Symbol is a Ruby symbol.
type Symbol string

// ClassRef is a reference to a class by name ('c').
type ClassRef string

// ModuleRef is a reference to a module by name ('m' and 'M').
type ModuleRef string

// Hash keeps insertion order; Ruby hash keys can be arrays and other
// values that are not comparable in Go.
type Hash struct {
	Keys    []interface{}
	Values  []interface{}
	Default interface{}
}

func (h *Hash) Len() int { return len(h.Keys) }

func (h *Hash) Set(key, value interface{}) {
	h.Keys = append(h.Keys, key)
	h.Values = append(h.Values, value)
}

// Get looks up a scalar key (string, symbol, number, bool, nil).
func (h *Hash) Get(key interface{}) (interface{}, bool) {
	for i, k := range h.Keys {
		if scalarEqual(k, key) {
			return h.Values[i], true
		}
	}
	return nil, false
}

// Ivar is one instance variable of an Object.
type Ivar struct {
	Name  Symbol
	Value interface{}
}

// Object is a plain Ruby object ('o').
type Object struct {
	Class Symbol
	Ivars []Ivar
}

// Ivar returns the named instance variable, with or without the leading '@'.
func (o *Object) Ivar(name string) (interface{}, bool) {
	for _, iv := range o.Ivars {
		if string(iv.Name) == name || string(iv.Name) == "@"+name {
			return iv.Value, true
		}
	}
	return nil, false
}

// Struct is a Ruby Struct instance ('S').
type Struct struct {
	Class   Symbol
	Members []Ivar
}

// UserData is an object serialised through _dump ('u'), e.g. RGSS
// Table, Color and Tone.
type UserData struct {
	Class Symbol
	Data  []byte
}

// UserMarshal is an object serialised through marshal_dump ('U').
type UserMarshal struct {
	Class Symbol
	Data  interface{}
}

// Regexp is a Ruby regular expression literal.
type Regexp struct {
	Source  string
	Options byte
}

func scalarEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case *big.Int:
		if bv, ok := b.(*big.Int); ok {
			return av.Cmp(bv) == 0
		}
		return false
	case int64, float64, string, Symbol, bool, nil:
		return a == b
	}
	return false
}
