package marshal

import (
	"fmt"
	"math/big"
	"strings"
)

// Plain converts a decoded value into maps, slices and scalars that a
// script engine can take directly. Objects become maps keyed by their
// instance variable names without '@', with the class under "__class".
// A value linked from several places converts once and is shared; a link
// back into a value still being converted becomes nil.
func Plain(v interface{}) interface{} {
	c := converter{seen: make(map[interface{}]interface{})}
	return c.plain(v, 0)
}

type converter struct {
	seen map[interface{}]interface{}
}

// inProgress marks a value whose conversion has not finished.
type inProgress struct{}

type sliceID struct {
	first *interface{}
	n     int
}

// identity returns the key a linkable value is memoized under.
func identity(v interface{}) (interface{}, bool) {
	switch v := v.(type) {
	case *Hash, *Object, *Struct, *UserMarshal:
		return v, true
	case []interface{}:
		if len(v) > 0 {
			return sliceID{&v[0], len(v)}, true
		}
	}
	return nil, false
}

func (c *converter) plain(v interface{}, depth int) interface{} {
	if depth > MaxDepth {
		return nil
	}
	id, linkable := identity(v)
	if linkable {
		if done, ok := c.seen[id]; ok {
			if _, cycle := done.(inProgress); cycle {
				return nil
			}
			return done
		}
		c.seen[id] = inProgress{}
	}
	out := c.convert(v, depth)
	if linkable {
		c.seen[id] = out
	}
	return out
}

func (c *converter) convert(v interface{}, depth int) interface{} {
	switch v := v.(type) {
	case Symbol:
		return string(v)
	case ClassRef:
		return string(v)
	case ModuleRef:
		return string(v)
	case *big.Int:
		f, _ := new(big.Float).SetInt(v).Float64()
		return f
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = c.plain(e, depth+1)
		}
		return out
	case *Hash:
		out := make(map[string]interface{}, len(v.Keys))
		for i, k := range v.Keys {
			out[keyString(k)] = c.plain(v.Values[i], depth+1)
		}
		return out
	case *Object:
		out := map[string]interface{}{"__class": string(v.Class)}
		for _, iv := range v.Ivars {
			out[strings.TrimPrefix(string(iv.Name), "@")] = c.plain(iv.Value, depth+1)
		}
		return out
	case *Struct:
		out := map[string]interface{}{"__class": string(v.Class)}
		for _, m := range v.Members {
			out[string(m.Name)] = c.plain(m.Value, depth+1)
		}
		return out
	case *UserData:
		return map[string]interface{}{"__class": string(v.Class), "data": string(v.Data)}
	case *UserMarshal:
		return map[string]interface{}{"__class": string(v.Class), "data": c.plain(v.Data, depth+1)}
	case *Regexp:
		return v.Source
	}
	return v
}

// keyString renders a hash key. Composite keys other than flat arrays are
// named by type only.
func keyString(k interface{}) string {
	switch k := k.(type) {
	case string:
		return k
	case Symbol:
		return string(k)
	case []interface{}:
		parts := make([]string, len(k))
		for i, e := range k {
			if _, composite := identity(e); composite {
				return "#<Array>"
			}
			parts[i] = keyString(e)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case *Hash:
		return "#<Hash>"
	case *Object:
		return "#<" + string(k.Class) + ">"
	case *Struct:
		return "#<" + string(k.Class) + ">"
	case *UserData:
		return "#<" + string(k.Class) + ">"
	case *UserMarshal:
		return "#<" + string(k.Class) + ">"
	case *Regexp:
		return k.Source
	case ClassRef:
		return string(k)
	case ModuleRef:
		return string(k)
	}
	return fmt.Sprint(k)
}
