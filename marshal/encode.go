package marshal

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
)

// Encoder writes Marshal 4.8 documents. Strings are written without an
// encoding ivar, the way RPG Maker XP's Ruby 1.8 writes them.
type Encoder struct {
	w       *bufio.Writer
	symbols map[Symbol]int
	err     error
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w), symbols: make(map[Symbol]int)}
}

// Encode writes the version header and v, then flushes.
func (e *Encoder) Encode(v interface{}) error {
	e.byte(MajorVersion)
	e.byte(MinorVersion)
	e.value(v)
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

// Marshal encodes v into a byte slice.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Encoder) byte(b byte) {
	if e.err == nil {
		e.err = e.w.WriteByte(b)
	}
}

func (e *Encoder) raw(p []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(p)
	}
}

func (e *Encoder) long(x int64) {
	switch {
	case x == 0:
		e.byte(0)
		return
	case 0 < x && x < 123:
		e.byte(byte(x + 5))
		return
	case -124 < x && x < 0:
		e.byte(byte((x - 5) & 0xff))
		return
	}
	var buf [8]byte
	n := 0
	for i := 0; i < 4; i++ {
		buf[i] = byte(x & 0xff)
		x >>= 8
		n = i + 1
		if x == 0 || x == -1 {
			break
		}
	}
	if x < 0 {
		e.byte(byte(-n))
	} else {
		e.byte(byte(n))
	}
	e.raw(buf[:n])
}

func (e *Encoder) bytes(p []byte) {
	e.long(int64(len(p)))
	e.raw(p)
}

func (e *Encoder) symbol(s Symbol) {
	if idx, ok := e.symbols[s]; ok {
		e.byte(typeSymlink)
		e.long(int64(idx))
		return
	}
	e.symbols[s] = len(e.symbols)
	e.byte(typeSymbol)
	e.bytes([]byte(s))
}

// Fixnums are 31-bit on the wire; larger integers become bignums.
const (
	fixnumMax = 1<<30 - 1
	fixnumMin = -(1 << 30)
)

func (e *Encoder) value(v interface{}) {
	if e.err != nil {
		return
	}
	switch v := v.(type) {
	case nil:
		e.byte(typeNil)
	case bool:
		if v {
			e.byte(typeTrue)
		} else {
			e.byte(typeFalse)
		}
	case int:
		e.int(int64(v))
	case int32:
		e.int(int64(v))
	case int64:
		e.int(v)
	case *big.Int:
		e.bignum(v)
	case float64:
		e.byte(typeFloat)
		e.bytes([]byte(formatFloat(v)))
	case string:
		e.byte(typeString)
		e.bytes([]byte(v))
	case []byte:
		e.byte(typeString)
		e.bytes(v)
	case Symbol:
		e.symbol(v)
	case []interface{}:
		e.byte(typeArray)
		e.long(int64(len(v)))
		for _, elem := range v {
			e.value(elem)
		}
	case *Hash:
		if v.Default != nil {
			e.byte(typeHashDef)
		} else {
			e.byte(typeHash)
		}
		e.long(int64(len(v.Keys)))
		for i := range v.Keys {
			e.value(v.Keys[i])
			e.value(v.Values[i])
		}
		if v.Default != nil {
			e.value(v.Default)
		}
	case *Object:
		e.byte(typeObject)
		e.symbol(v.Class)
		e.long(int64(len(v.Ivars)))
		for _, iv := range v.Ivars {
			e.symbol(iv.Name)
			e.value(iv.Value)
		}
	case *UserData:
		e.byte(typeUserDef)
		e.symbol(v.Class)
		e.bytes(v.Data)
	default:
		e.err = fmt.Errorf("marshal: cannot encode %T", v)
	}
}

func (e *Encoder) int(x int64) {
	if x < fixnumMin || x > fixnumMax {
		e.bignum(big.NewInt(x))
		return
	}
	e.byte(typeFixnum)
	e.long(x)
}

func (e *Encoder) bignum(n *big.Int) {
	e.byte(typeBignum)
	if n.Sign() < 0 {
		e.byte('-')
	} else {
		e.byte('+')
	}
	be := new(big.Int).Abs(n).Bytes()
	if len(be)%2 == 1 {
		be = append([]byte{0}, be...)
	}
	le := make([]byte, len(be))
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	e.long(int64(len(le) / 2))
	e.raw(le)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
