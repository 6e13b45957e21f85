package marshal

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
)

const (
	// MaxDepth bounds container nesting.
	MaxDepth = 512
	// MaxLength bounds any single length prefix (bytes or elements).
	MaxLength = 64 << 20
)

// Decoder is a single-use decode context. It owns the symbol and object
// tables of one document and shares nothing with the caller's object
// graph; Release drops them.
type Decoder struct {
	r       *bufio.Reader
	symbols []Symbol
	objects []interface{}
	depth   int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Release drops the decoder's tables. The decoder cannot be used afterwards.
func (d *Decoder) Release() {
	d.symbols = nil
	d.objects = nil
	d.r = nil
}

// Decode reads the version header and one top-level value.
func (d *Decoder) Decode() (interface{}, error) {
	if d.r == nil {
		return nil, fmt.Errorf("%w: decoder released", ErrFormat)
	}
	major, err := d.byte()
	if err != nil {
		return nil, err
	}
	minor, err := d.byte()
	if err != nil {
		return nil, err
	}
	if major != MajorVersion || minor > MinorVersion {
		return nil, fmt.Errorf("%w: unsupported version %d.%d", ErrFormat, major, minor)
	}
	return d.value()
}

// Unmarshal decodes data with a fresh Decoder.
func Unmarshal(data []byte) (interface{}, error) {
	d := NewDecoder(bytes.NewReader(data))
	defer d.Release()
	return d.Decode()
}

func (d *Decoder) byte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormat, unexpected(err))
	}
	return b, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (d *Decoder) long() (int64, error) {
	b, err := d.byte()
	if err != nil {
		return 0, err
	}
	c := int64(int8(b))
	switch {
	case c == 0:
		return 0, nil
	case c > 4:
		return c - 5, nil
	case c < -4:
		return c + 5, nil
	case c > 0:
		var x int64
		for i := int64(0); i < c; i++ {
			b, err := d.byte()
			if err != nil {
				return 0, err
			}
			x |= int64(b) << (8 * i)
		}
		return x, nil
	default:
		x := int64(-1)
		for i := int64(0); i < -c; i++ {
			b, err := d.byte()
			if err != nil {
				return 0, err
			}
			x &^= 0xff << (8 * i)
			x |= int64(b) << (8 * i)
		}
		return x, nil
	}
}

func (d *Decoder) length() (int, error) {
	n, err := d.long()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > MaxLength {
		return 0, fmt.Errorf("%w: bad length %d", ErrFormat, n)
	}
	return int(n), nil
}

func (d *Decoder) bytes() ([]byte, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	return d.read(n)
}

// read returns the next n bytes. The buffer grows with the data actually
// read, so a forged length cannot force a large allocation.
func (d *Decoder) read(n int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(min(n, 4096))
	if _, err := io.CopyN(&buf, d.r, int64(n)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, unexpected(err))
	}
	return buf.Bytes(), nil
}

func (d *Decoder) entry(v interface{}) int {
	d.objects = append(d.objects, v)
	return len(d.objects) - 1
}

func (d *Decoder) symbol() (Symbol, error) {
	t, err := d.byte()
	if err != nil {
		return "", err
	}
	return d.symbolOf(t)
}

func (d *Decoder) symbolOf(t byte) (Symbol, error) {
	switch t {
	case typeSymbol:
		b, err := d.bytes()
		if err != nil {
			return "", err
		}
		s := Symbol(b)
		d.symbols = append(d.symbols, s)
		return s, nil
	case typeSymlink:
		n, err := d.long()
		if err != nil {
			return "", err
		}
		if n < 0 || n >= int64(len(d.symbols)) {
			return "", fmt.Errorf("%w: symlink %d out of range", ErrFormat, n)
		}
		return d.symbols[n], nil
	case typeIvar:
		// Symbols with an encoding ivar (Ruby >= 1.9). Only a plain symbol
		// can carry one.
		defer d.leave()
		if err := d.enter(); err != nil {
			return "", err
		}
		inner, err := d.byte()
		if err != nil {
			return "", err
		}
		if inner != typeSymbol {
			return "", fmt.Errorf("%w: expected symbol after ivar marker, got %q", ErrFormat, inner)
		}
		s, err := d.symbolOf(inner)
		if err != nil {
			return "", err
		}
		if err := d.skipIvars(); err != nil {
			return "", err
		}
		return s, nil
	}
	return "", fmt.Errorf("%w: expected symbol, got %q", ErrFormat, t)
}

func (d *Decoder) skipIvars() error {
	n, err := d.length()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if _, err := d.symbol(); err != nil {
			return err
		}
		if _, err := d.value(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) ivars() ([]Ivar, error) {
	n, err := d.length()
	if err != nil {
		return nil, err
	}
	out := make([]Ivar, 0, min(n, 64))
	for i := 0; i < n; i++ {
		name, err := d.symbol()
		if err != nil {
			return nil, err
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		out = append(out, Ivar{Name: name, Value: v})
	}
	return out, nil
}

// enter counts one level of nesting; the caller must defer d.leave().
func (d *Decoder) enter() error {
	d.depth++
	if d.depth > MaxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrFormat, MaxDepth)
	}
	return nil
}

func (d *Decoder) leave() { d.depth-- }

func (d *Decoder) value() (interface{}, error) {
	defer d.leave()
	if err := d.enter(); err != nil {
		return nil, err
	}

	t, err := d.byte()
	if err != nil {
		return nil, err
	}
	switch t {
	case typeNil:
		return nil, nil
	case typeTrue:
		return true, nil
	case typeFalse:
		return false, nil
	case typeFixnum:
		return d.long()
	case typeSymbol, typeSymlink:
		return d.symbolOf(t)
	case typeLink:
		n, err := d.long()
		if err != nil {
			return nil, err
		}
		if n < 0 || n >= int64(len(d.objects)) {
			return nil, fmt.Errorf("%w: object link %d out of range", ErrFormat, n)
		}
		return d.objects[n], nil
	case typeIvar:
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		// Encoding ivars on strings and regexps carry nothing we use.
		if err := d.skipIvars(); err != nil {
			return nil, err
		}
		return v, nil
	case typeExtended, typeUClass:
		if _, err := d.symbol(); err != nil {
			return nil, err
		}
		return d.value()
	case typeString:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		s := string(b)
		d.entry(s)
		return s, nil
	case typeFloat:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		f, err := parseFloat(b)
		if err != nil {
			return nil, err
		}
		d.entry(f)
		return f, nil
	case typeBignum:
		return d.bignum()
	case typeRegexp:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		opts, err := d.byte()
		if err != nil {
			return nil, err
		}
		re := &Regexp{Source: string(b), Options: opts}
		d.entry(re)
		return re, nil
	case typeArray:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		idx := d.entry(nil)
		arr := make([]interface{}, 0, min(n, 1024))
		for i := 0; i < n; i++ {
			v, err := d.value()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		d.objects[idx] = arr
		return arr, nil
	case typeHash, typeHashDef:
		n, err := d.length()
		if err != nil {
			return nil, err
		}
		h := &Hash{}
		d.entry(h)
		for i := 0; i < n; i++ {
			k, err := d.value()
			if err != nil {
				return nil, err
			}
			v, err := d.value()
			if err != nil {
				return nil, err
			}
			h.Set(k, v)
		}
		if t == typeHashDef {
			if h.Default, err = d.value(); err != nil {
				return nil, err
			}
		}
		return h, nil
	case typeObject:
		class, err := d.symbol()
		if err != nil {
			return nil, err
		}
		o := &Object{Class: class}
		d.entry(o)
		if o.Ivars, err = d.ivars(); err != nil {
			return nil, err
		}
		return o, nil
	case typeStruct:
		class, err := d.symbol()
		if err != nil {
			return nil, err
		}
		s := &Struct{Class: class}
		d.entry(s)
		if s.Members, err = d.ivars(); err != nil {
			return nil, err
		}
		return s, nil
	case typeUserDef:
		class, err := d.symbol()
		if err != nil {
			return nil, err
		}
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		u := &UserData{Class: class, Data: b}
		d.entry(u)
		return u, nil
	case typeUserMarshal:
		class, err := d.symbol()
		if err != nil {
			return nil, err
		}
		u := &UserMarshal{Class: class}
		d.entry(u)
		if u.Data, err = d.value(); err != nil {
			return nil, err
		}
		return u, nil
	case typeClass, typeModule, typeModuleOld:
		b, err := d.bytes()
		if err != nil {
			return nil, err
		}
		var v interface{} = ModuleRef(b)
		if t == typeClass {
			v = ClassRef(b)
		}
		d.entry(v)
		return v, nil
	case typeData:
		return nil, fmt.Errorf("%w: typed data objects are not supported", ErrFormat)
	}
	return nil, fmt.Errorf("%w: unknown type byte %q", ErrFormat, t)
}

func (d *Decoder) bignum() (interface{}, error) {
	sign, err := d.byte()
	if err != nil {
		return nil, err
	}
	if sign != '+' && sign != '-' {
		return nil, fmt.Errorf("%w: bad bignum sign %q", ErrFormat, sign)
	}
	words, err := d.length()
	if err != nil {
		return nil, err
	}
	if words > MaxLength/2 {
		return nil, fmt.Errorf("%w: bignum too large", ErrFormat)
	}
	le, err := d.read(words * 2)
	if err != nil {
		return nil, err
	}
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	n := new(big.Int).SetBytes(be)
	if sign == '-' {
		n.Neg(n)
	}
	var v interface{} = n
	if n.IsInt64() {
		v = n.Int64()
	}
	d.entry(v)
	return v, nil
}

func parseFloat(b []byte) (float64, error) {
	s := string(b)
	// Ruby 1.8 appends mantissa bytes after a NUL.
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	switch s {
	case "nan":
		return math.NaN(), nil
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad float %q", ErrFormat, s)
	}
	return f, nil
}
