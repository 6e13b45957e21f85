package loader

import (
	"fmt"
	"io"

	"github.com/icyseptember2237/rgss-engine/marshal"
)

// ScriptEntry is one record of a packed script bundle.
type ScriptEntry struct {
	// Checksum is carried through but not checked against the payload.
	Checksum int64
	Name     string
	// Payload is the zlib-compressed script text.
	Payload []byte
}

// Bundle is an unmarshalled script bundle. The records are decoded in a
// dedicated marshal.Decoder that lives until Close.
type Bundle struct {
	dec     *marshal.Decoder
	records []interface{}
}

// OpenBundle decodes a bundle from r. The top-level value must be an array.
func OpenBundle(r io.Reader) (*Bundle, error) {
	dec := marshal.NewDecoder(r)
	v, err := dec.Decode()
	if err != nil {
		dec.Release()
		return nil, err
	}
	records, ok := v.([]interface{})
	if !ok {
		dec.Release()
		return nil, fmt.Errorf("%w: bundle is %T, not an array", marshal.ErrFormat, v)
	}
	return &Bundle{dec: dec, records: records}, nil
}

// Len returns the number of records.
func (b *Bundle) Len() int {
	return len(b.records)
}

// Entry extracts record i by position: [checksum, name, payload].
func (b *Bundle) Entry(i int) (ScriptEntry, error) {
	var e ScriptEntry
	rec, ok := b.records[i].([]interface{})
	if !ok || len(rec) < 3 {
		return e, fmt.Errorf("%w: record %d is not a [checksum, name, payload] triple", marshal.ErrFormat, i)
	}
	if sum, ok := rec[0].(int64); ok {
		e.Checksum = sum
	}
	switch name := rec[1].(type) {
	case string:
		e.Name = name
	case marshal.Symbol:
		e.Name = string(name)
	default:
		return e, fmt.Errorf("%w: record %d name is %T", marshal.ErrFormat, i, rec[1])
	}
	payload, ok := rec[2].(string)
	if !ok {
		return e, fmt.Errorf("%w: record %d payload is %T", marshal.ErrFormat, i, rec[2])
	}
	e.Payload = []byte(payload)
	return e, nil
}

// Close releases the decode context.
func (b *Bundle) Close() error {
	if b.dec != nil {
		b.dec.Release()
		b.dec = nil
	}
	b.records = nil
	return nil
}

// WriteBundle packs scripts into the bundle format. Source text is
// compressed; Checksum is written as given.
func WriteBundle(w io.Writer, scripts []ScriptEntry) error {
	records := make([]interface{}, len(scripts))
	for i, s := range scripts {
		payload, err := compress(s.Payload)
		if err != nil {
			return fmt.Errorf("compressing %s: %w", s.Name, err)
		}
		records[i] = []interface{}{s.Checksum, s.Name, payload}
	}
	return marshal.NewEncoder(w).Encode(records)
}
