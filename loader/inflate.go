package loader

import (
	"bytes"
	"errors"
	"io"

	"github.com/klauspost/compress/zlib"
)

// initialDecodeSize is the starting capacity of the decode buffer.
const initialDecodeSize = 0x1000

var errBufferTooSmall = errors.New("loader: decode buffer too small")

// decodeBuffer inflates script payloads into one buffer that is reused
// across scripts and doubled whenever a payload does not fit.
type decodeBuffer struct {
	buf []byte
}

func newDecodeBuffer() *decodeBuffer {
	return &decodeBuffer{buf: make([]byte, initialDecodeSize)}
}

// inflate returns the decompressed payload. The result aliases the buffer
// and is only valid until the next call.
func (d *decodeBuffer) inflate(src []byte) ([]byte, error) {
	for {
		n, err := uncompress(d.buf, src)
		if errors.Is(err, errBufferTooSmall) {
			d.buf = make([]byte, len(d.buf)*2)
			continue
		}
		if err != nil {
			return nil, err
		}
		return d.buf[:n], nil
	}
}

// uncompress inflates src into dst and reports errBufferTooSmall when the
// stream holds more than len(dst) bytes.
func uncompress(dst, src []byte) (int, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	n := 0
	for n < len(dst) {
		m, err := zr.Read(dst[n:])
		n += m
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}

	var extra [1]byte
	for {
		m, err := zr.Read(extra[:])
		if m > 0 {
			return n, errBufferTooSmall
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
}

func compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Inflate decompresses one script payload.
func Inflate(payload []byte) ([]byte, error) {
	text, err := newDecodeBuffer().inflate(payload)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), text...), nil
}
