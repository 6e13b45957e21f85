package engine

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

const (
	ImageMagic   = "RGSSIMG"
	ImageVersion = 1
)

var (
	// ErrInvalidUnit is returned when an image's entry index does not name
	// one of its units.
	ErrInvalidUnit = errors.New("engine: invalid image unit index")
	// ErrImageUnsupported is returned by engines that cannot run images.
	ErrImageUnsupported = errors.New("engine: precompiled images not supported")
)

// Image is a precompiled script file: a set of named units and the index
// of the one to run. The other units are loadable by name from the entry.
type Image struct {
	Magic    string `cbor:"magic"`
	Version  int    `cbor:"version"`
	Language string `cbor:"language"`
	Entry    int    `cbor:"entry"`
	Units    []Unit `cbor:"units"`
}

type Unit struct {
	Name   string `cbor:"name"`
	Source string `cbor:"source"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("engine: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// ReadImage decodes and validates an image.
func ReadImage(r io.Reader) (*Image, error) {
	var img Image
	if err := cbor.NewDecoder(r).Decode(&img); err != nil {
		return nil, fmt.Errorf("engine: decode image: %w", err)
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("engine: bad image magic %q", img.Magic)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("engine: unsupported image version %d", img.Version)
	}
	if img.Entry < 0 || img.Entry >= len(img.Units) {
		return nil, fmt.Errorf("%w: entry %d of %d units", ErrInvalidUnit, img.Entry, len(img.Units))
	}
	return &img, nil
}

// WriteImage encodes img, filling in the magic and version.
func WriteImage(w io.Writer, img *Image) error {
	out := *img
	out.Magic = ImageMagic
	out.Version = ImageVersion
	return imageEncMode.NewEncoder(w).Encode(&out)
}
