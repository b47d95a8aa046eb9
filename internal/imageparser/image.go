// Package imageparser decodes the raster images accepted for OCR.
package imageparser

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
)

var (
	// ErrDecode is wrapped by every error returned when an image can't be loaded
	ErrDecode = errors.New("image could not be decoded")

	errZeroSize = fmt.Errorf("%w: zero-length data can not be parsed", ErrDecode)
	errTooLarge = fmt.Errorf("%w: file too large", ErrDecode)

	supportedTypes = []string{"image/jpeg", "image/png", "image/bmp"}
)

type ImageDoc struct {
	img  image.Image
	typ  string
	path string
}

// NewFromBytes sniffs and decodes a JPEG, PNG or BMP image
func NewFromBytes(data []byte) (*ImageDoc, error) {
	if len(data) == 0 {
		return nil, errZeroSize
	}
	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), supportedTypes...) {
		return nil, fmt.Errorf("%w: unsupported mimetype %s", ErrDecode, mtype.String())
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &ImageDoc{img: img, typ: strings.TrimPrefix(mtype.Extension(), ".")}, nil
}

// NewFromReader reads at most maxBytes from r and decodes them.
// A maxBytes of 0 means no limit.
func NewFromReader(r io.Reader, maxBytes uint64) (*ImageDoc, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, int64(maxBytes)+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if maxBytes > 0 && uint64(len(data)) > maxBytes {
		return nil, errTooLarge
	}
	return NewFromBytes(data)
}

// Open loads and decodes the image at path
func Open(path string, maxBytes uint64) (*ImageDoc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer f.Close()
	d, err := NewFromReader(f, maxBytes)
	if err != nil {
		return nil, err
	}
	d.path = path
	return d, nil
}

func (d *ImageDoc) Bounds() image.Rectangle {
	return d.img.Bounds()
}

// Type returns the file extension of the detected format, e.g. png
func (d *ImageDoc) Type() string {
	return d.typ
}

func (d *ImageDoc) Path() string {
	return d.path
}

// EncodeRegion encodes the part of the image inside r as PNG.
// r must lie within the image's bounds.
func (d *ImageDoc) EncodeRegion(r image.Rectangle) ([]byte, error) {
	var region image.Image = d.img
	if r != d.img.Bounds() {
		sub, ok := d.img.(interface {
			SubImage(r image.Rectangle) image.Image
		})
		if !ok {
			return nil, fmt.Errorf("image of type %T does not support sub-images", d.img)
		}
		region = sub.SubImage(r)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, region); err != nil {
		return nil, fmt.Errorf("encoding image region: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *ImageDoc) MetadataMap() map[string]string {
	p := d.img.Bounds().Size()
	return map[string]string{
		"x-doctype":          d.typ,
		"x-image-dimensions": fmt.Sprintf("%dx%d", p.X, p.Y),
	}
}
