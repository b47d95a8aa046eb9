// Package testimage renders small images with known text for OCR tests.
package testimage

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Margin is the blank border, in unscaled pixels, left of and above the text
const Margin = 10

// Text renders s in black on white using basicfont.Face7x13, followed by an
// empty area of the same width below it. The result is upscaled by scale so
// Tesseract gets glyphs of a reasonable size.
func Text(s string, scale int) *image.RGBA {
	if scale < 1 {
		scale = 1
	}
	face := basicfont.Face7x13
	w := 2*Margin + len(s)*face.Advance
	textH := 2*Margin + face.Height
	// the lower half stays blank
	small := image.NewRGBA(image.Rect(0, 0, w, 2*textH))
	draw.Draw(small, small.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  small,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(Margin, Margin+face.Ascent),
	}
	d.DrawString(s)

	big := image.NewRGBA(image.Rect(0, 0, w*scale, 2*textH*scale))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)
	return big
}

// TextHeight returns the height of the upper, text-bearing half of an image
// created by Text with the same scale.
func TextHeight(scale int) int {
	if scale < 1 {
		scale = 1
	}
	return (2*Margin + basicfont.Face7x13.Height) * scale
}

// PNG encodes img as PNG
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG encodes img as JPEG with maximum quality
func JPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BMP encodes img as BMP
func BMP(img image.Image) []byte {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
