// Package bitmap holds decoded screen captures as packed RGB pixels.
package bitmap

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/danmuck/scopegrab/internal/protocol"
)

const BytesPerPixel = 3

// Bitmap is an immutable width x height RGB buffer, row-major, 3 bytes per
// pixel. It implements image.Image.
type Bitmap struct {
	width  int
	height int
	pix    []byte
}

// Decode decodes data as PNG. Any other encoding is a *protocol.DecodeError.
func Decode(data []byte) (*Bitmap, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &protocol.DecodeError{Format: "png", Err: err}
	}
	return FromImage(img), nil
}

// FromImage flattens img to RGB. Alpha is dropped without premultiplying.
func FromImage(img image.Image) *Bitmap {
	b := img.Bounds()
	bmp := &Bitmap{
		width:  b.Dx(),
		height: b.Dy(),
		pix:    make([]byte, 0, b.Dx()*b.Dy()*BytesPerPixel),
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			bmp.pix = append(bmp.pix, c.R, c.G, c.B)
		}
	}
	return bmp
}

func (b *Bitmap) Width() int { return b.width }

func (b *Bitmap) Height() int { return b.height }

// Data returns the packed RGB pixels. The slice is shared; do not modify it.
func (b *Bitmap) Data() []byte { return b.pix }

func (b *Bitmap) ColorModel() color.Model { return color.RGBAModel }

func (b *Bitmap) Bounds() image.Rectangle { return image.Rect(0, 0, b.width, b.height) }

func (b *Bitmap) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return color.RGBA{}
	}
	i := (y*b.width + x) * BytesPerPixel
	return color.RGBA{R: b.pix[i], G: b.pix[i+1], B: b.pix[i+2], A: 0xff}
}

// Encode writes the bitmap to w as PNG.
func (b *Bitmap) Encode(w io.Writer) error {
	return png.Encode(w, b)
}

// Save writes the bitmap to path as a PNG file.
func (b *Bitmap) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &protocol.IOError{Op: "save bitmap", Err: err}
	}
	if err := b.Encode(f); err != nil {
		f.Close()
		return &protocol.IOError{Op: "save bitmap", Err: err}
	}
	if err := f.Close(); err != nil {
		return &protocol.IOError{Op: "save bitmap", Err: err}
	}
	return nil
}
