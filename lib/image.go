package lib

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/mitroadmaps/gomapinfer/common"
)

// Image is a packed 3-channel, 8-bit raster. Every overlay works on this
// representation and it is what gets encoded to disk.
type Image struct {
	Width  int
	Height int
	Bytes  []byte
}

func NewImage(width int, height int) Image {
	return Image{
		Width:  width,
		Height: height,
		Bytes:  make([]byte, 3*width*height),
	}
}

// NewWhiteImage allocates a uniform white canvas.
func NewWhiteImage(width int, height int) Image {
	im := NewImage(width, height)
	for i := range im.Bytes {
		im.Bytes[i] = 255
	}
	return im
}

// FromImage normalizes any decoded image into the packed RGB layout.
// Alpha is discarded.
func FromImage(img image.Image) Image {
	nrgba := imaging.Clone(img)
	width := nrgba.Rect.Dx()
	height := nrgba.Rect.Dy()
	im := NewImage(width, height)
	for y := 0; y < height; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+width*4]
		for x := 0; x < width; x++ {
			idx := (y*width + x) * 3
			im.Bytes[idx+0] = row[x*4+0]
			im.Bytes[idx+1] = row[x*4+1]
			im.Bytes[idx+2] = row[x*4+2]
		}
	}
	return im
}

// ImageFromFile decodes a JPEG or PNG file, honouring EXIF orientation.
func ImageFromFile(fname string) (Image, error) {
	img, err := imaging.Open(fname, imaging.AutoOrientation(true))
	if err != nil {
		return Image{}, fmt.Errorf("decode image %s: %w", fname, err)
	}
	return FromImage(img), nil
}

func (im Image) AsImage() image.Image {
	pixbuf := make([]byte, im.Width*im.Height*4)
	j := 0
	channels := 0
	for i := range im.Bytes {
		pixbuf[j] = im.Bytes[i]
		j++
		channels++
		if channels == 3 {
			pixbuf[j] = 255
			j++
			channels = 0
		}
	}
	img := &image.RGBA{
		Pix:    pixbuf,
		Stride: im.Width * 4,
		Rect:   image.Rect(0, 0, im.Width, im.Height),
	}
	return img
}

func (im Image) SetRGB(i int, j int, color [3]uint8) {
	if i < 0 || i >= im.Width || j < 0 || j >= im.Height {
		return
	}
	for channel := 0; channel < 3; channel++ {
		im.Bytes[(j*im.Width+i)*3+channel] = color[channel]
	}
}

func (im Image) GetRGB(i int, j int) [3]uint8 {
	var color [3]uint8
	for channel := 0; channel < 3; channel++ {
		color[channel] = im.Bytes[(j*im.Width+i)*3+channel]
	}
	return color
}

func (im Image) FillRectangle(left, top, right, bottom int, color [3]uint8) {
	left, right = clamp(left, 0, im.Width), clamp(right, 0, im.Width)
	top, bottom = clamp(top, 0, im.Height), clamp(bottom, 0, im.Height)
	for i := left; i < right; i++ {
		for j := top; j < bottom; j++ {
			im.SetRGB(i, j, color)
		}
	}
}

func (im Image) FillCircle(cx, cy, radius int, color [3]uint8) {
	for i := cx - radius; i <= cx+radius; i++ {
		for j := cy - radius; j <= cy+radius; j++ {
			dx, dy := i-cx, j-cy
			if dx*dx+dy*dy <= radius*radius {
				im.SetRGB(i, j, color)
			}
		}
	}
}

// DrawLine rasterizes the segment and stamps a thickness x thickness square on
// every cell. Segments are clipped to the image first so off-screen endpoints
// stay cheap.
func (im Image) DrawLine(start, end common.Point, thickness int, color [3]uint8) {
	if im.Width == 0 || im.Height == 0 {
		return
	}
	s, e, ok := clipSegment(start, end, float64(im.Width-1), float64(im.Height-1))
	if !ok {
		return
	}
	if thickness < 1 {
		thickness = 1
	}
	lo := thickness / 2
	hi := thickness - lo
	cells := common.DrawLineOnCells(
		int(math.Round(s.X)), int(math.Round(s.Y)),
		int(math.Round(e.X)), int(math.Round(e.Y)),
		im.Width, im.Height,
	)
	for _, cell := range cells {
		im.FillRectangle(cell[0]-lo, cell[1]-lo, cell[0]+hi, cell[1]+hi, color)
	}
}

func (im Image) Copy() Image {
	bytes := make([]byte, len(im.Bytes))
	copy(bytes, im.Bytes)
	return Image{
		Width:  im.Width,
		Height: im.Height,
		Bytes:  bytes,
	}
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	} else if value > max {
		return max
	} else {
		return value
	}
}

// clipSegment is Liang-Barsky against [0,maxX]x[0,maxY].
func clipSegment(a, b common.Point, maxX, maxY float64) (common.Point, common.Point, bool) {
	if math.IsNaN(a.X) || math.IsNaN(a.Y) || math.IsNaN(b.X) || math.IsNaN(b.Y) {
		return a, b, false
	}
	dx := b.X - a.X
	dy := b.Y - a.Y
	t0, t1 := 0.0, 1.0
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{a.X, maxX - a.X, a.Y, maxY - a.Y}
	for k := 0; k < 4; k++ {
		if p[k] == 0 {
			if q[k] < 0 {
				return a, b, false
			}
			continue
		}
		r := q[k] / p[k]
		if p[k] < 0 {
			if r > t1 {
				return a, b, false
			} else if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return a, b, false
			} else if r < t1 {
				t1 = r
			}
		}
	}
	return common.Point{X: a.X + t0*dx, Y: a.Y + t0*dy},
		common.Point{X: a.X + t1*dx, Y: a.Y + t1*dy}, true
}

// for image.Image

func (im Image) At(i int, j int) color.Color {
	c := im.GetRGB(i, j)
	return color.RGBA{c[0], c[1], c[2], 255}
}

func (im Image) ColorModel() color.Model {
	return color.RGBAModel
}

func (im Image) Bounds() image.Rectangle {
	return image.Rectangle{image.Point{0, 0}, image.Point{im.Width, im.Height}}
}
