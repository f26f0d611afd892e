package lib

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"path/filepath"
	"testing"

	"github.com/mitroadmaps/gomapinfer/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageRoundTrip(t *testing.T) {
	im := NewImage(4, 3)
	im.SetRGB(1, 2, [3]uint8{10, 20, 30})
	im.SetRGB(9, 9, [3]uint8{255, 255, 255}) // ignored

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, im.AsImage()))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	back := FromImage(decoded)
	assert.Equal(t, im.Bytes, back.Bytes)

	// Image itself satisfies image.Image
	assert.Equal(t, im.Bytes, FromImage(im).Bytes)
	assert.Equal(t, image.Rect(0, 0, 4, 3), im.Bounds())
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, im.At(1, 2))
}

func TestImageFromFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "frame.png")
	writeImage(t, fname, 8, 6, [3]uint8{1, 2, 3})
	im, err := ImageFromFile(fname)
	require.NoError(t, err)
	assert.Equal(t, 8, im.Width)
	assert.Equal(t, 6, im.Height)
	assert.Equal(t, [3]uint8{1, 2, 3}, im.GetRGB(7, 5))

	_, err = ImageFromFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestNewWhiteImage(t *testing.T) {
	im := NewWhiteImage(3, 2)
	for _, b := range im.Bytes {
		assert.Equal(t, uint8(255), b)
	}
}

func TestDrawLineClipsToImage(t *testing.T) {
	im := NewImage(20, 20)
	red := [3]uint8{255, 0, 0}
	im.DrawLine(common.Point{X: -100, Y: 10}, common.Point{X: 100, Y: 10}, 1, red)
	for x := 1; x < 19; x++ {
		assert.Equal(t, red, im.GetRGB(x, 10), "x=%d", x)
	}
	assert.Equal(t, [3]uint8{}, im.GetRGB(5, 9))

	thick := NewImage(20, 20)
	thick.DrawLine(common.Point{X: 10, Y: 0}, common.Point{X: 10, Y: 19}, 3, red)
	assert.Equal(t, red, thick.GetRGB(9, 5))
	assert.Equal(t, red, thick.GetRGB(11, 5))
	assert.Equal(t, [3]uint8{}, thick.GetRGB(13, 5))

	// fully outside, or NaN from a degenerate projection
	untouched := NewImage(20, 20)
	untouched.DrawLine(common.Point{X: -5, Y: -5}, common.Point{X: -1, Y: 30}, 5, red)
	untouched.DrawLine(common.Point{X: math.NaN(), Y: 0}, common.Point{X: 5, Y: 5}, 5, red)
	assert.Equal(t, 0, countNonBlack(untouched))
}

func TestFillCircle(t *testing.T) {
	im := NewImage(10, 10)
	im.FillCircle(0, 0, 2, [3]uint8{1, 1, 1})
	assert.Equal(t, [3]uint8{1, 1, 1}, im.GetRGB(2, 0))
	assert.Equal(t, [3]uint8{1, 1, 1}, im.GetRGB(1, 1))
	assert.Equal(t, [3]uint8{}, im.GetRGB(2, 2))
	assert.Equal(t, 6, countNonBlack(im))
}
