package pixels

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomImage(rng *rand.Rand, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 0xff,
			})
		}
	}
	return img
}

func TestProcessPixels(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	img := randomImage(rng, 64, 128)

	data, err := EncodePNG(img)
	require.NoError(t, err)

	out, err := ProcessPixels(data, false)
	require.NoError(t, err)
	assert.Equal(t, []int{128, 64, 3}, out.Shape)

	for y := 0; y < 128; y++ {
		for x := 0; x < 64; x++ {
			c := img.NRGBAAt(x, y)
			assert.InDelta(t, float64(c.R)/255, float64(out.At(y, x, 0)), 0.01)
			assert.InDelta(t, float64(c.G)/255, float64(out.At(y, x, 1)), 0.01)
			assert.InDelta(t, float64(c.B)/255, float64(out.At(y, x, 2)), 0.01)
		}
	}
}

func TestProcessPixelsGray(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	img := randomImage(rng, 64, 128)

	data, err := EncodePNG(img)
	require.NoError(t, err)

	out, err := ProcessPixels(data, true)
	require.NoError(t, err)
	assert.Equal(t, []int{128, 64, 1}, out.Shape)

	var totalDiff float64
	for y := 0; y < 128; y++ {
		for x := 0; x < 64; x++ {
			c := img.NRGBAAt(x, y)
			mean := (float64(c.R) + float64(c.G) + float64(c.B)) / 3 / 255
			diff := math.Abs(mean - float64(out.At(y, x, 0)))
			assert.Less(t, diff, 0.01)
			totalDiff += diff
		}
	}
	assert.Less(t, totalDiff/float64(out.Len()), 0.01)
}

func TestProcessPixelsInvalid(t *testing.T) {
	_, err := ProcessPixels(nil, false)
	assert.Error(t, err)

	_, err = ProcessPixels([]byte("definitely not an image"), false)
	assert.Error(t, err)
}

func TestEncodePNGDropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 0xff})
	img.SetNRGBA(1, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0x80})

	data, err := EncodePNG(img)
	require.NoError(t, err)

	decoded, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, _, _, a := decoded.At(1, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a)

	c := color.NRGBAModel.Convert(decoded.At(1, 0)).(color.NRGBA)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 0xff}, c)
}

func TestFromImageOffsetBounds(t *testing.T) {
	img := image.NewGray(image.Rect(5, 5, 8, 7))
	img.SetGray(5, 5, color.Gray{Y: 255})

	out := FromImage(img, false)
	assert.Equal(t, []int{2, 3, 3}, out.Shape)
	assert.InDelta(t, 1.0, float64(out.At(0, 0, 0)), 1e-6)
	assert.InDelta(t, 0.0, float64(out.At(1, 2, 2)), 1e-6)
}

func TestResize(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 40, G: 80, B: 120, A: 0xff})
		}
	}

	t.Run("scales to target", func(t *testing.T) {
		out, err := Resize(src, 4, 2)
		require.NoError(t, err)
		assert.Equal(t, 4, out.Bounds().Dx())
		assert.Equal(t, 2, out.Bounds().Dy())

		c := color.NRGBAModel.Convert(out.At(1, 1)).(color.NRGBA)
		assert.InDelta(t, 40, int(c.R), 1)
		assert.InDelta(t, 80, int(c.G), 1)
		assert.InDelta(t, 120, int(c.B), 1)
	})

	t.Run("same size is a no-op", func(t *testing.T) {
		out, err := Resize(src, 8, 8)
		require.NoError(t, err)
		assert.Same(t, src, out)
	})

	t.Run("invalid target", func(t *testing.T) {
		_, err := Resize(src, 0, 8)
		assert.Error(t, err)
	})
}

func TestTensor(t *testing.T) {
	tensor := NewTensor(2, 3)
	tensor.Set(5, 1, 2)
	assert.Equal(t, float32(5), tensor.At(1, 2))
	assert.Equal(t, float32(5), tensor.Data[5])

	row := tensor.Index(1)
	assert.Equal(t, []int{3}, row.Shape)
	assert.Equal(t, float32(5), row.At(2))

	empty := NewTensor(0, 4, 4, 3)
	assert.Equal(t, []int{0, 4, 4, 3}, empty.Shape)
	assert.Equal(t, 0, empty.Len())

	_, err := Reshape([]float32{1, 2, 3}, 2, 2)
	assert.Error(t, err)

	r, err := Reshape([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, float32(3), r.At(1, 0))

	assert.Panics(t, func() { tensor.At(2, 0) })
}

// oversizedGIF is a bare GIF header declaring a 50000x50000 logical screen
var oversizedGIF = []byte("GIF89a\x50\xc3\x50\xc3\x00\x00\x00")

func TestDecodeConfig(t *testing.T) {
	data, err := EncodePNG(image.NewNRGBA(image.Rect(0, 0, 7, 5)))
	require.NoError(t, err)

	width, height, format, err := DecodeConfig(data)
	require.NoError(t, err)
	assert.Equal(t, 7, width)
	assert.Equal(t, 5, height)
	assert.Equal(t, "png", format)

	width, height, _, err = DecodeConfig(oversizedGIF)
	require.NoError(t, err)
	assert.Equal(t, 50000, width)
	assert.Equal(t, 50000, height)

	_, _, _, err = DecodeConfig(nil)
	assert.Error(t, err)
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	_, _, err := Decode(oversizedGIF)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = ProcessPixels(oversizedGIF, true)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}
