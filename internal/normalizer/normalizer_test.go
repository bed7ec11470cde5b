package normalizer

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

func writePNG(t *testing.T, dir string, w, h int, c color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestNormalize_ResizesLongEdgeAndKeepsAspect(t *testing.T) {
	cases := []struct {
		name   string
		w, h   int
		wantW  int
		wantH  int
		maxDim int
	}{
		{"landscape", 400, 200, 100, 50, 100},
		{"portrait", 300, 900, 100, 300, 300},
		{"odd ratio", 1000, 333, 250, 83, 250},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writePNG(t, t.TempDir(), tc.w, tc.h, color.NRGBA{R: 200, A: 255})

			res, err := Normalize(path, Limits{MaxDimension: tc.maxDim})
			require.NoError(t, err)
			assert.True(t, res.Resized)
			assert.Equal(t, "jpeg", res.Format)
			assert.Equal(t, tc.wantW, res.Width)
			assert.InDelta(t, tc.wantH, res.Height, 1)

			img, err := imaging.Open(path)
			require.NoError(t, err)
			assert.Equal(t, res.Width, img.Bounds().Dx())
			assert.Equal(t, res.Height, img.Bounds().Dy())
		})
	}
}

func TestNormalize_SmallEmbeddableImageUntouched(t *testing.T) {
	path := writePNG(t, t.TempDir(), 50, 40, color.NRGBA{G: 255, A: 128})
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	res, err := Normalize(path, Limits{MaxDimension: 100})
	require.NoError(t, err)
	assert.False(t, res.Resized)
	assert.Equal(t, "png", res.Format)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNormalize_FlattensAlphaWhenResized(t *testing.T) {
	path := writePNG(t, t.TempDir(), 200, 200, color.NRGBA{A: 0})
	_, err := Normalize(path, Limits{MaxDimension: 20})
	require.NoError(t, err)

	img, err := imaging.Open(path)
	require.NoError(t, err)
	r, g, b, a := img.At(10, 10).RGBA()
	assert.EqualValues(t, 0xffff, a)
	assert.Greater(t, r, uint32(0xf000))
	assert.Greater(t, g, uint32(0xf000))
	assert.Greater(t, b, uint32(0xf000))
}

func TestNormalize_Errors(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.jpg")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not an image"), 0o644))

	_, err := Normalize(junk, Limits{MaxDimension: 100})
	assert.ErrorIs(t, err, types.ErrDecode)

	big := writePNG(t, t.TempDir(), 64, 64, color.White)
	_, err = Normalize(big, Limits{MaxDimension: 100, MaxBytes: 10})
	assert.ErrorIs(t, err, types.ErrSizeExceeded)
}
