package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/internal/logging"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

func newPipeline(t *testing.T, cfg Config, ocr Recognizer) *Pipeline {
	t.Helper()
	blobs, err := blob.NewStore(t.TempDir())
	require.NoError(t, err)
	return NewPipeline(cfg, blobs, ocr, logging.Nop())
}

// writeImage writes a solid image of w×h pixels; ext selects the encoder.
func writeImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	switch filepath.Ext(name) {
	case ".png":
		require.NoError(t, png.Encode(f, img))
	default:
		require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 90}))
	}
	return path
}

func pdfPageDims(t *testing.T, data []byte) [][2]float64 {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(data), nil)
	require.NoError(t, err)
	dims, err := api.PageDims(bytes.NewReader(data), nil)
	require.NoError(t, err)
	require.Len(t, dims, n)
	out := make([][2]float64, 0, len(dims))
	for _, d := range dims {
		out = append(out, [2]float64{d.Width, d.Height})
	}
	return out
}

func TestConvert_EmptyInput(t *testing.T) {
	p := newPipeline(t, Config{}, nil)
	_, err := p.Convert(context.Background(), nil, types.DefaultOptions())
	assert.ErrorIs(t, err, types.ErrNoImages)
}

func TestConvert_OnePagePerImageInOrder(t *testing.T) {
	dir := t.TempDir()
	// Distinct sizes make page order observable under AUTO.
	images := []string{
		writeImage(t, dir, "a.jpg", 100, 50),
		writeImage(t, dir, "b.png", 60, 120),
		writeImage(t, dir, "c.jpg", 80, 80),
	}
	p := newPipeline(t, Config{DPI: 72}, nil)

	res, err := p.Convert(context.Background(), images, types.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, EncoderDirect, res.Encoder)

	dims := pdfPageDims(t, res.Data)
	require.Len(t, dims, 3)
	want := [][2]float64{{100, 50}, {60, 120}, {80, 80}}
	for i := range want {
		assert.InDelta(t, want[i][0], dims[i][0], 0.5, "page %d width", i+1)
		assert.InDelta(t, want[i][1], dims[i][1], 0.5, "page %d height", i+1)
	}
}

func TestConvert_FixedPageSize(t *testing.T) {
	dir := t.TempDir()
	images := []string{
		writeImage(t, dir, "wide.jpg", 300, 100),
		writeImage(t, dir, "tall.jpg", 100, 300),
	}
	p := newPipeline(t, Config{}, nil)

	opts := types.DefaultOptions()
	opts.PageSize = types.PageSizeLetter
	opts.MarginMM = 10
	res, err := p.Convert(context.Background(), images, opts)
	require.NoError(t, err)

	for _, d := range pdfPageDims(t, res.Data) {
		assert.InDelta(t, 216*PointsPerMM, d[0], 0.5)
		assert.InDelta(t, 279*PointsPerMM, d[1], 0.5)
	}
}

func TestConvert_RotationSwapsAutoPage(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(t, Config{}, nil)

	opts := types.DefaultOptions()
	opts.Rotation = 90
	opts.Scale = 0.5
	res, err := p.Convert(context.Background(), []string{writeImage(t, dir, "a.jpg", 200, 100)}, opts)
	require.NoError(t, err)

	dims := pdfPageDims(t, res.Data)
	require.Len(t, dims, 1)
	// Compression keeps the page geometry; rotation swaps it.
	assert.InDelta(t, 100, dims[0][0], 0.5)
	assert.InDelta(t, 200, dims[0][1], 0.5)
}

func TestConvert_UndecodableImageReportsIndex(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	images := []string{writeImage(t, dir, "ok.jpg", 10, 10), bad}

	p := newPipeline(t, Config{}, nil)
	_, err := p.Convert(context.Background(), images, types.DefaultOptions())

	var imgErr *types.ImageError
	require.ErrorAs(t, err, &imgErr)
	assert.Equal(t, 1, imgErr.Index)
	assert.ErrorIs(t, err, types.ErrDecode)
}

// fakeOCR renders a blank single-page PDF per image, failing on one index.
type fakeOCR struct {
	failAt int
	calls  atomic.Int32
}

func (f *fakeOCR) Recognize(_ context.Context, _ string, outBase string) (string, error) {
	n := int(f.calls.Add(1)) - 1
	if n == f.failAt {
		return "", errors.New("recognition crashed")
	}
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	out := outBase + ".pdf"
	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", err
	}
	return out, nil
}

func TestConvert_OCRFailureFallsBackForWholeBatch(t *testing.T) {
	dir := t.TempDir()
	images := []string{
		writeImage(t, dir, "1.jpg", 40, 40),
		writeImage(t, dir, "2.jpg", 50, 50),
		writeImage(t, dir, "3.jpg", 60, 60),
	}
	ocr := &fakeOCR{failAt: 1}
	p := newPipeline(t, Config{OCRAvailable: true}, ocr)

	opts := types.DefaultOptions()
	opts.OCR = true
	res, err := p.Convert(context.Background(), images, opts)
	require.NoError(t, err)
	assert.Equal(t, EncoderDirect, res.Encoder)
	assert.Len(t, pdfPageDims(t, res.Data), 3)
}

func TestConvert_OCRMergesInOrder(t *testing.T) {
	dir := t.TempDir()
	images := []string{
		writeImage(t, dir, "1.jpg", 40, 40),
		writeImage(t, dir, "2.jpg", 50, 50),
		writeImage(t, dir, "3.jpg", 60, 60),
	}
	p := newPipeline(t, Config{OCRAvailable: true, Parallelism: 1}, &fakeOCR{failAt: -1})

	opts := types.DefaultOptions()
	opts.OCR = true
	res, err := p.Convert(context.Background(), images, opts)
	require.NoError(t, err)
	assert.Equal(t, EncoderOCR, res.Encoder)
	assert.Len(t, pdfPageDims(t, res.Data), 3)
}

func TestConvert_OCRIgnoredWhenUnavailable(t *testing.T) {
	ocr := &fakeOCR{failAt: -1}
	p := newPipeline(t, Config{OCRAvailable: false}, ocr)

	opts := types.DefaultOptions()
	opts.OCR = true
	res, err := p.Convert(context.Background(), []string{writeImage(t, t.TempDir(), "a.jpg", 20, 20)}, opts)
	require.NoError(t, err)
	assert.Equal(t, EncoderDirect, res.Encoder)
	assert.Zero(t, ocr.calls.Load())
}

func TestConvert_FallbackWhenDirectEmbedFails(t *testing.T) {
	dir := t.TempDir()
	images := []string{
		writeImage(t, dir, "1.png", 30, 30),
		writeImage(t, dir, "2.jpg", 30, 60),
	}
	p := newPipeline(t, Config{}, nil)
	p.embed = func([]page, types.Options, float64) ([]byte, error) {
		return nil, fmt.Errorf("unsupported encoding")
	}

	res, err := p.Convert(context.Background(), images, types.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, EncoderFallback, res.Encoder)
	assert.Len(t, pdfPageDims(t, res.Data), 2)
}

func TestEmbedPages_RejectsUnknownFormat(t *testing.T) {
	path := writeImage(t, t.TempDir(), "a.jpg", 10, 10)
	_, err := embedPages([]page{{path: path, format: "webp", layoutW: 10, layoutH: 10}}, types.DefaultOptions(), 72)
	assert.Error(t, err)
}

func TestStampWatermark(t *testing.T) {
	dir := t.TempDir()
	images := []string{writeImage(t, dir, "1.jpg", 200, 200), writeImage(t, dir, "2.jpg", 200, 200)}
	p := newPipeline(t, Config{}, nil)

	plain, err := p.Convert(context.Background(), images, types.DefaultOptions())
	require.NoError(t, err)
	has, err := api.HasWatermarks(bytes.NewReader(plain.Data), nil)
	require.NoError(t, err)
	require.False(t, has)

	stamped, err := p.stampWatermark(plain.Data, "CONFIDENTIAL")
	require.NoError(t, err)
	assert.NotEqual(t, plain.Data, stamped)
	has, err = api.HasWatermarks(bytes.NewReader(stamped), nil)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Len(t, pdfPageDims(t, stamped), 2)
}

func TestConvert_AppliesWatermark(t *testing.T) {
	dir := t.TempDir()
	images := []string{writeImage(t, dir, "1.jpg", 200, 200), writeImage(t, dir, "2.jpg", 200, 200)}
	p := newPipeline(t, Config{}, nil)

	opts := types.DefaultOptions()
	opts.Watermark = "CONFIDENTIAL"
	res, err := p.Convert(context.Background(), images, opts)
	require.NoError(t, err)
	assert.Len(t, pdfPageDims(t, res.Data), 2)
	has, err := api.HasWatermarks(bytes.NewReader(res.Data), nil)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestConvert_ReleasesIntermediateFiles(t *testing.T) {
	root := t.TempDir()
	blobs, err := blob.NewStore(root)
	require.NoError(t, err)
	p := NewPipeline(Config{}, blobs, nil, logging.Nop())

	src := writeImage(t, t.TempDir(), "a.jpg", 64, 64)
	opts := types.DefaultOptions()
	opts.Rotation = 180
	_, err = p.Convert(context.Background(), []string{src}, opts)
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
