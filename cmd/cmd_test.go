package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/pdf-batch-bot/internal/catalog"
	"github.com/BatmanBruc/pdf-batch-bot/internal/logging"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TEMP_DIR", filepath.Join(dir, "blobs"))
	t.Setenv("CATALOG_BACKEND", "json")
	t.Setenv("CATALOG_PATH", filepath.Join(dir, "catalog.json"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{B: 255, A: 255})
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestConvertFlagsOptions(t *testing.T) {
	cf := &convertFlags{pageSize: "letter", margin: 80, rotate: -90, scale: 3, title: "x"}
	opts, err := cf.options(types.PageSizeAuto)
	require.NoError(t, err)
	assert.Equal(t, types.PageSizeLetter, opts.PageSize)
	assert.Equal(t, 50, opts.MarginMM)
	assert.Equal(t, 270, opts.Rotation)
	assert.Equal(t, 1.0, opts.Scale)

	_, err = (&convertFlags{pageSize: "b5", scale: 1}).options(types.PageSizeAuto)
	assert.ErrorIs(t, err, types.ErrInvalidOption)
	_, err = (&convertFlags{rotate: 45, scale: 1}).options(types.PageSizeAuto)
	assert.ErrorIs(t, err, types.ErrInvalidOption)

	opts, err = (&convertFlags{scale: 1}).options(types.PageSizeA4)
	require.NoError(t, err)
	assert.Equal(t, types.PageSizeA4, opts.PageSize)
}

func TestConvertCommand(t *testing.T) {
	dir := isolateEnv(t)
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	writePNG(t, a, 40, 30)
	writePNG(t, b, 30, 40)
	out := filepath.Join(dir, "out.pdf")

	_, err := execute(t, "convert", "--page-size", "a4", "-o", out, a, b)
	require.NoError(t, err)

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	_, err = execute(t, "convert", "-o", out, a, bad)
	var imgErr *types.ImageError
	require.ErrorAs(t, err, &imgErr)
	assert.Equal(t, 1, imgErr.Index)
}

func TestCatalogCommands(t *testing.T) {
	dir := isolateEnv(t)
	backend, err := catalog.NewFileBackend(filepath.Join(dir, "catalog.json"))
	require.NoError(t, err)
	svc := catalog.NewService(backend, nil, logging.Nop())
	slug, err := svc.Put(context.Background(), "Lecture Notes", "FILE-9", 42)
	require.NoError(t, err)

	out, err := execute(t, "catalog", "list")
	require.NoError(t, err)
	assert.Contains(t, out, slug)
	assert.Contains(t, out, "FILE-9")

	out, err = execute(t, "catalog", "list", "--uploader", "7")
	require.NoError(t, err)
	assert.NotContains(t, out, slug)

	out, err = execute(t, "catalog", "find", "lecture")
	require.NoError(t, err)
	assert.Contains(t, out, slug)

	_, err = execute(t, "catalog", "rename", slug, "Week", "One")
	require.NoError(t, err)
	e, err := svc.Get(context.Background(), slug)
	require.NoError(t, err)
	assert.Equal(t, "Week One", e.Title)

	_, err = execute(t, "catalog", "delete", slug)
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), slug)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = execute(t, "catalog", "delete", slug)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
