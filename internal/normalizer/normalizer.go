// Package normalizer makes downloaded images safe to embed: decodable,
// bounded in size and in a format the PDF writer understands.
package normalizer

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

const DefaultJPEGQuality = 85

type Limits struct {
	MaxDimension int
	MaxBytes     int64
	JPEGQuality  int
}

type Result struct {
	Width   int
	Height  int
	Bytes   int64
	Format  string
	Resized bool
}

// Embeddable reports whether the PDF writer takes this format as is.
func Embeddable(format string) bool {
	switch format {
	case "jpeg", "png", "gif":
		return true
	}
	return false
}

// Normalize validates the image at path and rewrites it in place as an
// opaque JPEG when its long edge exceeds the limit, its format cannot be
// embedded directly or it carries an EXIF rotation. Otherwise the file is
// left untouched.
func Normalize(path string, limits Limits) (Result, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}
	if limits.MaxBytes > 0 && st.Size() > limits.MaxBytes {
		return Result{}, fmt.Errorf("%w: %d bytes, limit %d", types.ErrSizeExceeded, st.Size(), limits.MaxBytes)
	}

	format, err := sniff(path)
	if err != nil {
		return Result{}, err
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}

	b := img.Bounds()
	res := Result{Width: b.Dx(), Height: b.Dy(), Bytes: st.Size(), Format: format}

	long := res.Width
	if res.Height > long {
		long = res.Height
	}
	needResize := limits.MaxDimension > 0 && long > limits.MaxDimension
	rotated := format == "jpeg" && exifOrientation(path) > 1
	if !needResize && !rotated && Embeddable(format) {
		return res, nil
	}

	if needResize {
		if res.Width >= res.Height {
			img = imaging.Resize(img, limits.MaxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, limits.MaxDimension, imaging.Lanczos)
		}
		res.Resized = true
	}

	quality := limits.JPEGQuality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	size, err := writeJPEG(path, Flatten(img), quality)
	if err != nil {
		return Result{}, err
	}

	b = img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()
	res.Bytes = size
	res.Format = "jpeg"
	return res, nil
}

// Flatten composites img onto white, dropping any alpha.
func Flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrDecode, err)
	}
	return format, nil
}

func writeJPEG(path string, img image.Image, quality int) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".norm_*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}
