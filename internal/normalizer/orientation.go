package normalizer

import (
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// exifOrientation returns the EXIF orientation tag of a JPEG file, or 1
// when there is none. imaging applies the tag while decoding but does not
// report it, and the PDF writer embeds JPEG bytes without applying it.
func exifOrientation(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if x == nil || (err != nil && exif.IsCriticalError(err)) {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}
