package normalizer

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exifSegment builds an APP1 payload with a single IFD0 orientation entry.
func exifSegment(order binary.ByteOrder, orientation uint16) []byte {
	tiff := make([]byte, 8+2+12+4)
	if order == binary.LittleEndian {
		copy(tiff, "II")
	} else {
		copy(tiff, "MM")
	}
	order.PutUint16(tiff[2:], 0x2A)
	order.PutUint32(tiff[4:], 8)
	order.PutUint16(tiff[8:], 1)
	order.PutUint16(tiff[10:], 0x0112)
	order.PutUint16(tiff[12:], 3)
	order.PutUint32(tiff[14:], 1)
	order.PutUint16(tiff[18:], orientation)
	return append([]byte("Exif\x00\x00"), tiff...)
}

// writeJPEGWithExif writes a small JPEG, splicing app1 right after SOI.
func writeJPEGWithExif(t *testing.T, app1 []byte) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 4)), nil))
	data := buf.Bytes()

	var out bytes.Buffer
	out.Write(data[:2])
	if app1 != nil {
		out.Write([]byte{0xFF, 0xE1})
		var size [2]byte
		binary.BigEndian.PutUint16(size[:], uint16(len(app1)+2))
		out.Write(size[:])
		out.Write(app1)
	}
	out.Write(data[2:])

	path := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o644))
	return path
}

func TestExifOrientation(t *testing.T) {
	assert.Equal(t, 6, exifOrientation(writeJPEGWithExif(t, exifSegment(binary.LittleEndian, 6))))
	assert.Equal(t, 3, exifOrientation(writeJPEGWithExif(t, exifSegment(binary.BigEndian, 3))))
	assert.Equal(t, 1, exifOrientation(writeJPEGWithExif(t, exifSegment(binary.BigEndian, 42))))
	assert.Equal(t, 1, exifOrientation(writeJPEGWithExif(t, nil)))
	assert.Equal(t, 1, exifOrientation(filepath.Join(t.TempDir(), "missing.jpg")))
}
