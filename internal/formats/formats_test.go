package formats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsImageDocument(t *testing.T) {
	cases := []struct {
		mime, name string
		want       bool
	}{
		{"image/jpeg", "", true},
		{"image/png; charset=binary", "x", true},
		{"IMAGE/WEBP", "", true},
		{"application/octet-stream", "scan.TIFF", true},
		{"", "photo.heic", false},
		{"image/svg+xml", "logo.svg", false},
		{"application/pdf", "doc.pdf", false},
		{"", "", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsImageDocument(tc.mime, tc.name), "%s %s", tc.mime, tc.name)
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "scan.png", FileName("scan", "image/png", "document"))
	assert.Equal(t, "scan.jpeg", FileName("scan.jpeg", "image/png", "document"))
	assert.Equal(t, "document.bmp", FileName("  ", "image/x-ms-bmp", "document"))
	assert.Equal(t, "document.jpg", FileName("", "", "document"))
}

func TestGetHelpMessage(t *testing.T) {
	msg := GetHelpMessage()
	assert.Contains(t, msg, "WEBP")
	assert.Contains(t, msg, "/convert")
}
