// Package formats decides which incoming files are images the bot accepts.
package formats

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BatmanBruc/pdf-batch-bot/internal/messages"
)

type FormatCategory struct {
	Name    string
	Icon    string
	Formats []string
}

// SupportedImages lists what the normalizer can decode.
var SupportedImages = FormatCategory{
	Name:    "Images",
	Icon:    "📷",
	Formats: []string{"JPG", "JPEG", "PNG", "GIF", "BMP", "TIF", "TIFF", "WEBP"},
}

var mimeToExt = map[string]string{
	"jpeg":     "jpg",
	"jpg":      "jpg",
	"pjpeg":    "jpg",
	"png":      "png",
	"gif":      "gif",
	"bmp":      "bmp",
	"x-ms-bmp": "bmp",
	"tiff":     "tiff",
	"tif":      "tif",
	"webp":     "webp",
}

func IsImageExtension(ext string) bool {
	ext = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return false
	}
	for _, f := range SupportedImages.Formats {
		if f == ext {
			return true
		}
	}
	return false
}

func IsImageFileName(name string) bool {
	return IsImageExtension(filepath.Ext(name))
}

// IsImageMIME accepts image/* types the decoder knows.
func IsImageMIME(mimeType string) bool {
	major, minor, ok := splitMIME(mimeType)
	if !ok || major != "image" {
		return false
	}
	_, known := mimeToExt[minor]
	return known
}

// IsImageDocument accepts a document when either its MIME type or its file
// name says it is a supported image.
func IsImageDocument(mimeType, fileName string) bool {
	return IsImageMIME(mimeType) || IsImageFileName(fileName)
}

// ExtensionFromMIME returns the file extension for mimeType, or defaultExt
// when the type is empty or unknown.
func ExtensionFromMIME(mimeType, defaultExt string) string {
	_, minor, ok := splitMIME(mimeType)
	if !ok {
		return defaultExt
	}
	if ext := mimeToExt[minor]; ext != "" {
		return ext
	}
	return defaultExt
}

// FileName makes sure name carries an extension, deriving one from the MIME
// type when needed.
func FileName(name, mimeType, fallbackBase string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallbackBase + "." + ExtensionFromMIME(mimeType, "jpg")
	}
	if filepath.Ext(name) == "" {
		return name + "." + ExtensionFromMIME(mimeType, "jpg")
	}
	return name
}

func splitMIME(mimeType string) (major, minor string, ok bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	parts := strings.Split(mimeType, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func GetHelpMessage() string {
	var msg strings.Builder
	msg.WriteString(messages.HelpHeader())
	msg.WriteString("\n")
	msg.WriteString(fmt.Sprintf("• <b>%s %s</b>\n", SupportedImages.Icon, messages.Escape(SupportedImages.Name)))
	msg.WriteString("<code>")
	msg.WriteString(messages.Escape(strings.Join(SupportedImages.Formats, ", ")))
	msg.WriteString("</code>\n\n")
	msg.WriteString(messages.HelpUsage())
	return msg.String()
}
