package messages

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func Title(text string) string {
	return fmt.Sprintf("✨ <b>%s</b>", Escape(text))
}

func FileLine(fileName string) string {
	name := strings.TrimSpace(fileName)
	if name == "" {
		name = "document.pdf"
	}
	return fmt.Sprintf("📄 <b>File:</b> %s", Escape(name))
}

func ErrorDefault() string {
	return "🚫 <b>Something went wrong</b>\nPlease try again."
}

func ErrorUnsupportedMessageType() string {
	return "🤖 <b>I can't use that</b>\nSend a photo or an image file, then /convert."
}

func ErrorCannotProcessFile() string {
	return "🚫 <b>Could not read this image</b>\nTry sending it again, or as a file."
}

func ErrorUnknownCommand() string {
	return "❓ <b>Unknown command</b>\nSee /help."
}

func ErrorBusy() string {
	return "⏳ <b>Too busy right now</b>\nTry /convert again in a minute."
}

func ErrorRateLimited() string {
	return "🐢 <b>Slow down</b>\nToo many messages, wait a moment."
}

func StartWelcome() string {
	return "👋 <b>Hi!</b>\nI turn images into a PDF.\n\n" +
		"📎 Send photos or image files, one or many.\n" +
		"🧾 Then press <b>Make PDF</b> or send /convert."
}

func HelpHeader() string {
	return "ℹ️ <b>Supported images</b>\n"
}

func HelpUsage() string {
	return "🧭 <b>Usage</b>\n" +
		"1) Send images\n" +
		"2) Adjust /options if you like\n" +
		"3) /convert\n\n" +
		"<b>Session:</b> /new /list /remove n /cancel /convert\n" +
		"<b>Options:</b> /pagesize auto|a4|letter, /margin mm, /rotate 0|90|180|270, " +
		"/compress 0.1..1, /watermark text|off, /ocr on|off, /title text\n" +
		"<b>Library:</b> /find text, /get slug, /recent [n], /my, /rename slug title"
}

func NewSession() string {
	return "🆕 <b>New batch</b>\nSend the images you want in the PDF."
}

func SessionCleared() string {
	return "🧹 <b>Cleared</b>\nThe pending images were removed."
}

func ImageAdded(count, max int) string {
	if max > 0 {
		return fmt.Sprintf("🖼 <b>Image added</b> (%d/%d)", count, max)
	}
	return fmt.Sprintf("🖼 <b>Image added</b> (%d)", count)
}

func ImageRemoved(n, remaining int) string {
	return fmt.Sprintf("🗑 <b>Image #%d removed</b> (%d left)", n, remaining)
}

func SessionList(count int, totalBytes int64) string {
	if count == 0 {
		return "📭 <b>No images yet</b>\nSend some photos first."
	}
	return fmt.Sprintf("🗂 <b>Pending:</b> %d image(s), %s", count, HumanBytes(totalBytes))
}

func OptionsSummary(opts types.Options) string {
	var b strings.Builder
	b.WriteString("⚙️ <b>Options</b>\n")
	fmt.Fprintf(&b, "Page size: <code>%s</code>\n", opts.PageSize)
	fmt.Fprintf(&b, "Margin: <code>%d mm</code>\n", opts.MarginMM)
	fmt.Fprintf(&b, "Rotation: <code>%d°</code>\n", opts.Rotation)
	fmt.Fprintf(&b, "Compression: <code>%.2f</code>\n", opts.Scale)
	wm := opts.Watermark
	if wm == "" {
		wm = "off"
	}
	fmt.Fprintf(&b, "Watermark: <code>%s</code>\n", Escape(wm))
	ocr := "off"
	if opts.OCR {
		ocr = "on"
	}
	fmt.Fprintf(&b, "OCR: <code>%s</code>", ocr)
	if opts.Title != "" {
		fmt.Fprintf(&b, "\nTitle: <code>%s</code>", Escape(opts.Title))
	}
	return b.String()
}

func OptionUsage(command, usage string) string {
	return fmt.Sprintf("✍️ <b>Usage:</b> <code>/%s %s</code>", Escape(command), Escape(usage))
}

func QueueAlreadyQueued() string {
	return "⚠️ <b>Already converting</b>\nWait for the current PDF."
}

func QueueQueued(fileName string, position int) string {
	return fmt.Sprintf("⏳ <b>In queue:</b> %d\n%s", position, FileLine(fileName))
}

func QueueStarted(fileName string, pages int) string {
	return fmt.Sprintf("⚙️ <b>Building PDF</b> (%d page(s))\n%s", pages, FileLine(fileName))
}

func ConversionDone(fileName string, pages int, slug string) string {
	msg := fmt.Sprintf("✅ <b>Done</b>, %d page(s)\n%s", pages, FileLine(fileName))
	if slug != "" {
		msg += fmt.Sprintf("\n🔖 <code>/get %s</code>", Escape(slug))
	}
	return msg
}

func ConversionCancelled() string {
	return "🛑 <b>Cancelled</b>"
}

func ErrorConversionFailed(fileName string, err error) string {
	return "🚫 <b>Conversion failed</b>\n" + FileLine(fileName) + "\n\n" + ErrorText(err)
}

func CatalogEntryLine(e types.CatalogEntry) string {
	created := time.Unix(e.CreatedAt, 0).UTC().Format("2006-01-02")
	return fmt.Sprintf("• <code>%s</code> %s <i>(%s)</i>", Escape(e.Slug), Escape(e.Title), created)
}

func CatalogList(header string, entries []types.CatalogEntry) string {
	if len(entries) == 0 {
		return "📭 <b>Nothing found</b>"
	}
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, "📚 <b>"+Escape(header)+"</b>")
	for _, e := range entries {
		lines = append(lines, CatalogEntryLine(e))
	}
	return strings.Join(lines, "\n")
}

func CatalogRenamed(slug, title string) string {
	return fmt.Sprintf("✏️ <code>%s</code> is now <b>%s</b>", Escape(slug), Escape(title))
}

func CatalogDeleted(slug string) string {
	return fmt.Sprintf("🗑 <code>%s</code> deleted", Escape(slug))
}

// ErrorText maps a domain error to the text shown to the user.
func ErrorText(err error) string {
	var imgErr *types.ImageError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &imgErr):
		return fmt.Sprintf("🚫 Image #%d could not be read. Drop it with <code>/remove %d</code> and send /convert again.", imgErr.Index+1, imgErr.Index+1)
	case errors.Is(err, types.ErrNoImages):
		return "📭 No images yet. Send some photos first."
	case errors.Is(err, types.ErrCapacityExceeded):
		return "📦 This batch is full. Send /convert or /cancel."
	case errors.Is(err, types.ErrSizeExceeded):
		return "📏 The image is too large for this batch."
	case errors.Is(err, types.ErrDecode):
		return "🚫 That file is not an image I can read."
	case errors.Is(err, types.ErrUnavailable):
		return "🔌 That feature is not available on this server."
	case errors.Is(err, types.ErrInvalidOption):
		return "✍️ Invalid value. See /help."
	case errors.Is(err, types.ErrUnauthorized):
		return "⛔ You are not allowed to do that."
	case errors.Is(err, types.ErrNotFound):
		return "🔍 Not found."
	case errors.Is(err, types.ErrConversion):
		return "🚫 Could not build the PDF. Please try again."
	}
	return ErrorDefault()
}

// Known reports whether err belongs to the domain error taxonomy.
func Known(err error) bool {
	var imgErr *types.ImageError
	if errors.As(err, &imgErr) {
		return true
	}
	for _, target := range []error{
		types.ErrNoImages, types.ErrCapacityExceeded, types.ErrSizeExceeded, types.ErrDecode,
		types.ErrUnavailable, types.ErrInvalidOption, types.ErrUnauthorized, types.ErrNotFound,
		types.ErrConversion,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
