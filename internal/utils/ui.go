package utils

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

// Callback data prefixes. The value follows the colon.
const (
	CallbackPageSize = "ps"
	CallbackRotate   = "rot"
	CallbackOCR      = "ocr"
	CallbackAction   = "act"

	ActionConvert = "convert"
	ActionCancel  = "cancel"
	OCRToggle     = "toggle"
)

type Button struct {
	Text         string
	CallbackData string
}

func CallbackData(kind, value string) string {
	return kind + ":" + value
}

// ParseCallbackData splits "kind:value".
func ParseCallbackData(data string) (kind, value string, ok bool) {
	kind, value, ok = strings.Cut(strings.TrimSpace(data), ":")
	if !ok || kind == "" || value == "" {
		return "", "", false
	}
	return kind, value, true
}

// BuildInlineKeyboard lays buttons out in rows of perRow.
func BuildInlineKeyboard(buttons []Button, perRow int) models.InlineKeyboardMarkup {
	if perRow <= 0 {
		perRow = 3
	}
	pad := func(s string) string { return " " + s + " " }
	rows := make([][]models.InlineKeyboardButton, 0)
	row := make([]models.InlineKeyboardButton, 0, perRow)
	for i, button := range buttons {
		if i > 0 && i%perRow == 0 {
			rows = append(rows, row)
			row = make([]models.InlineKeyboardButton, 0, perRow)
		}
		row = append(row, models.InlineKeyboardButton{
			Text:         pad(button.Text),
			CallbackData: button.CallbackData,
		})
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	}
}

// ActionKeyboard is shown after every accepted image.
func ActionKeyboard() models.InlineKeyboardMarkup {
	return BuildInlineKeyboard([]Button{
		{Text: "🧾 Make PDF", CallbackData: CallbackData(CallbackAction, ActionConvert)},
		{Text: "🗑 Cancel", CallbackData: CallbackData(CallbackAction, ActionCancel)},
	}, 2)
}

// OptionsKeyboard marks the current choices with a check.
func OptionsKeyboard(opts types.Options, ocrAvailable bool) models.InlineKeyboardMarkup {
	mark := func(on bool, text string) string {
		if on {
			return "✅ " + text
		}
		return text
	}

	sizes := []types.PageSize{types.PageSizeAuto, types.PageSizeA4, types.PageSizeLetter}
	sizeRow := make([]Button, 0, len(sizes))
	for _, ps := range sizes {
		sizeRow = append(sizeRow, Button{
			Text:         mark(opts.PageSize == ps, string(ps)),
			CallbackData: CallbackData(CallbackPageSize, strings.ToLower(string(ps))),
		})
	}

	rotRow := make([]Button, 0, 4)
	for _, deg := range []int{0, 90, 180, 270} {
		rotRow = append(rotRow, Button{
			Text:         mark(opts.Rotation == deg, fmt.Sprintf("%d°", deg)),
			CallbackData: CallbackData(CallbackRotate, fmt.Sprint(deg)),
		})
	}

	kb := BuildInlineKeyboard(sizeRow, 3)
	kb.InlineKeyboard = append(kb.InlineKeyboard, BuildInlineKeyboard(rotRow, 4).InlineKeyboard...)
	if ocrAvailable {
		kb.InlineKeyboard = append(kb.InlineKeyboard, BuildInlineKeyboard([]Button{
			{Text: mark(opts.OCR, "🔎 OCR"), CallbackData: CallbackData(CallbackOCR, OCRToggle)},
		}, 1).InlineKeyboard...)
	}
	kb.InlineKeyboard = append(kb.InlineKeyboard, ActionKeyboard().InlineKeyboard...)
	return kb
}
