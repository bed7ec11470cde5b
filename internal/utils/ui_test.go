package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

func TestParseCallbackData(t *testing.T) {
	kind, value, ok := ParseCallbackData("ps:a4")
	assert.True(t, ok)
	assert.Equal(t, "ps", kind)
	assert.Equal(t, "a4", value)

	for _, bad := range []string{"", "ps", ":a4", "ps:", "garbage"} {
		_, _, ok := ParseCallbackData(bad)
		assert.False(t, ok, bad)
	}
}

func TestBuildInlineKeyboardRows(t *testing.T) {
	kb := BuildInlineKeyboard(make([]Button, 7), 3)
	assert.Len(t, kb.InlineKeyboard, 3)
	assert.Len(t, kb.InlineKeyboard[2], 1)
}

func TestOptionsKeyboard(t *testing.T) {
	opts := types.DefaultOptions()
	opts.PageSize = types.PageSizeA4
	opts.Rotation = 180

	without := OptionsKeyboard(opts, false)
	with := OptionsKeyboard(opts, true)
	assert.Len(t, with.InlineKeyboard, len(without.InlineKeyboard)+1)

	var checked []string
	for _, row := range with.InlineKeyboard {
		for _, b := range row {
			assert.LessOrEqual(t, len(b.CallbackData), 64, "telegram callback data limit")
			if strings.Contains(b.Text, "✅") {
				checked = append(checked, b.CallbackData)
			}
		}
	}
	assert.ElementsMatch(t, []string{"ps:a4", "rot:180"}, checked)
}
