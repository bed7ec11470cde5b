package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"

	"github.com/BatmanBruc/pdf-batch-bot/internal/contextkeys"
	"github.com/BatmanBruc/pdf-batch-bot/internal/messages"
	"github.com/BatmanBruc/pdf-batch-bot/internal/utils"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

func (bh *Handlers) HandleClickButton(ctx context.Context, req *request) {
	cq := req.update.CallbackQuery
	if cq == nil {
		return
	}
	data, _ := contextkeys.GetCallbackData(ctx)
	if data == "" {
		data = cq.Data
	}

	kind, value, ok := utils.ParseCallbackData(data)
	if !ok {
		bh.answerCallback(ctx, req, "Unknown button", false)
		return
	}

	switch kind {
	case utils.CallbackAction:
		bh.answerCallback(ctx, req, "", false)
		switch value {
		case utils.ActionConvert:
			bh.convert(ctx, req)
		case utils.ActionCancel:
			bh.cancel(ctx, req)
		}
	case utils.CallbackPageSize:
		bh.toggleOption(ctx, req, types.OptionPageSize, strings.ToUpper(value))
	case utils.CallbackRotate:
		bh.toggleOption(ctx, req, types.OptionRotation, value)
	case utils.CallbackOCR:
		bh.toggleOption(ctx, req, types.OptionOCR, value)
	default:
		bh.answerCallback(ctx, req, "Unknown button", false)
	}
}

// toggleOption applies a keyboard choice and redraws the options message in
// place.
func (bh *Handlers) toggleOption(ctx context.Context, req *request, key types.OptionKey, value string) {
	opts, err := bh.sessions.SetOption(ctx, req.chatID, key, value)
	if err != nil {
		bh.answerCallback(ctx, req, stripTags(messages.ErrorText(err)), true)
		return
	}
	bh.answerCallback(ctx, req, "Saved", false)

	msg := req.update.CallbackQuery.Message.Message
	if msg == nil {
		bh.showOptions(ctx, req)
		return
	}
	kb := utils.OptionsKeyboard(opts, bh.sessions.OCRAvailable())
	if err := bh.wait(ctx); err != nil {
		return
	}
	if _, err := req.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      req.chatID,
		MessageID:   msg.ID,
		Text:        messages.OptionsSummary(opts),
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: &kb,
	}); err != nil {
		req.log.Debug().Err(err).Msg("edit options message")
	}
}

// stripTags drops the HTML markup; callback alerts are plain text.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
