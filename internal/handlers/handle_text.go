package handlers

import (
	"context"

	"github.com/BatmanBruc/pdf-batch-bot/internal/messages"
)

// HandleText answers plain text with a usage hint; text only matters as a
// command argument.
func (bh *Handlers) HandleText(ctx context.Context, req *request) {
	count, total, err := bh.sessions.List(ctx, req.chatID)
	if err != nil {
		bh.fail(ctx, req, err)
		return
	}
	if count > 0 {
		bh.reply(ctx, req, messages.SessionList(count, total)+"\nSend /convert when ready.")
		return
	}
	bh.reply(ctx, req, messages.ErrorUnsupportedMessageType())
}
