package middleware

import (
	"context"
	"runtime/debug"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/BatmanBruc/pdf-batch-bot/internal/contextkeys"
	"github.com/BatmanBruc/pdf-batch-bot/internal/formats"
	"github.com/BatmanBruc/pdf-batch-bot/internal/messages"
	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
)

// Limiter decides whether a user may send another update right now.
type Limiter interface {
	Allow(userID int64) bool
}

type Middlewares struct {
	limiter Limiter
	logger  zerolog.Logger
}

func NewMessageAnalyzer(limiter Limiter, logger zerolog.Logger) *Middlewares {
	return &Middlewares{
		limiter: limiter,
		logger:  logger.With().Str("component", "middleware").Logger(),
	}
}

// Recover turns a panic in a handler into a log line and a generic reply.
func (m *Middlewares) Recover(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		defer func() {
			if r := recover(); r != nil {
				chatID, userID := ChatAndUser(update)
				m.logger.Error().
					Interface("panic", r).
					Int64("chat_id", chatID).
					Int64("user_id", userID).
					Str("stack", string(debug.Stack())).
					Msg("handler panicked")
				if b != nil && chatID != 0 {
					_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
						ChatID:    chatID,
						Text:      messages.ErrorDefault(),
						ParseMode: messages.ParseModeHTML,
					})
				}
			}
		}()
		next(ctx, b, update)
	}
}

// RateLimit drops updates from users over their window.
func (m *Middlewares) RateLimit(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		_, userID := ChatAndUser(update)
		if m.limiter == nil || userID == 0 || m.limiter.Allow(userID) {
			next(ctx, b, update)
			return
		}
		m.logger.Debug().Int64("user_id", userID).Msg("rate limited")
		if b != nil && update.CallbackQuery != nil {
			_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
				CallbackQueryID: update.CallbackQuery.ID,
				Text:            "Too many requests, wait a moment.",
			})
		}
	}
}

// ChatAndUser extracts the ids an update belongs to; zero when absent.
func ChatAndUser(update *models.Update) (chatID, userID int64) {
	switch {
	case update == nil:
		return 0, 0
	case update.Message != nil:
		chatID = update.Message.Chat.ID
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
	case update.CallbackQuery != nil:
		userID = update.CallbackQuery.From.ID
		chatID = getChatIDFromMaybeInaccessibleMessage(update.CallbackQuery.Message)
		if chatID == 0 {
			chatID = userID
		}
	}
	return chatID, userID
}

func getChatIDFromMaybeInaccessibleMessage(m models.MaybeInaccessibleMessage) int64 {
	if m.Message != nil {
		return m.Message.Chat.ID
	}
	if m.InaccessibleMessage != nil {
		return m.InaccessibleMessage.Chat.ID
	}
	return 0
}

func (m *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		ctx = Analyze(ctx, update)
		msgType, _ := contextkeys.GetMessageType(ctx)
		metrics.UpdatesTotal.WithLabelValues(string(msgType)).Inc()
		next(ctx, b, update)
	}
}

// Analyze stores the chat, message type, callback data and attached files
// of update in ctx.
func Analyze(ctx context.Context, update *models.Update) context.Context {
	chatID, userID := ChatAndUser(update)
	ctx = contextkeys.WithChat(ctx, chatID, userID)

	if update == nil {
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
	}

	if update.CallbackQuery != nil && update.CallbackQuery.Data != "" {
		ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
		return contextkeys.WithCallbackData(ctx, update.CallbackQuery.Data)
	}

	msg := update.Message
	if msg == nil {
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeUnknown)
	}
	if strings.HasPrefix(msg.Text, "/") {
		return contextkeys.WithMessageType(ctx, contextkeys.MessageTypeCommand)
	}

	ctx = contextkeys.WithMessageType(ctx, determineMessageType(msg))
	if files := analyzeFilesInMessage(msg); files.HasFiles {
		ctx = contextkeys.WithFilesInfo(ctx, files)
	}
	return ctx
}

func determineMessageType(msg *models.Message) contextkeys.MessageType {
	switch {
	case len(msg.Photo) > 0:
		return contextkeys.MessageTypePhoto
	case msg.Document != nil:
		return contextkeys.MessageTypeDocument
	case msg.Text != "" || msg.Caption != "":
		return contextkeys.MessageTypeText
	}
	return contextkeys.MessageTypeUnknown
}

func analyzeFilesInMessage(msg *models.Message) *contextkeys.FilesInfo {
	files := make([]contextkeys.FileInfo, 0, 1)

	if len(msg.Photo) > 0 {
		// Telegram sends several sizes of the same photo; keep the largest.
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.FileSize > best.FileSize || (p.FileSize == best.FileSize && p.Width*p.Height > best.Width*best.Height) {
				best = p
			}
		}
		files = append(files, contextkeys.FileInfo{
			FileType: contextkeys.MessageTypePhoto,
			FileID:   best.FileID,
			FileSize: int64(best.FileSize),
			Width:    best.Width,
			Height:   best.Height,
			FileName: "photo.jpg",
			IsImage:  true,
		})
	}

	if msg.Document != nil {
		files = append(files, analyzeDocument(msg.Document))
	}

	return &contextkeys.FilesInfo{
		TotalFiles: len(files),
		Files:      files,
		HasFiles:   len(files) > 0,
	}
}

func analyzeDocument(doc *models.Document) contextkeys.FileInfo {
	return contextkeys.FileInfo{
		FileType: contextkeys.MessageTypeDocument,
		FileID:   doc.FileID,
		FileSize: int64(doc.FileSize),
		MimeType: doc.MimeType,
		FileName: formats.FileName(doc.FileName, doc.MimeType, "document"),
		IsImage:  formats.IsImageDocument(doc.MimeType, doc.FileName),
	}
}
