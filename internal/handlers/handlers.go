package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/internal/catalog"
	"github.com/BatmanBruc/pdf-batch-bot/internal/contextkeys"
	"github.com/BatmanBruc/pdf-batch-bot/internal/fetch"
	"github.com/BatmanBruc/pdf-batch-bot/internal/messages"
	"github.com/BatmanBruc/pdf-batch-bot/internal/middleware"
	"github.com/BatmanBruc/pdf-batch-bot/internal/normalizer"
	"github.com/BatmanBruc/pdf-batch-bot/internal/session"
)

// Messenger is the part of *bot.Bot the handlers reply through.
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
}

type Downloader interface {
	Download(ctx context.Context, scope *blob.Scope, req fetch.Request) (fetch.File, error)
}

type Submitter interface {
	Submit(ctx context.Context, chatID, userID int64) (int, error)
	InFlight(chatID int64) bool
}

type Limiter interface {
	Wait(ctx context.Context) error
}

type Config struct {
	Normalize normalizer.Limits
}

type Handlers struct {
	sessions   *session.Service
	catalog    *catalog.Service
	scheduler  Submitter
	downloader Downloader
	limiter    Limiter
	cfg        Config
	logger     zerolog.Logger

	// api overrides the bot passed to handlers; tests set it.
	api Messenger
}

func NewHandlers(sessions *session.Service, cat *catalog.Service, scheduler Submitter, downloader Downloader, limiter Limiter, cfg Config, logger zerolog.Logger) *Handlers {
	return &Handlers{
		sessions:   sessions,
		catalog:    cat,
		scheduler:  scheduler,
		downloader: downloader,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger.With().Str("component", "handlers").Logger(),
	}
}

// request carries what every handler needs about one update.
type request struct {
	api    Messenger
	update *models.Update
	chatID int64
	userID int64
	log    zerolog.Logger
}

func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	var api Messenger = bh.api
	if api == nil {
		api = b
	}
	bh.Handle(ctx, api, update)
}

func (bh *Handlers) Handle(ctx context.Context, api Messenger, update *models.Update) {
	chatID, ok := contextkeys.GetChatID(ctx)
	if !ok {
		ctx = middleware.Analyze(ctx, update)
		chatID, _ = contextkeys.GetChatID(ctx)
	}
	userID, _ := contextkeys.GetUserID(ctx)
	if chatID == 0 {
		return
	}
	req := &request{
		api:    api,
		update: update,
		chatID: chatID,
		userID: userID,
		log:    bh.logger.With().Int64("chat_id", chatID).Int64("user_id", userID).Logger(),
	}

	if _, err := bh.sessions.Touch(ctx, chatID, userID); err != nil {
		bh.fail(ctx, req, err)
		return
	}

	messageType, _ := contextkeys.GetMessageType(ctx)
	switch messageType {
	case contextkeys.MessageTypeCommand:
		bh.HandleCommand(ctx, req)
	case contextkeys.MessageTypeDocument, contextkeys.MessageTypePhoto:
		bh.HandleFile(ctx, req)
	case contextkeys.MessageTypeText:
		bh.HandleText(ctx, req)
	case contextkeys.MessageTypeClickButton:
		bh.HandleClickButton(ctx, req)
	default:
		bh.reply(ctx, req, messages.ErrorUnsupportedMessageType())
	}
}

func (bh *Handlers) wait(ctx context.Context) error {
	if bh.limiter == nil {
		return nil
	}
	return bh.limiter.Wait(ctx)
}

func (bh *Handlers) send(ctx context.Context, req *request, params *bot.SendMessageParams) *models.Message {
	if err := bh.wait(ctx); err != nil {
		return nil
	}
	params.ChatID = req.chatID
	params.ParseMode = messages.ParseModeHTML
	msg, err := req.api.SendMessage(ctx, params)
	if err != nil {
		req.log.Warn().Err(err).Msg("send message")
		return nil
	}
	return msg
}

func (bh *Handlers) reply(ctx context.Context, req *request, text string) {
	bh.send(ctx, req, &bot.SendMessageParams{Text: text})
}

func (bh *Handlers) replyWithKeyboard(ctx context.Context, req *request, text string, kb models.InlineKeyboardMarkup) {
	bh.send(ctx, req, &bot.SendMessageParams{Text: text, ReplyMarkup: &kb})
}

// fail answers with the message for err's class. Errors outside the domain
// taxonomy are logged and answered generically.
func (bh *Handlers) fail(ctx context.Context, req *request, err error) {
	if err == nil {
		return
	}
	if !messages.Known(err) {
		req.log.Error().Err(err).Msg("handler failed")
	} else {
		req.log.Debug().Err(err).Msg("request rejected")
	}
	bh.reply(ctx, req, messages.ErrorText(err))
}

func (bh *Handlers) answerCallback(ctx context.Context, req *request, text string, alert bool) {
	if req.update.CallbackQuery == nil {
		return
	}
	if _, err := req.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: req.update.CallbackQuery.ID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil && !errors.Is(err, context.Canceled) {
		req.log.Debug().Err(err).Msg("answer callback")
	}
}
