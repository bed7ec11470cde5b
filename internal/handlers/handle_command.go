package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/pdf-batch-bot/internal/catalog"
	"github.com/BatmanBruc/pdf-batch-bot/internal/formats"
	"github.com/BatmanBruc/pdf-batch-bot/internal/messages"
	"github.com/BatmanBruc/pdf-batch-bot/internal/scheduler"
	"github.com/BatmanBruc/pdf-batch-bot/internal/utils"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

// ParseCommand splits "/cmd@bot rest of text" into "/cmd" and the trimmed
// rest.
func ParseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	cmd, args, _ = strings.Cut(text, " ")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

var optionCommands = map[string]struct {
	key   types.OptionKey
	usage string
}{
	"/pagesize":  {types.OptionPageSize, "auto|a4|letter"},
	"/margin":    {types.OptionMargin, "0..50"},
	"/rotate":    {types.OptionRotation, "0|90|180|270"},
	"/compress":  {types.OptionScale, "0.1..1"},
	"/watermark": {types.OptionWatermark, "text|off"},
	"/ocr":       {types.OptionOCR, "on|off"},
	"/title":     {types.OptionTitle, "text"},
}

func (bh *Handlers) HandleCommand(ctx context.Context, req *request) {
	if req.update.Message == nil {
		return
	}
	cmd, args := ParseCommand(req.update.Message.Text)

	if opt, ok := optionCommands[cmd]; ok {
		bh.setOption(ctx, req, strings.TrimPrefix(cmd, "/"), opt.key, opt.usage, args)
		return
	}

	switch cmd {
	case "/start":
		bh.reply(ctx, req, messages.StartWelcome())
	case "/help":
		bh.reply(ctx, req, formats.GetHelpMessage())
	case "/new", "/add":
		if err := bh.sessions.Clear(ctx, req.chatID); err != nil {
			bh.fail(ctx, req, err)
			return
		}
		bh.reply(ctx, req, messages.NewSession())
	case "/cancel":
		bh.cancel(ctx, req)
	case "/list":
		count, total, err := bh.sessions.List(ctx, req.chatID)
		if err != nil {
			bh.fail(ctx, req, err)
			return
		}
		bh.reply(ctx, req, messages.SessionList(count, total))
	case "/convert", "/pdf", "/make_pdf":
		bh.convert(ctx, req)
	case "/remove":
		bh.removeImage(ctx, req, args)
	case "/options":
		bh.showOptions(ctx, req)
	case "/find":
		if args == "" {
			bh.reply(ctx, req, messages.OptionUsage("find", "text"))
			return
		}
		entries, err := bh.catalog.Find(ctx, args, catalog.DefaultListLen)
		bh.replyList(ctx, req, "Found", entries, err)
	case "/recent":
		n := catalog.DefaultListLen
		if args != "" {
			v, err := strconv.Atoi(args)
			if err != nil {
				bh.reply(ctx, req, messages.OptionUsage("recent", "[n]"))
				return
			}
			n = v
		}
		entries, err := bh.catalog.Recent(ctx, n)
		bh.replyList(ctx, req, "Recent", entries, err)
	case "/my":
		entries, err := bh.catalog.ByUploader(ctx, req.userID, catalog.DefaultListLen)
		bh.replyList(ctx, req, "Your PDFs", entries, err)
	case "/get":
		bh.get(ctx, req, args)
	case "/rename":
		slug, title, _ := strings.Cut(args, " ")
		if slug == "" || strings.TrimSpace(title) == "" {
			bh.reply(ctx, req, messages.OptionUsage("rename", "slug new title"))
			return
		}
		title, err := bh.catalog.Rename(ctx, slug, title, req.userID)
		if err != nil {
			bh.fail(ctx, req, err)
			return
		}
		bh.reply(ctx, req, messages.CatalogRenamed(slug, title))
	case "/delete":
		if args == "" {
			bh.reply(ctx, req, messages.OptionUsage("delete", "slug"))
			return
		}
		if err := bh.catalog.Delete(ctx, args, req.userID); err != nil {
			bh.fail(ctx, req, err)
			return
		}
		bh.reply(ctx, req, messages.CatalogDeleted(args))
	default:
		bh.reply(ctx, req, messages.ErrorUnknownCommand())
	}
}

func (bh *Handlers) setOption(ctx context.Context, req *request, name string, key types.OptionKey, usage, value string) {
	if value == "" {
		bh.reply(ctx, req, messages.OptionUsage(name, usage))
		return
	}
	opts, err := bh.sessions.SetOption(ctx, req.chatID, key, value)
	if err != nil {
		if errors.Is(err, types.ErrInvalidOption) {
			bh.reply(ctx, req, messages.OptionUsage(name, usage))
			return
		}
		bh.fail(ctx, req, err)
		return
	}
	bh.reply(ctx, req, messages.OptionsSummary(opts))
}

func (bh *Handlers) showOptions(ctx context.Context, req *request) {
	opts, err := bh.sessions.Options(ctx, req.chatID)
	if err != nil {
		bh.fail(ctx, req, err)
		return
	}
	bh.replyWithKeyboard(ctx, req, messages.OptionsSummary(opts), utils.OptionsKeyboard(opts, bh.sessions.OCRAvailable()))
}

func (bh *Handlers) convert(ctx context.Context, req *request) {
	_, err := bh.scheduler.Submit(ctx, req.chatID, req.userID)
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrAlreadyQueued):
		bh.reply(ctx, req, messages.QueueAlreadyQueued())
	case errors.Is(err, scheduler.ErrQueueFull), errors.Is(err, scheduler.ErrStopped):
		req.log.Warn().Err(err).Msg("conversion not queued")
		bh.reply(ctx, req, messages.ErrorBusy())
	default:
		bh.fail(ctx, req, err)
	}
}

func (bh *Handlers) removeImage(ctx context.Context, req *request, arg string) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(arg), "#"))
	if err != nil {
		bh.reply(ctx, req, messages.OptionUsage("remove", "n"))
		return
	}
	left, err := bh.sessions.RemoveImage(ctx, req.chatID, n)
	if err != nil {
		if errors.Is(err, types.ErrInvalidOption) {
			bh.reply(ctx, req, messages.OptionUsage("remove", "n"))
			return
		}
		bh.fail(ctx, req, err)
		return
	}
	bh.reply(ctx, req, messages.ImageRemoved(n, left))
}

func (bh *Handlers) cancel(ctx context.Context, req *request) {
	running := bh.scheduler.InFlight(req.chatID)
	if err := bh.sessions.Clear(ctx, req.chatID); err != nil {
		bh.fail(ctx, req, err)
		return
	}
	if running {
		bh.reply(ctx, req, messages.ConversionCancelled())
		return
	}
	bh.reply(ctx, req, messages.SessionCleared())
}

func (bh *Handlers) replyList(ctx context.Context, req *request, header string, entries []types.CatalogEntry, err error) {
	if err != nil {
		bh.fail(ctx, req, err)
		return
	}
	bh.reply(ctx, req, messages.CatalogList(header, entries))
}

// get re-sends a catalogued PDF by its platform file id; nothing is
// downloaded or rebuilt.
func (bh *Handlers) get(ctx context.Context, req *request, slug string) {
	if slug == "" {
		bh.reply(ctx, req, messages.OptionUsage("get", "slug"))
		return
	}
	entry, err := bh.catalog.Get(ctx, slug)
	if err != nil {
		bh.fail(ctx, req, err)
		return
	}
	if err := bh.wait(ctx); err != nil {
		return
	}
	if _, err := req.api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:    req.chatID,
		Document:  &models.InputFileString{Data: entry.FileID},
		Caption:   messages.CatalogEntryLine(entry),
		ParseMode: messages.ParseModeHTML,
	}); err != nil {
		req.log.Warn().Err(err).Str("slug", slug).Msg("resend catalog entry")
		bh.reply(ctx, req, messages.ErrorDefault())
	}
}
