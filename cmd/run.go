package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BatmanBruc/pdf-batch-bot/internal/catalog"
	"github.com/BatmanBruc/pdf-batch-bot/internal/fetch"
	"github.com/BatmanBruc/pdf-batch-bot/internal/handlers"
	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
	"github.com/BatmanBruc/pdf-batch-bot/internal/middleware"
	"github.com/BatmanBruc/pdf-batch-bot/internal/normalizer"
	"github.com/BatmanBruc/pdf-batch-bot/internal/ratelimit"
	"github.com/BatmanBruc/pdf-batch-bot/internal/scheduler"
	"github.com/BatmanBruc/pdf-batch-bot/internal/session"
)

const (
	pollTimeout   = 50 * time.Second
	sweepInterval = time.Hour
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		Long: `Starts the bot with long polling, or with a webhook when WEBHOOK_URL is set.
Metrics and the health check are served on HTTP_ADDR either way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()

			var cl closers
			defer cl.close()
			checks := map[string]metrics.HealthFunc{}

			blobs, err := openBlobs(cfg)
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}
			repo, err := openSessions(ctx, cfg, checks, &cl)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			backend, err := openCatalog(ctx, cfg, checks, &cl)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}

			pipeline := newPipeline(cfg, blobs, logger)
			sessions := session.NewService(repo, blobs, session.Config{
				Limits: session.Limits{
					MaxImages:       cfg.Limits.MaxImages,
					MaxFileBytes:    cfg.Limits.MaxFileBytes,
					MaxSessionBytes: cfg.Limits.MaxSessionBytes,
				},
				Defaults:          defaultOptions(cfg),
				OCRAvailable:      pipeline.OCRAvailable(),
				ClearAfterConvert: cfg.Session.ClearAfterConvert,
			}, logger)
			cat := catalog.NewService(backend, cfg.IsAdmin, logger)

			inbound := ratelimit.NewWindow(cfg.Rate.Events, cfg.Rate.Window)
			outbound := ratelimit.NewOutbound(cfg.Rate.SendPerSec)
			analyzer := middleware.NewMessageAnalyzer(inbound, logger)
			dispatcher := middleware.NewDispatcher()

			// The handler is bound after the bot exists; the scheduler and
			// fetcher both need the bot.
			var h *handlers.Handlers
			opts := []bot.Option{
				bot.WithHTTPClient(pollTimeout, fetch.NewHTTPClient()),
				bot.WithNotAsyncHandlers(),
				bot.WithMiddlewares(dispatcher.Middleware, analyzer.Recover, analyzer.RateLimit, analyzer.AnalyzeMessageMiddleware),
				bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *models.Update) {
					h.MainHandler(ctx, b, update)
				}),
				bot.WithErrorsHandler(func(err error) {
					logger.Warn().Err(err).Msg("telegram api")
				}),
			}
			if cfg.Webhook.Secret != "" {
				opts = append(opts, bot.WithWebhookSecretToken(cfg.Webhook.Secret))
			}
			b, err := bot.New(cfg.BotToken, opts...)
			if err != nil {
				return fmt.Errorf("create bot: %w", err)
			}

			fetcher := fetch.New(b, nil, fetch.Config{
				Timeout: cfg.Download.Timeout,
				Retries: cfg.Download.Retries,
			}, logger)
			sched := scheduler.NewScheduler(sessions, pipeline, cat, b, outbound, scheduler.Config{
				Workers:       cfg.Workers,
				UploadTimeout: cfg.Upload.Timeout,
				UploadRetries: cfg.Upload.Retries,
			}, logger)
			h = handlers.NewHandlers(sessions, cat, sched, fetcher, outbound, handlers.Config{
				Normalize: normalizer.Limits{
					MaxDimension: cfg.Limits.MaxDimension,
					MaxBytes:     cfg.Limits.MaxFileBytes,
					JPEGQuality:  cfg.PDF.JPEGQuality,
				},
			}, logger)

			sched.Start()
			defer sched.Stop()

			var webhook http.Handler
			if cfg.Webhook.URL != "" {
				webhook = b.WebhookHandler()
			}
			server := metrics.NewServer(cfg.HTTPAddr, metrics.NewRouter(webhook, checks), logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(gctx) })
			g.Go(func() error {
				sessions.RunSweeper(gctx, sweepInterval, cfg.Session.TTL)
				return nil
			})
			g.Go(func() error {
				defer dispatcher.Wait()
				if cfg.Webhook.URL != "" {
					if _, err := b.SetWebhook(gctx, &bot.SetWebhookParams{
						URL:         cfg.Webhook.URL,
						SecretToken: cfg.Webhook.Secret,
					}); err != nil {
						return fmt.Errorf("set webhook: %w", err)
					}
					logger.Info().Str("url", cfg.Webhook.URL).Msg("bot started with webhook")
					b.StartWebhook(gctx)
					return nil
				}
				if _, err := b.DeleteWebhook(gctx, &bot.DeleteWebhookParams{}); err != nil {
					logger.Warn().Err(err).Msg("delete webhook")
				}
				logger.Info().Msg("bot started with long polling")
				b.Start(gctx)
				return nil
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info().Msg("bot stopped")
			return nil
		},
	}
}
