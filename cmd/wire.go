package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/internal/catalog"
	"github.com/BatmanBruc/pdf-batch-bot/internal/config"
	"github.com/BatmanBruc/pdf-batch-bot/internal/converter"
	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
	"github.com/BatmanBruc/pdf-batch-bot/store"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

// closers runs cleanups in reverse order of registration.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func openBlobs(cfg *config.Config) (*blob.Store, error) {
	root := cfg.TempDir
	if root == "" {
		root = filepath.Join(os.TempDir(), "pdf-batch-bot")
	}
	return blob.NewStore(root)
}

func openSessions(ctx context.Context, cfg *config.Config, checks map[string]metrics.HealthFunc, cl *closers) (types.SessionRepository, error) {
	switch cfg.Session.Backend {
	case "redis":
		client, err := store.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, err
		}
		cl.add(func() { _ = client.Close() })
		checks["redis"] = client.Ping
		return store.NewRedisSessionStore(client, cfg.Session.TTL), nil
	case "memory", "":
		return store.NewMemorySessionStore(), nil
	}
	return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
}

func openCatalog(ctx context.Context, cfg *config.Config, checks map[string]metrics.HealthFunc, cl *closers) (catalog.Backend, error) {
	switch cfg.Catalog.Backend {
	case "postgres":
		pg, err := store.NewPostgresCatalog(ctx, cfg.Catalog.PostgresDSN)
		if err != nil {
			return nil, err
		}
		cl.add(pg.Close)
		checks["postgres"] = pg.Ping
		return pg, nil
	case "json", "":
		return catalog.NewFileBackend(cfg.Catalog.Path)
	}
	return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
}

func newPipeline(cfg *config.Config, blobs *blob.Store, logger zerolog.Logger) *converter.Pipeline {
	var ocr converter.Recognizer
	available := converter.DetectOCR(cfg.OCR.Binary)
	if available {
		ocr = converter.Tesseract{Binary: cfg.OCR.Binary, Lang: cfg.OCR.Lang}
	} else {
		logger.Info().Str("binary", cfg.OCR.Binary).Msg("text recognition not installed, /ocr disabled")
	}
	return converter.NewPipeline(converter.Config{
		DPI:           cfg.PDF.DPI,
		JPEGQuality:   cfg.PDF.JPEGQuality,
		OCRAvailable:  available,
		MaxConcurrent: cfg.Workers,
	}, blobs, ocr, logger)
}

func defaultOptions(cfg *config.Config) types.Options {
	opts := types.DefaultOptions()
	if cfg.PDF.DefaultPageSize != "" {
		opts.PageSize = cfg.PDF.DefaultPageSize
	}
	opts.MarginMM = cfg.PDF.DefaultMarginMM
	return opts
}
