// Package converter turns an ordered list of images into one PDF.
//
// The primary path embeds the image bytes directly (fpdf) so JPEGs are not
// re-encoded. With OCR enabled and available, each page is recognized and
// the single-page results are merged instead; any failure there silently
// returns to the primary path. If the primary path cannot embed an image,
// pdfcpu's image import is used as a last resort.
package converter

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/internal/metrics"
	"github.com/BatmanBruc/pdf-batch-bot/internal/normalizer"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

type Converter interface {
	Convert(ctx context.Context, images []string, opts types.Options) (*Result, error)
}

const (
	EncoderDirect   = "direct"
	EncoderOCR      = "ocr"
	EncoderFallback = "fallback"
)

type Result struct {
	Data    []byte
	Pages   int
	Encoder string
}

type Config struct {
	DPI          float64
	JPEGQuality  int
	OCRAvailable bool
	// Parallelism bounds per-batch image preparation.
	Parallelism int
	// MaxConcurrent bounds whole conversions running at once.
	MaxConcurrent int
}

type Pipeline struct {
	cfg    Config
	blobs  *blob.Store
	ocr    Recognizer
	sem    *semaphore.Weighted
	logger zerolog.Logger

	embed func(pages []page, opts types.Options, dpi float64) ([]byte, error)
}

var disableConfigDir sync.Once

func NewPipeline(cfg Config, blobs *blob.Store, ocr Recognizer, logger zerolog.Logger) *Pipeline {
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = normalizer.DefaultJPEGQuality
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.NumCPU()
	}
	if ocr == nil {
		cfg.OCRAvailable = false
	}
	disableConfigDir.Do(api.DisableConfigDir)

	return &Pipeline{
		cfg:    cfg,
		blobs:  blobs,
		ocr:    ocr,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger: logger.With().Str("component", "converter").Logger(),
		embed:  embedPages,
	}
}

func (p *Pipeline) OCRAvailable() bool {
	return p.cfg.OCRAvailable
}

func (p *Pipeline) pdfConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Convert produces one page per image, in input order. Intermediate files
// live in a scope that is released before returning.
func (p *Pipeline) Convert(ctx context.Context, images []string, opts types.Options) (res *Result, err error) {
	if len(images) == 0 {
		return nil, types.ErrNoImages
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	start := time.Now()
	defer func() {
		path := "none"
		if res != nil {
			path = res.Encoder
		}
		metrics.ConversionsTotal.WithLabelValues(path, metrics.Result(err)).Inc()
		metrics.ConversionDuration.Observe(time.Since(start).Seconds())
	}()

	scope, err := p.blobs.Temp("conv")
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := scope.Release(); rerr != nil {
			p.logger.Warn().Err(rerr).Str("dir", scope.Dir()).Msg("release conversion scope")
		}
	}()

	pages, err := p.preparePages(ctx, scope, images, opts)
	if err != nil {
		return nil, err
	}

	var (
		doc     []byte
		encoder string
	)
	if opts.OCR && p.cfg.OCRAvailable {
		doc, err = p.ocrDocument(ctx, scope, pages)
		if err != nil {
			metrics.OCRFallbacksTotal.Inc()
			p.logger.Warn().Err(err).Int("pages", len(pages)).Msg("text recognition failed, using plain pdf")
			doc = nil
		} else {
			encoder = EncoderOCR
		}
	}

	if doc == nil {
		doc, err = p.embed(pages, opts, p.cfg.DPI)
		encoder = EncoderDirect
		if err != nil {
			p.logger.Warn().Err(err).Msg("direct embedding failed, using image import")
			doc, err = p.importFallback(scope, pages, opts)
			encoder = EncoderFallback
			if err != nil {
				var imgErr *types.ImageError
				if errors.As(err, &imgErr) {
					return nil, err
				}
				return nil, fmt.Errorf("%w: %v", types.ErrConversion, err)
			}
		}
	}

	if opts.Watermark != "" {
		stamped, werr := p.stampWatermark(doc, opts.Watermark)
		if werr != nil {
			p.logger.Warn().Err(werr).Msg("watermark failed, sending without it")
		} else {
			doc = stamped
		}
	}

	return &Result{Data: doc, Pages: len(pages), Encoder: encoder}, nil
}
