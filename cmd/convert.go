package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/BatmanBruc/pdf-batch-bot/internal/normalizer"
	"github.com/BatmanBruc/pdf-batch-bot/internal/scheduler"
	"github.com/BatmanBruc/pdf-batch-bot/internal/session"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

type convertFlags struct {
	output    string
	pageSize  string
	margin    int
	rotate    int
	scale     float64
	watermark string
	title     string
	ocr       bool
}

func newConvertCmd(flags *globalFlags) *cobra.Command {
	cf := &convertFlags{}

	cmd := &cobra.Command{
		Use:   "convert [flags] image...",
		Short: "Build a PDF from local images with the bot's pipeline",
		Example: `  # A4 pages with a 10 mm margin
  pdf-batch-bot convert --page-size a4 --margin 10 -o scans.pdf page1.jpg page2.png

  # Searchable PDF when tesseract is installed
  pdf-batch-bot convert --ocr -o notes.pdf *.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			opts, err := cf.options(cfg.PDF.DefaultPageSize)
			if err != nil {
				return err
			}

			blobs, err := openBlobs(cfg)
			if err != nil {
				return err
			}
			pipeline := newPipeline(cfg, blobs, logger)
			if opts.OCR && !pipeline.OCRAvailable() {
				return fmt.Errorf("%w: %s not found", types.ErrUnavailable, cfg.OCR.Binary)
			}

			// Inputs are normalized on copies so the originals stay untouched.
			scope, err := blobs.Temp("cli")
			if err != nil {
				return err
			}
			defer func() { _ = scope.Release() }()

			limits := normalizer.Limits{MaxDimension: cfg.Limits.MaxDimension, JPEGQuality: cfg.PDF.JPEGQuality}
			paths := make([]string, 0, len(args))
			for i, src := range args {
				f, err := os.Open(src)
				if err != nil {
					return err
				}
				path, _, err := scope.Write(filepath.Base(src), f)
				f.Close()
				if err != nil {
					return err
				}
				if _, err := normalizer.Normalize(path, limits); err != nil {
					return &types.ImageError{Index: i, Err: err}
				}
				paths = append(paths, path)
			}

			res, err := pipeline.Convert(cmd.Context(), paths, opts)
			if err != nil {
				return err
			}

			out := cf.output
			if out == "" {
				out = scheduler.ResultName(opts.Title, res.Pages)
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return err
			}
			logger.Info().Str("output", out).Int("pages", res.Pages).Str("encoder", res.Encoder).Int("bytes", len(res.Data)).Msg("pdf written")
			return nil
		},
	}

	cmd.Flags().StringVarP(&cf.output, "output", "o", "", "output file (default: title or images_<n>.pdf)")
	cmd.Flags().StringVar(&cf.pageSize, "page-size", "", "auto, a4 or letter")
	cmd.Flags().IntVar(&cf.margin, "margin", 0, "page margin in mm (0..50)")
	cmd.Flags().IntVar(&cf.rotate, "rotate", 0, "rotation in degrees, a multiple of 90")
	cmd.Flags().Float64Var(&cf.scale, "scale", 1, "image scale for compression (0.1..1)")
	cmd.Flags().StringVar(&cf.watermark, "watermark", "", "watermark text stamped on every page")
	cmd.Flags().StringVar(&cf.title, "title", "", "document title")
	cmd.Flags().BoolVar(&cf.ocr, "ocr", false, "add a searchable text layer")
	return cmd
}

// options applies the flags with the same parsing and clamping as the chat
// commands.
func (cf *convertFlags) options(defaultPageSize types.PageSize) (types.Options, error) {
	opts := types.DefaultOptions()
	if defaultPageSize != "" {
		opts.PageSize = defaultPageSize
	}
	if cf.pageSize != "" {
		ps, ok := types.ParsePageSize(cf.pageSize)
		if !ok {
			return opts, fmt.Errorf("%w: page size %q", types.ErrInvalidOption, cf.pageSize)
		}
		opts.PageSize = ps
	}
	rot, ok := session.NormalizeRotation(cf.rotate)
	if !ok {
		return opts, fmt.Errorf("%w: rotation %d", types.ErrInvalidOption, cf.rotate)
	}
	opts.Rotation = rot
	opts.MarginMM = session.ClampMargin(cf.margin)
	opts.Scale = session.ClampScale(cf.scale)
	opts.Watermark = cf.watermark
	opts.Title = cf.title
	opts.OCR = cf.ocr
	return opts, nil
}
