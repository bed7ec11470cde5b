package converter

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/internal/normalizer"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

// page is one image ready for embedding. layoutW/H are the pixel sizes used
// for page geometry; they ignore compression so AUTO pages keep their size.
type page struct {
	path    string
	format  string
	layoutW int
	layoutH int
}

func probe(path string) (format string, w, h int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, 0, err
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", 0, 0, err
	}
	return format, cfg.Width, cfg.Height, nil
}

func (p *Pipeline) preparePages(ctx context.Context, scope *blob.Scope, images []string, opts types.Options) ([]page, error) {
	pages := make([]page, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallelism)
	for i, src := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pg, err := p.preparePage(scope, i, src, opts)
			if err != nil {
				return err
			}
			pages[i] = pg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func (p *Pipeline) preparePage(scope *blob.Scope, idx int, src string, opts types.Options) (page, error) {
	format, w, h, err := probe(src)
	if err != nil {
		return page{}, &types.ImageError{Index: idx, Err: fmt.Errorf("%w: %v", types.ErrDecode, err)}
	}

	if opts.Rotation == 90 || opts.Rotation == 270 {
		w, h = h, w
	}
	scaled := opts.Scale > 0 && opts.Scale < 1
	if opts.Rotation == 0 && !scaled && normalizer.Embeddable(format) {
		return page{path: src, format: format, layoutW: w, layoutH: h}, nil
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return page{}, &types.ImageError{Index: idx, Err: fmt.Errorf("%w: %v", types.ErrDecode, err)}
	}
	img = rotateClockwise(img, opts.Rotation)

	if scaled {
		nw := int(float64(img.Bounds().Dx())*opts.Scale + 0.5)
		if nw < 1 {
			nw = 1
		}
		img = imaging.Resize(img, nw, 0, imaging.Lanczos)
	}

	dst := scope.Path(fmt.Sprintf("page_%03d.jpg", idx+1))
	if err := imaging.Save(normalizer.Flatten(img), dst, imaging.JPEGQuality(p.cfg.JPEGQuality)); err != nil {
		return page{}, fmt.Errorf("write page %d: %w", idx+1, err)
	}
	return page{path: dst, format: "jpeg", layoutW: w, layoutH: h}, nil
}

func rotateClockwise(img image.Image, deg int) image.Image {
	switch deg {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	}
	return img
}
