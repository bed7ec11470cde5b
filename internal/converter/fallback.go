package converter

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/internal/normalizer"
	domain "github.com/BatmanBruc/pdf-batch-bot/types"
)

// importFallback re-encodes every page as an RGB JPEG and lets pdfcpu build
// the document. Margins are not applied on this path.
func (p *Pipeline) importFallback(scope *blob.Scope, pages []page, opts domain.Options) ([]byte, error) {
	readers := make([]io.Reader, 0, len(pages))
	for i, pg := range pages {
		img, err := imaging.Open(pg.path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, &domain.ImageError{Index: i, Err: fmt.Errorf("%w: %v", domain.ErrDecode, err)}
		}
		dst := scope.Path(fmt.Sprintf("fallback_%03d.jpg", i+1))
		if err := imaging.Save(normalizer.Flatten(img), dst, imaging.JPEGQuality(p.cfg.JPEGQuality)); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(dst)
		if err != nil {
			return nil, err
		}
		readers = append(readers, bytes.NewReader(data))
	}

	imp := pdfcpu.DefaultImportConfig()
	if wMM, hMM, ok := opts.PageSize.Dimensions(); ok {
		imp.PageDim = &types.Dim{Width: wMM * PointsPerMM, Height: hMM * PointsPerMM}
		imp.Pos = types.Center
		imp.Scale = 1.0
	} else {
		imp.Pos = types.Full
	}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, imp, p.pdfConf()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
