package converter

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-pdf/fpdf"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

const producer = "pdf-batch-bot"

// embedPages writes every page's original bytes into the PDF without
// re-encoding them.
func embedPages(pages []page, opts types.Options, dpi float64) ([]byte, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: 595.28, Ht: 841.89},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator(producer, true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}

	for i, pg := range pages {
		name := fmt.Sprintf("page%d", i)
		imgOpts := fpdf.ImageOptions{ImageType: pg.format}

		f, err := os.Open(pg.path)
		if err != nil {
			return nil, err
		}
		pdf.RegisterImageOptionsReader(name, imgOpts, f)
		f.Close()
		if pdf.Err() {
			return nil, fmt.Errorf("page %d: %w", i+1, pdf.Error())
		}

		pl := Layout(opts, pg.layoutW, pg.layoutH, dpi)
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: pl.PageW, Ht: pl.PageH})
		pdf.ImageOptions(name, pl.X, pl.Y, pl.W, pl.H, false, imgOpts, 0, "")
		if pdf.Err() {
			return nil, fmt.Errorf("page %d: %w", i+1, pdf.Error())
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
