package converter

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const watermarkDesc = "fontname:Helvetica, points:48, rotation:45, opacity:0.3, scalefactor:0.6 rel, fillcolor:#808080"

// stampWatermark puts text diagonally on every page.
func (p *Pipeline) stampWatermark(doc []byte, text string) ([]byte, error) {
	wm, err := api.TextWatermark(text, watermarkDesc, true, false, types.POINTS)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &buf, nil, wm, p.pdfConf()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
