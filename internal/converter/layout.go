package converter

import (
	"math"

	"github.com/BatmanBruc/pdf-batch-bot/types"
)

const PointsPerMM = 2.834645669

const DefaultDPI = 72.0

// Placement is a page size and the rectangle the image occupies on it,
// all in points with the origin at the top-left corner.
type Placement struct {
	PageW, PageH float64
	X, Y, W, H   float64
}

// Layout computes where an image of wPx×hPx pixels goes. AUTO pages take
// the image size at the given DPI plus the margins; fixed sizes keep their
// dimensions and the image is fitted inside the margins and centered.
func Layout(opts types.Options, wPx, hPx int, dpi float64) Placement {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	margin := float64(opts.MarginMM) * PointsPerMM
	imgW := float64(wPx) * 72 / dpi
	imgH := float64(hPx) * 72 / dpi

	wMM, hMM, fixed := opts.PageSize.Dimensions()
	if !fixed {
		return Placement{
			PageW: imgW + 2*margin,
			PageH: imgH + 2*margin,
			X:     margin,
			Y:     margin,
			W:     imgW,
			H:     imgH,
		}
	}

	pageW := wMM * PointsPerMM
	pageH := hMM * PointsPerMM
	availW := math.Max(pageW-2*margin, 1)
	availH := math.Max(pageH-2*margin, 1)
	scale := math.Min(availW/imgW, availH/imgH)
	w := imgW * scale
	h := imgH * scale
	return Placement{
		PageW: pageW,
		PageH: pageH,
		X:     (pageW - w) / 2,
		Y:     (pageH - h) / 2,
		W:     w,
		H:     h,
	}
}
