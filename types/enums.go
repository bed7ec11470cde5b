package types

import "strings"

type PageSize string

const (
	PageSizeAuto   PageSize = "AUTO"
	PageSizeA4     PageSize = "A4"
	PageSizeLetter PageSize = "LETTER"
)

func ParsePageSize(s string) (PageSize, bool) {
	switch PageSize(strings.ToUpper(strings.TrimSpace(s))) {
	case PageSizeAuto:
		return PageSizeAuto, true
	case PageSizeA4:
		return PageSizeA4, true
	case PageSizeLetter:
		return PageSizeLetter, true
	}
	return "", false
}

// Dimensions in millimeters. AUTO has none.
func (p PageSize) Dimensions() (widthMM, heightMM float64, ok bool) {
	switch p {
	case PageSizeA4:
		return 210, 297, true
	case PageSizeLetter:
		return 216, 279, true
	}
	return 0, 0, false
}

type OptionKey string

const (
	OptionPageSize  OptionKey = "pagesize"
	OptionMargin    OptionKey = "margin"
	OptionRotation  OptionKey = "rotate"
	OptionScale     OptionKey = "compress"
	OptionWatermark OptionKey = "watermark"
	OptionOCR       OptionKey = "ocr"
	OptionTitle     OptionKey = "title"
)

const EntryTypePDF = "pdf"
