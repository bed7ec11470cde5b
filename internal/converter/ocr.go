package converter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/BatmanBruc/pdf-batch-bot/internal/blob"
	"github.com/BatmanBruc/pdf-batch-bot/types"
)

// Recognizer turns one image into a single-page PDF with a text layer and
// returns the path of that PDF.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath, outBase string) (string, error)
}

// Tesseract shells out to the tesseract CLI.
type Tesseract struct {
	Binary string
	Lang   string
}

func (t Tesseract) Recognize(ctx context.Context, imagePath, outBase string) (string, error) {
	bin := t.Binary
	if bin == "" {
		bin = "tesseract"
	}
	args := []string{imagePath, outBase}
	if t.Lang != "" {
		args = append(args, "-l", t.Lang)
	}
	args = append(args, "pdf")

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	out := outBase + ".pdf"
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		return "", fmt.Errorf("%s produced no pdf", bin)
	}
	return out, nil
}

// hasCommand is resolved once at startup; the pipeline only sees the flag.
func hasCommand(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// DetectOCR reports whether the tesseract binary is available.
func DetectOCR(binary string) bool {
	if binary == "" {
		binary = "tesseract"
	}
	return hasCommand(binary)
}

// ocrDocument recognizes every page and merges the results in order. Any
// failure is returned as ErrOCR so the caller can fall back.
func (p *Pipeline) ocrDocument(ctx context.Context, scope *blob.Scope, pages []page) ([]byte, error) {
	parts := make([]io.ReadSeeker, 0, len(pages))
	for i, pg := range pages {
		outBase := scope.Path(fmt.Sprintf("ocr_%03d", i+1))
		pdfPath, err := p.ocr.Recognize(ctx, pg.path, outBase)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", types.ErrOCR, i+1, err)
		}
		data, err := os.ReadFile(pdfPath)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", types.ErrOCR, i+1, err)
		}
		parts = append(parts, bytes.NewReader(data))
	}

	if len(parts) == 1 {
		data, err := io.ReadAll(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrOCR, err)
		}
		return data, nil
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(parts, &buf, false, p.pdfConf()); err != nil {
		return nil, fmt.Errorf("%w: merge: %v", types.ErrOCR, err)
	}
	return buf.Bytes(), nil
}
