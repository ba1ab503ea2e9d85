package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	perrors "github.com/dokmap/dokmap/internal/pipeline/errors"
)

// TextLayerReader reads text straight from a PDF's embedded text layer.
// Digitally produced PDFs carry their text directly; these skip the external
// recognition service entirely.
type TextLayerReader struct {
	logger *slog.Logger
}

// NewTextLayerReader creates a native text-layer reader.
func NewTextLayerReader(logger *slog.Logger) *TextLayerReader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TextLayerReader{logger: logger}
}

// Recognize extracts the text layer from the PDF bytes, one segment per
// page, joined with a blank line. Pages without extractable text are
// skipped. The underlying parser panics on some malformed documents, so
// extraction runs behind a recovery guard and reports such documents as
// malformed input.
func (r *TextLayerReader) Recognize(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = perrors.New(perrors.KindMalformedInput, fmt.Sprintf("PDF parser panic: %v", rec))
		}
	}()

	if err := ctx.Err(); err != nil {
		return "", perrors.Wrap(perrors.KindTransport, "text extraction cancelled", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", perrors.Wrap(perrors.KindMalformedInput, "failed to open PDF", err)
	}

	var segments []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			r.logger.Warn("failed to extract page text", "page", pageNum, "error", err)
			continue
		}
		if text := strings.TrimSpace(content); text != "" {
			segments = append(segments, text)
		}
	}

	if len(segments) == 0 {
		return "", perrors.New(perrors.KindMalformedInput, "PDF has no extractable text layer")
	}

	r.logger.Debug("text layer extracted", "pages", reader.NumPage(), "segments", len(segments))
	return strings.Join(segments, "\n\n"), nil
}

// HasTextLayer reports whether the PDF carries any extractable text. Callers
// use it to decide between native extraction and the recognition service.
func HasTextLayer(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(content) != "" {
			return true
		}
	}
	return false
}
