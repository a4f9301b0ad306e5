// Package extract reads page text out of PDF files.
package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

var pdfMagic = []byte("%PDF-")

// PDFExtractor extracts plain text per page with ledongthuc/pdf.
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDFExtractor instance
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns one Page per PDF page, numbered from 1. Pages without a
// text layer come back with empty text. The parser panics on some malformed
// input; that is reported as an extraction failure like any other error.
func (e *PDFExtractor) Extract(ctx context.Context, filename string, data []byte) (pages []domain.Page, err error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic) {
		return nil, unreadable(fmt.Errorf("%s has no PDF header", filename))
	}

	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = unreadable(fmt.Errorf("parser panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, unreadable(err)
	}

	total := reader.NumPage()
	pages = make([]domain.Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExtraction, "extraction cancelled", err)
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, domain.Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeExtraction,
				fmt.Sprintf("failed to read page %d", i), err)
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}

	log.Debug().Str("filename", filename).Int("pages", total).Msg("pdf extracted")
	return pages, nil
}

func unreadable(cause error) error {
	return domain.NewDomainErrorWithCause(domain.ErrUnreadablePDF.Code, domain.ErrUnreadablePDF.Message, cause)
}
