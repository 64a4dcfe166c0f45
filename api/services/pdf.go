package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/local/pdftutor/api/models"
	"github.com/rs/zerolog/log"
)

// PageExtractor turns a stored document into page texts
type PageExtractor interface {
	Extract(path string) ([]models.Page, error)
}

// PDFExtractor extracts the text layer of a PDF page by page (no OCR)
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract returns one page per PDF page, numbered from 1. Pages without a text
// layer come back with empty text so page numbers stay aligned.
func (e *PDFExtractor) Extract(path string) ([]models.Page, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat PDF: %w", err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	totalPage := r.NumPage()
	pages := make([]models.Page, 0, totalPage)

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := models.Page{Number: pageIndex}

		p := r.Page(pageIndex)
		if p.V.IsNull() {
			pages = append(pages, page)
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			// Continue even if one page fails
			log.Warn().Err(err).Str("path", path).Int("page", pageIndex).Msg("Failed to extract page text")
			pages = append(pages, page)
			continue
		}

		page.Text = strings.TrimSpace(text)
		pages = append(pages, page)
	}

	return pages, nil
}
