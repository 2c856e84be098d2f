// Package extraction turns uploaded PDF bytes into plain text, preserving
// page order so downstream chunks can carry a page reference.
package extraction

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

var (
	// ErrNotPDF indicates the payload does not carry a %PDF header.
	ErrNotPDF = errors.New("file is not a PDF")
	// ErrNoText indicates the PDF parsed but yielded no extractable text,
	// e.g. a scanned document without an OCR layer.
	ErrNoText = errors.New("no extractable text in PDF")
)

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// ExtractPages parses data as a PDF and returns one whitespace-normalized
// string per page, in document order. Pages that yield no text come back as
// empty strings so indices still map to 1-based page numbers.
func ExtractPages(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty upload: %w", ErrNotPDF)
	}
	if !IsPDF(data) {
		return nil, fmt.Errorf("missing %%PDF header: %w", ErrNotPDF)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("pdf reader: %w", err)
	}

	pages := make([]string, 0, r.NumPage())
	hasText := false
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// A single malformed page should not sink the document.
			pages = append(pages, "")
			continue
		}
		text = collapseWhitespace(text)
		if text != "" {
			hasText = true
		}
		pages = append(pages, text)
	}

	if !hasText {
		return nil, ErrNoText
	}
	return pages, nil
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
