// Package document turns uploaded files into pipeline input.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"chain-of-agents-be/pkg/coa"

	"github.com/ledongthuc/pdf"
)

var ErrUnreadable = errors.New("document has no readable text")

// pageSeparator keeps page boundaries as paragraph boundaries for the chunker.
const pageSeparator = "\n\n"

// FromText wraps already extracted text.
func FromText(text string) coa.Document {
	return coa.Document{Text: text, PageCount: 0}
}

// FromPDF extracts the plain text of every page. Pages without text are
// skipped but still counted.
func FromPDF(data []byte) (doc coa.Document, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			doc = coa.Document{}
			err = fmt.Errorf("%w: parse pdf: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return coa.Document{}, fmt.Errorf("%w: open pdf: %w", ErrUnreadable, err)
	}

	pageCount := reader.NumPage()
	pages := make([]string, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return coa.Document{}, fmt.Errorf("%w: read page %d: %w", ErrUnreadable, i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return coa.Document{PageCount: pageCount}, ErrUnreadable
	}
	return coa.Document{Text: strings.Join(pages, pageSeparator), PageCount: pageCount}, nil
}
