// Package pdftext extracts plain text from PDF documents page by page.
package pdftext

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/complianceai/platform/infrastructure/logging"
)

// Extractor pulls text out of PDF bytes without ever failing the caller.
type Extractor struct {
	log *logging.Logger
}

// New creates an Extractor.
func New(log *logging.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract returns the document text (pages joined by blank lines) and the
// page count. On any internal failure, including non-PDF input, it returns
// an empty string and zero pages; it never returns an error.
func (e *Extractor) Extract(data []byte) (text string, pages int) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", 0
	}

	// The PDF parser panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(map[string]interface{}{"panic": r}).Warn("PDF text extraction panicked")
			text = ""
			pages = 0
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.log.WithError(err).Warn("PDF open failed")
		return "", 0
	}

	total := reader.NumPage()
	var parts []string
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			e.log.WithError(err).WithFields(map[string]interface{}{"page": i}).Debug("PDF page text failed")
			continue
		}
		if trimmed := strings.TrimSpace(pageText); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}

	return strings.Join(parts, "\n\n"), total
}
