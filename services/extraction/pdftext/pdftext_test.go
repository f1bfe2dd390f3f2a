package pdftext

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/complianceai/platform/infrastructure/logging"
)

func newExtractor() *Extractor {
	return New(logging.New("test", "error", "text"))
}

func TestExtractNonPDFInput(t *testing.T) {
	e := newExtractor()

	text, pages := e.Extract([]byte("plain text, not a PDF"))
	assert.Empty(t, text)
	assert.Zero(t, pages)

	text, pages = e.Extract([]byte{0xFF, 0xD8, 0xFF})
	assert.Empty(t, text)
	assert.Zero(t, pages)

	text, pages = e.Extract(nil)
	assert.Empty(t, text)
	assert.Zero(t, pages)
}

func TestExtractMalformedPDFDoesNotPanic(t *testing.T) {
	e := newExtractor()

	// A PDF header followed by garbage must not crash the caller.
	text, pages := e.Extract([]byte("%PDF-1.7\ngarbage that is not a document"))
	assert.Empty(t, text)
	assert.Zero(t, pages)
}

func TestExtractTruncatedPDF(t *testing.T) {
	e := newExtractor()

	text, pages := e.Extract([]byte("%PDF"))
	assert.Empty(t, text)
	assert.Zero(t, pages)
}
