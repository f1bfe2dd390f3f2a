package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestMatchPatternsGasRecord(t *testing.T) {
	text := `LANDLORD GAS SAFETY RECORD
Record No: GSR/2026/0042
Date of Issue: 14/03/2026
Expiry Date: 14/03/2027
Engineer: J. Smith`

	result := matchPatterns(text)
	assert.Equal(t, "GAS_SAFETY", result.Category)
	assert.Equal(t, "GSR/2026/0042", result.CertificateNumber)
	assert.Equal(t, "2026-03-14", result.IssueDate)
	assert.Equal(t, "2027-03-14", result.ExpiryDate)
	assert.InDelta(t, 0.75, result.Confidence, 0.001)

	payload := result.json()
	assert.Equal(t, "GAS_SAFETY", gjson.GetBytes(payload, "certificateType").String())
	assert.Equal(t, "2026-03-14", gjson.GetBytes(payload, "issueDate").String())
}

func TestMatchPatternsEICR(t *testing.T) {
	text := "ELECTRICAL INSTALLATION CONDITION REPORT\nCertificate Number: EICR-00123\nInspection Date: 02/01/2026"
	result := matchPatterns(text)
	assert.Equal(t, "EICR", result.Category)
	assert.Equal(t, "EICR-00123", result.CertificateNumber)
	assert.Equal(t, "2026-01-02", result.IssueDate)
}

func TestMatchPatternsNoMatch(t *testing.T) {
	result := matchPatterns("an unrelated letter about bins")
	assert.Equal(t, "OTHER", result.Category)
	assert.Zero(t, result.Confidence)

	empty := matchPatterns("")
	assert.Equal(t, "OTHER", empty.Category)
}

func TestToISODate(t *testing.T) {
	assert.Equal(t, "2026-03-14", toISODate("14/03/2026"))
	assert.Equal(t, "2026-03-14", toISODate("14-03-2026"))
	assert.Equal(t, "2026-03-04", toISODate("4/3/2026"))
	assert.Equal(t, "", toISODate("not a date"))
	assert.Equal(t, "", toISODate("31/02/2026"))
}

func TestGuessFromMetadata(t *testing.T) {
	guess := guessFromMetadata("Gas_Safety_Cert_2026.pdf", []byte("%PDF-1.7"))
	assert.Equal(t, "GAS_SAFETY", guess.Category)
	assert.Equal(t, "application/pdf", guess.MimeGuess)

	guess = guessFromMetadata("eicr-flat-4.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0})
	assert.Equal(t, "EICR", guess.Category)
	assert.Equal(t, "image/jpeg", guess.MimeGuess)

	guess = guessFromMetadata("scan001.pdf", []byte("%PDF"))
	assert.Equal(t, "OTHER", guess.Category)
}
