// Package extraction implements the tiered extraction orchestrator.
package extraction

import (
	"encoding/json"

	"github.com/complianceai/platform/domain/certificate"
)

// Tier names, in cascade order.
const (
	TierMetadata    = "tier-0"
	TierPattern     = "tier-0.5"
	TierLocalText   = "tier-1"
	TierTextQuality = "tier-1.5"
	TierOCR         = "tier-2"
	TierVision      = "tier-3"
	TierHumanReview = "tier-4"
)

// OCR provider tags persisted with the extraction run.
const (
	ProviderAzureDI  = "AZURE_DOCUMENT_INTELLIGENCE"
	ProviderLocalPDF = "PDFJS_LOCAL"
)

// tierOrdinals maps tier names to the persisted integer ordinal.
var tierOrdinals = map[string]int{
	TierMetadata:    0,
	TierPattern:     1,
	TierLocalText:   2,
	TierTextQuality: 3,
	TierOCR:         4,
	TierVision:      5,
	TierHumanReview: 6,
}

// TierOrdinal converts a tier name to its persisted ordinal. Unknown tier
// names persist as the human-review ordinal; the caller logs a warning.
func TierOrdinal(tier string) (int, bool) {
	ordinal, ok := tierOrdinals[tier]
	if !ok {
		return tierOrdinals[TierHumanReview], false
	}
	return ordinal, true
}

// TieredResult is the orchestrator's single output for one document pass.
type TieredResult struct {
	CertificateID    string
	Data             json.RawMessage
	Confidence       float64
	FinalTier        string
	FinalTierOrdinal int
	Method           certificate.ExtractionMethod
	Model            string
	PromptVersion    string
	OCRProvider      string
	DocumentType     string
	RequiresReview   bool
	ValidationPassed bool
	PageCount        int
	TextQuality      string
	ProcessingTimeMs int64
	ProcessingCost   float64
	Audits           []certificate.TierAudit
}

// FieldCount counts the top-level fields in the extracted JSON.
func FieldCount(data json.RawMessage) int {
	if len(data) == 0 {
		return 0
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return 0
	}
	return len(m)
}
