package extraction

import (
	"bytes"
	"encoding/json"
	"strings"
)

// metadataGuess is the tier-0 output: a category guess derived from the
// filename and file header alone.
type metadataGuess struct {
	Category   string
	MimeGuess  string
	Confidence float64
}

// filenameHints maps filename substrings to certificate categories, checked
// in order. The first matching token wins.
var filenameHints = []struct {
	token    string
	category string
}{
	{"gas safety", "GAS_SAFETY"},
	{"gas_safety", "GAS_SAFETY"},
	{"lgsr", "GAS_SAFETY"},
	{"cp12", "GAS_SAFETY"},
	{"eicr", "EICR"},
	{"electrical", "EICR"},
	{"fire risk", "FIRE_RISK_ASSESSMENT"},
	{"fire_risk", "FIRE_RISK_ASSESSMENT"},
	{"fra", "FIRE_RISK_ASSESSMENT"},
	{"asbestos", "ASBESTOS_SURVEY"},
	{"legionella", "LEGIONELLA_ASSESSMENT"},
	{"loler", "LIFT_LOLER"},
	{"lift", "LIFT_LOLER"},
	{"epc", "EPC"},
	{"energy performance", "EPC"},
}

// guessFromMetadata inspects the filename and the first bytes of the file.
// It only ever yields a category guess, so the tier always escalates.
func guessFromMetadata(filename string, data []byte) metadataGuess {
	guess := metadataGuess{Category: "OTHER", Confidence: 0.1}

	lower := strings.ToLower(filename)
	for _, hint := range filenameHints {
		if strings.Contains(lower, hint.token) {
			guess.Category = hint.category
			guess.Confidence = 0.3
			break
		}
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		guess.MimeGuess = "application/pdf"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		guess.MimeGuess = "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}):
		guess.MimeGuess = "image/png"
	}

	return guess
}

func (g metadataGuess) json() json.RawMessage {
	out, _ := json.Marshal(map[string]interface{}{
		"certificateType": g.Category,
		"mimeGuess":       g.MimeGuess,
	})
	return out
}
