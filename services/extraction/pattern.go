package extraction

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// patternSet is the tier-0.5 regex library for one certificate category.
type patternSet struct {
	category   string
	typeTokens []string
	certNumber *regexp.Regexp
}

var (
	reIssueDate  = regexp.MustCompile(`(?i)(?:date of (?:issue|inspection|assessment)|issue date|inspection date|assessment date)[:\s]*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`)
	reExpiryDate = regexp.MustCompile(`(?i)(?:expiry date|valid until|next (?:inspection|examination|assessment)(?: date)?(?: due)?|review date)[:\s]*(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`)
	reGenericRef = regexp.MustCompile(`(?i)(?:certificate|report|record)\s*(?:no|number|ref(?:erence)?)[.:\s]*([A-Z0-9][A-Z0-9/\-]{3,24})`)
)

// patternLibrary holds per-category pattern sets, keyed by category code.
var patternLibrary = []patternSet{
	{
		category:   "GAS_SAFETY",
		typeTokens: []string{"LANDLORD GAS SAFETY RECORD", "GAS SAFETY RECORD", "LGSR", "CP12"},
		certNumber: regexp.MustCompile(`(?i)(?:record|certificate)\s*(?:no|number)[.:\s]*([A-Z0-9][A-Z0-9/\-]{3,24})`),
	},
	{
		category:   "EICR",
		typeTokens: []string{"ELECTRICAL INSTALLATION CONDITION REPORT", "EICR"},
		certNumber: reGenericRef,
	},
	{
		category:   "FIRE_RISK_ASSESSMENT",
		typeTokens: []string{"FIRE RISK ASSESSMENT"},
		certNumber: reGenericRef,
	},
	{
		category:   "LEGIONELLA_ASSESSMENT",
		typeTokens: []string{"LEGIONELLA RISK ASSESSMENT", "LEGIONELLA"},
		certNumber: reGenericRef,
	},
	{
		category:   "ASBESTOS_SURVEY",
		typeTokens: []string{"ASBESTOS MANAGEMENT SURVEY", "ASBESTOS SURVEY", "ASBESTOS"},
		certNumber: reGenericRef,
	},
	{
		category:   "LIFT_LOLER",
		typeTokens: []string{"THOROUGH EXAMINATION", "LOLER"},
		certNumber: reGenericRef,
	},
	{
		category:   "EPC",
		typeTokens: []string{"ENERGY PERFORMANCE CERTIFICATE"},
		certNumber: regexp.MustCompile(`(?i)(?:certificate|rrn)\s*(?:no|number|ref(?:erence)?)?[.:\s]*(\d{4}-\d{4}-\d{4}-\d{4}-\d{4})`),
	},
}

// patternResult is the tier-0.5 output.
type patternResult struct {
	Category          string
	CertificateNumber string
	IssueDate         string
	ExpiryDate        string
	Confidence        float64
}

// matchPatterns runs the category pattern library over extracted text.
// Confidence grows with each field the patterns pin down.
func matchPatterns(text string) patternResult {
	result := patternResult{Category: "OTHER"}
	if strings.TrimSpace(text) == "" {
		return result
	}

	upper := strings.ToUpper(text)
	var matched *patternSet
	for i := range patternLibrary {
		for _, token := range patternLibrary[i].typeTokens {
			if strings.Contains(upper, token) {
				matched = &patternLibrary[i]
				break
			}
		}
		if matched != nil {
			break
		}
	}

	if matched == nil {
		return result
	}
	result.Category = matched.category
	result.Confidence = 0.3

	if m := matched.certNumber.FindStringSubmatch(text); len(m) > 1 {
		result.CertificateNumber = strings.TrimSpace(m[1])
		result.Confidence += 0.15
	}
	if m := reIssueDate.FindStringSubmatch(text); len(m) > 1 {
		if iso := toISODate(m[1]); iso != "" {
			result.IssueDate = iso
			result.Confidence += 0.15
		}
	}
	if m := reExpiryDate.FindStringSubmatch(text); len(m) > 1 {
		if iso := toISODate(m[1]); iso != "" {
			result.ExpiryDate = iso
			result.Confidence += 0.15
		}
	}

	return result
}

func (r patternResult) json() json.RawMessage {
	fields := map[string]interface{}{"certificateType": r.Category}
	if r.CertificateNumber != "" {
		fields["certificateNumber"] = r.CertificateNumber
	}
	if r.IssueDate != "" {
		fields["issueDate"] = r.IssueDate
	}
	if r.ExpiryDate != "" {
		fields["expiryDate"] = r.ExpiryDate
	}
	out, _ := json.Marshal(fields)
	return out
}

// toISODate parses UK day-first dates into ISO form; empty on failure.
func toISODate(s string) string {
	normalised := strings.NewReplacer("-", "/", ".", "/").Replace(strings.TrimSpace(s))
	for _, layout := range []string{"02/01/2006", "2/1/2006", "02/01/06", "2/1/06"} {
		if t, err := time.Parse(layout, normalised); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
