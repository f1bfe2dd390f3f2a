package classification

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/complianceai/platform/domain/certificate"
	"github.com/complianceai/platform/infrastructure/logging"
)

// Issuer unifies the engineer/inspector/assessor/surveyor/examiner variants
// extractors produce into one shape.
type Issuer struct {
	Name               string `json:"name,omitempty"`
	Company            string `json:"company,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	RegistrationBody   string `json:"registrationBody,omitempty"`
}

// Normalized is the canonical record distilled from a raw extraction. Typed
// fields here; the untyped document stays behind at the decode boundary.
type Normalized struct {
	CertificateType   string
	CertificateNumber string
	IssueDate         *time.Time
	ExpiryDate        *time.Time
	Address           Address
	Issuer            Issuer
	Outcome           certificate.Outcome
}

var issuerKeys = []string{"engineer", "inspector", "assessor", "surveyor", "examiner", "issuer"}

var issueDateKeys = []string{"issueDate", "inspectionDate", "assessmentDate", "surveyDate", "examinationDate"}

var expiryDateKeys = []string{"expiryDate", "nextInspectionDate", "nextExaminationDate", "reviewDate", "validUntil"}

var registrationKeys = []string{"registrationNumber", "gasSafeNumber", "accreditationNumber", "membershipNumber"}

// Normalize decodes the superset of field shapes the tiers produce and
// returns the canonical record plus its JSON form for persistence.
func Normalize(category string, data json.RawMessage, log *logging.Logger) (*Normalized, json.RawMessage) {
	doc := gjson.ParseBytes(data)

	n := &Normalized{
		CertificateType: MapCertificateTypeToCode(firstOf(doc, "certificateType", "documentType"), log),
		CertificateNumber: firstOf(doc, "certificateNumber", "reportNumber", "recordNumber"),
		Address:         NormalizeAddress(doc.Get("address")),
		Outcome:         DetermineOutcome(category, data),
	}

	for _, key := range issueDateKeys {
		if t := parseDate(doc.Get(key).String()); t != nil {
			n.IssueDate = t
			break
		}
	}
	for _, key := range expiryDateKeys {
		if t := parseDate(doc.Get(key).String()); t != nil {
			n.ExpiryDate = t
			break
		}
	}

	for _, key := range issuerKeys {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		if v.Type == gjson.String {
			n.Issuer.Name = strings.TrimSpace(v.String())
		} else if v.IsObject() {
			n.Issuer.Name = strings.TrimSpace(v.Get("name").String())
			n.Issuer.Company = strings.TrimSpace(v.Get("company").String())
			for _, rk := range registrationKeys {
				if reg := strings.TrimSpace(v.Get(rk).String()); reg != "" {
					n.Issuer.RegistrationNumber = reg
					break
				}
			}
			n.Issuer.RegistrationBody = strings.TrimSpace(v.Get("registrationBody").String())
		}
		if n.Issuer.Name != "" {
			break
		}
	}

	return n, n.json()
}

func (n *Normalized) json() json.RawMessage {
	fields := map[string]interface{}{
		"certificateType": n.CertificateType,
		"outcome":         string(n.Outcome),
	}
	if n.CertificateNumber != "" {
		fields["certificateNumber"] = n.CertificateNumber
	}
	if n.IssueDate != nil {
		fields["issueDate"] = n.IssueDate.Format("2006-01-02")
	}
	if n.ExpiryDate != nil {
		fields["expiryDate"] = n.ExpiryDate.Format("2006-01-02")
	}
	if n.Address.Line1 != "" {
		fields["address"] = map[string]string{
			"line1":    n.Address.Line1,
			"city":     n.Address.City,
			"postcode": n.Address.Postcode,
		}
	}
	if n.Issuer.Name != "" {
		fields["issuer"] = n.Issuer
	}
	out, _ := json.Marshal(fields)
	return out
}

func firstOf(doc gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := doc.Get(key); v.Exists() && v.Type != gjson.Null && strings.TrimSpace(v.String()) != "" {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

// parseDate accepts ISO and UK day-first date forms.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02/01/2006", "2/1/2006", "02-01-2006", "2 January 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
