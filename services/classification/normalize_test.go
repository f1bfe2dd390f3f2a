package classification

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/complianceai/platform/domain/certificate"
)

func TestNormalizeGasDocument(t *testing.T) {
	doc := json.RawMessage(`{
		"documentType": "Landlord Gas Safety Record",
		"certificateNumber": "GSR-2026-0042",
		"issueDate": "2026-03-14",
		"expiryDate": "2027-03-14",
		"address": {"line1": "12 High Street", "city": "Leeds", "postcode": "ls1 4ab"},
		"engineer": {"name": "J. Smith", "gasSafeNumber": "512345", "company": "Acme Heating"},
		"appliances": [{"type": "Gas Boiler", "applianceSafe": true}]
	}`)

	n, normalised := Normalize(CategoryGasSafety, doc, testLogger())

	assert.Equal(t, "GAS_SAFETY", n.CertificateType)
	assert.Equal(t, "GSR-2026-0042", n.CertificateNumber)
	require.NotNil(t, n.IssueDate)
	assert.Equal(t, "2026-03-14", n.IssueDate.Format("2006-01-02"))
	require.NotNil(t, n.ExpiryDate)
	assert.Equal(t, "LS1 4AB", n.Address.Postcode)
	assert.Equal(t, "J. Smith", n.Issuer.Name)
	assert.Equal(t, "512345", n.Issuer.RegistrationNumber)
	assert.Equal(t, certificate.OutcomeSatisfactory, n.Outcome)

	parsed := gjson.ParseBytes(normalised)
	assert.Equal(t, "GAS_SAFETY", parsed.Get("certificateType").String())
	assert.Equal(t, "SATISFACTORY", parsed.Get("outcome").String())
	assert.Equal(t, "J. Smith", parsed.Get("issuer.name").String())
}

func TestNormalizeIssuerVariants(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"inspector", `{"documentType":"EICR","inspector":{"name":"A. Tester","registrationNumber":"NICEIC-99"}}`},
		{"assessor", `{"documentType":"Fire Risk Assessment","assessor":{"name":"A. Tester"}}`},
		{"surveyor", `{"documentType":"Asbestos Survey","surveyor":{"name":"A. Tester"}}`},
		{"string issuer", `{"documentType":"EPC","issuer":"A. Tester"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := Normalize(CategoryOther, json.RawMessage(tt.doc), testLogger())
			assert.Equal(t, "A. Tester", n.Issuer.Name)
		})
	}
}

func TestNormalizeDateVariants(t *testing.T) {
	n, _ := Normalize(CategoryEICR, json.RawMessage(
		`{"documentType":"EICR","inspectionDate":"14/03/2026","nextInspectionDate":"2031-03-14"}`), testLogger())
	require.NotNil(t, n.IssueDate)
	assert.Equal(t, "2026-03-14", n.IssueDate.Format("2006-01-02"))
	require.NotNil(t, n.ExpiryDate)
	assert.Equal(t, "2031-03-14", n.ExpiryDate.Format("2006-01-02"))
}

func TestNormalizeUnsatisfactoryOutcome(t *testing.T) {
	n, normalised := Normalize(CategoryEICR, json.RawMessage(
		`{"documentType":"EICR","c2Count":2}`), testLogger())
	assert.Equal(t, certificate.OutcomeUnsatisfactory, n.Outcome)
	assert.Equal(t, "UNSATISFACTORY", gjson.ParseBytes(normalised).Get("outcome").String())
}
