package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOutput(t *testing.T) {
	tests := []struct {
		name     string
		category string
		doc      string
		wantErr  bool
	}{
		{
			name:     "complete gas document",
			category: "GAS_SAFETY",
			doc:      `{"documentType":"GAS_SAFETY","issueDate":"2026-03-14","appliances":[{"type":"Boiler"}]}`,
		},
		{
			name:     "gas document without appliances or defects",
			category: "GAS_SAFETY",
			doc:      `{"documentType":"GAS_SAFETY","issueDate":"2026-03-14"}`,
			wantErr:  true,
		},
		{
			name:     "missing certificate type",
			category: "EPC",
			doc:      `{"issueDate":"2026-03-14"}`,
			wantErr:  true,
		},
		{
			name:     "no identifying field",
			category: "EPC",
			doc:      `{"documentType":"EPC"}`,
			wantErr:  true,
		},
		{
			name:     "certificate number alone is identifying",
			category: "EPC",
			doc:      `{"documentType":"EPC","certificateNumber":"0000-1111-2222-3333-4444"}`,
		},
		{
			name:     "EICR with observations",
			category: "EICR",
			doc:      `{"documentType":"EICR","inspectionDate":"2026-01-10","observations":[{"code":"C3"}]}`,
		},
		{
			name:     "category without item requirement",
			category: "FIRE_RISK_ASSESSMENT",
			doc:      `{"documentType":"FIRE_RISK_ASSESSMENT","assessmentDate":"2026-02-02"}`,
		},
		{
			name:     "empty output",
			category: "EPC",
			doc:      ``,
			wantErr:  true,
		},
		{
			name:     "non-object output",
			category: "EPC",
			doc:      `[1,2,3]`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateOutput(json.RawMessage(tt.doc), tt.category)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
