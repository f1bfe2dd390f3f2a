package classification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCertificateTypeToCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Landlord Gas Safety Record", "GAS_SAFETY"},
		{"gas safety certificate", "GAS_SAFETY"},
		{"LGSR", "GAS_SAFETY"},
		{"CP12", "GAS_SAFETY"},
		{"Electrical Installation Condition Report", "EICR"},
		{"EICR", "EICR"},
		{"Energy Performance Certificate", "EPC"},
		{"Fire Risk Assessment", "FRA"},
		{"fire risk assessment external wall", "FRAEW"},
		{"Legionella Risk Assessment", "LEG_RA"},
		{"Asbestos Management Survey", "ASB_SURVEY"},
		{"Asbestos Management Plan", "ASB_MGMT"},
		{"LOLER Thorough Examination", "LOLER"},
		{"Passenger Lift Report", "LIFT"},
		{"Portable Appliance Testing", "PAT"},
		{"Emergency Lighting Test", "EMLT"},
		{"Fire Door Inspection", "FIRE_DOOR"},
		{"Playground Inspection", "PLAY"},
		{"Tree Survey", "TREE"},
		{"HHSRS Assessment", "HHSRS"},
		{"Damp and Mould Survey", "DAMP_MOULD"},
		{"", "UNKNOWN"},
		{"Window Cleaning Invoice", "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, MapCertificateTypeToCode(tt.input, nil))
		})
	}
}

func TestMapCertificateTypeToCodeIdempotent(t *testing.T) {
	inputs := []string{
		"Landlord Gas Safety Record", "EICR", "Fire Risk Assessment",
		"random nonsense", "", "Asbestos Survey",
	}
	for _, input := range inputs {
		once := MapCertificateTypeToCode(input, nil)
		twice := MapCertificateTypeToCode(once, nil)
		assert.Equal(t, once, twice, "mapping %q must be idempotent", input)
	}
}

func TestMapDocumentTypeToCategory(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Gas Safety Record", CategoryGasSafety},
		{"EICR", CategoryEICR},
		{"Electrical Report", CategoryEICR},
		{"Energy Performance Certificate", CategoryEPC},
		{"Fire Risk Assessment", CategoryFireRisk},
		{"Legionella Assessment", CategoryLegionella},
		{"Asbestos Survey", CategoryAsbestos},
		{"Lift LOLER Report", CategoryLiftLoler},
		{"Unknown Paperwork", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapDocumentTypeToCategory(tt.input), "input %q", tt.input)
	}
}

func TestMapApplianceOutcome(t *testing.T) {
	pass := []string{"PASS", "satisfactory", "Safe"}
	for _, token := range pass {
		got := MapApplianceOutcome(token, nil)
		require.NotNil(t, got, "token %q", token)
		assert.Equal(t, AppliancePass, *got)
	}

	fail := []string{"ID", "AR", "NCS", "C1", "C2", "condemned", "FI"}
	for _, token := range fail {
		got := MapApplianceOutcome(token, nil)
		require.NotNil(t, got, "token %q", token)
		assert.Equal(t, ApplianceFail, *got)
	}

	na := []string{"N/A", "Service Only", "not tested"}
	for _, token := range na {
		got := MapApplianceOutcome(token, nil)
		require.NotNil(t, got, "token %q", token)
		assert.Equal(t, ApplianceNA, *got)
	}

	assert.Nil(t, MapApplianceOutcome("MAYBE", nil))
	assert.Nil(t, MapApplianceOutcome("", nil))
}
