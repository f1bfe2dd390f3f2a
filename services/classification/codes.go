// Package classification maps extracted certificate data onto the canonical
// compliance domain: certificate-type codes, outcomes and remedial actions.
package classification

import (
	"strings"

	"github.com/complianceai/platform/infrastructure/logging"
)

// typeRule is one ordered substring rule for certificate-type mapping.
type typeRule struct {
	tokens []string
	code   string
}

// typeRules maps free-text certificate-type strings to canonical codes.
// Order matters: more specific rules come before their generic cousins.
var typeRules = []typeRule{
	{[]string{"GAS SAFETY", "LGSR", "CP12", "LANDLORD GAS"}, "GAS_SAFETY"},
	{[]string{"GAS SERVICE", "BOILER SERVICE"}, "GAS_SVC"},
	{[]string{"OIL FIRING", "OFTEC", "OIL"}, "OIL"},
	{[]string{"LPG"}, "LPG"},
	{[]string{"EICR", "ELECTRICAL INSTALLATION CONDITION"}, "EICR"},
	{[]string{"PAT", "PORTABLE APPLIANCE"}, "PAT"},
	{[]string{"EMERGENCY LIGHT"}, "EMLT"},
	{[]string{"ELECTRICAL"}, "ELEC"},
	{[]string{"ENERGY PERFORMANCE", "EPC"}, "EPC"},
	{[]string{"SAP"}, "SAP"},
	{[]string{"DISPLAY ENERGY", "DEC"}, "DEC"},
	{[]string{"FIRE RISK ASSESSMENT EXTERNAL WALL", "FRAEW"}, "FRAEW"},
	{[]string{"FIRE RISK", "FRA"}, "FRA"},
	{[]string{"FIRE ALARM"}, "FIRE_ALARM"},
	{[]string{"FIRE EXTINGUISHER"}, "FIRE_EXT"},
	{[]string{"FIRE DOOR"}, "FIRE_DOOR"},
	{[]string{"SMOKE", "CARBON MONOXIDE", "CO ALARM"}, "SMOKE_CO"},
	{[]string{"AOV", "AUTOMATIC OPENING VENT"}, "AOV"},
	{[]string{"SPRINKLER"}, "SPRINKLER"},
	{[]string{"LEGIONELLA RISK", "LEGIONELLA ASSESSMENT", "LEGIONELLA"}, "LEG_RA"},
	{[]string{"WATER MONITORING", "TEMPERATURE MONITORING"}, "LEG_MONITOR"},
	{[]string{"WATER TANK"}, "WATER_TANK"},
	{[]string{"TMV", "THERMOSTATIC MIXING"}, "TMV"},
	{[]string{"ASBESTOS MANAGEMENT PLAN"}, "ASB_MGMT"},
	{[]string{"ASBESTOS"}, "ASB_SURVEY"},
	{[]string{"LOLER", "THOROUGH EXAMINATION"}, "LOLER"},
	{[]string{"STAIRLIFT", "STAIR LIFT"}, "STAIRLIFT"},
	{[]string{"HOIST"}, "HOIST"},
	{[]string{"PASSENGER LIFT", "LIFT"}, "LIFT"},
	{[]string{"STRUCTURAL"}, "STRUCT"},
	{[]string{"BUILDING SAFETY CASE", "BUILDING SAFETY"}, "BLDG_SAFETY"},
	{[]string{"BSR REGISTRATION", "BSR"}, "BSR_REG"},
	{[]string{"FACADE", "EXTERNAL WALL"}, "FACADE"},
	{[]string{"ROOF"}, "ROOF"},
	{[]string{"PLAYGROUND", "PLAY AREA", "PLAY EQUIPMENT"}, "PLAY"},
	{[]string{"TREE"}, "TREE"},
	{[]string{"CCTV"}, "CCTV"},
	{[]string{"ACCESS CONTROL", "DOOR ENTRY"}, "ACCESS_CTRL"},
	{[]string{"HHSRS", "HOUSING HEALTH"}, "HHSRS"},
	{[]string{"DAMP", "MOULD", "MOLD"}, "DAMP_MOULD"},
	{[]string{"VENTILATION"}, "VENTILATION"},
	{[]string{"DDA", "DISABILITY ACCESS"}, "DDA"},
	{[]string{"PEST"}, "PEST"},
	{[]string{"WASTE"}, "WASTE"},
	{[]string{"COMMUNAL CLEAN"}, "COMM_CLEAN"},
}

// canonicalCodes is the closed set of certificate-type codes; mapping any
// of them returns the code itself, which makes the mapping idempotent.
var canonicalCodes = map[string]bool{
	"GAS_SAFETY": true, "GAS_SVC": true, "OIL": true, "LPG": true,
	"EICR": true, "ELEC": true, "PAT": true, "EMLT": true,
	"EPC": true, "SAP": true, "DEC": true,
	"FRA": true, "FRAEW": true, "FIRE_ALARM": true, "FIRE_EXT": true,
	"FIRE_DOOR": true, "SMOKE_CO": true, "AOV": true, "SPRINKLER": true,
	"LEG_RA": true, "LEG_MONITOR": true, "WATER_TANK": true, "TMV": true,
	"ASB_SURVEY": true, "ASB_MGMT": true,
	"LOLER": true, "LIFT": true, "STAIRLIFT": true, "HOIST": true,
	"STRUCT": true, "BLDG_SAFETY": true, "BSR_REG": true, "FACADE": true,
	"ROOF": true, "PLAY": true, "TREE": true, "CCTV": true,
	"ACCESS_CTRL": true, "HHSRS": true, "DAMP_MOULD": true,
	"VENTILATION": true, "DDA": true, "PEST": true, "WASTE": true,
	"COMM_CLEAN": true, "UNKNOWN": true,
}

// MapCertificateTypeToCode maps a free-text certificate-type string onto the
// canonical code set. Unknown strings map to UNKNOWN with a warning.
func MapCertificateTypeToCode(raw string, log *logging.Logger) string {
	normalised := strings.ToUpper(strings.TrimSpace(raw))
	if normalised == "" {
		return "UNKNOWN"
	}
	if canonicalCodes[normalised] {
		return normalised
	}

	for _, rule := range typeRules {
		for _, token := range rule.tokens {
			if strings.Contains(normalised, token) {
				return rule.code
			}
		}
	}

	if log != nil {
		log.WithFields(map[string]interface{}{"certificate_type": raw}).Warn("Unmapped certificate type")
	}
	return "UNKNOWN"
}

// User-selectable certificate categories.
const (
	CategoryGasSafety  = "GAS_SAFETY"
	CategoryEICR       = "EICR"
	CategoryEPC        = "EPC"
	CategoryFireRisk   = "FIRE_RISK_ASSESSMENT"
	CategoryLegionella = "LEGIONELLA_ASSESSMENT"
	CategoryAsbestos   = "ASBESTOS_SURVEY"
	CategoryLiftLoler  = "LIFT_LOLER"
	CategoryOther      = "OTHER"
)

// documentTypeRules is the looser mapping from a model's documentType string
// to one of the eight user-selectable categories. Used when the uploader
// selected OTHER.
var documentTypeRules = []typeRule{
	{[]string{"GAS"}, CategoryGasSafety},
	{[]string{"EICR", "ELECTRIC"}, CategoryEICR},
	{[]string{"ENERGY PERFORMANCE", "EPC"}, CategoryEPC},
	{[]string{"FIRE"}, CategoryFireRisk},
	{[]string{"LEGIONELLA", "WATER HYGIENE"}, CategoryLegionella},
	{[]string{"ASBESTOS"}, CategoryAsbestos},
	{[]string{"LOLER", "LIFT", "ELEVATOR"}, CategoryLiftLoler},
}

// MapDocumentTypeToCategory maps a free-text document type to a
// user-selectable category, falling back to OTHER.
func MapDocumentTypeToCategory(raw string) string {
	normalised := strings.ToUpper(strings.TrimSpace(raw))
	if normalised == "" {
		return CategoryOther
	}
	for _, rule := range documentTypeRules {
		for _, token := range rule.tokens {
			if strings.Contains(normalised, token) {
				return rule.code
			}
		}
	}
	return CategoryOther
}

// Appliance outcome verdicts.
const (
	AppliancePass = "PASS"
	ApplianceFail = "FAIL"
	ApplianceNA   = "N/A"
)

var applianceOutcomes = map[string]string{
	"PASS":         AppliancePass,
	"SATISFACTORY": AppliancePass,
	"SAFE":         AppliancePass,
	"ID":           ApplianceFail,
	"AR":           ApplianceFail,
	"NCS":          ApplianceFail,
	"C1":           ApplianceFail,
	"C2":           ApplianceFail,
	"CONDEMNED":    ApplianceFail,
	"FI":           ApplianceFail,
	"N/A":          ApplianceNA,
	"SERVICE ONLY": ApplianceNA,
	"NOT TESTED":   ApplianceNA,
}

// MapApplianceOutcome converts short appliance outcome tokens to
// PASS/FAIL/N-A. Unknown tokens yield nil with a warning.
func MapApplianceOutcome(token string, log *logging.Logger) *string {
	normalised := strings.ToUpper(strings.TrimSpace(token))
	if verdict, ok := applianceOutcomes[normalised]; ok {
		return &verdict
	}
	if log != nil && normalised != "" {
		log.WithFields(map[string]interface{}{"token": token}).Warn("Unknown appliance outcome token")
	}
	return nil
}
