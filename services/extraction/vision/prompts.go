package vision

import "strings"

// PromptVersion tags persisted extractions with the prompt generation.
const PromptVersion = "v2"

// PromptLibrary maps certificate categories to extraction prompts.
// Categories without a specific prompt fall through to a generic prompt that
// asks the model to self-identify the document type.
type PromptLibrary struct {
	prompts map[string]string
	generic string
}

// DefaultPromptLibrary returns the built-in prompt set.
func DefaultPromptLibrary() *PromptLibrary {
	return &PromptLibrary{
		prompts: map[string]string{
			"GAS_SAFETY": `You are reading a UK Landlord Gas Safety Record (CP12/LGSR).
Extract every field you can see and respond with a single JSON object:
{"documentType":"GAS_SAFETY","certificateNumber":...,"issueDate":"YYYY-MM-DD","expiryDate":"YYYY-MM-DD",
"address":...,"engineer":{"name":...,"gasSafeNumber":...,"company":...},
"appliances":[{"type":...,"make":...,"model":...,"location":...,"serialNumber":...,"applianceSafe":true/false,"outcome":...}],
"defects":[{"classification":"ID|AR|NCS","description":...,"location":...}],
"overallOutcome":"SATISFACTORY|UNSATISFACTORY"}
Use null for anything not present. Respond with JSON only.`,

			"EICR": `You are reading a UK Electrical Installation Condition Report (EICR).
Extract every field you can see and respond with a single JSON object:
{"documentType":"EICR","certificateNumber":...,"issueDate":"YYYY-MM-DD","nextInspectionDate":"YYYY-MM-DD",
"address":...,"inspector":{"name":...,"registrationNumber":...,"company":...},
"overallAssessment":"SATISFACTORY|UNSATISFACTORY",
"c1Count":0,"c2Count":0,"c3Count":0,"fiCount":0,
"observations":[{"code":"C1|C2|C3|FI","description":...,"location":...}]}
Use null for anything not present. Respond with JSON only.`,

			"FIRE_RISK_ASSESSMENT": `You are reading a UK Fire Risk Assessment.
Extract every field you can see and respond with a single JSON object:
{"documentType":"FIRE_RISK_ASSESSMENT","assessmentDate":"YYYY-MM-DD","reviewDate":"YYYY-MM-DD",
"address":...,"assessor":{"name":...,"company":...},
"riskLevel":"TRIVIAL|TOLERABLE|MODERATE|SUBSTANTIAL|INTOLERABLE",
"findings":[{"priority":"LOW|MEDIUM|HIGH|IMMEDIATE","description":...,"location":...}]}
Use null for anything not present. Respond with JSON only.`,

			"LEGIONELLA_ASSESSMENT": `You are reading a UK Legionella Risk Assessment.
Extract every field and respond with a single JSON object:
{"documentType":"LEGIONELLA_ASSESSMENT","assessmentDate":"YYYY-MM-DD","reviewDate":"YYYY-MM-DD",
"address":...,"assessor":{"name":...,"company":...},
"riskLevel":"LOW|MEDIUM|HIGH|IMMEDIATE",
"recommendations":[{"priority":"LOW|MEDIUM|HIGH|IMMEDIATE","description":...,"location":...}]}
Use null for anything not present. Respond with JSON only.`,

			"ASBESTOS_SURVEY": `You are reading a UK Asbestos Survey report.
Extract every field and respond with a single JSON object:
{"documentType":"ASBESTOS_SURVEY","surveyDate":"YYYY-MM-DD","surveyType":"MANAGEMENT|REFURBISHMENT|DEMOLITION",
"address":...,"surveyor":{"name":...,"company":...},
"materials":[{"location":...,"material":...,"condition":"GOOD|FAIR|POOR|DAMAGED","risk":"LOW|MEDIUM|HIGH"}]}
Use null for anything not present. Respond with JSON only.`,

			"LIFT_LOLER": `You are reading a UK LOLER thorough examination report for a lift.
Extract every field and respond with a single JSON object:
{"documentType":"LIFT_LOLER","examinationDate":"YYYY-MM-DD","nextExaminationDate":"YYYY-MM-DD",
"address":...,"examiner":{"name":...,"company":...},"liftIdentifier":...,
"safeToOperate":true/false,
"defects":[{"category":"A|B|C","description":...,"timescale":...}]}
Use null for anything not present. Respond with JSON only.`,

			"EPC": `You are reading a UK Energy Performance Certificate (EPC).
Extract every field and respond with a single JSON object:
{"documentType":"EPC","certificateNumber":...,"issueDate":"YYYY-MM-DD","expiryDate":"YYYY-MM-DD",
"address":...,"assessor":{"name":...,"accreditationNumber":...},
"currentRating":"A-G","potentialRating":"A-G","currentScore":0,"potentialScore":0}
Use null for anything not present. Respond with JSON only.`,
		},
		generic: `You are reading a UK social-housing compliance certificate of unknown type
(gas safety, EICR, fire risk assessment, asbestos survey, legionella assessment, LOLER, EPC or similar).
First identify the document type, then extract everything you can see.
Respond with a single JSON object:
{"documentType":<your best identification>,"certificateNumber":...,"issueDate":"YYYY-MM-DD","expiryDate":"YYYY-MM-DD",
"address":...,"issuer":{"name":...,"company":...,"registrationNumber":...},
"overallOutcome":...,"defects":[...],"observations":[...],"appliances":[...]}
Use null for anything not present. Respond with JSON only.`,
	}
}

// For returns the prompt and prompt version for a category.
func (p *PromptLibrary) For(category string) (prompt, version string) {
	if specific, ok := p.prompts[strings.ToUpper(strings.TrimSpace(category))]; ok {
		return specific, PromptVersion
	}
	return p.generic, PromptVersion + "-generic"
}

// Has reports whether a category has a specific prompt.
func (p *PromptLibrary) Has(category string) bool {
	_, ok := p.prompts[strings.ToUpper(strings.TrimSpace(category))]
	return ok
}
