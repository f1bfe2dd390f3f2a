package classification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	rulebook "github.com/complianceai/platform/domain/classification"
	"github.com/complianceai/platform/domain/certificate"
	"github.com/complianceai/platform/infrastructure/logging"
)

// ActionDraft is a remedial action before persistence.
type ActionDraft struct {
	Code         string
	Description  string
	Location     string
	Severity     certificate.Severity
	CostEstimate string
}

// CodeSource loads the classification-code rulebook, optionally filtered by
// certificate type.
type CodeSource interface {
	ListCodes(ctx context.Context, certificateTypeID string) ([]rulebook.Code, error)
}

// Generator converts defects and observations into remedial actions.
type Generator struct {
	codes CodeSource
	log   *logging.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(codes CodeSource, log *logging.Logger) *Generator {
	return &Generator{codes: codes, log: log}
}

// Generate produces remedial action drafts for one extraction. The rulebook
// is loaded per call so configuration edits take effect immediately; when the
// load fails the hardcoded fallback engine takes over.
func (g *Generator) Generate(ctx context.Context, category, certificateTypeID string, data json.RawMessage, outcome certificate.Outcome) []ActionDraft {
	var configured map[string]rulebook.Code
	if g.codes != nil {
		rows, err := g.codes.ListCodes(ctx, certificateTypeID)
		if err != nil {
			g.log.WithError(err).Warn("Classification code load failed, using fallback engine")
			return g.fallback(category, data, outcome)
		}
		configured = make(map[string]rulebook.Code, len(rows))
		for _, row := range rows {
			configured[row.Code] = row
		}
	} else {
		configured = map[string]rulebook.Code{}
	}

	doc := gjson.ParseBytes(data)
	var drafts []ActionDraft

	for _, finding := range collectFindings(category, doc) {
		row, hasRow := configured[finding.code]
		if hasRow && !row.AutoCreateAction {
			continue
		}

		draft := ActionDraft{
			Code:        finding.code,
			Description: finding.description,
			Location:    finding.location,
			Severity:    defaultSeverity(finding.code),
		}
		if hasRow {
			if row.ActionRequired != nil && *row.ActionRequired != "" {
				draft.Description = *row.ActionRequired
			}
			if row.ActionSeverity != nil && *row.ActionSeverity != "" {
				draft.Severity = certificate.Severity(*row.ActionSeverity)
			}
			draft.CostEstimate = costBand(row)
		} else {
			draft.CostEstimate = "TBD"
		}
		if draft.Location == "" {
			draft.Location = "Property"
		}
		drafts = append(drafts, draft)
	}

	if len(drafts) == 0 && outcome == certificate.OutcomeUnsatisfactory {
		drafts = append(drafts, reviewSweeper(category))
	}
	return drafts
}

// finding is one detected defect/observation/recommendation with its
// resolved classification code.
type finding struct {
	code        string
	description string
	location    string
}

// collectFindings walks every defect-bearing array in the document and
// resolves each entry to a classification code using per-category rules.
func collectFindings(category string, doc gjson.Result) []finding {
	var findings []finding
	add := func(code, description, location string) {
		if code == "" {
			return
		}
		findings = append(findings, finding{code: code, description: description, location: location})
	}

	cat := strings.ToUpper(strings.TrimSpace(category))

	doc.Get("defects").ForEach(func(_, defect gjson.Result) bool {
		desc := defect.Get("description").String()
		loc := defect.Get("location").String()
		classification := strings.ToUpper(strings.TrimSpace(defect.Get("classification").String()))
		switch cat {
		case CategoryGasSafety, "GAS_SVC", "OIL", "LPG":
			add(gasCode(classification), desc, loc)
		case CategoryLiftLoler, "LOLER", "LIFT", "STAIRLIFT", "HOIST":
			add(liftCode(defect), desc, loc)
		default:
			add(genericDefectCode(classification), desc, loc)
		}
		return true
	})

	doc.Get("observations").ForEach(func(_, obs gjson.Result) bool {
		code := strings.ToUpper(strings.TrimSpace(obs.Get("code").String()))
		switch code {
		case "C1", "C2", "C3", "FI":
			add(code, obs.Get("description").String(), obs.Get("location").String())
		}
		return true
	})

	doc.Get("findings").ForEach(func(_, f gjson.Result) bool {
		priority := strings.ToUpper(strings.TrimSpace(f.Get("priority").String()))
		add(fireRiskCode(priority), f.Get("description").String(), f.Get("location").String())
		return true
	})

	doc.Get("recommendations").ForEach(func(_, rec gjson.Result) bool {
		if cat == CategoryLegionella || cat == "LEG_RA" || cat == "LEG_MONITOR" {
			priority := strings.ToUpper(strings.TrimSpace(rec.Get("priority").String()))
			add(legionellaCode(priority), rec.Get("description").String(), rec.Get("location").String())
		}
		return true
	})

	doc.Get("materials").ForEach(func(_, material gjson.Result) bool {
		if code := asbestosCode(material); code != "" {
			desc := fmt.Sprintf("Asbestos-containing material: %s", material.Get("material").String())
			add(code, desc, material.Get("location").String())
		}
		return true
	})

	doc.Get("hazards").ForEach(func(_, hazard gjson.Result) bool {
		add(hazardCode(cat, hazard), hazard.Get("description").String(), hazard.Get("location").String())
		return true
	})

	// EPC ratings E and below are themselves actionable.
	if cat == CategoryEPC {
		rating := strings.ToUpper(strings.TrimSpace(doc.Get("currentRating").String()))
		switch rating {
		case "E", "F", "G":
			add("EPC_"+rating, fmt.Sprintf("Energy rating %s below standard", rating), "Property")
		}
	}

	return findings
}

func gasCode(classification string) string {
	switch classification {
	case "ID", "IMMEDIATELY DANGEROUS", "CONDEMNED":
		return "ID"
	case "AR", "AT RISK":
		return "AR"
	case "NCS", "NOT TO CURRENT STANDARD":
		return "NCS"
	}
	return ""
}

func liftCode(defect gjson.Result) string {
	switch strings.ToUpper(strings.TrimSpace(defect.Get("category").String())) {
	case "A":
		return "LIFT_CAT_A"
	case "B":
		return "LIFT_CAT_B"
	case "C":
		return "LIFT_CAT_C"
	}
	return ""
}

func fireRiskCode(priority string) string {
	switch priority {
	case "IMMEDIATE", "INTOLERABLE":
		return "INTOLERABLE"
	case "HIGH", "SUBSTANTIAL":
		return "SUBSTANTIAL"
	case "MEDIUM", "MODERATE":
		return "MODERATE"
	case "LOW", "TOLERABLE":
		return "TOLERABLE"
	case "TRIVIAL":
		return "TRIVIAL"
	}
	return ""
}

func legionellaCode(priority string) string {
	switch priority {
	case "OUTBREAK":
		return "LEG_OUTBREAK"
	case "IMMEDIATE", "HIGH":
		return "LEG_HIGH"
	case "MEDIUM", "MODERATE":
		return "LEG_MED"
	case "LOW":
		return "LEG_LOW"
	}
	return ""
}

func asbestosCode(material gjson.Result) string {
	condition := strings.ToUpper(strings.TrimSpace(material.Get("condition").String()))
	risk := strings.ToUpper(strings.TrimSpace(material.Get("risk").String()))
	damaged := condition == "POOR" || condition == "DAMAGED"
	switch {
	case damaged && risk == "HIGH":
		return "ACM_CRITICAL"
	case risk == "HIGH" || damaged:
		return "ACM_HIGH"
	case risk == "MEDIUM":
		return "ACM_MEDIUM"
	case risk == "LOW":
		return "ACM_LOW"
	}
	return ""
}

// hazardCode resolves category-specific hazard arrays (playground, tree,
// HHSRS, damp/mould and similar inspection reports).
func hazardCode(cat string, hazard gjson.Result) string {
	severity := strings.ToUpper(strings.TrimSpace(hazard.Get("severity").String()))
	if severity == "" {
		severity = strings.ToUpper(strings.TrimSpace(hazard.Get("risk").String()))
	}
	switch cat {
	case "PLAY":
		return graded("PLAY", severity, "LOW", "MEDIUM", "HIGH", "CRITICAL")
	case "TREE":
		switch severity {
		case "DANGEROUS", "CRITICAL", "HIGH":
			return "TREE_DANGEROUS"
		case "MEDIUM", "MODERATE":
			return "TREE_PRIORITY"
		default:
			return "TREE_ROUTINE"
		}
	case "HHSRS":
		category := strings.ToUpper(strings.TrimSpace(hazard.Get("hazardCategory").String()))
		if category == "1" || category == "CAT1" || category == "CATEGORY 1" {
			return "HHSRS_CAT1"
		}
		switch severity {
		case "HIGH":
			return "HHSRS_CAT2_HIGH"
		case "MEDIUM", "MODERATE":
			return "HHSRS_CAT2_MED"
		default:
			return "HHSRS_CAT2_LOW"
		}
	case "DAMP_MOULD":
		return graded("DAMP", severity, "MINOR", "MODERATE", "SEVERE", "CRITICAL")
	}
	return ""
}

func graded(prefix, severity string, low, medium, high, critical string) string {
	switch severity {
	case "CRITICAL", "IMMEDIATE":
		return prefix + "_" + critical
	case "HIGH", "SEVERE":
		return prefix + "_" + high
	case "MEDIUM", "MODERATE":
		return prefix + "_" + medium
	case "LOW", "MINOR":
		return prefix + "_" + low
	}
	return ""
}

// defaultSeverity is the built-in severity per code, used when the rulebook
// has no override.
func defaultSeverity(code string) certificate.Severity {
	switch code {
	case "ID", "C1", "INTOLERABLE", "ACM_CRITICAL", "LEG_OUTBREAK",
		"LIFT_CAT_A", "HHSRS_CAT1", "DAMP_CRITICAL", "PLAY_CRITICAL", "TREE_DANGEROUS":
		return certificate.SeverityImmediate
	case "AR", "C2", "FI", "SUBSTANTIAL", "ACM_HIGH", "LEG_HIGH",
		"LIFT_CAT_B", "HHSRS_CAT2_HIGH", "DAMP_SEVERE", "PLAY_HIGH":
		return certificate.SeverityUrgent
	case "NCS", "MODERATE", "ACM_MEDIUM", "LEG_MED", "LIFT_CAT_C",
		"HHSRS_CAT2_MED", "DAMP_MODERATE", "PLAY_MEDIUM", "TREE_PRIORITY",
		"EPC_F", "EPC_G":
		return certificate.SeverityRoutine
	default:
		return certificate.SeverityAdvisory
	}
}

// costBand renders the configured cost range in pounds, or TBD.
func costBand(row rulebook.Code) string {
	if row.CostEstimateLow != nil && row.CostEstimateHigh != nil {
		return fmt.Sprintf("£%d-%d", *row.CostEstimateLow/100, *row.CostEstimateHigh/100)
	}
	return "TBD"
}

func reviewSweeper(category string) ActionDraft {
	return ActionDraft{
		Code:         "REVIEW-" + strings.ToUpper(strings.TrimSpace(category)),
		Description:  "Unsatisfactory outcome with no classified defects; manual review required",
		Location:     "Property",
		Severity:     certificate.SeverityUrgent,
		CostEstimate: "TBD",
	}
}

// fallback is the hardcoded engine used when the rulebook cannot be loaded.
func (g *Generator) fallback(category string, data json.RawMessage, outcome certificate.Outcome) []ActionDraft {
	doc := gjson.ParseBytes(data)
	var drafts []ActionDraft
	cat := strings.ToUpper(strings.TrimSpace(category))

	switch cat {
	case CategoryGasSafety, "GAS_SVC", "OIL", "LPG":
		doc.Get("defects").ForEach(func(_, defect gjson.Result) bool {
			code := gasCode(strings.ToUpper(strings.TrimSpace(defect.Get("classification").String())))
			if code != "" {
				drafts = append(drafts, ActionDraft{
					Code:         code,
					Description:  defect.Get("description").String(),
					Location:     orDefault(defect.Get("location").String(), "Property"),
					Severity:     defaultSeverity(code),
					CostEstimate: "TBD",
				})
			}
			return true
		})
	case CategoryEICR, "ELEC":
		doc.Get("observations").ForEach(func(_, obs gjson.Result) bool {
			code := strings.ToUpper(strings.TrimSpace(obs.Get("code").String()))
			if code == "C1" || code == "C2" || code == "FI" || code == "C3" {
				drafts = append(drafts, ActionDraft{
					Code:         code,
					Description:  obs.Get("description").String(),
					Location:     orDefault(obs.Get("location").String(), "Property"),
					Severity:     defaultSeverity(code),
					CostEstimate: "TBD",
				})
			}
			return true
		})
	case CategoryFireRisk, "FRA", "FRAEW":
		doc.Get("findings").ForEach(func(_, f gjson.Result) bool {
			code := fireRiskCode(strings.ToUpper(strings.TrimSpace(f.Get("priority").String())))
			if code != "" {
				drafts = append(drafts, ActionDraft{
					Code:         code,
					Description:  f.Get("description").String(),
					Location:     orDefault(f.Get("location").String(), "Property"),
					Severity:     defaultSeverity(code),
					CostEstimate: "TBD",
				})
			}
			return true
		})
	case CategoryAsbestos, "ASB_SURVEY", "ASB_MGMT":
		doc.Get("materials").ForEach(func(_, material gjson.Result) bool {
			if code := asbestosCode(material); code != "" {
				drafts = append(drafts, ActionDraft{
					Code:         code,
					Description:  fmt.Sprintf("Asbestos-containing material: %s", material.Get("material").String()),
					Location:     orDefault(material.Get("location").String(), "Property"),
					Severity:     defaultSeverity(code),
					CostEstimate: "TBD",
				})
			}
			return true
		})
	case CategoryLiftLoler, "LOLER", "LIFT", "STAIRLIFT", "HOIST":
		doc.Get("defects").ForEach(func(_, defect gjson.Result) bool {
			if code := liftCode(defect); code != "" {
				drafts = append(drafts, ActionDraft{
					Code:         code,
					Description:  defect.Get("description").String(),
					Location:     orDefault(defect.Get("location").String(), "Property"),
					Severity:     defaultSeverity(code),
					CostEstimate: "TBD",
				})
			}
			return true
		})
	}

	if len(drafts) == 0 && outcome == certificate.OutcomeUnsatisfactory {
		drafts = append(drafts, reviewSweeper(category))
	}
	return drafts
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
