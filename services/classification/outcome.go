package classification

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/complianceai/platform/domain/certificate"
)

// DetermineOutcome evaluates the extracted document against the compliance
// rules and returns SATISFACTORY or UNSATISFACTORY. Rules are consulted in
// order and evaluation stops at the first UNSATISFACTORY; a category rule
// that finds nothing wrong does not short-circuit the later sweeps.
func DetermineOutcome(category string, data json.RawMessage) certificate.Outcome {
	doc := gjson.ParseBytes(data)

	// 1. Explicit top-level verdict.
	for _, key := range []string{"overallOutcome", "overallAssessment"} {
		verdict := strings.ToUpper(doc.Get(key).String())
		if verdict == "" {
			continue
		}
		if strings.Contains(verdict, "UNSATISFACTORY") ||
			strings.Contains(verdict, "FAIL") ||
			strings.Contains(verdict, "NOT SAFE") {
			return certificate.OutcomeUnsatisfactory
		}
	}

	// 2. Category-specific rules.
	switch strings.ToUpper(strings.TrimSpace(category)) {
	case CategoryGasSafety, "GAS_SVC", "OIL", "LPG":
		if gasUnsatisfactory(doc) {
			return certificate.OutcomeUnsatisfactory
		}
	case CategoryEICR, "ELEC":
		if eicrUnsatisfactory(doc) {
			return certificate.OutcomeUnsatisfactory
		}
	case CategoryFireRisk, "FRA", "FRAEW":
		if fireRiskUnsatisfactory(doc) {
			return certificate.OutcomeUnsatisfactory
		}
	case CategoryAsbestos, "ASB_SURVEY", "ASB_MGMT":
		if asbestosUnsatisfactory(doc) {
			return certificate.OutcomeUnsatisfactory
		}
	case CategoryLegionella, "LEG_RA", "LEG_MONITOR":
		if legionellaUnsatisfactory(doc) {
			return certificate.OutcomeUnsatisfactory
		}
	case CategoryLiftLoler, "LOLER", "LIFT", "STAIRLIFT", "HOIST":
		if liftUnsatisfactory(doc) {
			return certificate.OutcomeUnsatisfactory
		}
	}

	// 3. Generic sweep.
	if genericUnsatisfactory(doc) {
		return certificate.OutcomeUnsatisfactory
	}

	// 4. Nothing tripped.
	return certificate.OutcomeSatisfactory
}

var gasFailTokens = []string{
	"FAIL", "UNSAFE", "ID", "IMMEDIATELY DANGEROUS", "AR", "AT RISK",
	"NCS", "NOT TO CURRENT STANDARD", "CONDEMNED",
}

var gasDefectClassifications = map[string]bool{
	"ID": true, "AR": true, "NCS": true, "CONDEMNED": true,
}

func gasUnsatisfactory(doc gjson.Result) bool {
	unsafe := false
	doc.Get("appliances").ForEach(func(_, appliance gjson.Result) bool {
		if safe := appliance.Get("applianceSafe"); safe.Exists() && !safe.Bool() {
			unsafe = true
			return false
		}
		for _, key := range []string{"outcome", "status"} {
			verdict := strings.ToUpper(appliance.Get(key).String())
			if verdict == "" {
				continue
			}
			for _, token := range gasFailTokens {
				if containsToken(verdict, token) {
					unsafe = true
					return false
				}
			}
		}
		return true
	})
	if unsafe {
		return true
	}

	doc.Get("defects").ForEach(func(_, defect gjson.Result) bool {
		classification := strings.ToUpper(strings.TrimSpace(defect.Get("classification").String()))
		if gasDefectClassifications[classification] {
			unsafe = true
			return false
		}
		return true
	})
	return unsafe
}

func eicrUnsatisfactory(doc gjson.Result) bool {
	for _, key := range []string{"c1Count", "c2Count", "fiCount"} {
		if doc.Get(key).Int() > 0 {
			return true
		}
	}
	failed := false
	doc.Get("observations").ForEach(func(_, obs gjson.Result) bool {
		switch strings.ToUpper(strings.TrimSpace(obs.Get("code").String())) {
		case "C1", "C2", "FI":
			failed = true
			return false
		}
		return true
	})
	return failed
}

var highRiskLevels = map[string]bool{
	"HIGH": true, "SUBSTANTIAL": true, "INTOLERABLE": true, "CRITICAL": true,
}

func fireRiskUnsatisfactory(doc gjson.Result) bool {
	if highRiskLevels[strings.ToUpper(strings.TrimSpace(doc.Get("riskLevel").String()))] {
		return true
	}
	failed := false
	doc.Get("findings").ForEach(func(_, finding gjson.Result) bool {
		switch strings.ToUpper(strings.TrimSpace(finding.Get("priority").String())) {
		case "HIGH", "IMMEDIATE", "INTOLERABLE":
			failed = true
			return false
		}
		return true
	})
	return failed
}

func asbestosUnsatisfactory(doc gjson.Result) bool {
	failed := false
	doc.Get("materials").ForEach(func(_, material gjson.Result) bool {
		condition := strings.ToUpper(strings.TrimSpace(material.Get("condition").String()))
		risk := strings.ToUpper(strings.TrimSpace(material.Get("risk").String()))
		if condition == "POOR" || condition == "DAMAGED" || risk == "HIGH" {
			failed = true
			return false
		}
		return true
	})
	return failed
}

func legionellaUnsatisfactory(doc gjson.Result) bool {
	switch strings.ToUpper(strings.TrimSpace(doc.Get("riskLevel").String())) {
	case "HIGH", "IMMEDIATE":
		return true
	}
	failed := false
	doc.Get("recommendations").ForEach(func(_, rec gjson.Result) bool {
		switch strings.ToUpper(strings.TrimSpace(rec.Get("priority").String())) {
		case "IMMEDIATE", "HIGH":
			failed = true
			return false
		}
		return true
	})
	return failed
}

func liftUnsatisfactory(doc gjson.Result) bool {
	if safe := doc.Get("safeToOperate"); safe.Exists() && !safe.Bool() {
		return true
	}
	failed := false
	doc.Get("defects").ForEach(func(_, defect gjson.Result) bool {
		if strings.EqualFold(strings.TrimSpace(defect.Get("category").String()), "A") {
			failed = true
			return false
		}
		return true
	})
	return failed
}

var genericDefectTokens = []string{
	"IMMEDIATELY DANGEROUS", "ID", "A", "C1", "CRITICAL", "DANGER",
}

func genericUnsatisfactory(doc gjson.Result) bool {
	if highRiskLevels[strings.ToUpper(strings.TrimSpace(doc.Get("riskLevel").String()))] {
		return true
	}
	failed := false
	doc.Get("defects").ForEach(func(_, defect gjson.Result) bool {
		classification := strings.ToUpper(defect.Get("classification").String())
		if classification == "" {
			return true
		}
		for _, token := range genericDefectTokens {
			if containsToken(classification, token) {
				failed = true
				return false
			}
		}
		return true
	})
	return failed
}

// containsToken matches whole words so that e.g. "ID" does not fire inside
// "VALIDATED" and "A" only matches as a standalone classification.
func containsToken(s, token string) bool {
	if s == token {
		return true
	}
	if !strings.Contains(s, token) {
		return false
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9')
	})
	for _, f := range fields {
		if f == token {
			return true
		}
	}
	// Multi-word tokens match as substrings.
	return strings.Contains(token, " ") && strings.Contains(s, token)
}
