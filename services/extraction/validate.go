package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// categoriesRequiringItems lists categories whose extractions must carry at
// least one appliance, defect, observation, finding or material entry.
var categoriesRequiringItems = map[string]bool{
	"GAS_SAFETY":      true,
	"EICR":            true,
	"ASBESTOS_SURVEY": true,
}

// validateOutput checks a tier's JSON against the minimum skeletal schema:
// a certificate type, at least one identifying field (issue date, expiry
// date or certificate number), and item entries for categories that demand
// them. A nil error means the output passed.
func validateOutput(data json.RawMessage, category string) error {
	if len(data) == 0 {
		return fmt.Errorf("empty output")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return fmt.Errorf("output is not a JSON object")
	}

	docType := firstString(doc, "certificateType", "documentType")
	if docType == "" {
		return fmt.Errorf("missing certificate type")
	}

	hasIdentity := firstString(doc,
		"issueDate", "inspectionDate", "assessmentDate", "surveyDate", "examinationDate") != "" ||
		firstString(doc, "expiryDate", "nextInspectionDate", "nextExaminationDate", "reviewDate") != "" ||
		firstString(doc, "certificateNumber") != ""
	if !hasIdentity {
		return fmt.Errorf("missing issue date, expiry date and certificate number")
	}

	key := strings.ToUpper(strings.TrimSpace(category))
	if categoriesRequiringItems[key] {
		if !hasItems(doc, "appliances", "defects", "observations", "findings", "materials") {
			return fmt.Errorf("category %s requires appliance, defect or observation entries", key)
		}
	}

	return nil
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := doc.Get(key); v.Exists() && v.String() != "" && v.Type != gjson.Null {
			return v.String()
		}
	}
	return ""
}

func hasItems(doc gjson.Result, keys ...string) bool {
	for _, key := range keys {
		if arr := doc.Get(key); arr.IsArray() && len(arr.Array()) > 0 {
			return true
		}
	}
	return false
}
