// Package classification defines the classification-code rulebook entity.
package classification

// Code is one row of the rulebook the remediation engine consults.
type Code struct {
	ID                string  `db:"id"`
	Code              string  `db:"code"`
	CertificateTypeID *string `db:"certificate_type_id"`
	Severity          *string `db:"severity"`
	Description       string  `db:"description"`
	ActionRequired    *string `db:"action_required"`
	AutoCreateAction  bool    `db:"auto_create_action"`
	CostEstimateLow   *int64  `db:"cost_estimate_low"`
	CostEstimateHigh  *int64  `db:"cost_estimate_high"`
	ActionSeverity    *string `db:"action_severity"`
}
