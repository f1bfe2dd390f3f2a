// Package certificate defines the compliance certificate entities.
package certificate

import (
	"encoding/json"
	"time"
)

// Status represents the certificate lifecycle.
type Status string

const (
	StatusUploaded    Status = "UPLOADED"
	StatusProcessing  Status = "PROCESSING"
	StatusNeedsReview Status = "NEEDS_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusFailed      Status = "FAILED"
)

// Outcome is the binary compliance verdict.
type Outcome string

const (
	OutcomeSatisfactory   Outcome = "SATISFACTORY"
	OutcomeUnsatisfactory Outcome = "UNSATISFACTORY"
)

// Certificate is a compliance certificate owned by exactly one property.
type Certificate struct {
	ID                string          `db:"id"`
	PropertyID        string          `db:"property_id"`
	OrganisationID    string          `db:"organisation_id"`
	Category          string          `db:"category"`
	FileName          string          `db:"file_name"`
	FileSize          int64           `db:"file_size"`
	MimeType          string          `db:"mime_type"`
	Status            Status          `db:"status"`
	CertificateNumber *string         `db:"certificate_number"`
	IssueDate         *time.Time      `db:"issue_date"`
	ExpiryDate        *time.Time      `db:"expiry_date"`
	Outcome           *Outcome        `db:"outcome"`
	ExtractedMetadata json.RawMessage `db:"extracted_metadata"`
	StatusMessage     *string         `db:"status_message"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// ExtractionMethod identifies which pipeline produced an extraction.
type ExtractionMethod string

const (
	MethodAzureOCRClaudeAnalysis ExtractionMethod = "AZURE_OCR_CLAUDE_ANALYSIS"
	MethodClaudeVision           ExtractionMethod = "CLAUDE_VISION"
	MethodPatternMatching        ExtractionMethod = "PATTERN_MATCHING"
	MethodMetadataExtraction     ExtractionMethod = "METADATA_EXTRACTION"
	MethodManual                 ExtractionMethod = "MANUAL"
)

// Extraction is the structured output persisted for a certificate.
type Extraction struct {
	ID            string           `db:"id"`
	CertificateID string           `db:"certificate_id"`
	Method        ExtractionMethod `db:"method"`
	Model         *string          `db:"model"`
	PromptVersion *string          `db:"prompt_version"`
	ExtractedJSON json.RawMessage  `db:"extracted_json"`
	Confidence    float64          `db:"confidence"`
	TextQuality   *string          `db:"text_quality"`
	CreatedAt     time.Time        `db:"created_at"`
}

// RunStatus is the extraction run review state.
type RunStatus string

const (
	RunPending          RunStatus = "PENDING"
	RunProcessing       RunStatus = "PROCESSING"
	RunValidationFailed RunStatus = "VALIDATION_FAILED"
	RunRepairInProgress RunStatus = "REPAIR_IN_PROGRESS"
	RunAwaitingReview   RunStatus = "AWAITING_REVIEW"
	RunApproved         RunStatus = "APPROVED"
	RunRejected         RunStatus = "REJECTED"
)

// ExtractionRun is the audit-grade record of one orchestrator pass.
type ExtractionRun struct {
	ID                       string          `db:"id"`
	CertificateID            string          `db:"certificate_id"`
	DocumentType             *string         `db:"document_type"`
	ClassificationConfidence float64         `db:"classification_confidence"`
	RawOutput                json.RawMessage `db:"raw_output"`
	ValidatedOutput          json.RawMessage `db:"validated_output"`
	NormalisedOutput         json.RawMessage `db:"normalised_output"`
	FinalTier                int             `db:"final_tier"`
	TierName                 string          `db:"tier_name"`
	ProcessingTimeMs         int64           `db:"processing_time_ms"`
	ProcessingCost           float64         `db:"processing_cost"`
	ValidationPassed         bool            `db:"validation_passed"`
	Status                   RunStatus       `db:"status"`
	CreatedAt                time.Time       `db:"created_at"`
}

// TierStatus is the per-tier attempt result.
type TierStatus string

const (
	TierSuccess   TierStatus = "success"
	TierEscalated TierStatus = "escalated"
	TierSkipped   TierStatus = "skipped"
	TierFailed    TierStatus = "failed"
	TierPending   TierStatus = "pending"
)

// TierAudit is one row per tier attempt within one run.
type TierAudit struct {
	ID               string          `db:"id"`
	ExtractionRunID  string          `db:"extraction_run_id"`
	TierName         string          `db:"tier_name"`
	TierOrder        int             `db:"tier_order"`
	AttemptedAt      time.Time       `db:"attempted_at"`
	CompletedAt      *time.Time      `db:"completed_at"`
	ProcessingTimeMs int64           `db:"processing_time_ms"`
	Status           TierStatus      `db:"status"`
	Confidence       float64         `db:"confidence"`
	Cost             float64         `db:"cost"`
	FieldCount       int             `db:"field_count"`
	EscalationReason *string         `db:"escalation_reason"`
	PageCount        int             `db:"page_count"`
	RawOutput        json.RawMessage `db:"raw_output"`
}

// Severity is the urgency tag on a remedial action.
type Severity string

const (
	SeverityImmediate Severity = "IMMEDIATE"
	SeverityUrgent    Severity = "URGENT"
	SeverityRoutine   Severity = "ROUTINE"
	SeverityAdvisory  Severity = "ADVISORY"
)

// DueIn returns the due-date horizon for a severity.
func (s Severity) DueIn() time.Duration {
	switch s {
	case SeverityImmediate:
		return 24 * time.Hour
	case SeverityUrgent:
		return 7 * 24 * time.Hour
	case SeverityRoutine:
		return 30 * 24 * time.Hour
	default:
		return 90 * 24 * time.Hour
	}
}

// ActionStatus is the remedial action lifecycle.
type ActionStatus string

const (
	ActionOpen       ActionStatus = "OPEN"
	ActionInProgress ActionStatus = "IN_PROGRESS"
	ActionCompleted  ActionStatus = "COMPLETED"
	ActionCancelled  ActionStatus = "CANCELLED"
)

// RemedialAction is a defect remediation derived from an extraction.
type RemedialAction struct {
	ID            string       `db:"id"`
	CertificateID string       `db:"certificate_id"`
	PropertyID    string       `db:"property_id"`
	Code          string       `db:"code"`
	Description   string       `db:"description"`
	Location      string       `db:"location"`
	Severity      Severity     `db:"severity"`
	Status        ActionStatus `db:"status"`
	DueDate       *time.Time   `db:"due_date"`
	CostEstimate  *string      `db:"cost_estimate"`
	CostActual    *int64       `db:"cost_actual"`
	Notes         *string      `db:"notes"`
	ResolvedAt    *time.Time   `db:"resolved_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}
