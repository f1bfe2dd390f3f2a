// Package ingestion runs the end-to-end per-document ingestion job.
package ingestion

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/complianceai/platform/domain/certificate"
	rulebook "github.com/complianceai/platform/domain/classification"
	"github.com/complianceai/platform/domain/ingestion"
	"github.com/complianceai/platform/domain/property"
	"github.com/complianceai/platform/infrastructure/database"
)

// Repository provides the ingestion pipeline's data access.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a Repository.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// --- ingestion jobs ---

// CreateJob inserts a new ingestion job and fills in its generated fields.
func (r *Repository) CreateJob(ctx context.Context, job *ingestion.Job) error {
	const q = `
		INSERT INTO ingestion_jobs
			(property_id, category, file_name, storage_key, file_base64, mime_type, webhook_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING')
		RETURNING id, status, attempt_count, created_at, updated_at`
	return r.db.QueryRowxContext(ctx, q,
		job.PropertyID, job.Category, job.FileName, job.StorageKey,
		job.FileBase64, job.MimeType, job.WebhookURL,
	).Scan(&job.ID, &job.Status, &job.AttemptCount, &job.CreatedAt, &job.UpdatedAt)
}

// GetJob returns a job by id.
func (r *Repository) GetJob(ctx context.Context, id string) (*ingestion.Job, error) {
	var job ingestion.Job
	err := r.db.GetContext(ctx, &job, `SELECT * FROM ingestion_jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, database.NewNotFoundError("ingestion_jobs", id)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimJob atomically moves a job to PROCESSING and bumps its attempt count.
// The status filter is the sole concurrency control for idempotency:
// COMPLETE rows are terminal, and FAILED rows are only reclaimable while
// attempts remain.
func (r *Repository) ClaimJob(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ingestion_jobs
		SET status = 'PROCESSING',
		    attempt_count = attempt_count + 1,
		    last_attempt_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'COMPLETE'
		  AND NOT (status = 'FAILED' AND attempt_count >= $2)`, id, ingestion.MaxAttempts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetJobStatus updates a job's lifecycle status and message.
func (r *Repository) SetJobStatus(ctx context.Context, id string, status ingestion.Status, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ingestion_jobs SET status = $2, status_message = $3, updated_at = now()
		WHERE id = $1`, id, status, message)
	return err
}

// PinJobCertificate writes the certificate id back to the job immediately
// after creation. The id, once set, is never cleared.
func (r *Repository) PinJobCertificate(ctx context.Context, jobID, certificateID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ingestion_jobs SET certificate_id = $2, updated_at = now()
		WHERE id = $1 AND certificate_id IS NULL`, jobID, certificateID)
	return err
}

// CompleteJob marks a job COMPLETE.
func (r *Repository) CompleteJob(ctx context.Context, id, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ingestion_jobs SET status = 'COMPLETE', status_message = $2, updated_at = now()
		WHERE id = $1`, id, message)
	return err
}

// FailJob marks a job FAILED with error details.
func (r *Repository) FailJob(ctx context.Context, id, message, details string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ingestion_jobs
		SET status = 'FAILED', status_message = $2, error_details = $3, updated_at = now()
		WHERE id = $1`, id, message, details)
	return err
}

// --- certificates ---

// CreateCertificate inserts a certificate in PROCESSING state.
func (r *Repository) CreateCertificate(ctx context.Context, cert *certificate.Certificate) error {
	const q = `
		INSERT INTO certificates
			(property_id, organisation_id, category, file_name, file_size, mime_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowxContext(ctx, q,
		cert.PropertyID, cert.OrganisationID, cert.Category, cert.FileName,
		cert.FileSize, cert.MimeType, cert.Status,
	).Scan(&cert.ID, &cert.CreatedAt, &cert.UpdatedAt)
}

// GetCertificate returns a certificate by id.
func (r *Repository) GetCertificate(ctx context.Context, id string) (*certificate.Certificate, error) {
	var cert certificate.Certificate
	err := r.db.GetContext(ctx, &cert, `SELECT * FROM certificates WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, database.NewNotFoundError("certificates", id)
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// ApplyExtraction updates the certificate with extraction outputs. The
// outcome is never downgraded from UNSATISFACTORY once a human review has
// approved the certificate.
func (r *Repository) ApplyExtraction(ctx context.Context, id string, status certificate.Status,
	category string, certificateNumber *string, issueDate, expiryDate *time.Time,
	outcome *certificate.Outcome, metadata json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE certificates
		SET status = $2,
		    category = COALESCE(NULLIF($3, ''), category),
		    certificate_number = COALESCE($4, certificate_number),
		    issue_date = COALESCE($5, issue_date),
		    expiry_date = COALESCE($6, expiry_date),
		    outcome = CASE
		        WHEN status = 'APPROVED' AND outcome = 'UNSATISFACTORY' THEN outcome
		        ELSE COALESCE($7, outcome)
		    END,
		    extracted_metadata = COALESCE($8, extracted_metadata),
		    updated_at = now()
		WHERE id = $1`,
		id, status, category, certificateNumber, issueDate, expiryDate, outcome, metadata)
	return err
}

// SetCertificateStatus updates status and message.
func (r *Repository) SetCertificateStatus(ctx context.Context, id string, status certificate.Status, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE certificates SET status = $2, status_message = $3, updated_at = now()
		WHERE id = $1`, id, status, message)
	return err
}

// --- extractions and audit ---

// CreateExtraction inserts an extraction row.
func (r *Repository) CreateExtraction(ctx context.Context, ext *certificate.Extraction) error {
	const q = `
		INSERT INTO extractions
			(certificate_id, method, model, prompt_version, extracted_json, confidence, text_quality)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	return r.db.QueryRowxContext(ctx, q,
		ext.CertificateID, ext.Method, ext.Model, ext.PromptVersion,
		ext.ExtractedJSON, ext.Confidence, ext.TextQuality,
	).Scan(&ext.ID, &ext.CreatedAt)
}

// CreateExtractionRun inserts the run and its tier audits in one
// transaction; audit rows are appended strictly in tier order.
func (r *Repository) CreateExtractionRun(ctx context.Context, run *certificate.ExtractionRun, audits []certificate.TierAudit) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const runQ = `
		INSERT INTO extraction_runs
			(certificate_id, document_type, classification_confidence, raw_output,
			 validated_output, normalised_output, final_tier, tier_name,
			 processing_time_ms, processing_cost, validation_passed, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`
	if err := tx.QueryRowxContext(ctx, runQ,
		run.CertificateID, run.DocumentType, run.ClassificationConfidence, run.RawOutput,
		run.ValidatedOutput, run.NormalisedOutput, run.FinalTier, run.TierName,
		run.ProcessingTimeMs, run.ProcessingCost, run.ValidationPassed, run.Status,
	).Scan(&run.ID, &run.CreatedAt); err != nil {
		return fmt.Errorf("insert extraction run: %w", err)
	}

	const auditQ = `
		INSERT INTO extraction_tier_audits
			(extraction_run_id, tier_name, tier_order, attempted_at, completed_at,
			 processing_time_ms, status, confidence, cost, field_count,
			 escalation_reason, page_count, raw_output)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	for i := range audits {
		a := &audits[i]
		a.ExtractionRunID = run.ID
		if _, err := tx.ExecContext(ctx, auditQ,
			a.ExtractionRunID, a.TierName, a.TierOrder, a.AttemptedAt, a.CompletedAt,
			a.ProcessingTimeMs, a.Status, a.Confidence, a.Cost, a.FieldCount,
			a.EscalationReason, a.PageCount, a.RawOutput,
		); err != nil {
			return fmt.Errorf("insert tier audit %s: %w", a.TierName, err)
		}
	}

	return tx.Commit()
}

// --- remedial actions ---

// CreateRemedialAction inserts a remedial action.
func (r *Repository) CreateRemedialAction(ctx context.Context, action *certificate.RemedialAction) error {
	const q = `
		INSERT INTO remedial_actions
			(certificate_id, property_id, code, description, location, severity, status, due_date, cost_estimate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowxContext(ctx, q,
		action.CertificateID, action.PropertyID, action.Code, action.Description,
		action.Location, action.Severity, action.Status, action.DueDate, action.CostEstimate,
	).Scan(&action.ID, &action.CreatedAt, &action.UpdatedAt)
}

// UpdateRemedialAction applies an inbound HMS status update.
func (r *Repository) UpdateRemedialAction(ctx context.Context, id string, status certificate.ActionStatus,
	notes *string, completedAt *time.Time, costActual *int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE remedial_actions
		SET status = $2,
		    notes = COALESCE($3, notes),
		    resolved_at = CASE WHEN $2 IN ('COMPLETED','CANCELLED') THEN COALESCE($4, now()) ELSE resolved_at END,
		    cost_actual = COALESCE($5, cost_actual),
		    updated_at = now()
		WHERE id = $1`, id, status, notes, completedAt, costActual)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.NewNotFoundError("remedial_actions", id)
	}
	return nil
}

// --- properties, components, contractors ---

// GetProperty returns a property by id.
func (r *Repository) GetProperty(ctx context.Context, id string) (*property.Property, error) {
	var p property.Property
	err := r.db.GetContext(ctx, &p, `SELECT * FROM properties WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, database.NewNotFoundError("properties", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePropertyMetadata merges extracted metadata and, when the address is
// trusted, overwrites the address fields.
func (r *Repository) UpdatePropertyMetadata(ctx context.Context, id string, metadata json.RawMessage,
	line1, city, postcode string, updateAddress bool) error {
	if updateAddress {
		_, err := r.db.ExecContext(ctx, `
			UPDATE properties
			SET extracted_metadata = $2,
			    address_line1 = $3,
			    city = COALESCE(NULLIF($4, ''), city),
			    postcode = $5,
			    updated_at = now()
			WHERE id = $1`, id, metadata, line1, city, postcode)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE properties SET extracted_metadata = $2, updated_at = now() WHERE id = $1`, id, metadata)
	return err
}

// FindComponent deduplicates by serial number when present, else by
// property + component type.
func (r *Repository) FindComponent(ctx context.Context, propertyID, componentType string, serialNumber *string) (*property.Component, error) {
	var comp property.Component
	var err error
	if serialNumber != nil && *serialNumber != "" {
		err = r.db.GetContext(ctx, &comp, `
			SELECT * FROM components WHERE serial_number = $1 LIMIT 1`, *serialNumber)
	} else {
		err = r.db.GetContext(ctx, &comp, `
			SELECT * FROM components WHERE property_id = $1 AND component_type = $2 LIMIT 1`,
			propertyID, componentType)
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &comp, nil
}

// CreateComponent inserts a component.
func (r *Repository) CreateComponent(ctx context.Context, comp *property.Component) error {
	const q = `
		INSERT INTO components
			(property_id, certificate_id, component_type, category, make, model, serial_number, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`
	return r.db.QueryRowxContext(ctx, q,
		comp.PropertyID, comp.CertificateID, comp.ComponentType, comp.Category,
		comp.Make, comp.Model, comp.SerialNumber, comp.Location,
	).Scan(&comp.ID, &comp.CreatedAt)
}

// FindContractor matches by name or registration number.
func (r *Repository) FindContractor(ctx context.Context, name string, registrationNumber *string) (*property.Contractor, error) {
	var c property.Contractor
	err := r.db.GetContext(ctx, &c, `
		SELECT * FROM contractors
		WHERE lower(name) = lower($1)
		   OR ($2::text IS NOT NULL AND registration_number = $2)
		LIMIT 1`, name, registrationNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContractor inserts a contractor.
func (r *Repository) CreateContractor(ctx context.Context, c *property.Contractor) error {
	const q = `
		INSERT INTO contractors (name, company, registration_number, registration_body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return r.db.QueryRowxContext(ctx, q,
		c.Name, c.Company, c.RegistrationNumber, c.RegistrationBody,
	).Scan(&c.ID, &c.CreatedAt)
}

// --- classification codes ---

// ListCodes loads the rulebook, optionally filtered by certificate type.
func (r *Repository) ListCodes(ctx context.Context, certificateTypeID string) ([]rulebook.Code, error) {
	var rows []rulebook.Code
	var err error
	if certificateTypeID != "" {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT * FROM classification_codes
			WHERE certificate_type_id = $1 OR certificate_type_id IS NULL`, certificateTypeID)
	} else {
		err = r.db.SelectContext(ctx, &rows, `SELECT * FROM classification_codes`)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// --- outbound events ---

// StageWebhookEvent inserts an unprocessed webhook event for the delivery
// worker to fan out.
func (r *Repository) StageWebhookEvent(ctx context.Context, eventType, entityType string, entityID *string, payload json.RawMessage) (string, error) {
	var id string
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO webhook_events (event_type, entity_type, entity_id, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, eventType, entityType, entityID, payload).Scan(&id)
	return id, err
}
