package ingestion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/complianceai/platform/domain/certificate"
	"github.com/complianceai/platform/domain/ingestion"
	"github.com/complianceai/platform/domain/property"
	apperrors "github.com/complianceai/platform/infrastructure/errors"
	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/infrastructure/resilience"
	"github.com/complianceai/platform/pkg/blob"
	"github.com/complianceai/platform/services/classification"
	"github.com/complianceai/platform/services/events"
	"github.com/complianceai/platform/services/extraction"
)

// Timeouts for the external legs of one job.
const (
	byteLoadTimeout   = 60 * time.Second
	extractionTimeout = 300 * time.Second
)

// Extractor runs the tiered extraction cascade.
type Extractor interface {
	Extract(ctx context.Context, certificateID string, data []byte, mimeType, filename string, opts extraction.Options) (*extraction.TieredResult, error)
}

// Coordinator executes the end-to-end per-document ingestion job.
type Coordinator struct {
	repo         *Repository
	store        blob.Store
	extractor    Extractor
	generator    *classification.Generator
	hub          *events.Hub
	storeBreaker *resilience.CircuitBreaker
	log          *logging.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(repo *Repository, store blob.Store, extractor Extractor,
	generator *classification.Generator, hub *events.Hub, log *logging.Logger) *Coordinator {
	return &Coordinator{
		repo:      repo,
		store:     store,
		extractor: extractor,
		generator: generator,
		hub:       hub,
		storeBreaker: resilience.New(resilience.Config{
			MaxFailures: 3,
			Timeout:     60 * time.Second,
		}),
		log: log,
	}
}

// Process runs one ingestion job to completion. Transient errors are
// returned so the queue retries; everything else is absorbed after being
// recorded against the job.
func (c *Coordinator) Process(ctx context.Context, jobID string) error {
	job, err := c.repo.GetJob(ctx, jobID)
	if err != nil {
		return apperrors.DatabaseError("get ingestion job", err)
	}

	// Idempotency gate.
	if skip, reason := c.shouldSkip(ctx, job); skip {
		c.log.WithContext(ctx).WithField("job_id", job.ID).WithField("reason", reason).
			Info("Ingestion job skipped")
		return nil
	}

	claimed, err := c.repo.ClaimJob(ctx, job.ID)
	if err != nil {
		return apperrors.DatabaseError("claim ingestion job", err)
	}
	if !claimed {
		return nil
	}

	if err := c.run(ctx, job); err != nil {
		c.recordFailure(ctx, job, err)
		if apperrors.IsTransient(err) {
			return err
		}
		return nil
	}
	return nil
}

func (c *Coordinator) shouldSkip(ctx context.Context, job *ingestion.Job) (bool, string) {
	if job.Status == ingestion.StatusComplete {
		return true, "already complete"
	}
	if job.Status == ingestion.StatusFailed && job.AttemptCount >= ingestion.MaxAttempts {
		return true, "attempts exhausted"
	}
	if job.CertificateID != nil {
		cert, err := c.repo.GetCertificate(ctx, *job.CertificateID)
		if err == nil && cert.Status != certificate.StatusFailed {
			return true, "certificate already healthy"
		}
	}
	return false, ""
}

func (c *Coordinator) run(ctx context.Context, job *ingestion.Job) error {
	data, err := c.loadBytes(ctx, job)
	if err != nil {
		if svcErr := apperrors.GetServiceError(err); svcErr != nil && svcErr.Code == apperrors.ErrCodeMissingInput {
			return c.handleMissingInput(ctx, job)
		}
		return err
	}

	mimeType := "application/pdf"
	if job.MimeType != nil && *job.MimeType != "" {
		mimeType = *job.MimeType
	}

	cert := &certificate.Certificate{
		PropertyID: job.PropertyID,
		Category:   job.Category,
		FileName:   job.FileName,
		FileSize:   int64(len(data)),
		MimeType:   mimeType,
		Status:     certificate.StatusProcessing,
	}
	if prop, err := c.repo.GetProperty(ctx, job.PropertyID); err == nil {
		cert.OrganisationID = prop.OrganisationID
	}
	if err := c.repo.CreateCertificate(ctx, cert); err != nil {
		return apperrors.DatabaseError("create certificate", err)
	}
	// Idempotency pin: the job keeps the first certificate id written to it,
	// which shouldSkip consults on redelivery. A retry after a failure
	// creates a fresh certificate and leaves the pin unchanged.
	if err := c.repo.PinJobCertificate(ctx, job.ID, cert.ID); err != nil {
		return apperrors.DatabaseError("pin certificate", err)
	}
	job.CertificateID = &cert.ID

	if err := c.repo.SetJobStatus(ctx, job.ID, ingestion.StatusExtracting, "extraction in progress"); err != nil {
		return apperrors.DatabaseError("set job extracting", err)
	}

	extractCtx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()
	result, err := c.extractor.Extract(extractCtx, cert.ID, data, mimeType, job.FileName, extraction.Options{
		Category: job.Category,
	})
	if err != nil {
		if extractCtx.Err() != nil {
			return apperrors.Timeout("tiered extraction")
		}
		return err
	}

	if err := c.persistResult(ctx, job, cert, result); err != nil {
		return err
	}

	if err := c.repo.CompleteJob(ctx, job.ID, "ingestion complete"); err != nil {
		return apperrors.DatabaseError("complete job", err)
	}

	c.notifyComplete(ctx, job, cert)
	return nil
}

// loadBytes prefers a base64 fallback carried on the job, then the document
// store by storage key, both behind a circuit breaker and timeout.
func (c *Coordinator) loadBytes(ctx context.Context, job *ingestion.Job) ([]byte, error) {
	if job.FileBase64 != nil && *job.FileBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(*job.FileBase64)
		if err == nil && len(data) > 0 {
			return data, nil
		}
		c.log.WithContext(ctx).WithField("job_id", job.ID).Warn("Base64 payload undecodable, falling back to store")
	}

	if job.StorageKey == nil || *job.StorageKey == "" {
		return nil, apperrors.MissingInput(job.ID)
	}

	loadCtx, cancel := context.WithTimeout(ctx, byteLoadTimeout)
	defer cancel()

	var data []byte
	err := c.storeBreaker.Execute(loadCtx, func() error {
		var fetchErr error
		data, fetchErr = c.store.Fetch(loadCtx, *job.StorageKey)
		return fetchErr
	})
	if err != nil {
		if err == resilience.ErrCircuitOpen || err == resilience.ErrTooManyRequests {
			return nil, apperrors.CircuitOpen("document-store")
		}
		if apperrors.IsNotFound(err) {
			return nil, apperrors.MissingInput(job.ID)
		}
		if loadCtx.Err() != nil {
			return nil, apperrors.Timeout("document fetch")
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperrors.MissingInput(job.ID)
	}
	return data, nil
}

// handleMissingInput is the terminal no-bytes path: a MANUAL extraction stub
// and a certificate parked for review, with no queue retry.
func (c *Coordinator) handleMissingInput(ctx context.Context, job *ingestion.Job) error {
	cert := &certificate.Certificate{
		PropertyID: job.PropertyID,
		Category:   job.Category,
		FileName:   job.FileName,
		Status:     certificate.StatusProcessing,
	}
	if prop, err := c.repo.GetProperty(ctx, job.PropertyID); err == nil {
		cert.OrganisationID = prop.OrganisationID
	}
	if job.CertificateID != nil {
		if existing, err := c.repo.GetCertificate(ctx, *job.CertificateID); err == nil {
			cert = existing
		}
	} else if err := c.repo.CreateCertificate(ctx, cert); err != nil {
		return apperrors.DatabaseError("create certificate", err)
	} else if err := c.repo.PinJobCertificate(ctx, job.ID, cert.ID); err != nil {
		return apperrors.DatabaseError("pin certificate", err)
	}

	stub, _ := json.Marshal(map[string]interface{}{"requiresManualUpload": true})
	ext := &certificate.Extraction{
		CertificateID: cert.ID,
		Method:        certificate.MethodManual,
		ExtractedJSON: stub,
	}
	if err := c.repo.CreateExtraction(ctx, ext); err != nil {
		return apperrors.DatabaseError("create manual extraction stub", err)
	}

	if err := c.repo.SetCertificateStatus(ctx, cert.ID, certificate.StatusNeedsReview, "document bytes unavailable, manual upload required"); err != nil {
		return apperrors.DatabaseError("set certificate needs review", err)
	}
	if err := c.repo.FailJob(ctx, job.ID, "no document bytes available from any source", ""); err != nil {
		return apperrors.DatabaseError("fail job", err)
	}

	c.hub.Broadcast(events.Event{
		Type:          events.TypeExtractionFailed,
		CertificateID: cert.ID,
		PropertyID:    job.PropertyID,
		Status:        string(certificate.StatusNeedsReview),
		Message:       "document bytes unavailable",
	})
	return nil
}

func (c *Coordinator) persistResult(ctx context.Context, job *ingestion.Job, cert *certificate.Certificate, result *extraction.TieredResult) error {
	model := optional(result.Model)
	promptVersion := optional(result.PromptVersion)
	textQuality := optional(result.TextQuality)

	ext := &certificate.Extraction{
		CertificateID: cert.ID,
		Method:        result.Method,
		Model:         model,
		PromptVersion: promptVersion,
		ExtractedJSON: result.Data,
		Confidence:    result.Confidence,
		TextQuality:   textQuality,
	}
	if err := c.repo.CreateExtraction(ctx, ext); err != nil {
		return apperrors.DatabaseError("create extraction", err)
	}

	normalized, normalizedJSON := classification.Normalize(cert.Category, result.Data, c.log)

	runStatus := certificate.RunApproved
	if result.RequiresReview {
		runStatus = certificate.RunAwaitingReview
	}
	run := &certificate.ExtractionRun{
		CertificateID:            cert.ID,
		DocumentType:             optional(result.DocumentType),
		ClassificationConfidence: result.Confidence,
		RawOutput:                result.Data,
		ValidatedOutput:          result.Data,
		NormalisedOutput:         normalizedJSON,
		FinalTier:                result.FinalTierOrdinal,
		TierName:                 result.FinalTier,
		ProcessingTimeMs:         result.ProcessingTimeMs,
		ProcessingCost:           result.ProcessingCost,
		ValidationPassed:         result.ValidationPassed,
		Status:                   runStatus,
	}
	if err := c.repo.CreateExtractionRun(ctx, run, result.Audits); err != nil {
		return apperrors.DatabaseError("create extraction run", err)
	}

	// A refined category only applies when the uploader chose OTHER.
	category := ""
	if strings.EqualFold(cert.Category, classification.CategoryOther) && result.DocumentType != "" {
		if refined := classification.MapDocumentTypeToCategory(result.DocumentType); refined != classification.CategoryOther {
			category = refined
			cert.Category = refined
		}
	}

	outcome := normalized.Outcome
	if err := c.repo.ApplyExtraction(ctx, cert.ID, certificate.StatusNeedsReview, category,
		optional(normalized.CertificateNumber), normalized.IssueDate, normalized.ExpiryDate,
		&outcome, normalizedJSON); err != nil {
		return apperrors.DatabaseError("apply extraction to certificate", err)
	}

	if err := c.repo.UpdatePropertyMetadata(ctx, job.PropertyID, normalizedJSON,
		normalized.Address.Line1, normalized.Address.City, normalized.Address.Postcode,
		normalized.Address.Plausible()); err != nil {
		return apperrors.DatabaseError("update property metadata", err)
	}

	c.createRemedialActions(ctx, job, cert, result, outcome)
	c.autoLinkComponents(ctx, job, cert, result)
	c.autoLinkContractor(ctx, normalized)

	return nil
}

func (c *Coordinator) createRemedialActions(ctx context.Context, job *ingestion.Job, cert *certificate.Certificate,
	result *extraction.TieredResult, outcome certificate.Outcome) {
	drafts := c.generator.Generate(ctx, cert.Category, cert.Category, result.Data, outcome)
	now := time.Now()
	for _, draft := range drafts {
		due := now.Add(draft.Severity.DueIn())
		action := &certificate.RemedialAction{
			CertificateID: cert.ID,
			PropertyID:    job.PropertyID,
			Code:          draft.Code,
			Description:   draft.Description,
			Location:      draft.Location,
			Severity:      draft.Severity,
			Status:        certificate.ActionOpen,
			DueDate:       &due,
			CostEstimate:  optional(draft.CostEstimate),
		}
		if err := c.repo.CreateRemedialAction(ctx, action); err != nil {
			c.log.WithContext(ctx).WithError(err).WithField("code", draft.Code).
				Error("Failed to create remedial action")
		}
	}
}

// componentCategories maps certificate categories to the component category
// auto-created for identified equipment.
var componentCategories = map[string]string{
	classification.CategoryGasSafety:  property.CategoryHeating,
	classification.CategoryEICR:       property.CategoryElectrical,
	classification.CategoryFireRisk:   property.CategoryFireSafety,
	classification.CategoryLegionella: property.CategoryWater,
	classification.CategoryAsbestos:   property.CategoryStructure,
	classification.CategoryLiftLoler:  property.CategoryLift,
	classification.CategoryEPC:        property.CategoryEnergy,
}

func (c *Coordinator) autoLinkComponents(ctx context.Context, job *ingestion.Job, cert *certificate.Certificate, result *extraction.TieredResult) {
	componentCategory, ok := componentCategories[strings.ToUpper(cert.Category)]
	if !ok {
		return
	}

	gjson.GetBytes(result.Data, "appliances").ForEach(func(_, appliance gjson.Result) bool {
		componentType := strings.TrimSpace(appliance.Get("type").String())
		if componentType == "" {
			componentType = strings.TrimSpace(appliance.Get("description").String())
		}
		if componentType == "" {
			return true
		}

		serial := optional(strings.TrimSpace(appliance.Get("serialNumber").String()))
		existing, err := c.repo.FindComponent(ctx, job.PropertyID, componentType, serial)
		if err != nil {
			c.log.WithContext(ctx).WithError(err).Warn("Component lookup failed")
			return true
		}
		if existing != nil {
			return true
		}

		comp := &property.Component{
			PropertyID:    job.PropertyID,
			CertificateID: &cert.ID,
			ComponentType: componentType,
			Category:      componentCategory,
			Make:          optional(appliance.Get("make").String()),
			Model:         optional(appliance.Get("model").String()),
			SerialNumber:  serial,
			Location:      optional(appliance.Get("location").String()),
		}
		if err := c.repo.CreateComponent(ctx, comp); err != nil {
			c.log.WithContext(ctx).WithError(err).Warn("Component creation failed")
		}
		return true
	})
}

func (c *Coordinator) autoLinkContractor(ctx context.Context, normalized *classification.Normalized) {
	if normalized.Issuer.Name == "" {
		return
	}
	registration := optional(normalized.Issuer.RegistrationNumber)
	existing, err := c.repo.FindContractor(ctx, normalized.Issuer.Name, registration)
	if err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("Contractor lookup failed")
		return
	}
	if existing != nil {
		return
	}

	contractor := &property.Contractor{
		Name:               normalized.Issuer.Name,
		Company:            optional(normalized.Issuer.Company),
		RegistrationNumber: registration,
		RegistrationBody:   optional(normalized.Issuer.RegistrationBody),
	}
	if err := c.repo.CreateContractor(ctx, contractor); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("Contractor creation failed")
	}
}

func (c *Coordinator) notifyComplete(ctx context.Context, job *ingestion.Job, cert *certificate.Certificate) {
	if job.WebhookURL != nil && *job.WebhookURL != "" {
		payload, _ := json.Marshal(map[string]interface{}{
			"jobId":         job.ID,
			"certificateId": cert.ID,
			"propertyId":    job.PropertyID,
			"category":      cert.Category,
			"webhookUrl":    *job.WebhookURL,
		})
		if _, err := c.repo.StageWebhookEvent(ctx, "ingestion.completed", "certificate", &cert.ID, payload); err != nil {
			c.log.WithContext(ctx).WithError(err).Error("Failed to stage ingestion.completed event")
		}
	}

	c.hub.Broadcast(events.Event{
		Type:          events.TypeExtractionComplete,
		CertificateID: cert.ID,
		PropertyID:    job.PropertyID,
		Status:        string(certificate.StatusNeedsReview),
	})
}

func (c *Coordinator) recordFailure(ctx context.Context, job *ingestion.Job, cause error) {
	c.log.WithContext(ctx).WithError(cause).WithField("job_id", job.ID).Error("Ingestion job failed")

	details := fmt.Sprintf("%+v", cause)
	if err := c.repo.FailJob(ctx, job.ID, cause.Error(), details); err != nil {
		c.log.WithContext(ctx).WithError(err).Error("Failed to record job failure")
	}

	certID := ""
	if job.CertificateID != nil {
		certID = *job.CertificateID
		if err := c.repo.SetCertificateStatus(ctx, certID, certificate.StatusFailed, cause.Error()); err != nil {
			c.log.WithContext(ctx).WithError(err).Error("Failed to mark certificate failed")
		}
	}

	if job.WebhookURL != nil && *job.WebhookURL != "" {
		payload, _ := json.Marshal(map[string]interface{}{
			"jobId":      job.ID,
			"propertyId": job.PropertyID,
			"error":      cause.Error(),
			"webhookUrl": *job.WebhookURL,
		})
		entityID := optional(certID)
		if _, err := c.repo.StageWebhookEvent(ctx, "ingestion.failed", "ingestion_job", entityID, payload); err != nil {
			c.log.WithContext(ctx).WithError(err).Error("Failed to stage ingestion.failed event")
		}
	}

	c.hub.Broadcast(events.Event{
		Type:          events.TypeExtractionFailed,
		CertificateID: certID,
		PropertyID:    job.PropertyID,
		Status:        string(certificate.StatusFailed),
		Message:       cause.Error(),
	})
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
