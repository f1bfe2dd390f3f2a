package extraction

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/complianceai/platform/domain/certificate"
	apperrors "github.com/complianceai/platform/infrastructure/errors"
	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/infrastructure/metrics"
	"github.com/complianceai/platform/services/extraction/ocr"
	"github.com/complianceai/platform/services/extraction/vision"
)

// DefaultConfidenceThreshold gates escalation when a category has no
// specific threshold configured.
const DefaultConfidenceThreshold = 0.75

// Confidence the orchestrator synthesises for vision-tier results.
const (
	visionConfidence     = 0.85
	promptOnlyConfidence = 0.5
)

// Nominal per-call cost estimates persisted for audit, in USD.
const (
	ocrCostPerPage  = 0.0015
	visionCallCost  = 0.02
	textAnalysisCost = 0.008
)

// TextExtractor extracts plain text from PDF bytes.
type TextExtractor interface {
	Extract(data []byte) (text string, pages int)
}

// OCRClient runs commercial OCR.
type OCRClient interface {
	Analyze(ctx context.Context, data []byte, mimeType string) *ocr.Result
}

// VisionClient runs the multimodal LLM tier.
type VisionClient interface {
	AnalyzeImage(ctx context.Context, data []byte, mimeType, category string) (*vision.Result, error)
	AnalyzeText(ctx context.Context, text, category string) (*vision.Result, error)
	AnalyzePrompt(ctx context.Context, category string) (*vision.Result, error)
	Model() string
}

// Options tune one orchestrator pass.
type Options struct {
	// Category is the uploader-selected certificate category; OTHER or empty
	// lets tier guesses take over.
	Category string
	// ForceAI skips accepting the cheap tiers even when they pass.
	ForceAI bool
}

// Orchestrator cascades a document through escalating extraction tiers.
type Orchestrator struct {
	text       TextExtractor
	ocr        OCRClient
	vision     VisionClient
	thresholds map[string]float64
	log        *logging.Logger
	metrics    *metrics.Metrics
}

// New creates an Orchestrator. The OCR and vision clients may be nil when
// the corresponding credentials are absent; their tiers then record skipped
// attempts.
func New(text TextExtractor, ocrClient OCRClient, visionClient VisionClient, log *logging.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		text:   text,
		ocr:    ocrClient,
		vision: visionClient,
		thresholds: map[string]float64{
			// Image-only categories tolerate slightly lower confidence than
			// the default before escalating to human review.
			"EPC": 0.7,
		},
		log:     log,
		metrics: m,
	}
}

// Threshold returns the escalation threshold for a category.
func (o *Orchestrator) Threshold(category string) float64 {
	if t, ok := o.thresholds[strings.ToUpper(strings.TrimSpace(category))]; ok {
		return t
	}
	return DefaultConfidenceThreshold
}

// attempt is one tier's candidate output.
type attempt struct {
	tier          string
	data          json.RawMessage
	confidence    float64
	method        certificate.ExtractionMethod
	model         string
	promptVersion string
	ocrProvider   string
	passed        bool
}

// Extract runs the cascade and returns a single TieredResult. The error
// return is reserved for context cancellation; tier failures escalate
// instead of propagating.
func (o *Orchestrator) Extract(ctx context.Context, certificateID string, data []byte, mimeType, filename string, opts Options) (*TieredResult, error) {
	start := time.Now()
	ctx = logging.WithCertificateID(ctx, certificateID)

	result := &TieredResult{CertificateID: certificateID}
	var attempts []attempt
	var totalCost float64

	category := strings.ToUpper(strings.TrimSpace(opts.Category))
	if category == "" {
		category = "OTHER"
	}

	// Local text is cheap and feeds several tiers.
	text, pages := o.text.Extract(data)
	result.PageCount = pages

	// Tier 0: metadata.
	guess := o.runMetadataTier(ctx, result, filename, data)
	if category == "OTHER" && guess.Category != "OTHER" {
		category = guess.Category
	}

	// Tier 0.5: pattern match over extracted text.
	if a := o.runPatternTier(ctx, result, text, category); a != nil {
		attempts = append(attempts, *a)
		if a.passed && !opts.ForceAI {
			return o.finish(result, attempts, category, start, totalCost), nil
		}
		if a.data != nil && category == "OTHER" {
			if c := gjson.GetBytes(a.data, "certificateType").String(); c != "" {
				category = c
			}
		}
	}

	// Tier 1 / 1.5: local text extraction and its quality.
	o.runTextTiers(ctx, result, text, pages)

	// Tier 2: commercial OCR feeding LLM text analysis.
	lastResortText := ""
	if a, fallback := o.runOCRTier(ctx, result, data, mimeType, category, &totalCost); a != nil {
		attempts = append(attempts, *a)
		if a.passed && a.confidence >= o.Threshold(category) {
			return o.finish(result, attempts, category, start, totalCost), nil
		}
	} else {
		lastResortText = fallback
	}

	// Tier 3: vision / text LLM.
	if a := o.runVisionTier(ctx, result, data, mimeType, text, lastResortText, category, &totalCost); a != nil {
		attempts = append(attempts, *a)
		if a.passed && a.confidence >= o.Threshold(category) {
			return o.finish(result, attempts, category, start, totalCost), nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Tier 4: human review. The orchestrator does not wait; it hands the
	// best attempt over flagged for review.
	o.appendAudit(result, certificate.TierAudit{
		TierName:         TierHumanReview,
		Status:           certificate.TierPending,
		EscalationReason: strptr("no tier met the confidence threshold"),
	}, time.Now())
	result.RequiresReview = true

	return o.finish(result, attempts, category, start, totalCost), nil
}

func (o *Orchestrator) runMetadataTier(ctx context.Context, result *TieredResult, filename string, data []byte) metadataGuess {
	tierStart := time.Now()
	guess := guessFromMetadata(filename, data)
	o.appendAudit(result, certificate.TierAudit{
		TierName:         TierMetadata,
		Status:           certificate.TierEscalated,
		Confidence:       guess.Confidence,
		FieldCount:       FieldCount(guess.json()),
		EscalationReason: strptr("metadata yields a category guess only"),
		RawOutput:        guess.json(),
	}, tierStart)
	return guess
}

func (o *Orchestrator) runPatternTier(ctx context.Context, result *TieredResult, text, category string) *attempt {
	tierStart := time.Now()
	if strings.TrimSpace(text) == "" {
		o.appendAudit(result, certificate.TierAudit{
			TierName:         TierPattern,
			Status:           certificate.TierSkipped,
			EscalationReason: strptr("no extracted text"),
		}, tierStart)
		return nil
	}

	matched := matchPatterns(text)
	payload := matched.json()
	audit := certificate.TierAudit{
		TierName:   TierPattern,
		Confidence: matched.Confidence,
		FieldCount: FieldCount(payload),
		RawOutput:  payload,
	}

	a := &attempt{
		tier:       TierPattern,
		data:       payload,
		confidence: matched.Confidence,
		method:     certificate.MethodPatternMatching,
	}

	if err := validateOutput(payload, category); err != nil {
		audit.Status = certificate.TierFailed
		audit.EscalationReason = strptr(err.Error())
	} else if matched.Confidence >= o.Threshold(category) {
		audit.Status = certificate.TierSuccess
		a.passed = true
	} else {
		audit.Status = certificate.TierEscalated
		audit.EscalationReason = strptr("confidence below threshold")
	}

	o.appendAudit(result, audit, tierStart)
	return a
}

func (o *Orchestrator) runTextTiers(ctx context.Context, result *TieredResult, text string, pages int) {
	tierStart := time.Now()
	if strings.TrimSpace(text) == "" {
		o.appendAudit(result, certificate.TierAudit{
			TierName:         TierLocalText,
			Status:           certificate.TierFailed,
			PageCount:        pages,
			EscalationReason: strptr("no extractable text"),
		}, tierStart)
	} else {
		o.appendAudit(result, certificate.TierAudit{
			TierName:         TierLocalText,
			Status:           certificate.TierEscalated,
			PageCount:        pages,
			Confidence:       textConfidence(text),
			EscalationReason: strptr("raw text needs structured analysis"),
		}, tierStart)
	}

	qualityStart := time.Now()
	quality := assessTextQuality(text)
	result.TextQuality = quality
	o.appendAudit(result, certificate.TierAudit{
		TierName:         TierTextQuality,
		Status:           certificate.TierEscalated,
		Confidence:       textConfidence(text),
		EscalationReason: strptr("text quality " + quality),
	}, qualityStart)
}

// runOCRTier returns either an attempt, or fallback text salvaged from a
// partially failed OCR call.
func (o *Orchestrator) runOCRTier(ctx context.Context, result *TieredResult, data []byte, mimeType, category string, totalCost *float64) (*attempt, string) {
	tierStart := time.Now()
	if o.ocr == nil {
		o.appendAudit(result, certificate.TierAudit{
			TierName:         TierOCR,
			Status:           certificate.TierSkipped,
			EscalationReason: strptr("OCR not configured"),
		}, tierStart)
		return nil, ""
	}

	ocrResult := o.ocr.Analyze(ctx, data, mimeType)
	cost := float64(result.PageCount) * ocrCostPerPage
	*totalCost += cost

	if !ocrResult.Usable() {
		reason := "ocr output unusable"
		if ocrResult.Err != "" {
			reason = ocrResult.Err
		}
		o.appendAudit(result, certificate.TierAudit{
			TierName:         TierOCR,
			Status:           certificate.TierFailed,
			Confidence:       ocrResult.Confidence,
			Cost:             cost,
			EscalationReason: strptr(reason),
		}, tierStart)
		// Any recognised text is still worth keeping as a last resort.
		return nil, ocrResult.RawText
	}

	if o.vision == nil {
		o.appendAudit(result, certificate.TierAudit{
			TierName:         TierOCR,
			Status:           certificate.TierFailed,
			Confidence:       ocrResult.Confidence,
			Cost:             cost,
			EscalationReason: strptr("no LLM configured for text analysis"),
		}, tierStart)
		return nil, ocrResult.RawText
	}

	analysed, err := o.vision.AnalyzeText(ctx, ocrResult.RawText, category)
	*totalCost += textAnalysisCost
	if err != nil {
		o.appendAudit(result, certificate.TierAudit{
			TierName:         TierOCR,
			Status:           certificate.TierFailed,
			Confidence:       ocrResult.Confidence,
			Cost:             cost + textAnalysisCost,
			EscalationReason: strptr(escalationReason(err)),
		}, tierStart)
		return nil, ocrResult.RawText
	}

	confidence := ocrResult.Confidence
	if confidence == 0 {
		// The read model omits word confidences for born-digital documents.
		confidence = 0.8
	}

	a := &attempt{
		tier:          TierOCR,
		data:          analysed.Data,
		confidence:    confidence,
		method:        certificate.MethodAzureOCRClaudeAnalysis,
		model:         analysed.Model,
		promptVersion: analysed.PromptVersion,
		ocrProvider:   ProviderAzureDI,
	}

	audit := certificate.TierAudit{
		TierName:   TierOCR,
		Confidence: confidence,
		Cost:       cost + textAnalysisCost,
		FieldCount: FieldCount(analysed.Data),
		RawOutput:  analysed.Data,
	}
	if err := validateOutput(analysed.Data, category); err != nil {
		audit.Status = certificate.TierFailed
		audit.EscalationReason = strptr(err.Error())
	} else if confidence >= o.Threshold(category) {
		audit.Status = certificate.TierSuccess
		a.passed = true
	} else {
		audit.Status = certificate.TierEscalated
		audit.EscalationReason = strptr("confidence below threshold")
	}
	o.appendAudit(result, audit, tierStart)
	return a, ""
}

func (o *Orchestrator) runVisionTier(ctx context.Context, result *TieredResult, data []byte, mimeType, localText, lastResortText, category string, totalCost *float64) *attempt {
	tierStart := time.Now()
	if o.vision == nil {
		o.appendAudit(result, certificate.TierAudit{
			TierName:         TierVision,
			Status:           certificate.TierSkipped,
			EscalationReason: strptr("LLM not configured"),
		}, tierStart)
		return nil
	}

	var (
		analysed   *vision.Result
		err        error
		confidence float64
		provider   string
	)

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		analysed, err = o.vision.AnalyzeImage(ctx, data, mimeType, category)
		confidence = visionConfidence
	case len(localText) > vision.MinTextLength:
		analysed, err = o.vision.AnalyzeText(ctx, localText, category)
		confidence = visionConfidence
		provider = ProviderLocalPDF
	case len(lastResortText) > vision.MinTextLength:
		analysed, err = o.vision.AnalyzeText(ctx, lastResortText, category)
		confidence = visionConfidence
		provider = ProviderAzureDI
	default:
		analysed, err = o.vision.AnalyzePrompt(ctx, category)
		confidence = promptOnlyConfidence
	}
	*totalCost += visionCallCost

	if err != nil {
		o.appendAudit(result, certificate.TierAudit{
			TierName:         TierVision,
			Status:           certificate.TierFailed,
			Cost:             visionCallCost,
			EscalationReason: strptr(escalationReason(err)),
		}, tierStart)
		return nil
	}

	a := &attempt{
		tier:          TierVision,
		data:          analysed.Data,
		confidence:    confidence,
		method:        certificate.MethodClaudeVision,
		model:         analysed.Model,
		promptVersion: analysed.PromptVersion,
		ocrProvider:   provider,
	}

	audit := certificate.TierAudit{
		TierName:   TierVision,
		Confidence: confidence,
		Cost:       visionCallCost,
		FieldCount: FieldCount(analysed.Data),
		RawOutput:  analysed.Data,
	}
	if vErr := validateOutput(analysed.Data, category); vErr != nil {
		audit.Status = certificate.TierFailed
		audit.EscalationReason = strptr(vErr.Error())
	} else if confidence >= o.Threshold(category) {
		audit.Status = certificate.TierSuccess
		a.passed = true
	} else {
		audit.Status = certificate.TierEscalated
		audit.EscalationReason = strptr("confidence below threshold")
	}
	o.appendAudit(result, audit, tierStart)
	return a
}

// finish selects the best attempt and seals the result.
func (o *Orchestrator) finish(result *TieredResult, attempts []attempt, category string, start time.Time, totalCost float64) *TieredResult {
	var best *attempt
	for i := range attempts {
		a := &attempts[i]
		if best == nil {
			best = a
			continue
		}
		switch {
		case a.passed && !best.passed:
			best = a
		case a.passed == best.passed && a.confidence > best.confidence:
			best = a
		}
	}

	if best != nil {
		result.Data = best.data
		result.Confidence = best.confidence
		result.FinalTier = best.tier
		result.Method = best.method
		result.Model = best.model
		result.PromptVersion = best.promptVersion
		result.OCRProvider = best.ocrProvider
		result.ValidationPassed = best.passed
		if !best.passed {
			result.RequiresReview = true
		}
		if docType := gjson.GetBytes(best.data, "documentType").String(); docType != "" {
			result.DocumentType = docType
		} else {
			result.DocumentType = gjson.GetBytes(best.data, "certificateType").String()
		}
	} else {
		result.FinalTier = TierHumanReview
		result.Method = certificate.MethodManual
		result.RequiresReview = true
	}

	ordinal, known := TierOrdinal(result.FinalTier)
	if !known {
		o.log.WithFields(map[string]interface{}{"tier": result.FinalTier}).Warn("Unknown tier name, persisting as human review")
	}
	result.FinalTierOrdinal = ordinal
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	result.ProcessingCost = totalCost

	if o.metrics != nil {
		outcome := "passed"
		if result.RequiresReview {
			outcome = "needs_review"
		}
		o.metrics.ExtractionsTotal.WithLabelValues(result.FinalTier, outcome).Inc()
	}
	return result
}

// appendAudit stamps timing fields and keeps tier order strictly increasing.
func (o *Orchestrator) appendAudit(result *TieredResult, audit certificate.TierAudit, tierStart time.Time) {
	now := time.Now()
	audit.AttemptedAt = tierStart
	audit.CompletedAt = &now
	audit.ProcessingTimeMs = now.Sub(tierStart).Milliseconds()
	ordinal, _ := TierOrdinal(audit.TierName)
	audit.TierOrder = ordinal
	if audit.PageCount == 0 {
		audit.PageCount = result.PageCount
	}
	result.Audits = append(result.Audits, audit)

	if o.metrics != nil {
		o.metrics.ObserveTier(audit.TierName, string(audit.Status), time.Duration(audit.ProcessingTimeMs)*time.Millisecond)
	}
}

// textConfidence grades raw text volume into a 0..0.6 band.
func textConfidence(text string) float64 {
	n := len(strings.TrimSpace(text))
	switch {
	case n == 0:
		return 0
	case n < 200:
		return 0.2
	case n < 1000:
		return 0.4
	default:
		return 0.6
	}
}

// assessTextQuality tags extracted text as good, fair or poor.
func assessTextQuality(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 50 {
		return "poor"
	}
	letters := 0
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	ratio := float64(letters) / float64(len(trimmed))
	if len(trimmed) > 500 && ratio > 0.5 {
		return "good"
	}
	if ratio > 0.3 {
		return "fair"
	}
	return "poor"
}

func escalationReason(err error) string {
	if svcErr := apperrors.GetServiceError(err); svcErr != nil && svcErr.Code == apperrors.ErrCodeLLMInvalidJSON {
		return "invalid_json"
	}
	return err.Error()
}

func strptr(s string) *string { return &s }
