package extraction

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complianceai/platform/domain/certificate"
	apperrors "github.com/complianceai/platform/infrastructure/errors"
	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/services/extraction/ocr"
	"github.com/complianceai/platform/services/extraction/vision"
)

type stubText struct {
	text  string
	pages int
}

func (s *stubText) Extract(_ []byte) (string, int) { return s.text, s.pages }

type stubOCR struct {
	result *ocr.Result
}

func (s *stubOCR) Analyze(_ context.Context, _ []byte, _ string) *ocr.Result { return s.result }

type stubVision struct {
	imageResult  *vision.Result
	textResult   *vision.Result
	promptResult *vision.Result
	imageErr     error
	textErr      error
	promptErr    error
	textCalls    int
	imageCalls   int
}

func (s *stubVision) AnalyzeImage(_ context.Context, _ []byte, _, _ string) (*vision.Result, error) {
	s.imageCalls++
	return s.imageResult, s.imageErr
}

func (s *stubVision) AnalyzeText(_ context.Context, _, _ string) (*vision.Result, error) {
	s.textCalls++
	return s.textResult, s.textErr
}

func (s *stubVision) AnalyzePrompt(_ context.Context, _ string) (*vision.Result, error) {
	return s.promptResult, s.promptErr
}

func (s *stubVision) Model() string { return "claude-test" }

func validGasJSON() json.RawMessage {
	return json.RawMessage(`{
		"documentType": "GAS_SAFETY",
		"certificateNumber": "GSR-1",
		"issueDate": "2026-03-14",
		"appliances": [{"type": "Gas Boiler", "applianceSafe": true}]
	}`)
}

func longText() string {
	text := "Landlord Gas Safety Record. "
	for len(text) < 300 {
		text += "Inspection of all gas appliances completed. "
	}
	return text
}

func newTestOrchestrator(text TextExtractor, o OCRClient, v VisionClient) *Orchestrator {
	return New(text, o, v, logging.New("test", "error", "text"), nil)
}

func TestOCRFailureFallsBackToVisionText(t *testing.T) {
	v := &stubVision{
		textResult: &vision.Result{Data: validGasJSON(), Model: "claude-test", PromptVersion: "v2"},
	}
	orch := newTestOrchestrator(
		&stubText{text: longText(), pages: 2},
		&stubOCR{result: &ocr.Result{Succeeded: false, Err: "service unavailable"}},
		v,
	)

	result, err := orch.Extract(context.Background(), "cert-1", []byte("%PDF-1.7"), "application/pdf", "gas.pdf", Options{Category: "GAS_SAFETY"})
	require.NoError(t, err)

	assert.Equal(t, TierVision, result.FinalTier)
	assert.Equal(t, 5, result.FinalTierOrdinal)
	assert.Equal(t, ProviderLocalPDF, result.OCRProvider)
	assert.Equal(t, certificate.MethodClaudeVision, result.Method)
	assert.True(t, result.ValidationPassed)
	assert.False(t, result.RequiresReview)

	// The OCR tier must be audited as failed before the vision success.
	var ocrAudit, visionAudit *certificate.TierAudit
	for i := range result.Audits {
		switch result.Audits[i].TierName {
		case TierOCR:
			ocrAudit = &result.Audits[i]
		case TierVision:
			visionAudit = &result.Audits[i]
		}
	}
	require.NotNil(t, ocrAudit)
	require.NotNil(t, visionAudit)
	assert.Equal(t, certificate.TierFailed, ocrAudit.Status)
	assert.Equal(t, certificate.TierSuccess, visionAudit.Status)
}

func TestAuditTierOrderStrictlyIncreasing(t *testing.T) {
	v := &stubVision{textResult: &vision.Result{Data: validGasJSON(), Model: "claude-test"}}
	orch := newTestOrchestrator(
		&stubText{text: longText(), pages: 1},
		&stubOCR{result: &ocr.Result{Succeeded: false}},
		v,
	)

	result, err := orch.Extract(context.Background(), "cert-2", []byte("%PDF-1.7"), "application/pdf", "gas.pdf", Options{Category: "GAS_SAFETY"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Audits)

	for i := 1; i < len(result.Audits); i++ {
		assert.Greater(t, result.Audits[i].TierOrder, result.Audits[i-1].TierOrder,
			"audit %d (%s) must have higher tier order than %d (%s)",
			i, result.Audits[i].TierName, i-1, result.Audits[i-1].TierName)
	}
}

func TestZeroTextPDFEscalatesPastLocalTiers(t *testing.T) {
	v := &stubVision{promptResult: &vision.Result{Data: validGasJSON(), Model: "claude-test"}}
	orch := newTestOrchestrator(
		&stubText{text: "", pages: 0},
		&stubOCR{result: &ocr.Result{Succeeded: false}},
		v,
	)

	result, err := orch.Extract(context.Background(), "cert-3", []byte("%PDF-1.7"), "application/pdf", "scan.pdf", Options{Category: "GAS_SAFETY"})
	require.NoError(t, err)

	// Prompt-only confidence is below the threshold, so review is required,
	// but the cascade must not error out.
	assert.True(t, result.RequiresReview)
	assert.InDelta(t, 0.5, result.Confidence, 0.001)
	assert.Equal(t, 0, v.textCalls, "no text path without text")
}

func TestImageGoesToVisionDirectly(t *testing.T) {
	v := &stubVision{imageResult: &vision.Result{Data: validGasJSON(), Model: "claude-test"}}
	orch := newTestOrchestrator(
		&stubText{text: "", pages: 0},
		nil, // OCR unconfigured
		v,
	)

	result, err := orch.Extract(context.Background(), "cert-4", []byte{0xFF, 0xD8, 0xFF}, "image/jpeg", "photo.jpg", Options{Category: "GAS_SAFETY"})
	require.NoError(t, err)

	assert.Equal(t, 1, v.imageCalls)
	assert.Equal(t, TierVision, result.FinalTier)
	assert.InDelta(t, 0.85, result.Confidence, 0.001)
	assert.False(t, result.RequiresReview)
}

func TestInvalidJSONMarksVisionFailed(t *testing.T) {
	v := &stubVision{
		textErr: apperrors.LLMInvalidJSON("claude-test"),
	}
	orch := newTestOrchestrator(
		&stubText{text: longText(), pages: 1},
		nil,
		v,
	)

	result, err := orch.Extract(context.Background(), "cert-5", []byte("%PDF-1.7"), "application/pdf", "gas.pdf", Options{Category: "GAS_SAFETY"})
	require.NoError(t, err)

	assert.True(t, result.RequiresReview)
	var visionAudit *certificate.TierAudit
	for i := range result.Audits {
		if result.Audits[i].TierName == TierVision {
			visionAudit = &result.Audits[i]
		}
	}
	require.NotNil(t, visionAudit)
	assert.Equal(t, certificate.TierFailed, visionAudit.Status)
	require.NotNil(t, visionAudit.EscalationReason)
	assert.Equal(t, "invalid_json", *visionAudit.EscalationReason)
}

func TestUsableOCRFeedsTextAnalysis(t *testing.T) {
	v := &stubVision{textResult: &vision.Result{Data: validGasJSON(), Model: "claude-test"}}
	orch := newTestOrchestrator(
		&stubText{text: "", pages: 3},
		&stubOCR{result: &ocr.Result{
			Succeeded:  true,
			RawText:    longText(),
			Confidence: 0.93,
		}},
		v,
	)

	result, err := orch.Extract(context.Background(), "cert-6", []byte("%PDF-1.7"), "application/pdf", "gas.pdf", Options{Category: "GAS_SAFETY"})
	require.NoError(t, err)

	assert.Equal(t, TierOCR, result.FinalTier)
	assert.Equal(t, 4, result.FinalTierOrdinal)
	assert.Equal(t, certificate.MethodAzureOCRClaudeAnalysis, result.Method)
	assert.Equal(t, ProviderAzureDI, result.OCRProvider)
	assert.InDelta(t, 0.93, result.Confidence, 0.001)
}

func TestTierOrdinalMapping(t *testing.T) {
	tests := []struct {
		tier string
		want int
	}{
		{TierMetadata, 0},
		{TierPattern, 1},
		{TierLocalText, 2},
		{TierTextQuality, 3},
		{TierOCR, 4},
		{TierVision, 5},
		{TierHumanReview, 6},
	}
	for _, tt := range tests {
		got, known := TierOrdinal(tt.tier)
		assert.True(t, known, tt.tier)
		assert.Equal(t, tt.want, got, tt.tier)
	}

	got, known := TierOrdinal("tier-99")
	assert.False(t, known)
	assert.Equal(t, 6, got)
}
