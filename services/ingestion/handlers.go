package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/complianceai/platform/domain/certificate"
	domain "github.com/complianceai/platform/domain/ingestion"
	"github.com/complianceai/platform/infrastructure/database"
	apperrors "github.com/complianceai/platform/infrastructure/errors"
	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/internal/queue"
)

// Sender enqueues jobs on the durable queue.
type Sender interface {
	Send(ctx context.Context, queueName string, payload interface{}, opts *queue.Options) (string, error)
}

// IncomingLogger persists inbound webhook bodies for replay/debug.
type IncomingLogger interface {
	LogIncoming(ctx context.Context, source string, eventType *string, payload, headers json.RawMessage, processed bool, errorMessage *string) error
}

// Handlers exposes the ingestion trigger and HMS integration endpoints.
type Handlers struct {
	repo     *Repository
	sender   Sender
	incoming IncomingLogger
	log      *logging.Logger
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(repo *Repository, sender Sender, incoming IncomingLogger, log *logging.Logger) *Handlers {
	return &Handlers{repo: repo, sender: sender, incoming: incoming, log: log}
}

// Register mounts the routes.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/ingestion-jobs", h.handleCreateJob).Methods(http.MethodPost)
	router.HandleFunc("/integrations/hms/actions", h.handleHMSAction).Methods(http.MethodPost)
	router.HandleFunc("/integrations/hms/work-orders", h.handleHMSWorkOrder).Methods(http.MethodPost)
}

type createJobRequest struct {
	PropertyID      string `json:"propertyId"`
	CertificateType string `json:"certificateType"`
	FileName        string `json:"fileName"`
	ObjectPath      string `json:"objectPath,omitempty"`
	FileBase64      string `json:"fileBase64,omitempty"`
	MimeType        string `json:"mimeType,omitempty"`
	WebhookURL      string `json:"webhookUrl,omitempty"`
}

func (h *Handlers) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.PropertyID == "" {
		writeError(w, apperrors.MissingParameter("propertyId"))
		return
	}
	if req.FileName == "" {
		writeError(w, apperrors.MissingParameter("fileName"))
		return
	}
	if req.ObjectPath == "" && req.FileBase64 == "" {
		writeError(w, apperrors.MissingParameter("objectPath or fileBase64"))
		return
	}

	category := strings.ToUpper(strings.TrimSpace(req.CertificateType))
	if category == "" {
		category = "OTHER"
	}

	job := &domain.Job{
		PropertyID: req.PropertyID,
		Category:   category,
		FileName:   req.FileName,
		StorageKey: optional(req.ObjectPath),
		FileBase64: optional(req.FileBase64),
		MimeType:   optional(req.MimeType),
		WebhookURL: optional(req.WebhookURL),
	}
	if err := h.repo.CreateJob(r.Context(), job); err != nil {
		writeError(w, apperrors.DatabaseError("create ingestion job", err))
		return
	}

	if _, err := h.sender.Send(r.Context(), queue.QueueCertificateIngestion,
		map[string]string{"jobId": job.ID}, &queue.Options{
			RetryLimit:   domain.MaxAttempts,
			RetryDelay:   30,
			RetryBackoff: true,
		}); err != nil {
		writeError(w, apperrors.Internal("enqueue ingestion job", err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID})
}

type hmsActionRequest struct {
	ActionID    string  `json:"actionId"`
	Status      string  `json:"status"`
	Notes       *string `json:"notes,omitempty"`
	CompletedAt *string `json:"completedAt,omitempty"`
	CostActual  *int64  `json:"costActual,omitempty"`
}

func (h *Handlers) handleHMSAction(w http.ResponseWriter, r *http.Request) {
	h.handleHMSUpdate(w, r, "hms-actions")
}

func (h *Handlers) handleHMSWorkOrder(w http.ResponseWriter, r *http.Request) {
	h.handleHMSUpdate(w, r, "hms-work-orders")
}

func (h *Handlers) handleHMSUpdate(w http.ResponseWriter, r *http.Request, source string) {
	body, headers := captureRequest(r)

	var req hmsActionRequest
	decodeErr := json.Unmarshal(body, &req)

	var processErr error
	switch {
	case decodeErr != nil:
		processErr = apperrors.InvalidInput("body", "malformed JSON")
	case req.ActionID == "":
		processErr = apperrors.MissingParameter("actionId")
	case req.Status == "":
		processErr = apperrors.MissingParameter("status")
	default:
		var completedAt *time.Time
		if req.CompletedAt != nil {
			if t, err := time.Parse(time.RFC3339, *req.CompletedAt); err == nil {
				completedAt = &t
			}
		}
		processErr = h.repo.UpdateRemedialAction(r.Context(), req.ActionID,
			certificate.ActionStatus(strings.ToUpper(req.Status)), req.Notes, completedAt, req.CostActual)
		if processErr != nil && database.IsNotFound(processErr) {
			processErr = apperrors.NotFound("remedial_actions", req.ActionID)
		}
	}

	// Every inbound body is persisted, success or not.
	if h.incoming != nil {
		var errMsg *string
		if processErr != nil {
			msg := processErr.Error()
			errMsg = &msg
		}
		eventType := "action.updated"
		if err := h.incoming.LogIncoming(r.Context(), source, &eventType, body, headers, processErr == nil, errMsg); err != nil {
			h.log.WithError(err).Warn("Failed to persist incoming webhook log")
		}
	}

	if processErr != nil {
		writeError(w, processErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func captureRequest(r *http.Request) (body, headers json.RawMessage) {
	var buf json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&buf); err != nil {
		buf = json.RawMessage("{}")
	}
	headerMap := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headerMap[name] = r.Header.Get(name)
	}
	encoded, _ := json.Marshal(headerMap)
	return buf, encoded
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.GetHTTPStatus(err)
	if svcErr := apperrors.GetServiceError(err); svcErr != nil {
		writeJSON(w, status, svcErr)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
