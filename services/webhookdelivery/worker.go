package webhookdelivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/complianceai/platform/domain/webhook"
	"github.com/complianceai/platform/infrastructure/logging"
	"github.com/complianceai/platform/infrastructure/metrics"
	"github.com/complianceai/platform/infrastructure/resilience"
	"github.com/complianceai/platform/internal/queue"
)

// PollInterval is the staging poller cadence.
const PollInterval = 5 * time.Second

const fetchBatchSize = 50

// deliveryJob is the queue payload for one delivery attempt.
type deliveryJob struct {
	DeliveryID string `json:"deliveryId"`
}

// deliveryStore is the repository surface the worker needs; narrowed to an
// interface so tests can stub persistence.
type deliveryStore interface {
	UnprocessedEvents(ctx context.Context, limit int) ([]webhook.Event, error)
	MarkEventProcessed(ctx context.Context, id string) error
	ActiveEndpoints(ctx context.Context) ([]webhook.Endpoint, error)
	GetEndpoint(ctx context.Context, id string) (*webhook.Endpoint, error)
	GetEvent(ctx context.Context, id string) (*webhook.Event, error)
	GetDelivery(ctx context.Context, id string) (*webhook.Delivery, error)
	CreateDelivery(ctx context.Context, eventID, endpointID string) (*webhook.Delivery, error)
	DueDeliveries(ctx context.Context, limit int) ([]webhook.Delivery, error)
	RecordSuccess(ctx context.Context, deliveryID, endpointID string, responseStatus int, responseBody string) error
	RecordRetry(ctx context.Context, deliveryID, endpointID string, responseStatus *int, responseBody string, nextRetry time.Time) error
	RecordFailure(ctx context.Context, deliveryID, endpointID string, responseStatus *int, responseBody string) error
}

// Worker stages outbound events into deliveries and performs the POSTs.
// Fan-out runs on a poller; attempts run on the webhook-delivery queue.
type Worker struct {
	repo     deliveryStore
	sender   Sender
	breakers *resilience.BreakerGroup
	client   *http.Client
	log      *logging.Logger
	metrics  *metrics.Metrics
}

// Sender enqueues delivery attempts on the durable queue.
type Sender interface {
	Send(ctx context.Context, queueName string, payload interface{}, opts *queue.Options) (string, error)
}

// NewWorker creates a Worker.
func NewWorker(repo deliveryStore, sender Sender, log *logging.Logger, m *metrics.Metrics) *Worker {
	return &Worker{
		repo:   repo,
		sender: sender,
		breakers: resilience.NewGroup(resilience.Config{
			MaxFailures: 5,
			Timeout:     120 * time.Second,
		}),
		client:  &http.Client{},
		log:     log,
		metrics: m,
	}
}

// Poll is one staging pass: fan out unprocessed events and enqueue due
// delivery attempts. Registered as a recurring background worker.
func (w *Worker) Poll(ctx context.Context) error {
	if err := w.fanOut(ctx); err != nil {
		return err
	}
	return w.enqueueDue(ctx)
}

func (w *Worker) fanOut(ctx context.Context) error {
	events, err := w.repo.UnprocessedEvents(ctx, fetchBatchSize)
	if err != nil {
		return fmt.Errorf("list unprocessed events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	endpoints, err := w.repo.ActiveEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("list active endpoints: %w", err)
	}

	for _, event := range events {
		for _, endpoint := range endpoints {
			if !endpoint.SubscribedTo(event.EventType) {
				continue
			}
			if _, err := w.repo.CreateDelivery(ctx, event.ID, endpoint.ID); err != nil {
				w.log.WithError(err).WithFields(map[string]interface{}{
					"event_id":    event.ID,
					"endpoint_id": endpoint.ID,
				}).Error("Failed to create delivery row")
			}
		}
		if err := w.repo.MarkEventProcessed(ctx, event.ID); err != nil {
			w.log.WithError(err).WithField("event_id", event.ID).Error("Failed to mark event processed")
		}
	}
	return nil
}

func (w *Worker) enqueueDue(ctx context.Context) error {
	due, err := w.repo.DueDeliveries(ctx, fetchBatchSize)
	if err != nil {
		return fmt.Errorf("list due deliveries: %w", err)
	}

	for _, delivery := range due {
		// Singleton per (delivery, attempt) keeps overlapping polls from
		// double-enqueueing the same attempt.
		key := fmt.Sprintf("delivery:%s:%d", delivery.ID, delivery.AttemptCount)
		if _, err := w.sender.Send(ctx, queue.QueueWebhookDelivery,
			deliveryJob{DeliveryID: delivery.ID}, &queue.Options{
				SingletonKey:     key,
				SingletonSeconds: 300,
			}); err != nil {
			w.log.WithError(err).WithField("delivery_id", delivery.ID).Error("Failed to enqueue delivery")
		}
	}
	return nil
}

// HandleJob is the webhook-delivery queue handler: one delivery attempt.
func (w *Worker) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload deliveryJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode delivery job: %w", err)
	}
	return w.Attempt(ctx, payload.DeliveryID)
}

// Attempt performs one delivery attempt and applies the retry ladder.
func (w *Worker) Attempt(ctx context.Context, deliveryID string) error {
	delivery, err := w.repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return fmt.Errorf("get delivery: %w", err)
	}
	if delivery == nil || delivery.Status == webhook.DeliverySent || delivery.Status == webhook.DeliveryFailed {
		return nil
	}

	endpoint, err := w.repo.GetEndpoint(ctx, delivery.EndpointID)
	if err != nil {
		return fmt.Errorf("get endpoint: %w", err)
	}
	event, err := w.repo.GetEvent(ctx, delivery.EventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if endpoint == nil || event == nil {
		return nil
	}
	if endpoint.Status != webhook.EndpointActive {
		return w.repo.RecordFailure(ctx, delivery.ID, endpoint.ID, nil, "endpoint disabled")
	}

	status, body, postErr := w.post(ctx, endpoint, event, delivery)

	if postErr == nil && status >= 200 && status < 300 {
		if w.metrics != nil {
			w.metrics.WebhookDeliveriesTotal.WithLabelValues("sent").Inc()
		}
		w.log.LogWebhookDelivery(ctx, delivery.ID, endpoint.URL, status, delivery.AttemptCount+1, nil)
		return w.repo.RecordSuccess(ctx, delivery.ID, endpoint.ID, status, body)
	}

	var responseStatus *int
	if status > 0 {
		responseStatus = &status
	}
	if postErr != nil {
		body = postErr.Error()
	}
	w.log.LogWebhookDelivery(ctx, delivery.ID, endpoint.URL, status, delivery.AttemptCount+1, postErr)

	// Attempt counting: this attempt is the (AttemptCount+1)th.
	if delivery.AttemptCount+1 >= endpoint.RetryCount {
		if w.metrics != nil {
			w.metrics.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		}
		return w.repo.RecordFailure(ctx, delivery.ID, endpoint.ID, responseStatus, body)
	}

	if w.metrics != nil {
		w.metrics.WebhookDeliveriesTotal.WithLabelValues("retrying").Inc()
	}
	nextRetry := time.Now().Add(webhook.RetryDelay(delivery.AttemptCount))
	return w.repo.RecordRetry(ctx, delivery.ID, endpoint.ID, responseStatus, body, nextRetry)
}

// post builds and sends one webhook POST under the endpoint's breaker.
func (w *Worker) post(ctx context.Context, endpoint *webhook.Endpoint, event *webhook.Event, delivery *webhook.Delivery) (int, string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"event":      event.EventType,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"deliveryId": delivery.ID,
		"data":       json.RawMessage(orEmptyObject(event.Payload)),
	})
	if err != nil {
		return 0, "", fmt.Errorf("marshal payload: %w", err)
	}

	timeout := time.Duration(endpoint.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Source", "ComplianceAI")
	req.Header.Set("X-Webhook-Event", event.EventType)
	req.Header.Set("X-Webhook-Delivery", delivery.ID)

	if len(endpoint.CustomHeaders) > 0 {
		var custom map[string]string
		if err := json.Unmarshal(endpoint.CustomHeaders, &custom); err == nil {
			for name, value := range custom {
				req.Header.Set(name, value)
			}
		}
	}

	secret := ""
	if endpoint.Secret != nil {
		secret = *endpoint.Secret
	}
	switch endpoint.AuthMode {
	case webhook.AuthAPIKey:
		req.Header.Set("X-API-Key", secret)
	case webhook.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+secret)
	case webhook.AuthHMACSHA256:
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	var status int
	var body string
	start := time.Now()
	err = w.breakers.Execute(reqCtx, breakerKey(endpoint.URL), func() error {
		resp, doErr := w.client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		body = string(raw)
		if status >= 500 {
			// Server errors count against the breaker.
			return fmt.Errorf("endpoint returned %d", status)
		}
		return nil
	})
	if w.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		w.metrics.WebhookDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
	if err != nil && status == 0 {
		return 0, "", err
	}
	return status, body, nil
}

// breakerKey keys circuit breakers by endpoint hostname.
func breakerKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Hostname()
}

func orEmptyObject(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
