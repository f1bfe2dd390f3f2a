// Package webhook defines the outbound notification entities.
package webhook

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// AuthMode is the endpoint authentication scheme.
type AuthMode string

const (
	AuthNone       AuthMode = "NONE"
	AuthAPIKey     AuthMode = "API_KEY"
	AuthBearer     AuthMode = "BEARER"
	AuthHMACSHA256 AuthMode = "HMAC_SHA256"
)

// EndpointStatus is the endpoint health state.
type EndpointStatus string

const (
	EndpointActive EndpointStatus = "ACTIVE"
	EndpointFailed EndpointStatus = "FAILED"
)

// DisableThreshold is the consecutive-failure count at which an endpoint
// is marked FAILED and no longer receives deliveries.
const DisableThreshold = 10

// Endpoint is a registered outbound webhook target.
type Endpoint struct {
	ID             string          `db:"id"`
	URL            string          `db:"url"`
	AuthMode       AuthMode        `db:"auth_mode"`
	Secret         *string         `db:"secret"`
	EventTypes     pq.StringArray  `db:"event_types"`
	CustomHeaders  json.RawMessage `db:"custom_headers"`
	RetryCount     int             `db:"retry_count"`
	TimeoutSeconds int             `db:"timeout_seconds"`
	FailureCount   int             `db:"failure_count"`
	Status         EndpointStatus  `db:"status"`
	LastSuccessAt  *time.Time      `db:"last_success_at"`
	CreatedAt      time.Time       `db:"created_at"`
}

// SubscribedTo reports whether the endpoint subscribes to eventType.
// An empty subscription list means all events.
func (e *Endpoint) SubscribedTo(eventType string) bool {
	if len(e.EventTypes) == 0 {
		return true
	}
	for _, t := range e.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// Event is a staged outbound event awaiting fan-out.
type Event struct {
	ID         string          `db:"id"`
	EventType  string          `db:"event_type"`
	EntityType string          `db:"entity_type"`
	EntityID   *string         `db:"entity_id"`
	Payload    json.RawMessage `db:"payload"`
	Processed  bool            `db:"processed"`
	CreatedAt  time.Time       `db:"created_at"`
}

// DeliveryStatus is the per-delivery state.
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "PENDING"
	DeliveryRetrying DeliveryStatus = "RETRYING"
	DeliverySent     DeliveryStatus = "SENT"
	DeliveryFailed   DeliveryStatus = "FAILED"
)

// Delivery is one (event, endpoint) delivery attempt record.
type Delivery struct {
	ID             string         `db:"id"`
	EventID        string         `db:"event_id"`
	EndpointID     string         `db:"endpoint_id"`
	AttemptCount   int            `db:"attempt_count"`
	LastAttemptAt  *time.Time     `db:"last_attempt_at"`
	ResponseStatus *int           `db:"response_status"`
	ResponseBody   *string        `db:"response_body"`
	NextRetryAt    *time.Time     `db:"next_retry_at"`
	Status         DeliveryStatus `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
}

// IncomingLog is a persisted inbound webhook body for replay/debug.
type IncomingLog struct {
	ID           string          `db:"id"`
	Source       string          `db:"source"`
	EventType    *string         `db:"event_type"`
	Payload      json.RawMessage `db:"payload"`
	Headers      json.RawMessage `db:"headers"`
	Processed    bool            `db:"processed"`
	ErrorMessage *string         `db:"error_message"`
	CreatedAt    time.Time       `db:"created_at"`
}

// RetryDelays is the delivery back-off ladder; attempts past the end reuse
// the final value.
var RetryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
}

// RetryDelay returns the delay before the given attempt number (0-based).
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(RetryDelays) {
		attempt = len(RetryDelays) - 1
	}
	return RetryDelays[attempt]
}
