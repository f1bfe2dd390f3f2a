// Package ingestion defines the ingestion job entity.
package ingestion

import "time"

// Status represents the ingestion job lifecycle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusExtracting Status = "EXTRACTING"
	StatusComplete   Status = "COMPLETE"
	StatusFailed     Status = "FAILED"
)

// MaxAttempts is the cap after which a failed job is left alone.
const MaxAttempts = 3

// Job is one certificate ingestion request. Once COMPLETE the row is
// terminal except for audit reads; CertificateID, once set, is never cleared.
type Job struct {
	ID            string     `db:"id"`
	PropertyID    string     `db:"property_id"`
	Category      string     `db:"category"`
	FileName      string     `db:"file_name"`
	StorageKey    *string    `db:"storage_key"`
	FileBase64    *string    `db:"file_base64"`
	MimeType      *string    `db:"mime_type"`
	WebhookURL    *string    `db:"webhook_url"`
	Status        Status     `db:"status"`
	AttemptCount  int        `db:"attempt_count"`
	LastAttemptAt *time.Time `db:"last_attempt_at"`
	CertificateID *string    `db:"certificate_id"`
	StatusMessage *string    `db:"status_message"`
	ErrorDetails  *string    `db:"error_details"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Terminal reports whether the job is in a terminal state.
func (j *Job) Terminal() bool {
	return j.Status == StatusComplete ||
		(j.Status == StatusFailed && j.AttemptCount >= MaxAttempts)
}
