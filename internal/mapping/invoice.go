package mapping

import "time"

// Status is an invoice's position in the review/synchronization lifecycle.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusUnderReview Status = "UNDER_REVIEW"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusSynced      Status = "SYNCED"
	StatusSyncFailed  Status = "SYNC_FAILED"
	StatusArchived    Status = "ARCHIVED"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusArchived
}

// Invoice is the lifecycle owner of sync state for one extracted invoice.
type Invoice struct {
	ID             string   `json:"id"`
	OrganizationID int64    `json:"organization_id"`
	VendorName     string   `json:"vendor_name"`
	InvoiceNumber  string   `json:"invoice_number,omitempty"`
	Status         Status   `json:"status"`
	Fields         FieldBag `json:"fields"`

	// ProfileID is the sticky profile reference: recorded at first sync
	// and reused on retries unless an operator explicitly overrides it.
	ProfileID string `json:"profile_id,omitempty"`

	// ExternalRecordID is the accounting system's record identifier once
	// a sync attempt has succeeded.
	ExternalRecordID string `json:"external_record_id,omitempty"`

	SyncAttempts      int       `json:"sync_attempts"`
	LastSyncError     string    `json:"last_sync_error,omitempty"`
	LastSyncErrorCode string    `json:"last_sync_error_code,omitempty"`
	LastSyncRetriable bool      `json:"last_sync_retriable,omitempty"`
	LastSyncAt        time.Time `json:"last_sync_at,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncAttempt is one append-only record of a sync transition, kept for
// operator diagnostics and audit reproducibility.
type SyncAttempt struct {
	ID        int64  `json:"id"`
	InvoiceID string `json:"invoice_id"`
	Attempt   int    `json:"attempt"`

	// Result is the status the attempt drove the invoice to:
	// SYNCED or SYNC_FAILED.
	Result Status `json:"result"`

	ExternalRecordID string `json:"external_record_id,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
	Retriable        bool   `json:"retriable,omitempty"`

	// ProfileID, ProfileVersion and RulesSnapshot record the exact rule
	// set the attempt ran with. The live profile stays editable; the
	// snapshot keeps history reproducible.
	ProfileID      string `json:"profile_id"`
	ProfileVersion int64  `json:"profile_version"`
	RulesSnapshot  []Rule `json:"rules_snapshot,omitempty"`

	// TriggerType records what initiated the attempt: "operator" or "sweep".
	TriggerType string `json:"trigger_type"`

	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
