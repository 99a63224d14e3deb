package store

import (
	"context"
	"fmt"
	"time"

	"github.com/vedvix/ledgersync/internal/mapping"
)

// AppendSyncAttempt records one sync attempt in the append-only log.
// Uses ON CONFLICT DO NOTHING on (invoice_id, attempt) for idempotency:
// replaying the same attempt number is silently ignored.
func (s *Store) AppendSyncAttempt(ctx context.Context, att mapping.SyncAttempt) error {
	snapshotJSON, err := marshalRules(att.RulesSnapshot)
	if err != nil {
		return fmt.Errorf("append sync attempt: %w", err)
	}

	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_attempts
		(invoice_id, attempt, result, external_record_id, error_code, error_message,
		 retriable, profile_id, profile_version, rules_snapshot, trigger_type, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(invoice_id, attempt) DO NOTHING
	`, att.InvoiceID, att.Attempt, att.Result, att.ExternalRecordID, att.ErrorCode,
		att.ErrorMessage, boolToInt(att.Retriable), att.ProfileID, att.ProfileVersion,
		snapshotJSON, att.TriggerType, att.DurationMs, formatTime(att.CreatedAt))
	if err != nil {
		return fmt.Errorf("append sync attempt: %w", err)
	}

	return nil
}

// ListSyncAttempts returns all attempts for an invoice in attempt order.
// Returns an empty slice (not nil) when no attempts exist.
func (s *Store) ListSyncAttempts(ctx context.Context, invoiceID string) ([]mapping.SyncAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, attempt, result, external_record_id, error_code, error_message,
		       retriable, profile_id, profile_version, rules_snapshot, trigger_type, duration_ms, created_at
		FROM sync_attempts
		WHERE invoice_id = ?
		ORDER BY attempt ASC, id ASC
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query sync attempts: %w", err)
	}
	defer rows.Close()

	attempts := []mapping.SyncAttempt{}
	for rows.Next() {
		var (
			att           mapping.SyncAttempt
			retriable     int
			snapshotJSON  string
			createdAtText string
		)
		err := rows.Scan(&att.ID, &att.InvoiceID, &att.Attempt, &att.Result,
			&att.ExternalRecordID, &att.ErrorCode, &att.ErrorMessage, &retriable,
			&att.ProfileID, &att.ProfileVersion, &snapshotJSON, &att.TriggerType,
			&att.DurationMs, &createdAtText)
		if err != nil {
			return nil, fmt.Errorf("scan sync attempt: %w", err)
		}

		att.Retriable = retriable == 1
		if att.RulesSnapshot, err = unmarshalRules(snapshotJSON); err != nil {
			return nil, err
		}
		if att.CreatedAt, err = parseTime(createdAtText); err != nil {
			return nil, err
		}
		attempts = append(attempts, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync attempts: %w", err)
	}

	return attempts, nil
}
