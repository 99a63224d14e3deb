package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vedvix/ledgersync/internal/mapping"
)

const invoiceColumns = `id, organization_id, vendor_name, invoice_number, status, fields,
	profile_id, external_record_id, sync_attempts, last_sync_error,
	last_sync_error_code, last_sync_retriable, last_sync_at, created_at, updated_at`

// CreateInvoice inserts a new invoice record. A missing ID is generated;
// a missing status defaults to PENDING.
func (s *Store) CreateInvoice(ctx context.Context, inv mapping.Invoice) (mapping.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = mapping.StatusPending
	}

	fieldsJSON, err := marshalFields(inv.Fields)
	if err != nil {
		return mapping.Invoice{}, err
	}

	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invoices
		(id, organization_id, vendor_name, invoice_number, status, fields,
		 profile_id, external_record_id, sync_attempts, last_sync_error,
		 last_sync_error_code, last_sync_retriable, last_sync_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.OrganizationID, inv.VendorName, inv.InvoiceNumber, inv.Status, fieldsJSON,
		inv.ProfileID, inv.ExternalRecordID, inv.SyncAttempts, inv.LastSyncError,
		inv.LastSyncErrorCode, boolToInt(inv.LastSyncRetriable), formatTime(inv.LastSyncAt),
		formatTime(inv.CreatedAt), formatTime(inv.UpdatedAt))
	if err != nil {
		return mapping.Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}

	return inv, nil
}

// GetInvoice returns an invoice by ID.
// Returns ErrNotFound if no such invoice exists.
func (s *Store) GetInvoice(ctx context.Context, id string) (mapping.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = ?
	`, id)

	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return mapping.Invoice{}, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	return inv, err
}

// UpdateInvoiceStatus records a lifecycle transition. Transition
// validity is the engine's concern; the store just persists it.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, id string, status mapping.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?
	`, status, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	return requireRow(res, id)
}

// UpdateInvoiceSync persists the sync-related fields after an attempt:
// status, sticky profile, external record, attempt count and error detail.
func (s *Store) UpdateInvoiceSync(ctx context.Context, inv mapping.Invoice) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = ?, profile_id = ?, external_record_id = ?, sync_attempts = ?,
		    last_sync_error = ?, last_sync_error_code = ?, last_sync_retriable = ?,
		    last_sync_at = ?, updated_at = ?
		WHERE id = ?
	`, inv.Status, inv.ProfileID, inv.ExternalRecordID, inv.SyncAttempts,
		inv.LastSyncError, inv.LastSyncErrorCode, boolToInt(inv.LastSyncRetriable),
		formatTime(inv.LastSyncAt), formatTime(time.Now().UTC()), inv.ID)
	if err != nil {
		return fmt.Errorf("update invoice sync state: %w", err)
	}
	return requireRow(res, inv.ID)
}

// AssignProfile records an explicit operator override of the sticky
// profile reference, so the next sync attempt uses the given profile
// instead of reselecting. An empty profileID clears the assignment.
// Overrides are rejected once the invoice has synced or reached a
// terminal status; nothing would ever read the new reference.
func (s *Store) AssignProfile(ctx context.Context, invoiceID, profileID string) error {
	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status == mapping.StatusSynced || inv.Status.Terminal() {
		return fmt.Errorf("invoice %s is %s: %w", invoiceID, inv.Status, ErrConflict)
	}
	if profileID != "" {
		p, err := s.GetProfile(ctx, profileID)
		if err != nil {
			return err
		}
		if p.OrganizationID != inv.OrganizationID {
			return fmt.Errorf("profile %s belongs to another organization: %w", profileID, ErrConflict)
		}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET profile_id = ?, updated_at = ? WHERE id = ?
	`, profileID, formatTime(time.Now().UTC()), invoiceID)
	if err != nil {
		return fmt.Errorf("assign profile: %w", err)
	}
	return requireRow(res, invoiceID)
}

// ListRetriable returns the IDs of invoices eligible for the scheduled
// retry sweep: SYNC_FAILED with a retriable last error. Non-retriable
// failures are excluded; those need operator action after a data fix.
func (s *Store) ListRetriable(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM invoices
		WHERE status = ? AND last_sync_retriable = 1
		ORDER BY last_sync_at ASC, id ASC
	`, mapping.StatusSyncFailed)
	if err != nil {
		return nil, fmt.Errorf("query retriable invoices: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan invoice id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retriable invoices: %w", err)
	}
	return ids, nil
}

func scanInvoice(row scanner) (mapping.Invoice, error) {
	var (
		inv                              mapping.Invoice
		fieldsJSON                       string
		retriable                        int
		lastSyncAt, createdAt, updatedAt string
	)
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.VendorName, &inv.InvoiceNumber,
		&inv.Status, &fieldsJSON, &inv.ProfileID, &inv.ExternalRecordID, &inv.SyncAttempts,
		&inv.LastSyncError, &inv.LastSyncErrorCode, &retriable, &lastSyncAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mapping.Invoice{}, err
		}
		return mapping.Invoice{}, fmt.Errorf("scan invoice: %w", err)
	}

	inv.LastSyncRetriable = retriable == 1
	if inv.Fields, err = unmarshalFields(fieldsJSON); err != nil {
		return mapping.Invoice{}, err
	}
	if inv.LastSyncAt, err = parseTime(lastSyncAt); err != nil {
		return mapping.Invoice{}, err
	}
	if inv.CreatedAt, err = parseTime(createdAt); err != nil {
		return mapping.Invoice{}, err
	}
	if inv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return mapping.Invoice{}, err
	}
	return inv, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	return nil
}
