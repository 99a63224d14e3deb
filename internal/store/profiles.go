package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vedvix/ledgersync/internal/mapping"
)

const profileColumns = `id, organization_id, name, description, vendor_pattern,
	is_default, rules, version, created_at, updated_at`

// Warning is a non-fatal configuration notice produced by SaveProfile.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WarnCodeOverlappingPatterns flags an organization that has several
// vendor-pattern profiles. Selection still takes the first match in
// creation order; the warning tells the administrator the order matters.
const WarnCodeOverlappingPatterns = "OVERLAPPING_VENDOR_PATTERNS"

// ListProfiles returns all profiles for an organization in creation
// order. That order is stable and persisted; vendor-pattern selection
// depends on it.
func (s *Store) ListProfiles(ctx context.Context, organizationID int64) ([]mapping.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE organization_id = ?
		ORDER BY created_at ASC, id ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []mapping.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	return profiles, nil
}

// GetProfile returns a profile by ID.
// Returns ErrNotFound if no such profile exists.
func (s *Store) GetProfile(ctx context.Context, id string) (mapping.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE id = ?
	`, id)

	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return mapping.Profile{}, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return p, err
}

// DefaultProfile returns the organization's default profile.
// Returns ErrNotFound when no default is configured.
func (s *Store) DefaultProfile(ctx context.Context, organizationID int64) (mapping.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE organization_id = ? AND is_default = 1
	`, organizationID)

	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return mapping.Profile{}, fmt.Errorf("default profile for organization %d: %w", organizationID, ErrNotFound)
	}
	return p, err
}

// SaveProfile creates or updates a profile.
//
// Validation runs before any write: configuration errors (duplicate
// targets, invalid patterns) never reach the database. Setting a profile
// as default clears the previous default in the same transaction.
//
// A new profile gets a generated ID and version 1; an update bumps the
// version so sync-attempt snapshots can name the exact rule set used.
//
// The returned warnings are advisory configuration notices; the save has
// succeeded whenever the error is nil.
func (s *Store) SaveProfile(ctx context.Context, p mapping.Profile) (mapping.Profile, []Warning, error) {
	if err := mapping.ValidateProfile(p); err != nil {
		return mapping.Profile{}, nil, err
	}

	rulesJSON, err := marshalRules(p.Rules)
	if err != nil {
		return mapping.Profile{}, nil, err
	}

	now := time.Now().UTC()
	creating := p.ID == ""
	if creating {
		p.ID = uuid.NewString()
		p.Version = 1
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if p.IsDefault {
			// Clear-then-set keeps the single-default invariant inside
			// one transaction.
			if _, err := tx.ExecContext(ctx, `
				UPDATE profiles SET is_default = 0, updated_at = ?
				WHERE organization_id = ? AND is_default = 1 AND id != ?
			`, formatTime(now), p.OrganizationID, p.ID); err != nil {
				return fmt.Errorf("clear previous default: %w", err)
			}
		}

		if creating {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO profiles
				(id, organization_id, name, description, vendor_pattern, is_default, rules, version, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, p.ID, p.OrganizationID, p.Name, p.Description, p.VendorPattern,
				boolToInt(p.IsDefault), rulesJSON, p.Version, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("profile name %q already exists in organization %d: %w",
						p.Name, p.OrganizationID, ErrConflict)
				}
				return fmt.Errorf("insert profile: %w", err)
			}
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET name = ?, description = ?, vendor_pattern = ?, is_default = ?,
			    rules = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND organization_id = ?
		`, p.Name, p.Description, p.VendorPattern, boolToInt(p.IsDefault),
			rulesJSON, formatTime(p.UpdatedAt), p.ID, p.OrganizationID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("profile name %q already exists in organization %d: %w",
					p.Name, p.OrganizationID, ErrConflict)
			}
			return fmt.Errorf("update profile: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("profile %s: %w", p.ID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return mapping.Profile{}, nil, err
	}

	saved, err := s.GetProfile(ctx, p.ID)
	if err != nil {
		return mapping.Profile{}, nil, err
	}

	warnings, err := s.patternWarnings(ctx, saved)
	if err != nil {
		return mapping.Profile{}, nil, err
	}
	return saved, warnings, nil
}

// DeleteProfile removes a profile.
//
// Deletion is blocked with ErrConflict while the profile is the
// organization's default or is still sticky-referenced by an invoice
// that has not reached a settled status (SYNCED, REJECTED, ARCHIVED).
// Settled references survive deletion: every sync attempt carries its
// own rule-set snapshot, so history stays reproducible.
func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var isDefault int
		err := tx.QueryRowContext(ctx, `SELECT is_default FROM profiles WHERE id = ?`, id).Scan(&isDefault)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		if isDefault == 1 {
			return fmt.Errorf("profile %s is the organization default: %w", id, ErrConflict)
		}

		var refs int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM invoices
			WHERE profile_id = ? AND status NOT IN (?, ?, ?)
		`, id, mapping.StatusSynced, mapping.StatusRejected, mapping.StatusArchived).Scan(&refs)
		if err != nil {
			return fmt.Errorf("count profile references: %w", err)
		}
		if refs > 0 {
			return fmt.Errorf("profile %s is referenced by %d unsettled invoice(s): %w", id, refs, ErrConflict)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		return nil
	})
}

// patternWarnings reports advisory notices about the organization's
// vendor-pattern profiles after a save.
func (s *Store) patternWarnings(ctx context.Context, p mapping.Profile) ([]Warning, error) {
	if p.VendorPattern == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM profiles
		WHERE organization_id = ? AND id != ? AND vendor_pattern != ''
		ORDER BY created_at ASC, id ASC
	`, p.OrganizationID, p.ID)
	if err != nil {
		return nil, fmt.Errorf("query pattern profiles: %w", err)
	}
	defer rows.Close()

	var others []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan pattern profile: %w", err)
		}
		others = append(others, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pattern profiles: %w", err)
	}

	if len(others) == 0 {
		return nil, nil
	}
	return []Warning{{
		Code: WarnCodeOverlappingPatterns,
		Message: fmt.Sprintf("organization has other vendor-pattern profiles (%s); "+
			"the first match in creation order wins", strings.Join(others, ", ")),
	}}, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (mapping.Profile, error) {
	var (
		p                    mapping.Profile
		isDefault            int
		rulesJSON            string
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Description, &p.VendorPattern,
		&isDefault, &rulesJSON, &p.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mapping.Profile{}, err
		}
		return mapping.Profile{}, fmt.Errorf("scan profile: %w", err)
	}

	p.IsDefault = isDefault == 1
	if p.Rules, err = unmarshalRules(rulesJSON); err != nil {
		return mapping.Profile{}, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return mapping.Profile{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return mapping.Profile{}, err
	}
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// Matched textually to avoid depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
