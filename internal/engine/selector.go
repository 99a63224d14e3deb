package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/vedvix/ledgersync/internal/mapping"
	"github.com/vedvix/ledgersync/internal/store"
)

// SelectProfile chooses the mapping profile for an invoice.
//
// Precedence:
//  1. Sticky assignment: the invoice's recorded profile, if it still exists.
//  2. First vendor-pattern match among the organization's profiles,
//     walked in creation order.
//  3. The organization's default profile.
//
// Returns a NO_PROFILE PipelineError when none of the three applies.
// A sticky reference to a since-deleted profile falls through to the
// pattern and default steps rather than failing.
func (e *Engine) SelectProfile(ctx context.Context, inv mapping.Invoice) (mapping.Profile, error) {
	if inv.ProfileID != "" {
		p, err := e.store.GetProfile(ctx, inv.ProfileID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return mapping.Profile{}, fmt.Errorf("load sticky profile: %w", err)
		}
		slog.Warn("sticky profile missing, reselecting",
			"invoice_id", inv.ID,
			"profile_id", inv.ProfileID,
		)
	}

	vendor := normalizeVendor(inv.VendorName)
	if vendor != "" {
		profiles, err := e.store.ListProfiles(ctx, inv.OrganizationID)
		if err != nil {
			return mapping.Profile{}, fmt.Errorf("list profiles: %w", err)
		}
		for _, p := range profiles {
			if p.VendorPattern == "" {
				continue
			}
			re, err := mapping.CompilePattern(p.VendorPattern)
			if err != nil {
				// Save-time validation should prevent this; skip rather
				// than fail the whole selection.
				slog.Warn("skipping profile with invalid vendor pattern",
					"profile_id", p.ID,
					"pattern", p.VendorPattern,
					"error", err,
				)
				continue
			}
			if re.MatchString(vendor) {
				return p, nil
			}
		}
	}

	p, err := e.store.DefaultProfile(ctx, inv.OrganizationID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return mapping.Profile{}, fmt.Errorf("load default profile: %w", err)
	}

	return mapping.Profile{}, NewNoProfileError(inv.ID)
}

// normalizeVendor prepares an extracted vendor name for pattern
// matching: NFC normalization, trimmed, interior whitespace collapsed.
// Case folding is the pattern's job (patterns compile case-insensitive).
func normalizeVendor(name string) string {
	name = norm.NFC.String(name)
	return strings.Join(strings.Fields(name), " ")
}
