// Package dedupe suppresses leads already seen within a trailing window.
package dedupe

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/platform/logger"
	"leadmarket_backend/platform/phone"
)

// DefaultWindow is the trailing duplicate window.
const DefaultWindow = 24 * time.Hour

// Detector matches a contact against recent leads by email or phone digits.
type Detector struct {
	store  repository.DuplicateFinder
	window time.Duration
	now    func() time.Time
	log    *logger.Logger
}

// NewDetector creates a detector. A non-positive window uses DefaultWindow.
func NewDetector(store repository.DuplicateFinder, window time.Duration, now func() time.Time, log *logger.Logger) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Detector{store: store, window: window, now: now, log: log}
}

// IsDuplicate reports whether a lead with the same email, or the same last
// ten phone digits, was created within the window. Lookup errors are logged
// and treated as no match.
func (d *Detector) IsDuplicate(ctx context.Context, contact domain.Contact) bool {
	since := d.now().Add(-d.window)

	if email := NormalizeEmail(contact.Email); email != "" {
		found, err := d.store.HasRecentLeadWithEmail(ctx, email, since)
		if err != nil {
			d.log.WithContext(ctx).Warn("duplicate email lookup failed, continuing",
				slog.String("error", err.Error()))
		} else if found {
			return true
		}
	}

	if digits := phone.Last10Digits(contact.Phone); digits != "" {
		found, err := d.store.HasRecentLeadWithPhoneDigits(ctx, digits, since)
		if err != nil {
			d.log.WithContext(ctx).Warn("duplicate phone lookup failed, continuing",
				slog.String("error", err.Error()))
		} else if found {
			return true
		}
	}

	return false
}

// NormalizeEmail is the stored and compared form of an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
