package dedupe

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository/memory"
	"leadmarket_backend/platform/logger"
	"leadmarket_backend/platform/phone"

	"github.com/google/uuid"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func insertLead(t *testing.T, store *memory.Store, email, ph string, at time.Time) {
	t.Helper()
	err := store.InsertLead(context.Background(), domain.Lead{
		ID:          uuid.New(),
		Email:       NormalizeEmail(email),
		Phone:       ph,
		PhoneDigits: phone.Last10Digits(ph),
		CreatedAt:   at,
	})
	if err != nil {
		t.Fatalf("insert lead: %v", err)
	}
}

func TestIsDuplicateWithinWindow(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := &clock{t: start}
	store := memory.New()
	d := NewDetector(store, 24*time.Hour, c.Now, logger.NewDiscard())

	insertLead(t, store, "A@X.com", "", start)

	c.t = start.Add(23 * time.Hour)
	if !d.IsDuplicate(context.Background(), domain.Contact{Email: " a@x.com"}) {
		t.Fatal("expected email duplicate inside window")
	}

	c.t = start.Add(24*time.Hour + time.Second)
	if d.IsDuplicate(context.Background(), domain.Contact{Email: "a@x.com"}) {
		t.Fatal("expected no duplicate after window elapsed")
	}
}

func TestIsDuplicateByPhoneDigits(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store := memory.New()
	d := NewDetector(store, 0, func() time.Time { return now }, logger.NewDiscard())

	insertLead(t, store, "", "+1 (555) 123-4567", now.Add(-time.Hour))

	cases := []struct {
		phone string
		want  bool
	}{
		{"555.123.4567", true},
		{"1-555-123-4567", true},
		{"555-123-4568", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := d.IsDuplicate(context.Background(), domain.Contact{Phone: tc.phone}); got != tc.want {
			t.Errorf("IsDuplicate(phone=%q) = %v, want %v", tc.phone, got, tc.want)
		}
	}
}

func TestIsDuplicateFailsOpen(t *testing.T) {
	now := time.Now()
	store := memory.New()
	insertLead(t, store, "a@x.com", "5551234567", now)
	store.InjectError("HasRecentLeadWithEmail", errors.New("db down"))

	d := NewDetector(store, time.Hour, func() time.Time { return now }, logger.NewDiscard())

	// the phone lookup still runs when the email lookup fails
	if !d.IsDuplicate(context.Background(), domain.Contact{Email: "a@x.com", Phone: "5551234567"}) {
		t.Fatal("phone match should still be found")
	}

	store.InjectError("HasRecentLeadWithPhoneDigits", errors.New("db down"))
	if d.IsDuplicate(context.Background(), domain.Contact{Email: "a@x.com", Phone: "5551234567"}) {
		t.Fatal("lookup errors must be treated as not duplicate")
	}
}
