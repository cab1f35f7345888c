package exclusivity

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/eligibility"
	"leadmarket_backend/internal/distribution/lifecycle"
	"leadmarket_backend/internal/distribution/repository/memory"
	"leadmarket_backend/platform/logger"

	"github.com/google/uuid"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fixedEligibility []uuid.UUID

func (f fixedEligibility) Candidates(context.Context, domain.Location) ([]eligibility.Candidate, error) {
	out := make([]eligibility.Candidate, len(f))
	for i, id := range f {
		out[i] = eligibility.Candidate{AgencyID: id}
	}
	return out, nil
}

type fixture struct {
	store *memory.Store
	mgr   *Manager
	clock *clock
	lead  domain.Lead
}

func newFixture(t *testing.T, eligible fixedEligibility, maxAgencies int) fixture {
	t.Helper()
	c := &clock{t: time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.New()
	log := logger.NewDiscard()
	tracker := lifecycle.NewTracker(store, c.Now, log)
	mgr := NewManager(store, store, tracker, eligible, Config{Window: 24 * time.Hour, MaxAgencies: maxAgencies, Now: c.Now}, log)
	lead := domain.Lead{ID: uuid.New(), Location: domain.Location{Zipcode: "75001"}, CreatedAt: c.t}
	return fixture{store: store, mgr: mgr, clock: c, lead: lead}
}

func TestOpenWindowOncePerLead(t *testing.T) {
	f := newFixture(t, nil, 3)

	rec, err := f.mgr.OpenWindow(context.Background(), f.lead, true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.AvailableUntil.Equal(f.clock.t.Add(24 * time.Hour)) {
		t.Fatalf("available_until = %v", rec.AvailableUntil)
	}
	if _, err := f.mgr.OpenWindow(context.Background(), f.lead, true, 0); !errors.Is(err, domain.ErrDuplicateDistribution) {
		t.Fatalf("expected ErrDuplicateDistribution, got %v", err)
	}
}

func TestRecordViewIsIdempotent(t *testing.T) {
	agency := uuid.New()
	f := newFixture(t, fixedEligibility{agency}, 3)
	rec, _ := f.mgr.OpenWindow(context.Background(), f.lead, true, 0)

	f.clock.t = f.clock.t.Add(time.Hour)
	first, err := f.mgr.RecordView(context.Background(), rec.ID, agency)
	if err != nil {
		t.Fatal(err)
	}
	if first.State != domain.StateViewed || first.ViewedAt == nil {
		t.Fatalf("first view should create a viewed assignment, got %+v", first)
	}

	f.clock.t = f.clock.t.Add(time.Hour)
	second, err := f.mgr.RecordView(context.Background(), rec.ID, agency)
	if err != nil {
		t.Fatal(err)
	}
	if second.State != domain.StateViewed || !second.ViewedAt.Equal(*first.ViewedAt) {
		t.Fatalf("second view must not change state or viewed_at, got %+v", second)
	}

	stored, _, _ := f.mgr.Get(context.Background(), rec.ID)
	if stored.ViewCount != 2 {
		t.Fatalf("view_count = %d, want 2", stored.ViewCount)
	}
}

func TestRecordViewRejectsIneligibleAndFullWindows(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := newFixture(t, fixedEligibility{a, b}, 1)
	rec, _ := f.mgr.OpenWindow(context.Background(), f.lead, true, 0)

	if _, err := f.mgr.RecordView(context.Background(), rec.ID, uuid.New()); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("stranger: expected ErrNotEligible, got %v", err)
	}
	if _, err := f.mgr.RecordView(context.Background(), rec.ID, a); err != nil {
		t.Fatalf("first eligible viewer: %v", err)
	}
	if _, err := f.mgr.RecordView(context.Background(), rec.ID, b); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("window of one is full: expected ErrNotEligible, got %v", err)
	}
}

func TestRecordViewOnRoundRobinRecordRequiresAssignment(t *testing.T) {
	a := uuid.New()
	f := newFixture(t, fixedEligibility{a}, 3)
	rec, _ := f.mgr.OpenWindow(context.Background(), f.lead, false, 0)

	if _, err := f.mgr.RecordView(context.Background(), rec.ID, a); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
}

func TestViewAfterWindowIsRejectedAndNotCounted(t *testing.T) {
	agency := uuid.New()
	f := newFixture(t, fixedEligibility{agency}, 3)
	rec, _ := f.mgr.OpenWindow(context.Background(), f.lead, true, 0)
	if _, err := f.mgr.RecordView(context.Background(), rec.ID, agency); err != nil {
		t.Fatal(err)
	}

	f.clock.t = rec.AvailableUntil.Add(time.Second)
	a, err := f.mgr.RecordView(context.Background(), rec.ID, agency)
	if !errors.Is(err, domain.ErrWindowClosed) {
		t.Fatalf("expected ErrWindowClosed, got %v", err)
	}
	if a.State != domain.StateExpired {
		t.Fatalf("the read must observe expiry, got %s", a.State)
	}

	stored, items, err := f.mgr.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ViewCount != 1 {
		t.Fatalf("late view counted: %d", stored.ViewCount)
	}
	if len(items) != 1 || items[0].State != domain.StateExpired || items[0].RespondedAt == nil {
		t.Fatalf("expected expired assignment with responded_at, got %+v", items)
	}
}

func TestResolve(t *testing.T) {
	agency := uuid.New()
	f := newFixture(t, fixedEligibility{agency}, 3)
	rec, _ := f.mgr.OpenWindow(context.Background(), f.lead, true, 0)
	if _, err := f.mgr.RecordView(context.Background(), rec.ID, agency); err != nil {
		t.Fatal(err)
	}

	if _, err := f.mgr.Resolve(context.Background(), rec.ID, agency, domain.ActionExpired); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expired is not an agency action: %v", err)
	}

	purchased, err := f.mgr.Resolve(context.Background(), rec.ID, agency, domain.ActionPurchased)
	if err != nil {
		t.Fatal(err)
	}
	if purchased.State != domain.StatePurchased {
		t.Fatalf("expected purchased, got %s", purchased.State)
	}

	again, err := f.mgr.Resolve(context.Background(), rec.ID, agency, domain.ActionDismissed)
	if !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if again.State != domain.StatePurchased {
		t.Fatalf("state must remain purchased, got %s", again.State)
	}
}

func TestResolveAfterExpiryIsAlreadyResolved(t *testing.T) {
	agency := uuid.New()
	f := newFixture(t, fixedEligibility{agency}, 3)
	rec, _ := f.mgr.OpenWindow(context.Background(), f.lead, false, 0)
	tracker := lifecycle.NewTracker(f.store, f.clock.Now, logger.NewDiscard())
	if _, err := tracker.Create(context.Background(), rec, agency); err != nil {
		t.Fatal(err)
	}

	f.clock.t = rec.AvailableUntil
	if _, err := f.mgr.Resolve(context.Background(), rec.ID, agency, domain.ActionPurchased); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestExpireDue(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := newFixture(t, fixedEligibility{a, b}, 3)
	rec, _ := f.mgr.OpenWindow(context.Background(), f.lead, true, 0)
	for _, id := range []uuid.UUID{a, b} {
		if _, err := f.mgr.RecordView(context.Background(), rec.ID, id); err != nil {
			t.Fatal(err)
		}
	}
	f.clock.t = rec.AvailableUntil.Add(time.Hour)

	n, err := f.mgr.ExpireDue(context.Background(), 10)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 expired, got %d err=%v", n, err)
	}
}
