package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository/memory"
	"leadmarket_backend/internal/distribution/territory"

	"github.com/google/uuid"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func agency(created time.Duration, account domain.AccountStatus, sub domain.SubscriptionStatus, capacity *int) domain.Agency {
	return domain.Agency{
		ID:                 uuid.New(),
		Name:               "agency",
		AccountStatus:      account,
		SubscriptionStatus: sub,
		LeadCapacity:       capacity,
		PeriodStartedAt:    base,
		CreatedAt:          base.Add(created),
	}
}

func seedTerritory(t *testing.T, store *memory.Store, agencyID uuid.UUID, zip string) {
	t.Helper()
	if _, err := territory.AddTerritory(context.Background(), store, agencyID, domain.TerritoryZipcode, zip, 0, base); err != nil {
		t.Fatalf("seed territory: %v", err)
	}
}

func TestFilterAppliesStatusAndOrdersByCreation(t *testing.T) {
	store := memory.New()
	zero := 0
	newest := agency(3*time.Hour, domain.AccountActive, domain.SubscriptionActive, nil)
	oldest := agency(1*time.Hour, domain.AccountActive, domain.SubscriptionTrial, nil)
	pastDue := agency(2*time.Hour, domain.AccountActive, domain.SubscriptionPastDue, nil)
	suspended := agency(0, domain.AccountSuspended, domain.SubscriptionActive, nil)
	full := agency(4*time.Hour, domain.AccountActive, domain.SubscriptionActive, &zero)
	for _, a := range []domain.Agency{newest, oldest, pastDue, suspended, full} {
		store.PutAgency(a)
		seedTerritory(t, store, a.ID, "75001")
	}

	f := NewFilter(territory.NewIndex(store), store)
	got, err := f.Filter(context.Background(), domain.Location{Zipcode: "75001"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(got) != 2 || got[0] != oldest.ID || got[1] != newest.ID {
		t.Fatalf("expected [oldest newest], got %v", got)
	}
}

func TestFilterNoMatchIsEmptyList(t *testing.T) {
	store := memory.New()
	a := agency(0, domain.AccountActive, domain.SubscriptionActive, nil)
	store.PutAgency(a)
	seedTerritory(t, store, a.ID, "75002")

	got, err := NewFilter(territory.NewIndex(store), store).Filter(context.Background(), domain.Location{Zipcode: "75001"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}

func TestFilterCapacityCountsCurrentPeriodOnly(t *testing.T) {
	store := memory.New()
	one := 1
	a := agency(0, domain.AccountActive, domain.SubscriptionActive, &one)
	a.PeriodStartedAt = base.Add(48 * time.Hour)
	store.PutAgency(a)
	seedTerritory(t, store, a.ID, "75001")

	// an assignment from the previous period does not consume capacity
	rec := domain.DistributionRecord{ID: uuid.New(), LeadID: uuid.New(), AvailableUntil: base.Add(24 * time.Hour)}
	if err := store.InsertDistribution(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	old := domain.NewAssignment(rec.ID, rec.LeadID, a.ID, rec.AvailableUntil, base)
	if err := store.InsertAssignment(context.Background(), old); err != nil {
		t.Fatal(err)
	}

	f := NewFilter(territory.NewIndex(store), store)
	got, err := f.Filter(context.Background(), domain.Location{Zipcode: "75001"})
	if err != nil || len(got) != 1 {
		t.Fatalf("expected agency eligible, got %v err=%v", got, err)
	}

	rec2 := domain.DistributionRecord{ID: uuid.New(), LeadID: uuid.New(), AvailableUntil: base.Add(96 * time.Hour)}
	_ = store.InsertDistribution(context.Background(), rec2)
	current := domain.NewAssignment(rec2.ID, rec2.LeadID, a.ID, rec2.AvailableUntil, base.Add(72*time.Hour))
	if err := store.InsertAssignment(context.Background(), current); err != nil {
		t.Fatal(err)
	}

	got, err = f.Filter(context.Background(), domain.Location{Zipcode: "75001"})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected agency at capacity to be excluded, got %v err=%v", got, err)
	}
}

func TestFilterSurfacesStoreErrors(t *testing.T) {
	store := memory.New()
	a := agency(0, domain.AccountActive, domain.SubscriptionActive, nil)
	store.PutAgency(a)
	seedTerritory(t, store, a.ID, "75001")
	boom := errors.New("connection reset")
	store.InjectError("AgencyUsage", boom)

	_, err := NewFilter(territory.NewIndex(store), store).Filter(context.Background(), domain.Location{Zipcode: "75001"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
