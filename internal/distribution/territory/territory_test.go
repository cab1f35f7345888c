package territory

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository/memory"

	"github.com/google/uuid"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func mustAdd(t *testing.T, store *memory.Store, agency uuid.UUID, typ domain.TerritoryType, value string, priority int) domain.Territory {
	t.Helper()
	terr, err := AddTerritory(context.Background(), store, agency, typ, value, priority, now)
	if err != nil {
		t.Fatalf("add territory %s=%s: %v", typ, value, err)
	}
	return terr
}

func TestLookupUnionsMatchesPerAgency(t *testing.T) {
	store := memory.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mustAdd(t, store, a, domain.TerritoryZipcode, "75001", 1)
	mustAdd(t, store, a, domain.TerritoryCity, "Dallas", 5)
	mustAdd(t, store, b, domain.TerritoryState, "tx", 0)
	mustAdd(t, store, c, domain.TerritoryZipcode, "75002", 0)

	idx := NewIndex(store)
	set, err := idx.Lookup(context.Background(), domain.Location{Zipcode: "75001-4321", City: "DALLAS ", State: "TX"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(set) != 2 || !set.Has(a) || !set.Has(b) {
		t.Fatalf("expected {a, b}, got %v", set)
	}

	ranked, err := idx.LookupRanked(context.Background(), domain.Location{Zipcode: "75001", City: "dallas"})
	if err != nil {
		t.Fatalf("lookup ranked: %v", err)
	}
	if ranked[a] != 5 {
		t.Fatalf("expected highest priority 5 for a, got %d", ranked[a])
	}
}

func TestLookupEmptyLocation(t *testing.T) {
	store := memory.New()
	store.InjectError("MatchActiveTerritories", errors.New("must not be called"))

	set, err := NewIndex(store).Lookup(context.Background(), domain.Location{City: "   "})
	if err != nil {
		t.Fatalf("empty location must not error: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("expected empty set, got %v", set)
	}
}

func TestLookupIgnoresInactiveTerritories(t *testing.T) {
	store := memory.New()
	a := uuid.New()
	terr := mustAdd(t, store, a, domain.TerritoryZipcode, "75001", 0)
	if err := DeactivateTerritory(context.Background(), store, terr.ID, now); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	set, err := NewIndex(store).Lookup(context.Background(), domain.Location{Zipcode: "75001"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(set) != 0 {
		t.Fatalf("inactive territory matched: %v", set)
	}
}

func TestAddTerritoryRules(t *testing.T) {
	store := memory.New()
	a := uuid.New()
	first := mustAdd(t, store, a, domain.TerritoryCity, "Austin", 3)

	if _, err := AddTerritory(context.Background(), store, a, domain.TerritoryCity, " austin ", 3, now); !errors.Is(err, domain.ErrTerritoryExists) {
		t.Fatalf("expected ErrTerritoryExists, got %v", err)
	}

	if err := DeactivateTerritory(context.Background(), store, first.ID, now); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := AddTerritory(context.Background(), store, a, domain.TerritoryCity, "Austin", 4, now); err != nil {
		t.Fatalf("re-adding after deactivation should succeed: %v", err)
	}

	invalid := []struct {
		typ      domain.TerritoryType
		value    string
		priority int
	}{
		{"country", "us", 0},
		{domain.TerritoryState, "  ", 0},
		{domain.TerritoryState, "tx", 11},
		{domain.TerritoryState, "tx", -1},
	}
	for _, tc := range invalid {
		if _, err := AddTerritory(context.Background(), store, a, tc.typ, tc.value, tc.priority, now); !errors.Is(err, domain.ErrInvalidTerritory) {
			t.Errorf("AddTerritory(%s, %q, %d): expected ErrInvalidTerritory, got %v", tc.typ, tc.value, tc.priority, err)
		}
	}

	active, err := ActiveTerritories(context.Background(), store, a)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].Priority != 4 {
		t.Fatalf("expected one active territory with priority 4, got %+v", active)
	}
}
