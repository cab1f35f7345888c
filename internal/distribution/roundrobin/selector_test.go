package roundrobin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"leadmarket_backend/internal/distribution/repository/memory"

	"github.com/google/uuid"
)

func pool(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestNextFairness(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{10, 3}, {9, 3}, {1, 4}, {17, 5}, {4, 1}} {
		store := memory.New()
		s := NewSelector(store)
		eligible := pool(tc.k)
		counts := map[uuid.UUID]int{}

		for i := 0; i < tc.n; i++ {
			id, err := s.Next(context.Background(), "industry:solar", eligible, nil)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			counts[id]++
		}

		floor, ceil := tc.n/tc.k, (tc.n+tc.k-1)/tc.k
		for _, id := range eligible {
			if c := counts[id]; c != floor && c != ceil {
				t.Errorf("n=%d k=%d: agency got %d, want %d or %d", tc.n, tc.k, c, floor, ceil)
			}
		}
	}
}

func TestNextConcurrentFairness(t *testing.T) {
	store := memory.New()
	s := NewSelector(store)
	eligible := pool(4)

	var (
		mu     sync.Mutex
		counts = map[uuid.UUID]int{}
		wg     sync.WaitGroup
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Next(context.Background(), ScopeGlobal, eligible, nil)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			counts[id]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, id := range eligible {
		if counts[id] != 10 {
			t.Fatalf("concurrent rotation skipped or repeated a slot: %v", counts)
		}
	}
}

func TestCursorSurvivesRestart(t *testing.T) {
	store := memory.New()
	eligible := pool(3)

	first := NewSelector(store)
	var got []uuid.UUID
	for i := 0; i < 2; i++ {
		id, err := first.Next(context.Background(), ScopeGlobal, eligible, nil)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, id)
	}

	// a fresh selector over the same persisted cursor continues the rotation
	restarted := NewSelector(store)
	for i := 0; i < 4; i++ {
		id, err := restarted.Next(context.Background(), ScopeGlobal, eligible, nil)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, id)
	}

	for i, id := range got {
		if id != eligible[i%3] {
			t.Fatalf("position %d: got %s, want %s", i, id, eligible[i%3])
		}
	}
}

func TestCommitFailureDoesNotAdvance(t *testing.T) {
	store := memory.New()
	s := NewSelector(store)
	eligible := pool(2)

	boom := errors.New("insert failed")
	if _, err := s.Next(context.Background(), ScopeGlobal, eligible, func(context.Context, uuid.UUID) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected commit error, got %v", err)
	}
	pos, _ := store.CursorPosition(context.Background(), ScopeGlobal)
	if pos != 0 {
		t.Fatalf("cursor advanced on failed commit: %d", pos)
	}

	id, err := s.Next(context.Background(), ScopeGlobal, eligible, nil)
	if err != nil || id != eligible[0] {
		t.Fatalf("expected first agency after failed commit, got %s err=%v", id, err)
	}
}

func TestPoolShrinkReinterpretsCursor(t *testing.T) {
	store := memory.New()
	s := NewSelector(store)
	big := pool(5)
	for i := 0; i < 4; i++ {
		if _, err := s.Next(context.Background(), ScopeGlobal, big, nil); err != nil {
			t.Fatal(err)
		}
	}
	// cursor is 4; a pool of 3 maps it to index 1
	small := big[:3]
	id, err := s.Next(context.Background(), ScopeGlobal, small, nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != small[1] {
		t.Fatalf("expected index 1 after shrink, got %s", id)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	store := memory.New()
	s := NewSelector(store)
	eligible := pool(2)

	a, _ := s.Next(context.Background(), ScopeKey(ScopeIndustry, "Solar"), eligible, nil)
	b, _ := s.Next(context.Background(), ScopeKey(ScopeIndustry, "roofing"), eligible, nil)
	if a != eligible[0] || b != eligible[0] {
		t.Fatal("each scope starts its own rotation")
	}
	if ScopeKey(ScopeGlobal, "solar") != ScopeGlobal {
		t.Fatal("global mode ignores industry")
	}
	if ScopeKey(ScopeIndustry, " Solar ") != "industry:solar" {
		t.Fatalf("unexpected scope key %q", ScopeKey(ScopeIndustry, " Solar "))
	}
}

func TestEmptyPool(t *testing.T) {
	if _, err := NewSelector(memory.New()).Next(context.Background(), ScopeGlobal, nil, nil); !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}
