//go:build integration_pg
// +build integration_pg

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"leadmarket_backend/internal/distribution"
	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/intake"
	"leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/internal/distribution/territory"
	"leadmarket_backend/internal/events"
	"leadmarket_backend/migrations"
	"leadmarket_backend/platform/db"
	"leadmarket_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type dsnConfig string

func (d dsnConfig) GetDatabaseURL() string { return string(d) }

// startPostgres gives generous timeouts for the first image pull.
func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "leadmarket",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/leadmarket?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func setupRepository(t *testing.T) (*repository.Repository, *pgxpool.Pool) {
	t.Helper()
	dsn, stop := startPostgres(t)
	t.Cleanup(stop)

	ctx := context.Background()
	if err := db.RunMigrations(ctx, dsnConfig(dsn), migrations.FS); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	pool, err := db.NewPool(ctx, dsnConfig(dsn))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return repository.New(pool), pool
}

func seedAgency(t *testing.T, pool *pgxpool.Pool, createdAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO agencies (id, name, email, account_status, subscription_status, created_at)
		VALUES ($1, $2, $3, 'active', 'active', $4)
	`, id, "Agency "+id.String()[:8], id.String()[:8]+"@agency.example", createdAt)
	if err != nil {
		t.Fatalf("seed agency: %v", err)
	}
	return id
}

func TestRotateSerializesConcurrentCallers_Integration(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	const callers = 20
	var mu sync.Mutex
	seen := make([]int64, 0, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Rotate(ctx, "industry:roofing", func(_ context.Context, position int64) (int64, error) {
				mu.Lock()
				seen = append(seen, position)
				mu.Unlock()
				return position + 1, nil
			})
			if err != nil {
				t.Errorf("rotate: %v", err)
			}
		}()
	}
	wg.Wait()

	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	for i, p := range seen {
		if p != int64(i) {
			t.Fatalf("positions observed twice or skipped: %v", seen)
		}
	}
	pos, err := repo.CursorPosition(ctx, "industry:roofing")
	if err != nil || pos != callers {
		t.Fatalf("cursor = %d, %v", pos, err)
	}
}

func TestRotateRollsBackWhenPickFails_Integration(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	boom := errors.New("commit failed")
	err := repo.Rotate(ctx, "global", func(_ context.Context, position int64) (int64, error) {
		return position + 1, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected pick error, got %v", err)
	}
	if pos, _ := repo.CursorPosition(ctx, "global"); pos != 0 {
		t.Fatalf("cursor advanced to %d", pos)
	}
}

func TestUniqueConstraintsMapToDomainErrors_Integration(t *testing.T) {
	repo, pool := setupRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	agencyID := seedAgency(t, pool, now.Add(-time.Hour))

	tr, err := territory.NewTerritory(agencyID, domain.TerritoryZipcode, "75001", 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertTerritory(ctx, tr); err != nil {
		t.Fatal(err)
	}
	again, _ := territory.NewTerritory(agencyID, domain.TerritoryZipcode, "75001", 2, now)
	if err := repo.InsertTerritory(ctx, again); !errors.Is(err, domain.ErrTerritoryExists) {
		t.Fatalf("expected ErrTerritoryExists, got %v", err)
	}
	if err := repo.DeactivateTerritory(ctx, tr.ID, now); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertTerritory(ctx, again); err != nil {
		t.Fatalf("reactivation after deactivate: %v", err)
	}

	portal := domain.Portal{ID: uuid.New(), Name: "P", Industry: "roofing", DistributionMode: domain.ModeRoundRobin, Active: true}
	if err := repo.CreatePortal(ctx, portal, "hash-1", "lpk_0000"); err != nil {
		t.Fatal(err)
	}
	lead := domain.Lead{
		ID: uuid.New(), PortalID: portal.ID, Industry: "roofing", FirstName: "Ana",
		Email: "ana@example.com", Location: domain.Location{Zipcode: "75001"},
		RawPayload: []byte(`{}`), Status: domain.LeadStatusNew, AssignmentState: domain.LeadPending, CreatedAt: now,
	}
	if err := repo.InsertLead(ctx, lead); err != nil {
		t.Fatal(err)
	}

	rec := domain.DistributionRecord{ID: uuid.New(), LeadID: lead.ID, Location: lead.Location, AvailableUntil: now.Add(time.Hour), CreatedAt: now}
	if err := repo.InsertDistribution(ctx, rec); err != nil {
		t.Fatal(err)
	}
	dup := rec
	dup.ID = uuid.New()
	if err := repo.InsertDistribution(ctx, dup); !errors.Is(err, domain.ErrDuplicateDistribution) {
		t.Fatalf("expected ErrDuplicateDistribution, got %v", err)
	}

	a := domain.NewAssignment(rec.ID, lead.ID, agencyID, rec.AvailableUntil, now)
	if err := repo.InsertAssignment(ctx, a); err != nil {
		t.Fatal(err)
	}
	b := domain.NewAssignment(rec.ID, lead.ID, agencyID, rec.AvailableUntil, now)
	if err := repo.InsertAssignment(ctx, b); !errors.Is(err, domain.ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}
}

func TestProcessLeadEndToEnd_Integration(t *testing.T) {
	repo, pool := setupRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := seedAgency(t, pool, now.Add(-2*time.Hour))
	second := seedAgency(t, pool, now.Add(-time.Hour))
	for _, id := range []uuid.UUID{first, second} {
		tr, _ := territory.NewTerritory(id, domain.TerritoryZipcode, "78701", 0, now)
		if err := repo.InsertTerritory(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}
	portal := domain.Portal{ID: uuid.New(), Name: "P", Industry: "roofing", DistributionMode: domain.ModeRoundRobin, Active: true}
	if err := repo.CreatePortal(ctx, portal, "hash-2", "lpk_1111"); err != nil {
		t.Fatal(err)
	}

	aliases, err := intake.DefaultAliases()
	if err != nil {
		t.Fatal(err)
	}
	svc := distribution.NewService(repo, intake.NewNormalizer(aliases, nil), events.NewInMemoryBus(logger.NewDiscard()), distribution.Options{
		DuplicateWindow:   24 * time.Hour,
		ExclusivityWindow: 24 * time.Hour,
		MaxAgencies:       3,
	}, logger.NewDiscard())

	var got []uuid.UUID
	for i := 0; i < 3; i++ {
		res, err := svc.ProcessLead(ctx, map[string]any{
			"name":  "Lead " + fmt.Sprint(i),
			"email": fmt.Sprintf("lead%d@example.com", i),
			"zip":   "78701",
		}, portal)
		if err != nil {
			t.Fatalf("lead %d: %v", i, err)
		}
		if res.Outcome != domain.OutcomeAssigned || res.AssignedAgencyID == nil {
			t.Fatalf("lead %d: %+v", i, res)
		}
		got = append(got, *res.AssignedAgencyID)
	}
	if got[0] != first || got[1] != second || got[2] != first {
		t.Fatalf("rotation order %v, want [%s %s %s]", got, first, second, first)
	}

	var audits int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM distribution_audit_log`).Scan(&audits); err != nil {
		t.Fatal(err)
	}
	if audits != 3 {
		t.Fatalf("expected 3 audit entries, got %d", audits)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM distribution_audit_log`); err == nil {
		t.Fatal("audit log must reject deletes")
	}
}

func TestListAgencyAssignmentsFiltersEffectiveState_Integration(t *testing.T) {
	repo, pool := setupRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	agencyID := seedAgency(t, pool, now.Add(-72*time.Hour))

	portal := domain.Portal{ID: uuid.New(), Name: "P", Industry: "roofing", DistributionMode: domain.ModeExclusive, Active: true}
	if err := repo.CreatePortal(ctx, portal, "hash-inbox", "lpk_inbox"); err != nil {
		t.Fatal(err)
	}

	assign := func(assignedAt, until time.Time) uuid.UUID {
		lead := domain.Lead{
			ID: uuid.New(), PortalID: portal.ID, Industry: "roofing", FirstName: "Ana",
			Location: domain.Location{Zipcode: "75001"}, RawPayload: []byte(`{}`),
			Status: domain.LeadStatusNew, AssignmentState: domain.LeadPending, CreatedAt: assignedAt,
		}
		if err := repo.InsertLead(ctx, lead); err != nil {
			t.Fatal(err)
		}
		rec := domain.DistributionRecord{ID: uuid.New(), LeadID: lead.ID, Location: lead.Location, IsExclusive: true, AvailableUntil: until, CreatedAt: assignedAt}
		if err := repo.InsertDistribution(ctx, rec); err != nil {
			t.Fatal(err)
		}
		if err := repo.InsertAssignment(ctx, domain.NewAssignment(rec.ID, lead.ID, agencyID, until, assignedAt)); err != nil {
			t.Fatal(err)
		}
		return rec.ID
	}
	stale := assign(now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	open := assign(now.Add(-time.Hour), now.Add(23*time.Hour))

	cases := []struct {
		state domain.AssignmentState
		want  uuid.UUID
	}{
		{domain.StateExpired, stale},
		{domain.StateAssigned, open},
	}
	for _, tc := range cases {
		state := tc.state
		items, err := repo.ListAgencyAssignments(ctx, repository.AssignmentListParams{AgencyID: agencyID, State: &state, Now: now, Limit: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0].DistributionID != tc.want {
			t.Fatalf("state=%s limit=1: got %+v", tc.state, items)
		}
	}
}
