// Package memory is an in-process implementation of the distribution store.
// It backs unit tests and local runs without Postgres and mirrors the
// uniqueness and locking guarantees of the SQL schema.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository"

	"github.com/google/uuid"
)

type portalRow struct {
	portal  domain.Portal
	keyHash string
}

type state struct {
	leads         map[uuid.UUID]domain.Lead
	territories   map[uuid.UUID]domain.Territory
	agencies      map[uuid.UUID]domain.Agency
	cursors       map[string]int64
	distributions map[uuid.UUID]domain.DistributionRecord
	assignments   map[uuid.UUID]domain.Assignment
	audit         []domain.AuditEntry
	portals       map[uuid.UUID]portalRow
}

func newState() state {
	return state{
		leads:         map[uuid.UUID]domain.Lead{},
		territories:   map[uuid.UUID]domain.Territory{},
		agencies:      map[uuid.UUID]domain.Agency{},
		cursors:       map[string]int64{},
		distributions: map[uuid.UUID]domain.DistributionRecord{},
		assignments:   map[uuid.UUID]domain.Assignment{},
		portals:       map[uuid.UUID]portalRow{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.leads {
		c.leads[k] = v
	}
	for k, v := range s.territories {
		c.territories[k] = v
	}
	for k, v := range s.agencies {
		c.agencies[k] = v
	}
	for k, v := range s.cursors {
		c.cursors[k] = v
	}
	for k, v := range s.distributions {
		c.distributions[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	c.audit = append(c.audit, s.audit...)
	for k, v := range s.portals {
		c.portals[k] = v
	}
	return c
}

// Store is a mutex-guarded implementation of repository.Store.
type Store struct {
	// rotateMu serializes Rotate like the cursor row lock does in Postgres.
	rotateMu sync.Mutex

	mu     sync.Mutex
	data   state
	faults map[string]error
}

var _ repository.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{data: newState(), faults: map[string]error{}}
}

// InjectError makes every later call of method fail with err until cleared
// with a nil err.
func (s *Store) InjectError(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

func (s *Store) fault(method string) error {
	if err, ok := s.faults[method]; ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
}

// ---- seeding and inspection helpers ----

// PutAgency inserts or replaces an agency.
func (s *Store) PutAgency(a domain.Agency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.agencies[a.ID] = a
}

// PutPortal registers a portal under keyHash.
func (s *Store) PutPortal(p domain.Portal, keyHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.portals[p.ID] = portalRow{portal: p, keyHash: keyHash}
}

// AuditLog returns a copy of the audit log.
func (s *Store) AuditLog() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.data.audit...)
}

// ---- leads ----

func (s *Store) InsertLead(_ context.Context, lead domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertLead"); err != nil {
		return err
	}
	if _, ok := s.data.leads[lead.ID]; ok {
		return fmt.Errorf("insert lead: duplicate id %s", lead.ID)
	}
	s.data.leads[lead.ID] = lead
	return nil
}

func (s *Store) UpdateLeadDisposition(_ context.Context, id uuid.UUID, status domain.LeadStatus, st domain.LeadAssignmentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateLeadDisposition"); err != nil {
		return err
	}
	lead, ok := s.data.leads[id]
	if !ok {
		return notFound("update lead disposition")
	}
	lead.Status = status
	lead.AssignmentState = st
	s.data.leads[id] = lead
	return nil
}

func (s *Store) GetLead(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.data.leads[id]
	if !ok {
		return domain.Lead{}, notFound("get lead")
	}
	return lead, nil
}

func (s *Store) HasRecentLeadWithEmail(_ context.Context, email string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("HasRecentLeadWithEmail"); err != nil {
		return false, err
	}
	for _, l := range s.data.leads {
		if l.Email == email && !l.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) HasRecentLeadWithPhoneDigits(_ context.Context, digits string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("HasRecentLeadWithPhoneDigits"); err != nil {
		return false, err
	}
	for _, l := range s.data.leads {
		if l.PhoneDigits == digits && !l.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// ---- territories ----

func (s *Store) MatchActiveTerritories(_ context.Context, loc domain.Location) ([]domain.Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MatchActiveTerritories"); err != nil {
		return nil, err
	}
	out := make([]domain.Territory, 0)
	for _, t := range s.data.territories {
		if !t.Active {
			continue
		}
		if v := loc.Value(t.Type); v != "" && v == t.Value {
			out = append(out, t)
		}
	}
	sortTerritories(out)
	return out, nil
}

func (s *Store) InsertTerritory(_ context.Context, t domain.Territory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Active {
		for _, existing := range s.data.territories {
			if existing.Active && existing.AgencyID == t.AgencyID && existing.Type == t.Type && existing.Value == t.Value {
				return fmt.Errorf("insert territory: %w", domain.ErrTerritoryExists)
			}
		}
	}
	s.data.territories[t.ID] = t
	return nil
}

func (s *Store) DeactivateTerritory(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.territories[id]
	if !ok || !t.Active {
		return notFound("deactivate territory")
	}
	t.Active = false
	t.DeactivatedAt = &at
	s.data.territories[id] = t
	return nil
}

func (s *Store) ListActiveTerritories(_ context.Context, agencyID uuid.UUID) ([]domain.Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Territory, 0)
	for _, t := range s.data.territories {
		if t.Active && t.AgencyID == agencyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}

func sortTerritories(ts []domain.Territory) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID.String() < ts[j].ID.String() })
}

// ---- agencies ----

func (s *Store) GetAgency(_ context.Context, id uuid.UUID) (domain.Agency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.agencies[id]
	if !ok {
		return domain.Agency{}, notFound("get agency")
	}
	return a, nil
}

func (s *Store) AgencyUsage(_ context.Context, ids []uuid.UUID) ([]domain.AgencyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("AgencyUsage"); err != nil {
		return nil, err
	}
	out := make([]domain.AgencyUsage, 0, len(ids))
	for _, id := range ids {
		a, ok := s.data.agencies[id]
		if !ok {
			continue
		}
		used := 0
		for _, asg := range s.data.assignments {
			if asg.AgencyID == id && !asg.AssignedAt.Before(a.PeriodStartedAt) {
				used++
			}
		}
		out = append(out, domain.AgencyUsage{Agency: a, UsedUnits: used})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].Agency, out[j].Agency
		if !ai.CreatedAt.Equal(aj.CreatedAt) {
			return ai.CreatedAt.Before(aj.CreatedAt)
		}
		return ai.ID.String() < aj.ID.String()
	})
	return out, nil
}

// ---- cursor ----

// Rotate holds rotateMu for the whole pick and restores the pre-pick state
// if pick fails. The restore also drops writes made concurrently by callers
// outside Rotate.
func (s *Store) Rotate(ctx context.Context, scope string, pick func(ctx context.Context, position int64) (int64, error)) error {
	s.rotateMu.Lock()
	defer s.rotateMu.Unlock()

	s.mu.Lock()
	if err := s.fault("Rotate"); err != nil {
		s.mu.Unlock()
		return err
	}
	position := s.data.cursors[scope]
	snapshot := s.data.clone()
	s.mu.Unlock()

	next, err := pick(ctx, position)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.data = snapshot
		return err
	}
	s.data.cursors[scope] = next
	return nil
}

type txKey struct{}

// InTx restores the pre-call state if fn fails. Like Rotate, the restore
// also drops concurrent writes made outside fn.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) CursorPosition(_ context.Context, scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.cursors[scope], nil
}

// ---- distributions ----

func (s *Store) InsertDistribution(_ context.Context, rec domain.DistributionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertDistribution"); err != nil {
		return err
	}
	for _, existing := range s.data.distributions {
		if existing.LeadID == rec.LeadID {
			return fmt.Errorf("insert distribution: %w", domain.ErrDuplicateDistribution)
		}
	}
	s.data.distributions[rec.ID] = rec
	return nil
}

func (s *Store) GetDistribution(_ context.Context, id uuid.UUID) (domain.DistributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.distributions[id]
	if !ok {
		return domain.DistributionRecord{}, notFound("get distribution")
	}
	return rec, nil
}

func (s *Store) GetDistributionByLead(_ context.Context, leadID uuid.UUID) (domain.DistributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.data.distributions {
		if rec.LeadID == leadID {
			return rec, nil
		}
	}
	return domain.DistributionRecord{}, notFound("get distribution by lead")
}

func (s *Store) IncrementViewCount(_ context.Context, id uuid.UUID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.distributions[id]
	if !ok || !rec.IsOpen(now) {
		return 0, domain.ErrWindowClosed
	}
	rec.ViewCount++
	s.data.distributions[id] = rec
	return rec.ViewCount, nil
}

// ---- assignments ----

func (s *Store) withWindow(a domain.Assignment) domain.Assignment {
	if rec, ok := s.data.distributions[a.DistributionID]; ok {
		a.AvailableUntil = rec.AvailableUntil
	}
	return a
}

func (s *Store) InsertAssignment(_ context.Context, a domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertAssignment"); err != nil {
		return err
	}
	if _, ok := s.data.distributions[a.DistributionID]; !ok {
		return fmt.Errorf("insert assignment: unknown distribution %s", a.DistributionID)
	}
	for _, existing := range s.data.assignments {
		if existing.DistributionID == a.DistributionID && existing.AgencyID == a.AgencyID {
			return fmt.Errorf("insert assignment: %w", domain.ErrDuplicateAssignment)
		}
	}
	s.data.assignments[a.ID] = a
	return nil
}

func (s *Store) GetAssignment(_ context.Context, id uuid.UUID) (domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.assignments[id]
	if !ok {
		return domain.Assignment{}, notFound("get assignment")
	}
	return s.withWindow(a), nil
}

func (s *Store) FindAssignment(_ context.Context, distributionID, agencyID uuid.UUID) (domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.data.assignments {
		if a.DistributionID == distributionID && a.AgencyID == agencyID {
			return s.withWindow(a), nil
		}
	}
	return domain.Assignment{}, notFound("find assignment")
}

func (s *Store) ListAssignmentsByDistribution(_ context.Context, distributionID uuid.UUID) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Assignment, 0)
	for _, a := range s.data.assignments {
		if a.DistributionID == distributionID {
			out = append(out, s.withWindow(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.Before(out[j].AssignedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) ListAgencyAssignments(_ context.Context, params repository.AssignmentListParams) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Assignment, 0)
	for _, a := range s.data.assignments {
		if a.AgencyID != params.AgencyID {
			continue
		}
		a = s.withWindow(a)
		if params.State != nil && effectiveState(a, params.Now) != *params.State {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.After(out[j].AssignedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if params.Offset >= len(out) {
		return []domain.Assignment{}, nil
	}
	out = out[params.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func effectiveState(a domain.Assignment, now time.Time) domain.AssignmentState {
	if now.IsZero() {
		now = time.Now()
	}
	if a.DueForExpiry(now) {
		return domain.StateExpired
	}
	return a.State
}

func (s *Store) ListDueAssignments(_ context.Context, now time.Time, limit int) ([]domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Assignment, 0)
	for _, a := range s.data.assignments {
		a = s.withWindow(a)
		if a.DueForExpiry(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AvailableUntil.Before(out[j].AvailableUntil) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CompareAndSetAssignment(_ context.Context, next domain.Assignment, expected domain.AssignmentState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CompareAndSetAssignment"); err != nil {
		return false, err
	}
	current, ok := s.data.assignments[next.ID]
	if !ok || current.State != expected {
		return false, nil
	}
	current.State = next.State
	current.ViewedAt = next.ViewedAt
	current.RespondedAt = next.RespondedAt
	current.ResponseAction = next.ResponseAction
	s.data.assignments[next.ID] = current
	return true, nil
}

func (s *Store) StampNotified(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data.assignments[id]
	if !ok || a.NotifiedAt != nil {
		return false, nil
	}
	a.NotifiedAt = &at
	s.data.assignments[id] = a
	return true, nil
}

// ---- audit ----

func (s *Store) AppendAudit(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("AppendAudit"); err != nil {
		return err
	}
	s.data.audit = append(s.data.audit, entry)
	return nil
}

// ---- portals ----

func (s *Store) GetPortalByKeyHash(_ context.Context, keyHash string) (domain.Portal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.data.portals {
		if row.keyHash == keyHash && row.portal.Active {
			return row.portal, nil
		}
	}
	return domain.Portal{}, notFound("get portal by key")
}

func (s *Store) CreatePortal(_ context.Context, p domain.Portal, keyHash, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.data.portals {
		if row.keyHash == keyHash {
			return fmt.Errorf("create portal: duplicate key hash")
		}
	}
	s.data.portals[p.ID] = portalRow{portal: p, keyHash: keyHash}
	return nil
}
