// Package notification tells agencies about leads offered to them.
// It subscribes to distribution events so the engine never depends on
// email providers or the task queue.
package notification

import (
	"context"
	"fmt"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/email"
	"leadmarket_backend/internal/events"
	"leadmarket_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the slice of the distribution store notifications read and stamp.
type Store interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetAgency(ctx context.Context, id uuid.UUID) (domain.Agency, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (domain.Assignment, error)
	StampNotified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// Queue hands a notification to a background worker. Implementations
// deduplicate on (lead, agency).
type Queue interface {
	EnqueueLeadAssigned(ctx context.Context, leadID, agencyID, assignmentID uuid.UUID) error
}

// Module delivers lead-assigned notifications.
type Module struct {
	store    Store
	sender   email.Sender
	queue    Queue
	inboxURL string
	now      func() time.Time
	log      *logger.Logger
}

// New creates the notification module. A nil queue delivers inline on the
// event bus goroutine.
func New(store Store, sender email.Sender, queue Queue, appBaseURL string, log *logger.Logger) *Module {
	if sender == nil {
		sender = email.NoopSender{}
	}
	m := &Module{
		store:  store,
		sender: sender,
		queue:  queue,
		now:    time.Now,
		log:    log,
	}
	if appBaseURL != "" {
		m.inboxURL = appBaseURL + "/agency/inbox"
	}
	return m
}

// RegisterHandlers subscribes the module to the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadAssigned{}.EventName(), events.HandlerFunc(m.handleLeadAssigned))
}

func (m *Module) handleLeadAssigned(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadAssigned)
	if !ok {
		return nil
	}

	if m.queue != nil {
		err := m.queue.EnqueueLeadAssigned(ctx, e.LeadID, e.AgencyID, e.AssignmentID)
		if err == nil {
			return nil
		}
		m.log.Warn("lead assigned notification enqueue failed, delivering inline",
			"assignmentId", e.AssignmentID, "error", err)
	}

	return m.Deliver(ctx, e.AssignmentID)
}

// Deliver emails the agency holding assignmentID and stamps notified_at.
// Assignments already notified, resolved or past their window are skipped.
func (m *Module) Deliver(ctx context.Context, assignmentID uuid.UUID) error {
	a, err := m.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("load assignment: %w", err)
	}
	if a.NotifiedAt != nil || a.State.IsTerminal() || a.DueForExpiry(m.now()) {
		return nil
	}

	agency, err := m.store.GetAgency(ctx, a.AgencyID)
	if err != nil {
		return fmt.Errorf("load agency: %w", err)
	}
	if agency.Email == "" {
		m.log.Warn("agency has no email, skipping notification", "agencyId", agency.ID)
		return nil
	}
	lead, err := m.store.GetLead(ctx, a.LeadID)
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}

	err = m.sender.SendLeadAssignedEmail(ctx, agency.Email, email.LeadAssigned{
		AgencyName:     agency.Name,
		Industry:       lead.Industry,
		City:           lead.Location.City,
		State:          lead.Location.State,
		Zipcode:        lead.Location.Zipcode,
		Exclusive:      lead.MobileExclusive,
		AvailableUntil: a.AvailableUntil,
		InboxURL:       m.inboxURL,
	})
	if err != nil {
		return fmt.Errorf("send lead assigned email: %w", err)
	}

	stamped, err := m.store.StampNotified(ctx, a.ID, m.now())
	if err != nil {
		return fmt.Errorf("stamp notified: %w", err)
	}
	if stamped {
		m.log.Info("agency notified", "assignmentId", a.ID, "agencyId", a.AgencyID)
	}
	return nil
}
