// Package email renders and delivers agency notification emails.
package email

import (
	"context"
	"time"
)

// LeadAssigned describes a lead offered to an agency. Contact details are
// withheld until the agency purchases the lead.
type LeadAssigned struct {
	AgencyName     string
	Industry       string
	City           string
	State          string
	Zipcode        string
	Exclusive      bool
	AvailableUntil time.Time
	InboxURL       string
}

type Sender interface {
	SendLeadAssignedEmail(ctx context.Context, toEmail string, data LeadAssigned) error
}

// NoopSender drops every message. Used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) SendLeadAssignedEmail(context.Context, string, LeadAssigned) error {
	return nil
}
