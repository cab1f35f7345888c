package email

import (
	"strings"
	"testing"
	"time"
)

func TestLeadAssignedContent(t *testing.T) {
	until := time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC)

	subject, body, err := leadAssignedContent(LeadAssigned{
		AgencyName:     "Lone Star Roofing",
		Industry:       "roofing",
		City:           "Austin",
		State:          "TX",
		Zipcode:        "78701",
		AvailableUntil: until,
		InboxURL:       "https://app.example.com/inbox",
	})
	if err != nil {
		t.Fatal(err)
	}
	if subject != "New roofing lead in Austin, TX, 78701" {
		t.Fatalf("subject %q", subject)
	}
	for _, want := range []string{"Lone Star Roofing", "May 5, 2026 09:00 UTC", "https://app.example.com/inbox"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, "first to purchase") {
		t.Error("round-robin email mentions the exclusive race")
	}
}

func TestExclusiveLeadAssignedContent(t *testing.T) {
	subject, body, err := leadAssignedContent(LeadAssigned{
		AgencyName: "A&B <Insurance>",
		Exclusive:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if subject != "Exclusive new lead in your territory" {
		t.Fatalf("subject %q", subject)
	}
	if !strings.Contains(body, "first to purchase") {
		t.Error("exclusive email should explain the race")
	}
	if strings.Contains(body, "<Insurance>") {
		t.Error("agency name must be escaped")
	}
	if strings.Contains(body, "Open inbox") {
		t.Error("button rendered without URL")
	}
}
