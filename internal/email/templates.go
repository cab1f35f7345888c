package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type leadAssignedEmailData struct {
	baseEmailData
	AgencyName     string
	Industry       string
	Area           string
	Exclusive      bool
	AvailableUntil string
}

var templates = template.Must(template.New("email").ParseFS(templateFS, "templates/*.html"))

func renderEmailTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func area(city, state, zipcode string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{city, state, zipcode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "your territory"
	}
	return strings.Join(parts, ", ")
}

func leadAssignedContent(data LeadAssigned) (subject, body string, err error) {
	where := area(data.City, data.State, data.Zipcode)
	industry := data.Industry
	if industry == "" {
		industry = "new"
	}

	subjectFmt := subjectLeadAssignedFmt
	heading := "A new lead is waiting"
	if data.Exclusive {
		subjectFmt = subjectExclusiveLeadAssignedFmt
		heading = "An exclusive lead is waiting"
	}

	body, err = renderEmailTemplate("lead_assigned.html", leadAssignedEmailData{
		baseEmailData: baseEmailData{
			Title:    heading,
			Heading:  heading,
			CTALabel: "Open inbox",
			CTAURL:   data.InboxURL,
		},
		AgencyName:     data.AgencyName,
		Industry:       industry,
		Area:           where,
		Exclusive:      data.Exclusive,
		AvailableUntil: data.AvailableUntil.UTC().Format("Jan 2, 2006 15:04 MST"),
	})
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf(subjectFmt, industry, where), body, nil
}
