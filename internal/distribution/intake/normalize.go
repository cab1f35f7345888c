// Package intake turns loosely shaped portal payloads into validated leads.
package intake

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/platform/phone"
	"leadmarket_backend/platform/sanitize"
	"leadmarket_backend/platform/validator"

	"github.com/google/uuid"
)

// Fields is the validated shape of a normalized payload.
type Fields struct {
	FirstName string `validate:"required_without=LastName"`
	LastName  string `validate:"required_without=FirstName"`
	Email     string `validate:"required_without=Phone,omitempty,email"`
	Phone     string `validate:"required_without=Email"`
	Zipcode   string `validate:"required_without=City,omitempty,zipcode"`
	City      string `validate:"required_without=Zipcode"`
	County    string
	State     string
	Industry  string
	Mobile    bool
}

// Normalizer maps payload keys through an alias table and validates the result.
type Normalizer struct {
	aliases  Aliases
	validate *validator.Validator
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(aliases Aliases, v *validator.Validator) *Normalizer {
	if v == nil {
		v = validator.New()
	}
	return &Normalizer{aliases: aliases, validate: v}
}

// Extract resolves every lead field from payload without validating.
func (n *Normalizer) Extract(payload map[string]any) Fields {
	idx := index(payload)
	f := Fields{
		FirstName: sanitize.Text(idx.first(n.aliases.FirstName)),
		LastName:  sanitize.Text(idx.first(n.aliases.LastName)),
		Email:     strings.ToLower(idx.first(n.aliases.Email)),
		Phone:     idx.first(n.aliases.Phone),
		Zipcode:   idx.first(n.aliases.Zipcode),
		City:      sanitize.Text(idx.first(n.aliases.City)),
		County:    sanitize.Text(idx.first(n.aliases.County)),
		State:     sanitize.Text(idx.first(n.aliases.State)),
		Industry:  idx.first(n.aliases.Industry),
	}

	if f.FirstName == "" && f.LastName == "" {
		f.FirstName, f.LastName = splitName(sanitize.Text(idx.first(n.aliases.FullName)))
	}
	if f.FirstName != "" && f.LastName == "" && strings.Contains(f.FirstName, " ") {
		f.FirstName, f.LastName = splitName(f.FirstName)
	}

	if addr := sanitize.Text(idx.first(n.aliases.Address)); addr != "" {
		parseAddress(addr, &f)
	}

	for _, key := range n.aliases.MobileFlags {
		if truthy(idx.get(key)) {
			f.Mobile = true
		}
	}
	if strings.EqualFold(idx.first(n.aliases.Source), "mobile") {
		f.Mobile = true
	}
	return f
}

// Normalize validates payload and builds a new pending lead for portal.
// Validation failures carry per-field details.
func (n *Normalizer) Normalize(payload map[string]any, portal domain.Portal, now time.Time) (domain.Lead, error) {
	f := n.Extract(payload)
	if err := n.validate.Struct(f); err != nil {
		fields := validator.FieldErrors(err)
		if fields == nil {
			return domain.Lead{}, fmt.Errorf("validate lead: %w", err)
		}
		return domain.Lead{}, domain.ValidationError(fields)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Lead{}, domain.ValidationError(map[string]string{"payload": "json"})
	}

	industry := f.Industry
	if industry == "" {
		industry = portal.Industry
	}

	return domain.Lead{
		ID:          uuid.New(),
		PortalID:    portal.ID,
		Industry:    strings.ToLower(strings.TrimSpace(industry)),
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		Email:       f.Email,
		Phone:       phone.NormalizeE164(f.Phone),
		PhoneDigits: phone.Last10Digits(f.Phone),
		Location: domain.Location{
			Zipcode: f.Zipcode,
			City:    f.City,
			County:  f.County,
			State:   f.State,
		},
		RawPayload:      raw,
		Status:          domain.LeadStatusNew,
		AssignmentState: domain.LeadPending,
		MobileExclusive: f.Mobile,
		CreatedAt:       now,
	}, nil
}

type keyIndex map[string]string

var keyReplacer = strings.NewReplacer("-", "", "_", "", " ", "", ".", "")

func normalizeKey(k string) string {
	return keyReplacer.Replace(strings.ToLower(strings.TrimSpace(k)))
}

// index flattens payload into normalized key -> string value. Top-level keys
// win over keys of nested objects; nested objects are walked in key order.
func index(payload map[string]any) keyIndex {
	idx := keyIndex{}
	var nested []map[string]any
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if m, ok := payload[k].(map[string]any); ok {
			nested = append(nested, m)
			continue
		}
		if s := stringify(payload[k]); s != "" {
			nk := normalizeKey(k)
			if _, exists := idx[nk]; !exists {
				idx[nk] = s
			}
		}
	}
	for _, m := range nested {
		for nk, v := range index(m) {
			if _, exists := idx[nk]; !exists {
				idx[nk] = v
			}
		}
	}
	return idx
}

func (idx keyIndex) get(key string) string {
	return idx[normalizeKey(key)]
}

func (idx keyIndex) first(keys []string) string {
	for _, k := range keys {
		if v := idx.get(k); v != "" {
			return v
		}
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

var (
	stateZipRe = regexp.MustCompile(`^([A-Za-z]{2})\s+(\d{5}(?:-\d{4})?)$`)
	zipRe      = regexp.MustCompile(`\b(\d{5}(?:-\d{4})?)\b`)
)

// parseAddress fills missing location fields from a one-line US address such
// as "12 Main St, Dallas, TX 75001". Explicit fields are never overwritten.
func parseAddress(addr string, f *Fields) {
	parts := strings.Split(addr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	last := parts[len(parts)-1]
	if m := stateZipRe.FindStringSubmatch(last); m != nil {
		if f.State == "" {
			f.State = strings.ToUpper(m[1])
		}
		if f.Zipcode == "" {
			f.Zipcode = m[2]
		}
		if f.City == "" && len(parts) >= 3 {
			f.City = parts[len(parts)-2]
		}
		return
	}

	if f.Zipcode == "" {
		if m := zipRe.FindStringSubmatch(addr); m != nil {
			f.Zipcode = m[1]
		}
	}
	if f.City == "" && len(parts) >= 2 && zipRe.FindString(last) == "" {
		f.City = last
	}
}
