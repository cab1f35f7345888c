// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity represents the authenticated caller of an agency or admin route.
// Handlers read it without depending on token parsing details.
type Identity interface {
	// SubjectID returns the token subject (the user acting for the agency).
	SubjectID() uuid.UUID
	// AgencyID returns the agency the token is scoped to, if any.
	AgencyID() (uuid.UUID, bool)
	// Roles returns the caller's roles.
	Roles() []string
	// HasRole checks if the caller has a specific role.
	HasRole(role string) bool
	// IsAuthenticated returns true if the caller is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	subjectID     uuid.UUID
	agencyID      *uuid.UUID
	roles         []string
	authenticated bool
}

func (i *identity) SubjectID() uuid.UUID { return i.subjectID }

func (i *identity) AgencyID() (uuid.UUID, bool) {
	if i.agencyID == nil {
		return uuid.Nil, false
	}
	return *i.agencyID, true
}

func (i *identity) Roles() []string { return i.roles }

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i *identity) IsAuthenticated() bool { return i.authenticated }

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if caller info is not present.
func GetIdentity(c *gin.Context) Identity {
	subject, ok := c.Get(ContextSubjectIDKey)
	if !ok {
		return &identity{}
	}
	sid, ok := subject.(uuid.UUID)
	if !ok {
		return &identity{}
	}

	id := &identity{subjectID: sid, authenticated: true}
	if roles, ok := c.Get(ContextRolesKey); ok {
		id.roles, _ = roles.([]string)
	}
	if agency, ok := c.Get(ContextAgencyIDKey); ok {
		if aid, ok := agency.(uuid.UUID); ok {
			id.agencyID = &aid
		}
	}
	return id
}

// MustGetAgency returns the agency ID of the caller.
// If the caller has no agency scope, it aborts with 403 and returns false.
func MustGetAgency(c *gin.Context) (uuid.UUID, bool) {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return uuid.Nil, false
	}
	agencyID, ok := id.AgencyID()
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "token is not scoped to an agency"})
		return uuid.Nil, false
	}
	return agencyID, true
}
