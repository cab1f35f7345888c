package handler

import (
	"net/http"

	"leadmarket_backend/internal/distribution/domain"
	"leadmarket_backend/internal/distribution/repository"
	"leadmarket_backend/internal/distribution/transport"
	"leadmarket_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// HandleListAssignments returns the caller agency's inbox.
// GET /api/v1/agency/assignments?state=&limit=&offset=
func (h *Handler) HandleListAssignments(c *gin.Context) {
	agencyID, ok := httpkit.MustGetAgency(c)
	if !ok {
		return
	}

	var query transport.ListAssignmentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid query", nil)
		return
	}
	if !h.validate(c, &query) {
		return
	}

	params := repository.AssignmentListParams{AgencyID: agencyID, Limit: query.Limit, Offset: query.Offset}
	if query.State != "" {
		state := domain.AssignmentState(query.State)
		params.State = &state
	}

	items, err := h.engine.Inbox(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToAssignmentResponses(items))
}

// HandleGetAssignment returns one of the caller's assignments.
// GET /api/v1/agency/assignments/:id
func (h *Handler) HandleGetAssignment(c *gin.Context) {
	agencyID, ok := httpkit.MustGetAgency(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	a, err := h.engine.Assignment(c.Request.Context(), agencyID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToAssignmentResponse(a))
}

// HandleRecordView registers the caller opening a distributed lead.
// POST /api/v1/agency/distributions/:id/view
func (h *Handler) HandleRecordView(c *gin.Context) {
	agencyID, ok := httpkit.MustGetAgency(c)
	if !ok {
		return
	}
	distributionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	a, err := h.engine.RecordView(c.Request.Context(), distributionID, agencyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToAssignmentResponse(a))
}

// HandleResolve purchases or dismisses a lead.
// POST /api/v1/agency/distributions/:id/resolve
func (h *Handler) HandleResolve(c *gin.Context) {
	agencyID, ok := httpkit.MustGetAgency(c)
	if !ok {
		return
	}
	distributionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req transport.ResolveRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	a, err := h.engine.Resolve(c.Request.Context(), distributionID, agencyID, req.Action)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToAssignmentResponse(a))
}
